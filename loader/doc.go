// Package loader implements the content loader the resource manager reads
// from, on top of any blobstore.BlobStore.
//
// A BlobLoader keeps an index from content hash to stored blob name, decodes
// ".lz4" and ".zst" framed blobs transparently, throttles reads through the
// shared resource controller and keeps decoded bytes in a bounded LRU.
//
//	store := blobstore.NewLocalStore("assets")
//	ldr := loader.New(store, loader.Config{})
//	if err := ldr.Refresh(ctx); err != nil {
//	    return err
//	}
//	data, err := ldr.Load(ctx, model.Fingerprint("textures/stone.png"))
package loader
