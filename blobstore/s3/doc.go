// Package s3 serves resource blobs from an S3 bucket.
//
//	store, err := s3.New(ctx, "game-assets",
//	    s3.WithPrefix("release/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//	if err != nil {
//	    return err
//	}
//	ldr := loader.New(blobstore.NewCachingStore(store, blocks, 0), loader.Config{})
//
// Open costs one HEAD request. Reads are range GETs pinned to the ETag seen
// by Open, so a blob never mixes bytes of two object versions; a read after
// the object was replaced fails with ErrModified. Put uses the managed
// uploader and switches to multipart uploads for large blobs. List follows
// continuation tokens.
//
// WithEndpoint targets S3-compatible services with path-style addressing.
package s3
