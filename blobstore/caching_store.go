package blobstore

import (
	"context"
	"errors"
	"io"

	"github.com/hupe1980/rescache/internal/cache"
	"github.com/hupe1980/rescache/model"
	"golang.org/x/sync/errgroup"
)

// DefaultBlockSize is the block size used by CachingStore when none is given.
const DefaultBlockSize = 64 * 1024

// maxRunFetches bounds the backend reads one ReadAt issues in parallel.
const maxRunFetches = 16

// CachingStore puts a block cache in front of a slow store, typically S3 or
// MinIO. Blocks are keyed by the fingerprint of the blob name; writes through
// the store and Invalidate drop them.
type CachingStore struct {
	inner     BlobStore
	blocks    cache.ByteCache
	blockSize int64
}

// NewCachingStore wraps inner. blockSize defaults to DefaultBlockSize if <= 0.
func NewCachingStore(inner BlobStore, blocks cache.ByteCache, blockSize int64) *CachingStore {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &CachingStore{inner: inner, blocks: blocks, blockSize: blockSize}
}

// Open opens name on the inner store. Reads of the returned blob go through
// the block cache.
func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &cachedBlob{
		Blob:      b,
		blocks:    s.blocks,
		hash:      model.Fingerprint(name),
		blockSize: s.blockSize,
	}, nil
}

// Put drops the cached blocks of name and writes through.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.Invalidate(name)
	return s.inner.Put(ctx, name, data)
}

// Delete drops the cached blocks of name and deletes through.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.Invalidate(name)
	return s.inner.Delete(ctx, name)
}

// List lists the inner store.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// Invalidate drops the cached blocks of name. The loader calls it before a
// reload, when the object may have changed behind the store's back.
func (s *CachingStore) Invalidate(name string) {
	h := model.Fingerprint(name)
	s.blocks.Invalidate(func(k cache.Key) bool {
		return k.Kind == cache.KindBlock && k.Hash == h
	})
}

// Stats returns hit and miss counts of the block cache.
func (s *CachingStore) Stats() (hits, misses int64) {
	return s.blocks.Stats()
}

type cachedBlob struct {
	Blob
	blocks    cache.ByteCache
	hash      model.Hash
	blockSize int64
}

func (b *cachedBlob) key(blk int64) cache.Key {
	return cache.Key{Kind: cache.KindBlock, Hash: b.hash, Block: uint64(blk)}
}

// blockRun is a range of consecutive blocks missing from the cache.
type blockRun struct {
	first, n int64
	data     []byte
}

// ReadAt serves p from cached blocks and fetches each run of missing blocks
// with one backend read.
func (b *cachedBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	size := b.Size()
	if off < 0 || off >= size {
		return 0, io.EOF
	}
	end := min(off+int64(len(p)), size)
	first, last := off/b.blockSize, (end-1)/b.blockSize

	cached := make(map[int64][]byte, last-first+1)
	var runs []*blockRun
	for blk := first; blk <= last; blk++ {
		if data, ok := b.blocks.Get(ctx, b.key(blk)); ok {
			cached[blk] = data
			continue
		}
		if n := len(runs); n > 0 && runs[n-1].first+runs[n-1].n == blk {
			runs[n-1].n++
			continue
		}
		runs = append(runs, &blockRun{first: blk, n: 1})
	}

	if err := b.fetch(ctx, runs, size); err != nil {
		return 0, err
	}
	for _, r := range runs {
		for i := range r.n {
			lo := i * b.blockSize
			if lo >= int64(len(r.data)) {
				break
			}
			hi := min(lo+b.blockSize, int64(len(r.data)))
			// A copy, so one cached block does not pin the whole run.
			block := append([]byte(nil), r.data[lo:hi]...)
			cached[r.first+i] = block
			b.blocks.Set(ctx, b.key(r.first+i), block)
		}
	}

	var total int
	for blk := first; blk <= last; blk++ {
		data := cached[blk]
		start := blk * b.blockSize
		lo, hi := max(start, off)-start, min(start+b.blockSize, end)-start
		if lo >= int64(len(data)) {
			break
		}
		total += copy(p[start+lo-off:], data[lo:min(hi, int64(len(data)))])
	}

	if total < len(p) {
		return total, io.EOF
	}
	return total, nil
}

func (b *cachedBlob) fetch(ctx context.Context, runs []*blockRun, size int64) error {
	if len(runs) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxRunFetches)
	for _, r := range runs {
		g.Go(func() error {
			start := r.first * b.blockSize
			buf := make([]byte, min(r.n*b.blockSize, size-start))
			n, err := b.Blob.ReadAt(gctx, buf, start)
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			r.data = buf[:n]
			return nil
		})
	}
	return g.Wait()
}
