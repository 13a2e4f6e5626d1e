package blobstore

import (
	"context"
	"io"
	"sync/atomic"
	"testing"

	"github.com/hupe1980/rescache/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore wraps a MemoryStore and counts backend reads.
type countingStore struct {
	*MemoryStore
	reads atomic.Int64
}

func (s *countingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.MemoryStore.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &countingBlob{Blob: b, reads: &s.reads}, nil
}

type countingBlob struct {
	Blob
	reads *atomic.Int64
}

func (b *countingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	b.reads.Add(1)
	return b.Blob.ReadAt(ctx, p, off)
}

func newCachingFixture(t *testing.T, data []byte) (*CachingStore, *countingStore) {
	t.Helper()
	inner := &countingStore{MemoryStore: NewMemoryStore()}
	require.NoError(t, inner.Put(context.Background(), "blob", data))
	return NewCachingStore(inner, cache.NewLRU(1<<20, nil), 16), inner
}

func pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	return data
}

func TestCachingStore_ReadThrough(t *testing.T) {
	data := pattern(100)
	store, inner := newCachingFixture(t, data)
	ctx := context.Background()

	blob, err := store.Open(ctx, "blob")
	require.NoError(t, err)
	defer blob.Close()

	buf := make([]byte, 40)
	n, err := blob.ReadAt(ctx, buf, 10)
	require.NoError(t, err)
	require.Equal(t, 40, n)
	assert.Equal(t, data[10:50], buf)
	// One contiguous run of missing blocks, one backend read.
	assert.Equal(t, int64(1), inner.reads.Load())

	// Fully cached now.
	n, err = blob.ReadAt(ctx, buf, 10)
	require.NoError(t, err)
	require.Equal(t, 40, n)
	assert.Equal(t, int64(1), inner.reads.Load())
}

func TestCachingStore_TailAndEOF(t *testing.T) {
	data := pattern(50)
	store, _ := newCachingFixture(t, data)
	ctx := context.Background()

	blob, err := store.Open(ctx, "blob")
	require.NoError(t, err)

	buf := make([]byte, 20)
	n, err := blob.ReadAt(ctx, buf, 40)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 10, n)
	assert.Equal(t, data[40:], buf[:n])

	n, err = blob.ReadAt(ctx, buf, 50)
	assert.ErrorIs(t, err, io.EOF)
	assert.Zero(t, n)

	all, err := ReadAll(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, data, all)
}

func TestCachingStore_PutInvalidates(t *testing.T) {
	store, _ := newCachingFixture(t, []byte("old content here"))
	ctx := context.Background()

	blob, err := store.Open(ctx, "blob")
	require.NoError(t, err)
	got, err := ReadAll(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, "old content here", string(got))

	require.NoError(t, store.Put(ctx, "blob", []byte("new content here")))

	blob, err = store.Open(ctx, "blob")
	require.NoError(t, err)
	got, err = ReadAll(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, "new content here", string(got))
}

func TestCachingStore_DeleteAndList(t *testing.T) {
	store, _ := newCachingFixture(t, []byte("x"))
	ctx := context.Background()

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"blob"}, names)

	require.NoError(t, store.Delete(ctx, "blob"))
	_, err = store.Open(ctx, "blob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachingStore_Invalidate(t *testing.T) {
	store, inner := newCachingFixture(t, pattern(64))
	ctx := context.Background()

	read := func() []byte {
		blob, err := store.Open(ctx, "blob")
		require.NoError(t, err)
		defer blob.Close()
		got, err := ReadAll(ctx, blob)
		require.NoError(t, err)
		return got
	}

	assert.Equal(t, pattern(64), read())
	assert.Equal(t, int64(1), inner.reads.Load())

	// Changed behind the caching store: stale until invalidated.
	require.NoError(t, inner.Put(ctx, "blob", make([]byte, 64)))
	assert.Equal(t, pattern(64), read())
	assert.Equal(t, int64(1), inner.reads.Load())

	store.Invalidate("./blob")
	assert.Equal(t, make([]byte, 64), read())
	assert.Equal(t, int64(2), inner.reads.Load())

	hits, misses := store.Stats()
	assert.Equal(t, int64(4), hits)
	assert.Equal(t, int64(8), misses)
}

func TestCachingStore_PartiallyCached(t *testing.T) {
	data := pattern(80)
	store, inner := newCachingFixture(t, data)
	ctx := context.Background()

	blob, err := store.Open(ctx, "blob")
	require.NoError(t, err)
	defer blob.Close()

	// Cache blocks 1 and 3, then read everything: blocks 0, 2 and 4 are
	// three separate runs.
	_, err = blob.ReadAt(ctx, make([]byte, 16), 16)
	require.NoError(t, err)
	_, err = blob.ReadAt(ctx, make([]byte, 16), 48)
	require.NoError(t, err)
	require.Equal(t, int64(2), inner.reads.Load())

	buf := make([]byte, 80)
	n, err := blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 80, n)
	assert.Equal(t, data, buf)
	assert.Equal(t, int64(5), inner.reads.Load())
}
