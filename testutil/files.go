package testutil

import (
	"context"
	"testing"

	"github.com/hupe1980/rescache/blobstore"
	"github.com/hupe1980/rescache/loader"
	"github.com/hupe1980/rescache/model"
	"github.com/stretchr/testify/require"
)

// Files is an in-memory content fixture: a MemoryStore indexed by a
// BlobLoader.
type Files struct {
	t      testing.TB
	Store  *blobstore.MemoryStore
	Loader *loader.BlobLoader
}

// NewFiles stores files and indexes them. The loader runs without a content
// cache so every construction reads the store.
func NewFiles(t testing.TB, files map[string][]byte) *Files {
	t.Helper()

	f := &Files{
		t:     t,
		Store: blobstore.NewMemoryStore(),
	}
	f.Loader = loader.New(f.Store, loader.Config{CacheBytes: -1})
	for name, data := range files {
		f.Put(name, data)
	}
	t.Cleanup(func() { _ = f.Loader.Close() })
	return f
}

// Put stores and indexes name and returns its hash.
func (f *Files) Put(name string, data []byte) model.Hash {
	f.t.Helper()

	ctx := context.Background()
	require.NoError(f.t, f.Store.Put(ctx, name, data))
	h, err := f.Loader.Register(ctx, name)
	require.NoError(f.t, err)
	return h
}

// Remove deletes name from the store and the index.
func (f *Files) Remove(name string) {
	f.t.Helper()

	require.NoError(f.t, f.Store.Delete(context.Background(), name))
	f.Loader.Forget(model.Fingerprint(name))
}
