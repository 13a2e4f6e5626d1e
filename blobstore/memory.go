package blobstore

import (
	"context"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/hupe1980/rescache/model"
)

// MemoryStore keeps blobs in a map. It backs tests and embedded resource
// sets. Names are stored in the spelling model.NormalizePath produces, so
// "a/b", "./a/b" and "a\\b" address the same blob, like they do for the
// resource hash.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Open returns a snapshot of name. Later writes do not change an open blob.
func (m *MemoryStore) Open(ctx context.Context, name string) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	data, ok := m.blobs[model.NormalizePath(name)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	// Stored slices are replaced, never written, so the blob can share it.
	return memoryBlob(data), nil
}

// Put stores a copy of data under name.
func (m *MemoryStore) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := model.NormalizePath(name)
	buf := slices.Clone(data)
	if buf == nil {
		buf = []byte{}
	}

	m.mu.Lock()
	m.blobs[key] = buf
	m.mu.Unlock()
	return nil
}

// Delete removes name. Deleting a missing blob is not an error.
func (m *MemoryStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.blobs, model.NormalizePath(name))
	m.mu.Unlock()
	return nil
}

// List returns the sorted names that start with prefix. The prefix is
// matched against the normalized names as given.
func (m *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	names := slices.Sorted(maps.Keys(m.blobs))
	return slices.DeleteFunc(names, func(n string) bool {
		return !strings.HasPrefix(n, prefix)
	}), nil
}

// Len returns the number of stored blobs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

type memoryBlob []byte

func (b memoryBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if off < 0 || off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (memoryBlob) Close() error { return nil }

func (b memoryBlob) Size() int64 { return int64(len(b)) }
