package minio

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/hupe1980/rescache/blobstore"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_KeyMapping(t *testing.T) {
	s := NewStore(nil, "bucket", "/assets/")
	assert.Equal(t, "assets/meshes/cube.bin", s.key("./meshes//cube.bin"))
	assert.Equal(t, "meshes/cube.bin", s.name("assets/meshes/cube.bin"))
	assert.Empty(t, s.name("assets/meshes/"))
	assert.Empty(t, s.name("other/cube.bin"))

	root := NewStore(nil, "bucket", "")
	assert.Equal(t, "a.bin", root.key("a.bin"))
	assert.Equal(t, "a.bin", root.name("a.bin"))
}

// TestStore_Integration requires a running MinIO instance at
// RESCACHE_MINIO_ENDPOINT (default localhost:9000) and skips otherwise.
func TestStore_Integration(t *testing.T) {
	endpoint := os.Getenv("RESCACHE_MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:9000"
	}
	bucket := "test-rescache"

	store, err := New(endpoint, bucket,
		WithStaticCredentials("minioadmin", "minioadmin"),
		WithPrefix("test-prefix/"),
	)
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()
	if _, err = store.client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	exists, err := store.client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, store.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	data := []byte("hello minio world")
	require.NoError(t, store.Put(ctx, "test.txt", data))

	blob, err := store.Open(ctx, "test.txt")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), blob.Size())

	all, err := blobstore.ReadAll(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, data, all)

	part := make([]byte, 10)
	n, err := blob.ReadAt(ctx, part, 12)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "world", string(part[:n]))
	require.NoError(t, blob.Close())

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, "test.txt")

	stale, err := store.Open(ctx, "test.txt")
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "test.txt", []byte("replaced content!")))
	_, err = stale.ReadAt(ctx, part, 0)
	assert.ErrorIs(t, err, ErrModified)

	require.NoError(t, store.Delete(ctx, "test.txt"))

	_, err = store.Open(ctx, "test.txt")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}
