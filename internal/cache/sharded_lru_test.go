package cache

import (
	"context"
	"sync"
	"testing"

	"github.com/hupe1980/rescache/model"
	"github.com/hupe1980/rescache/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardedLRU_BasicOperations(t *testing.T) {
	cache := NewShardedLRU(1024*1024, nil) // 1MB

	ctx := context.Background()
	key := Key{Kind: KindContent, Hash: model.Fingerprint("a.txt")}
	data := []byte("test data")

	cache.Set(ctx, key, data)
	got, ok := cache.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, data, got)

	_, ok = cache.Get(ctx, Key{Kind: KindContent, Hash: model.Fingerprint("missing")})
	assert.False(t, ok)
}

func TestShardedLRU_ShardDistribution(t *testing.T) {
	cache := NewShardedLRU(64*1024*1024, nil) // 64MB

	ctx := context.Background()
	data := make([]byte, 1024) // 1KB

	// Sequential blocks of a handful of blobs.
	for i := range 1000 {
		key := Key{Kind: KindBlock, Hash: model.Hash(i % 4), Block: uint64(i)}
		cache.Set(ctx, key, data)
	}

	nonEmptyShards := 0
	for _, s := range cache.ShardStats() {
		if s.Size > 0 {
			nonEmptyShards++
		}
	}

	// With 1000 items across 64 shards, we expect most shards to have items
	assert.GreaterOrEqual(t, nonEmptyShards, 30, "poor shard distribution")
}

func TestShardedLRU_Concurrent(t *testing.T) {
	cache := NewShardedLRU(64*1024*1024, nil) // 64MB

	ctx := context.Background()
	data := make([]byte, 1024)

	const numGoroutines = 50
	const numOpsPerGoroutine = 500

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for g := range numGoroutines {
		go func(goroutineID int) {
			defer wg.Done()
			for i := range numOpsPerGoroutine {
				key := Key{Kind: KindBlock, Hash: model.Hash(goroutineID), Block: uint64(i)}
				cache.Set(ctx, key, data)
				_, _ = cache.Get(ctx, key)
			}
		}(g)
	}

	wg.Wait()

	hits, _ := cache.Stats()
	assert.Equal(t, int64(numGoroutines*numOpsPerGoroutine), hits)
}

func TestShardedLRU_Invalidate(t *testing.T) {
	cache := NewShardedLRU(1024*1024, nil)
	ctx := context.Background()

	for i := range 100 {
		cache.Set(ctx, Key{Kind: KindBlock, Hash: 1, Block: uint64(i)}, []byte{1})
		cache.Set(ctx, Key{Kind: KindBlock, Hash: 2, Block: uint64(i)}, []byte{1})
	}
	cache.Invalidate(ForHash(1))

	assert.Equal(t, int64(100), cache.Size())
	_, ok := cache.Get(ctx, Key{Kind: KindBlock, Hash: 2, Block: 5})
	assert.True(t, ok)
	_, ok = cache.Get(ctx, Key{Kind: KindBlock, Hash: 1, Block: 5})
	assert.False(t, ok)
	require.NoError(t, cache.Close())
	assert.Zero(t, cache.Size())
}

func TestShardedLRU_Reclaim(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 64 * 1024})
	cache := NewShardedLRU(64*1024, rc)
	ctx := context.Background()

	for i := range 64 {
		cache.Set(ctx, Key{Kind: KindBlock, Hash: 3, Block: uint64(i)}, make([]byte, 512))
	}
	cached := rc.Usage().Cache
	require.Positive(t, cached)

	need := 64*1024 - cached + 4096
	require.NoError(t, rc.AcquireMemory(resource.ClassPayload, need))
	assert.GreaterOrEqual(t, cache.Reclaimed(), int64(4096))
	assert.Equal(t, cache.Size(), rc.Usage().Cache)
	assert.LessOrEqual(t, rc.Usage().Total(), int64(64*1024))
}
