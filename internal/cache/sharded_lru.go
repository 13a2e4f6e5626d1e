package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/rescache/resource"
)

const numShards = 64

// ShardedLRU is a sharded LRU cache for high-concurrency workloads.
// It distributes entries across 64 shards to reduce lock contention.
type ShardedLRU struct {
	shards [numShards]*LRU
	// next is the shard Reclaim starts at, so pressure spreads over shards.
	next atomic.Uint32
}

// NewShardedLRU creates a new sharded LRU cache.
// The capacity is divided evenly across all shards. The cache registers one
// reclaimer for all shards with rc.
func NewShardedLRU(capacity int64, rc *resource.Controller) *ShardedLRU {
	shardCapacity := max(capacity/numShards, 1)

	s := &ShardedLRU{}
	for i := range numShards {
		s.shards[i] = newLRU(shardCapacity, rc)
	}
	rc.RegisterReclaimer(s.Reclaim)
	return s
}

// Reclaim evicts from one shard after the other until need bytes were freed.
func (s *ShardedLRU) Reclaim(need int64) int64 {
	start := s.next.Add(1)
	var freed int64
	for i := range uint32(numShards) {
		if freed >= need {
			break
		}
		freed += s.shards[(start+i)%numShards].Reclaim(need - freed)
	}
	return freed
}

// shard mixes hash and block with splitmix64. Fingerprints are already well
// distributed, but block indices of one blob are sequential.
func (s *ShardedLRU) shard(key Key) *LRU {
	x := uint64(key.Hash) ^ (key.Block * 0x9e3779b97f4a7c15)
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return s.shards[x%numShards]
}

// Get returns a cached value.
func (s *ShardedLRU) Get(ctx context.Context, key Key) ([]byte, bool) {
	return s.shard(key).Get(ctx, key)
}

// Set caches a value.
func (s *ShardedLRU) Set(ctx context.Context, key Key, b []byte) {
	s.shard(key).Set(ctx, key, b)
}

// Invalidate removes entries matching the predicate.
// This iterates all shards, which is expensive but rare.
func (s *ShardedLRU) Invalidate(predicate func(key Key) bool) {
	var wg sync.WaitGroup
	wg.Add(numShards)

	for i := range numShards {
		go func(shard *LRU) {
			defer wg.Done()
			shard.Invalidate(predicate)
		}(s.shards[i])
	}

	wg.Wait()
}

// Close closes all shards.
func (s *ShardedLRU) Close() error {
	for i := range numShards {
		if err := s.shards[i].Close(); err != nil {
			return err
		}
	}
	return nil
}

// Reclaimed returns the bytes given back to the controller by all shards.
func (s *ShardedLRU) Reclaimed() int64 {
	var total int64
	for i := range numShards {
		total += s.shards[i].Reclaimed()
	}
	return total
}

// Stats returns aggregated hit/miss statistics.
func (s *ShardedLRU) Stats() (hits, misses int64) {
	for i := range numShards {
		h, m := s.shards[i].Stats()
		hits += h
		misses += m
	}
	return hits, misses
}

// Size returns the total size across all shards.
func (s *ShardedLRU) Size() int64 {
	var total int64
	for i := range numShards {
		total += s.shards[i].Size()
	}
	return total
}

// ShardStats describes one shard.
type ShardStats struct {
	ShardID int
	Size    int64
	Hits    int64
	Misses  int64
}

// ShardStats returns per-shard statistics.
func (s *ShardedLRU) ShardStats() []ShardStats {
	stats := make([]ShardStats, numShards)
	for i := range numShards {
		h, m := s.shards[i].Stats()
		stats[i] = ShardStats{
			ShardID: i,
			Size:    s.shards[i].Size(),
			Hits:    h,
			Misses:  m,
		}
	}
	return stats
}
