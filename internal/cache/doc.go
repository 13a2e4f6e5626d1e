// Package cache provides byte-bounded LRU caches keyed by resource hash.
//
// The loader caches decoded resource bytes (KindContent) so a dependency that
// is requested again shortly after deletion does not hit storage twice, and the
// caching blob store caches fixed-size blocks (KindBlock) of remote blobs.
//
// Key features:
//   - ShardedLRU: 64 shards selected by a splitmix64 mix of hash and block
//   - Per-shard mutex for minimal contention
//   - Integrated with resource.Controller for memory limits
//   - Predicate invalidation, used when a change notification arrives
package cache
