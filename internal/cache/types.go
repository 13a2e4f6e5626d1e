package cache

import (
	"context"

	"github.com/hupe1980/rescache/model"
)

// Kind separates key spaces.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindContent      // decoded bytes of a whole resource
	KindBlock        // fixed-size block of a stored blob
)

// Key identifies a cached byte slice.
type Key struct {
	Kind Kind
	// Hash is the fingerprint of the resource or blob name.
	Hash model.Hash
	// Block is the block index for KindBlock entries (0 otherwise).
	Block uint64
}

// ByteCache is a byte-oriented cache for immutable data.
// Returned slices must be treated as read-only.
type ByteCache interface {
	// Get returns a cached value. ok=false if missing.
	Get(ctx context.Context, key Key) (b []byte, ok bool)
	// Set caches a value. Implementations retain b; caller must treat b as immutable.
	Set(ctx context.Context, key Key, b []byte)
	// Invalidate removes entries matching the predicate.
	Invalidate(predicate func(key Key) bool)
	// Close releases any resources.
	Close() error
	// Stats returns cache statistics.
	Stats() (hits, misses int64)
}

// ForHash returns a predicate matching every entry of h.
func ForHash(h model.Hash) func(Key) bool {
	return func(k Key) bool {
		return k.Hash == h
	}
}
