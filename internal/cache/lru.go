package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/rescache/resource"
)

// LRU is a byte-bounded ByteCache that evicts the least recently used entry.
// Its bytes count as resource.ClassCache on the controller, and it hands them
// back when a payload needs room.
type LRU struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	items    map[Key]*list.Element
	order    *list.List // front is most recently used
	rc       *resource.Controller

	hits      atomic.Int64
	misses    atomic.Int64
	reclaimed atomic.Int64
}

type item struct {
	key  Key
	data []byte
}

// NewLRU creates an LRU holding at most capacity bytes. A non-nil rc
// accounts the cached bytes and may reclaim them.
func NewLRU(capacity int64, rc *resource.Controller) *LRU {
	c := newLRU(capacity, rc)
	rc.RegisterReclaimer(c.Reclaim)
	return c
}

func newLRU(capacity int64, rc *resource.Controller) *LRU {
	return &LRU{
		capacity: capacity,
		items:    make(map[Key]*list.Element),
		order:    list.New(),
		rc:       rc,
	}
}

// Get returns a cached value.
func (c *LRU) Get(_ context.Context, key Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.order.MoveToFront(el)
	return el.Value.(*item).data, true
}

// Set caches a value. Values larger than the capacity, or that the controller
// has no room for, are not cached.
func (c *LRU) Set(_ context.Context, key Key, b []byte) {
	n := int64(len(b))
	if n > c.capacity {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.remove(el)
	}
	for c.size+n > c.capacity {
		c.remove(c.order.Back())
	}
	if c.rc.AcquireMemory(resource.ClassCache, n) != nil {
		return
	}

	c.items[key] = c.order.PushFront(&item{key: key, data: b})
	c.size += n
}

// Reclaim evicts least recently used entries until at least need bytes were
// freed or the cache is empty, and returns the bytes freed.
func (c *LRU) Reclaim(need int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var freed int64
	for freed < need {
		el := c.order.Back()
		if el == nil {
			break
		}
		freed += c.remove(el)
	}
	c.reclaimed.Add(freed)
	return freed
}

// Invalidate removes entries matching the predicate.
func (c *LRU) Invalidate(predicate func(key Key) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, el := range c.items {
		if predicate(key) {
			c.remove(el)
		}
	}
}

// Close drops all entries and returns their memory to the controller.
func (c *LRU) Close() error {
	c.Invalidate(func(Key) bool { return true })
	return nil
}

// Stats returns hit and miss counts.
func (c *LRU) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Reclaimed returns the bytes given back to the controller through Reclaim.
func (c *LRU) Reclaimed() int64 {
	return c.reclaimed.Load()
}

// Len returns the number of cached entries.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Size returns the current size of the cache in bytes.
func (c *LRU) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// remove unlinks el and returns its size. c.mu must be held.
func (c *LRU) remove(el *list.Element) int64 {
	it := c.order.Remove(el).(*item)
	delete(c.items, it.key)
	n := int64(len(it.data))
	c.size -= n
	c.rc.ReleaseMemory(resource.ClassCache, n)
	return n
}
