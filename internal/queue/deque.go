package queue

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Deque is a bounded Chase-Lev work-stealing deque of *T.
//
// Push and Pop must only be called by the owning goroutine.
// Steal, Len and Cap are safe from any goroutine.
type Deque[T any] struct {
	_      cpu.CacheLinePad
	top    atomic.Int64 // next index to steal
	_      cpu.CacheLinePad
	bottom atomic.Int64 // next index to push
	_      cpu.CacheLinePad

	mask  int64
	slots []atomic.Pointer[T]
}

// New creates a deque that holds at least capacity items.
// Capacity is rounded up to the next power of two (minimum 2).
func New[T any](capacity int) *Deque[T] {
	size := 2
	for size < capacity {
		size <<= 1
	}
	return &Deque[T]{
		mask:  int64(size - 1),
		slots: make([]atomic.Pointer[T], size),
	}
}

// Cap returns the number of slots.
func (d *Deque[T]) Cap() int {
	return len(d.slots)
}

// Len returns the approximate number of queued items.
func (d *Deque[T]) Len() int {
	n := d.bottom.Load() - d.top.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// Push appends v at the bottom. Returns false if the deque is full.
func (d *Deque[T]) Push(v *T) bool {
	b := d.bottom.Load()
	t := d.top.Load()
	if b-t >= int64(len(d.slots)) {
		return false
	}

	d.slots[b&d.mask].Store(v)
	// The atomic store on bottom publishes the slot to thieves.
	d.bottom.Store(b + 1)
	return true
}

// Pop removes the most recently pushed item. Returns nil if empty or if a
// thief took the last item.
func (d *Deque[T]) Pop() *T {
	b := d.bottom.Load() - 1
	d.bottom.Store(b)
	t := d.top.Load()

	if t > b {
		// Empty: undo the speculative decrement.
		d.bottom.Store(t)
		return nil
	}

	v := d.slots[b&d.mask].Load()
	if t < b {
		return v
	}

	// Exactly one item left: race the thieves for it.
	won := d.top.CompareAndSwap(t, t+1)
	d.bottom.Store(t + 1)
	if !won {
		return nil
	}
	return v
}

// Steal removes the oldest item. Returns nil if empty or if the CAS on top lost
// against a concurrent Pop or Steal.
func (d *Deque[T]) Steal() *T {
	t := d.top.Load()
	b := d.bottom.Load()
	if t >= b {
		return nil
	}

	v := d.slots[t&d.mask].Load()
	if !d.top.CompareAndSwap(t, t+1) {
		return nil
	}
	return v
}
