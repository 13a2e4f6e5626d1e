package rescache

import (
	"context"
	"sync/atomic"

	"github.com/hupe1980/rescache/model"
	"github.com/hupe1980/rescache/scheduler"
)

// Instance is a caller's handle to a cache entry. It counts as one
// reference from Request until Release and may be observed in any state.
type Instance struct {
	m *Manager
	e *entry

	// Guarded by Manager.mu.
	onReady  func(*Instance)
	onSettle func(w *scheduler.Worker, inst *Instance, err error)

	released atomic.Bool
}

// Hash returns the hash of the entry.
func (i *Instance) Hash() model.Hash {
	return i.e.hash
}

// Kind returns the kind the entry was created with.
func (i *Instance) Kind() Kind {
	return i.e.kind
}

// State returns the current state of the entry.
func (i *Instance) State() model.State {
	i.m.mu.Lock()
	defer i.m.mu.Unlock()
	return i.e.state
}

// IsReady reports whether the entry is Ready.
func (i *Instance) IsReady() bool {
	return i.State() == model.StateReady
}

// Err returns the construction error of a Failed entry.
func (i *Instance) Err() error {
	i.m.mu.Lock()
	defer i.m.mu.Unlock()
	return i.e.err
}

// Resource returns the current payload, or nil unless the entry is Ready.
// After a reload it returns the new payload.
func (i *Instance) Resource() Resource {
	i.m.mu.Lock()
	defer i.m.mu.Unlock()
	if i.e.state != model.StateReady {
		return nil
	}
	return i.e.payload
}

// Counters returns how often the lifecycle hooks of the entry ran.
func (i *Instance) Counters() model.Counters {
	i.m.mu.Lock()
	defer i.m.mu.Unlock()
	return i.e.counters
}

// Wait blocks until the entry is Ready, construction failed or ctx is done.
func (i *Instance) Wait(ctx context.Context) error {
	for {
		if i.released.Load() {
			return ErrInvalidReference
		}

		i.m.mu.Lock()
		state, err, changed := i.e.state, i.e.err, i.e.changed
		i.m.mu.Unlock()

		switch state {
		case model.StateReady:
			return nil
		case model.StateFailed:
			return err
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Reference returns an additional strong reference to a Ready entry.
func (i *Instance) Reference() (*Reference, error) {
	if i.released.Load() {
		return nil, ErrInvalidReference
	}

	i.m.mu.Lock()
	if i.e.state != model.StateReady {
		i.m.mu.Unlock()
		return nil, ErrNotReady
	}
	i.e.refs++
	i.m.mu.Unlock()

	r := &Reference{m: i.m}
	r.e.Store(i.e)
	return r, nil
}

// Release drops the reference held by the instance. Releasing twice is a
// no-op.
func (i *Instance) Release() {
	i.release(nil)
}

func (i *Instance) release(w *scheduler.Worker) {
	if !i.released.CompareAndSwap(false, true) {
		return
	}
	i.m.mu.Lock()
	delete(i.e.watchers, i)
	i.onReady, i.onSettle = nil, nil
	i.m.mu.Unlock()

	i.m.release(w, i.e)
}

// Reference is a strong, movable reference to a Ready entry. It keeps the
// entry alive independently of the Instance it was taken from.
type Reference struct {
	m *Manager
	e atomic.Pointer[entry]
}

// IsValid reports whether r still holds its entry.
func (r *Reference) IsValid() bool {
	return r != nil && r.e.Load() != nil
}

// Hash returns the hash of the referenced entry, or 0 if r is invalid.
func (r *Reference) Hash() model.Hash {
	if e := r.e.Load(); e != nil {
		return e.hash
	}
	return 0
}

// Resource returns the current payload of the referenced entry.
func (r *Reference) Resource() Resource {
	e := r.e.Load()
	if e == nil {
		return nil
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return e.payload
}

// Move transfers the reference into a new Reference and invalidates r.
func (r *Reference) Move() *Reference {
	n := &Reference{m: r.m}
	n.e.Store(r.e.Swap(nil))
	return n
}

// Release drops the reference. Releasing an invalid reference is a no-op.
func (r *Reference) Release() {
	if e := r.e.Swap(nil); e != nil {
		r.m.release(nil, e)
	}
}

// As returns the payload of inst as T, if inst is Ready and holds a T.
func As[T Resource](inst *Instance) (T, bool) {
	t, ok := inst.Resource().(T)
	return t, ok
}
