package watcher

import (
	"sync"

	"github.com/hupe1980/rescache/model"
)

// Manual is a change source driven by the application.
type Manual struct {
	mu     sync.RWMutex
	closed bool
	ch     chan model.Hash
	done   chan struct{}
	once   sync.Once
}

// NewManual returns a Manual source whose channel holds up to buffer
// notifications before Notify blocks.
func NewManual(buffer int) *Manual {
	return &Manual{
		ch:   make(chan model.Hash, buffer),
		done: make(chan struct{}),
	}
}

// Notify emits h. It blocks while the buffer is full and returns false once
// the source is closed.
func (m *Manual) Notify(h model.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false
	}
	select {
	case m.ch <- h:
		return true
	case <-m.done:
		return false
	}
}

// NotifyPath emits the fingerprint of p.
func (m *Manual) NotifyPath(p string) bool {
	return m.Notify(model.Fingerprint(p))
}

// Changes returns the notification channel. It is closed by Close.
func (m *Manual) Changes() <-chan model.Hash {
	return m.ch
}

// Close closes the source. Pending notifications remain readable.
func (m *Manual) Close() error {
	m.once.Do(func() {
		close(m.done)
		m.mu.Lock()
		m.closed = true
		close(m.ch)
		m.mu.Unlock()
	})
	return nil
}
