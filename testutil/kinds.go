package testutil

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/rescache"
	"github.com/hupe1980/rescache/codec"
)

// CountingKind creates Blob payloads and counts the lifecycle hooks of all of
// them. Failures and delays can be injected before use.
type CountingKind struct {
	name string

	Constructs atomic.Int64
	Fulfilled  atomic.Int64
	Deletes    atomic.Int64

	mu           sync.Mutex
	constructErr error
	fulfilledErr error
	delay        time.Duration
	size         int64
}

// NewCountingKind returns a CountingKind named name.
func NewCountingKind(name string) *CountingKind {
	return &CountingKind{name: name}
}

// Name implements rescache.Kind.
func (k *CountingKind) Name() string { return k.name }

// New implements rescache.Kind.
func (k *CountingKind) New() rescache.Resource { return &Blob{kind: k} }

// FailConstruct makes OnConstruct return err. nil clears it.
func (k *CountingKind) FailConstruct(err error) {
	k.mu.Lock()
	k.constructErr = err
	k.mu.Unlock()
}

// FailFulfilled makes OnDependenciesFulfilled return err. nil clears it.
func (k *CountingKind) FailFulfilled(err error) {
	k.mu.Lock()
	k.fulfilledErr = err
	k.mu.Unlock()
}

// SetDelay makes OnConstruct sleep for d.
func (k *CountingKind) SetDelay(d time.Duration) {
	k.mu.Lock()
	k.delay = d
	k.mu.Unlock()
}

// SetSize overrides the memory size reported by payloads.
func (k *CountingKind) SetSize(n int64) {
	k.mu.Lock()
	k.size = n
	k.mu.Unlock()
}

// Live returns the number of constructed payloads not yet deleted.
func (k *CountingKind) Live() int64 {
	return k.Constructs.Load() - k.Deletes.Load()
}

func (k *CountingKind) settings() (constructErr, fulfilledErr error, delay time.Duration, size int64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.constructErr, k.fulfilledErr, k.delay, k.size
}

// Blob is the payload of a CountingKind: a copy of the raw content.
type Blob struct {
	kind   *CountingKind
	Data   []byte
	Reload bool
	size   int64
}

// OnConstruct implements rescache.Resource.
func (b *Blob) OnConstruct(ctx *rescache.ConstructContext, data []byte) error {
	b.kind.Constructs.Add(1)
	err, _, delay, size := b.kind.settings()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return err
	}
	b.Data = bytes.Clone(data)
	b.Reload = ctx.Reload()
	b.size = size
	return nil
}

// OnDependenciesFulfilled implements rescache.Resource.
func (b *Blob) OnDependenciesFulfilled() error {
	b.kind.Fulfilled.Add(1)
	_, err, _, _ := b.kind.settings()
	return err
}

// OnDelete implements rescache.Resource.
func (b *Blob) OnDelete() error {
	b.kind.Deletes.Add(1)
	return nil
}

// MemorySize implements rescache.Sizer.
func (b *Blob) MemorySize() int64 {
	if b.size > 0 {
		return b.size
	}
	return int64(len(b.Data))
}

// Require names one dependency of a manifest.
type Require struct {
	Path string `json:"path"`
	// Kind is the kind name the dependency is requested with. Empty means
	// the manifest kind itself.
	Kind string `json:"kind,omitempty"`
}

// Manifest is the JSON content read by ManifestKind.
type Manifest struct {
	Name     string    `json:"name"`
	Requires []Require `json:"requires,omitempty"`
}

// MarshalManifest encodes a manifest with the default codec.
func MarshalManifest(name string, requires ...Require) []byte {
	return codec.MustMarshal(codec.Default, Manifest{Name: name, Requires: requires})
}

// ManifestKind creates ManifestResource payloads, which declare a dependency
// for every entry of their manifest.
type ManifestKind struct {
	name  string
	kinds map[string]rescache.Kind

	Fulfilled atomic.Int64
	Deletes   atomic.Int64
	// EarlyFulfilled counts OnDependenciesFulfilled calls that observed a
	// dependency that was not Ready.
	EarlyFulfilled atomic.Int64
}

// NewManifestKind returns a ManifestKind named name that resolves dependency
// kinds among deps by name.
func NewManifestKind(name string, deps ...rescache.Kind) *ManifestKind {
	k := &ManifestKind{name: name, kinds: make(map[string]rescache.Kind, len(deps))}
	for _, d := range deps {
		k.kinds[d.Name()] = d
	}
	return k
}

// Name implements rescache.Kind.
func (k *ManifestKind) Name() string { return k.name }

// New implements rescache.Kind.
func (k *ManifestKind) New() rescache.Resource { return &ManifestResource{kind: k} }

func (k *ManifestKind) resolve(name string) rescache.Kind {
	if name == "" || name == k.name {
		return k
	}
	return k.kinds[name]
}

// ManifestResource is the payload of a ManifestKind.
type ManifestResource struct {
	kind *ManifestKind
	Manifest
	Deps []*rescache.Instance
}

// OnConstruct implements rescache.Resource.
func (r *ManifestResource) OnConstruct(ctx *rescache.ConstructContext, data []byte) error {
	if err := codec.Default.Unmarshal(data, &r.Manifest); err != nil {
		return err
	}
	for _, req := range r.Requires {
		inst, err := ctx.Require(req.Path, r.kind.resolve(req.Kind))
		if err != nil {
			return err
		}
		r.Deps = append(r.Deps, inst)
	}
	return nil
}

// OnDependenciesFulfilled implements rescache.Resource.
func (r *ManifestResource) OnDependenciesFulfilled() error {
	r.kind.Fulfilled.Add(1)
	for _, d := range r.Deps {
		if !d.IsReady() {
			r.kind.EarlyFulfilled.Add(1)
			break
		}
	}
	return nil
}

// OnDelete implements rescache.Resource.
func (r *ManifestResource) OnDelete() error {
	r.kind.Deletes.Add(1)
	return nil
}
