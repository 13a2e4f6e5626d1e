package rescache

import (
	"context"
	"errors"

	"github.com/hupe1980/rescache/model"
	"github.com/hupe1980/rescache/scheduler"
)

// FileLoader is the content source of the manager. loader.BlobLoader
// implements it on top of any blob store.
type FileLoader interface {
	// Exists reports whether content for h is available.
	Exists(ctx context.Context, h model.Hash) bool
	// Size returns the content size of h in bytes.
	Size(ctx context.Context, h model.Hash) (int64, error)
	// Read fills buf, which is exactly Size(h) bytes long.
	Read(ctx context.Context, h model.Hash, buf []byte) error
}

// ContentLoader is implemented by loaders that can return the content of h
// without a separate Size call. The returned slice must not be modified.
type ContentLoader interface {
	Load(ctx context.Context, h model.Hash) ([]byte, error)
}

// Invalidator is implemented by loaders that cache content. The manager
// invalidates h before reconstructing it.
type Invalidator interface {
	Invalidate(h model.Hash)
}

// ChangeDetector is implemented by loaders that can tell whether the content
// of h changed since it was last loaded.
type ChangeDetector interface {
	Changed(ctx context.Context, h model.Hash) (bool, error)
}

// ChangeSource emits the hashes whose backing content changed.
// watcher.FS and watcher.Manual implement it.
type ChangeSource interface {
	Changes() <-chan model.Hash
}

// Resource is the payload of a cache entry. A Kind creates a fresh Resource
// for every construction; hooks of one payload are never called concurrently.
type Resource interface {
	// OnConstruct builds the payload from raw content and declares
	// dependencies with ctx.Require. data must not be retained after return
	// unless copied.
	OnConstruct(ctx *ConstructContext, data []byte) error
	// OnDependenciesFulfilled runs once every declared dependency is Ready.
	OnDependenciesFulfilled() error
	// OnDelete releases the payload. It runs when the entry is deleted and on
	// the superseded payload after a reload.
	OnDelete() error
}

// Sizer is implemented by resources that report their resident size. Other
// resources are accounted with the size of their raw content.
type Sizer interface {
	MemorySize() int64
}

// Kind is a resource type: it names the type and creates payloads.
type Kind interface {
	Name() string
	New() Resource
}

type kindFunc struct {
	name string
	fn   func() Resource
}

func (k kindFunc) Name() string  { return k.name }
func (k kindFunc) New() Resource { return k.fn() }

// KindFunc adapts a constructor function to a Kind.
func KindFunc(name string, fn func() Resource) Kind {
	return kindFunc{name: name, fn: fn}
}

var errRequireSealed = errors.New("rescache: Require called outside OnConstruct")

// ConstructContext is passed to Resource.OnConstruct.
type ConstructContext struct {
	m      *Manager
	w      *scheduler.Worker
	e      *entry
	b      *build
	sealed bool
}

// Context returns the manager context. It is canceled by Manager.Close.
func (c *ConstructContext) Context() context.Context {
	return c.m.ctx
}

// Hash returns the hash being constructed.
func (c *ConstructContext) Hash() model.Hash {
	return c.e.hash
}

// Reload reports whether this construction replaces a previous payload.
func (c *ConstructContext) Reload() bool {
	return c.b.reload
}

// Worker returns the worker running the construction, or nil for a
// synchronous construction on a caller goroutine.
func (c *ConstructContext) Worker() *scheduler.Worker {
	return c.w
}

// Require declares a dependency on the resource at path.
func (c *ConstructContext) Require(path string, kind Kind) (*Instance, error) {
	return c.RequireHash(model.Fingerprint(path), kind)
}

// RequireHash declares a dependency on h. The dependency is requested like
// any other resource and owned by the payload under construction: it is
// released when that payload is deleted or superseded. OnDependenciesFulfilled
// runs only after every dependency is Ready; a failed dependency fails the
// construction.
func (c *ConstructContext) RequireHash(h model.Hash, kind Kind) (*Instance, error) {
	if c.sealed {
		return nil, errRequireSealed
	}
	b, e := c.b, c.e
	b.pending.Add(1)
	inst, err := c.m.request(c.m.ctx, c.w, h, kind, requestOptions{
		onSettle: func(w *scheduler.Worker, dep *Instance, err error) {
			c.m.dependencySettled(w, e, b, dep, err)
		},
	})
	if err != nil {
		b.pending.Add(-1)
		return nil, err
	}
	b.deps = append(b.deps, inst)
	return inst, nil
}

// NumDependencies returns the number of dependencies declared so far.
func (c *ConstructContext) NumDependencies() int {
	return len(c.b.deps)
}

// Dependency returns the i-th declared dependency.
func (c *ConstructContext) Dependency(i int) *Instance {
	return c.b.deps[i]
}
