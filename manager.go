package rescache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/rescache/model"
	"github.com/hupe1980/rescache/resource"
	"github.com/hupe1980/rescache/scheduler"
)

// entry is the shared cache record of one hash. All mutable fields are
// guarded by Manager.mu.
type entry struct {
	hash      model.Hash
	kind      Kind
	permanent bool

	refs  int
	state model.State
	// building is set while a construction is in flight. A reload of a Ready
	// entry keeps state at Ready and only sets building.
	building      bool
	reloadPending bool

	payload Resource
	deps    []*Instance
	bytes   int64
	err     error

	counters model.Counters
	// watchers are the attached instances with callbacks.
	watchers map[*Instance]struct{}
	// changed is closed and replaced on every state transition.
	changed chan struct{}
}

func newEntry(h model.Hash, kind Kind, permanent bool) *entry {
	return &entry{
		hash:      h,
		kind:      kind,
		permanent: permanent,
		state:     model.StatePending,
		building:  true,
		watchers:  make(map[*Instance]struct{}),
		changed:   make(chan struct{}),
	}
}

func (e *entry) setState(s model.State) {
	e.state = s
	e.broadcast()
}

func (e *entry) broadcast() {
	close(e.changed)
	e.changed = make(chan struct{})
}

// build is one run of the construction pipeline for an entry.
type build struct {
	reload     bool
	background bool
	start      time.Time

	res         Resource
	constructed bool
	bytes       int64
	deps        []*Instance

	// pending counts outstanding dependencies plus one guard held until
	// OnConstruct returned. The build settles when it drops to zero.
	pending atomic.Int32

	errOnce sync.Once
	stage   Stage
	err     error
}

func newBuild(reload, background bool) *build {
	b := &build{reload: reload, background: background, start: time.Now()}
	b.pending.Store(1)
	return b
}

func (b *build) setErr(stage Stage, err error) {
	b.errOnce.Do(func() {
		b.stage = stage
		b.err = err
	})
}

// afterBuild is what an entry needs once a build settled.
type afterBuild uint8

const (
	afterNone afterBuild = iota
	afterReload
	afterDelete
)

// Manager is a hash-keyed resource cache that constructs resources
// asynchronously on a work-stealing scheduler.
type Manager struct {
	loader    FileLoader
	opts      options
	sched     *scheduler.Scheduler
	ownsSched bool
	rc        *resource.Controller
	logger    *Logger
	metrics   MetricsCollector

	mu      sync.Mutex
	entries map[model.Hash]*entry

	closed atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a manager reading content from loader.
func New(loader FileLoader, optFns ...Option) (*Manager, error) {
	if loader == nil {
		return nil, errors.New("rescache: loader must not be nil")
	}
	o := applyOptions(optFns)

	m := &Manager{
		loader:  loader,
		opts:    o,
		sched:   o.scheduler,
		rc:      o.controller,
		logger:  o.logger,
		metrics: o.metricsCollector,
		entries: make(map[model.Hash]*entry),
	}
	if m.sched == nil {
		m.sched = scheduler.New(scheduler.Config{
			NumWorkers: o.workers,
			Logger:     o.logger.Logger,
		})
		m.ownsSched = true
	}
	if m.rc == nil {
		m.rc = resource.NewController(resource.Config{
			MemoryLimitBytes:     o.memoryLimit,
			MaxBackgroundReloads: o.maxReloads,
		})
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m, nil
}

// Scheduler returns the scheduler construction jobs run on.
func (m *Manager) Scheduler() *scheduler.Scheduler {
	return m.sched
}

// Request returns an instance of the resource h, constructed as kind.
//
// If no content exists for h, Request fails with ErrNotFound and no entry is
// created. Otherwise the request attaches to the existing entry or creates
// one and schedules its construction; the instance becomes Ready
// asynchronously unless WithSync is given. The caller owns the instance and
// must Release it.
func (m *Manager) Request(ctx context.Context, h model.Hash, kind Kind, optFns ...RequestOption) (*Instance, error) {
	return m.request(ctx, nil, h, kind, applyRequestOptions(optFns))
}

// RequestPath is Request for the fingerprint of path.
func (m *Manager) RequestPath(ctx context.Context, path string, kind Kind, optFns ...RequestOption) (*Instance, error) {
	return m.Request(ctx, model.Fingerprint(path), kind, optFns...)
}

// RequestMany requests every hash in parallel on the scheduler, as children
// of one root job, and returns once all requests were admitted or rejected.
// insts[i] is nil where the request failed; the returned error joins the
// failures. WithSync is ignored.
func (m *Manager) RequestMany(ctx context.Context, hashes []model.Hash, kind Kind, optFns ...RequestOption) ([]*Instance, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	o := applyRequestOptions(optFns)
	o.sync = false

	insts := make([]*Instance, len(hashes))
	errs := make([]error, len(hashes))

	root := m.sched.CreateJob(nil, nil)
	for i, h := range hashes {
		child := m.sched.CreateChildJob(nil, root, func(w *scheduler.Worker, _ *scheduler.Job) {
			insts[i], errs[i] = m.request(ctx, w, h, kind, o)
		})
		m.sched.StartJob(nil, child)
	}
	m.sched.StartJob(nil, root)
	m.sched.WaitForJob(nil, root)

	return insts, errors.Join(errs...)
}

func (m *Manager) request(ctx context.Context, w *scheduler.Worker, h model.Hash, kind Kind, o requestOptions) (*Instance, error) {
	start := time.Now()
	inst, attached, err := m.admit(ctx, w, h, kind, o)
	m.metrics.RecordRequest(time.Since(start), err)
	name := ""
	if kind != nil {
		name = kind.Name()
	}
	m.logger.LogRequest(ctx, h, name, attached, err)
	if err != nil || !o.sync {
		return inst, err
	}

	if err := inst.Wait(ctx); err != nil {
		inst.Release()
		return nil, err
	}
	return inst, nil
}

func (m *Manager) admit(ctx context.Context, w *scheduler.Worker, h model.Hash, kind Kind, o requestOptions) (*Instance, bool, error) {
	if m.closed.Load() {
		return nil, false, ErrClosed
	}
	if kind == nil {
		return nil, false, errors.New("rescache: kind must not be nil")
	}
	if !m.loader.Exists(ctx, h) {
		return nil, false, fmt.Errorf("%w: %s", ErrNotFound, h)
	}

	m.mu.Lock()
	e, ok := m.entries[h]
	created := !ok || e.state == model.StateDeleting
	switch {
	case created:
		// A Deleting entry is left to its deletion job, which only removes
		// the map slot if it still points at that entry.
		e = newEntry(h, kind, o.permanent)
		m.entries[h] = e
	case e.kind.Name() != kind.Name():
		m.mu.Unlock()
		return nil, false, fmt.Errorf("%w: %s is %q, requested %q", ErrKindMismatch, h, e.kind.Name(), kind.Name())
	case e.permanent != o.permanent:
		m.logger.Debug("permanence differs from existing entry, keeping first",
			"hash", h.String(),
			"permanent", e.permanent,
		)
	}

	e.refs++
	inst := &Instance{m: m, e: e, onReady: o.onReady, onSettle: o.onSettle}

	var fire []func()
	switch e.state {
	case model.StateReady:
		if inst.onSettle != nil {
			fn := inst.onSettle
			fire = append(fire, func() { fn(w, inst, nil) })
			inst.onSettle = nil
		}
		if inst.onReady != nil {
			fn := inst.onReady
			fire = append(fire, func() { fn(inst) })
		}
	case model.StateFailed:
		if inst.onSettle != nil {
			fn, err := inst.onSettle, e.err
			fire = append(fire, func() { fn(w, inst, err) })
			inst.onSettle = nil
		}
	}
	if inst.onReady != nil || inst.onSettle != nil {
		e.watchers[inst] = struct{}{}
	}
	m.mu.Unlock()

	for _, fn := range fire {
		fn()
	}

	if created {
		b := newBuild(false, false)
		if o.sync {
			m.runBuild(w, e, b)
		} else {
			m.startBuild(w, e, b)
		}
	}
	return inst, !created, nil
}

// startBuild schedules b. Jobs are heap allocated because entries outlive
// job pool frames; with a worker they start on its local deque.
func (m *Manager) startBuild(w *scheduler.Worker, e *entry, b *build) {
	j := m.sched.CreateJob(nil, func(w *scheduler.Worker, _ *scheduler.Job) {
		m.runBuild(w, e, b)
	})
	m.sched.StartJob(w, j)
}

func (m *Manager) runBuild(w *scheduler.Worker, e *entry, b *build) {
	// Entries serving a payload stay Ready while they are rebuilt.
	m.setStateUnlessServing(e, model.StateConstructing)

	data, err := m.load(e.hash)
	if err != nil {
		b.setErr(StageLoad, err)
		m.dropGuard(w, e, b)
		return
	}

	res := e.kind.New()
	b.res = res
	cc := &ConstructContext{m: m, w: w, e: e, b: b}
	err = safeCall(func() error { return res.OnConstruct(cc, data) })
	cc.sealed = true

	m.mu.Lock()
	e.counters.Construct++
	m.mu.Unlock()

	if err != nil {
		b.setErr(StageConstruct, err)
		m.dropGuard(w, e, b)
		return
	}
	b.constructed = true

	size := int64(len(data))
	if s, ok := res.(Sizer); ok {
		size = s.MemorySize()
	}
	if err := m.rc.AcquireMemory(resource.ClassPayload, size); err != nil {
		b.setErr(StageMemory, err)
		m.dropGuard(w, e, b)
		return
	}
	b.bytes = size

	m.setStateUnlessServing(e, model.StateWaitingOnDependencies)
	m.dropGuard(w, e, b)
}

func (m *Manager) setStateUnlessServing(e *entry, s model.State) {
	m.mu.Lock()
	if e.payload == nil && e.state != s {
		e.setState(s)
	}
	m.mu.Unlock()
}

func (m *Manager) load(h model.Hash) ([]byte, error) {
	if cl, ok := m.loader.(ContentLoader); ok {
		return cl.Load(m.ctx, h)
	}
	size, err := m.loader.Size(m.ctx, h)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if err := m.loader.Read(m.ctx, h, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (m *Manager) dropGuard(w *scheduler.Worker, e *entry, b *build) {
	if b.pending.Add(-1) == 0 {
		m.settle(w, e, b)
	}
}

func (m *Manager) dependencySettled(w *scheduler.Worker, e *entry, b *build, dep *Instance, err error) {
	if err != nil {
		b.setErr(StageDependency, fmt.Errorf("dependency %s: %w", dep.Hash(), err))
	}
	if b.pending.Add(-1) == 0 {
		m.settle(w, e, b)
	}
}

// settle runs on whichever goroutine dropped the last pending count.
func (m *Manager) settle(w *scheduler.Worker, e *entry, b *build) {
	if b.err == nil {
		err := safeCall(b.res.OnDependenciesFulfilled)
		m.mu.Lock()
		e.counters.DependenciesFulfilled++
		m.mu.Unlock()
		if err != nil {
			b.setErr(StageDependenciesFulfilled, err)
		}
	}
	if b.err != nil {
		m.fail(w, e, b)
		return
	}
	m.commit(w, e, b)
}

// commit installs the payload of b and supersedes the previous one.
func (m *Manager) commit(w *scheduler.Worker, e *entry, b *build) {
	m.mu.Lock()
	old, oldDeps, oldBytes := e.payload, e.deps, e.bytes
	e.payload, e.deps, e.bytes = b.res, b.deps, b.bytes
	e.err = nil
	e.building = false
	e.setState(model.StateReady)
	fire := m.collectLocked(w, e, nil)
	next := m.afterBuildLocked(e)
	m.mu.Unlock()

	if old != nil {
		m.destroy(w, e, old, oldDeps, oldBytes)
	}

	d := time.Since(b.start)
	if b.reload {
		m.metrics.RecordReload(d, nil)
		m.logger.LogReload(m.ctx, e.hash, d, nil)
	} else {
		m.metrics.RecordConstruct(d, nil)
		m.logger.LogConstruct(m.ctx, e.hash, d, nil)
	}
	if b.background {
		m.rc.ReleaseBackground()
	}

	for _, fn := range fire {
		fn()
	}
	m.after(w, e, next)
}

// fail discards b. A first construction leaves the entry Failed; a failed
// reload keeps serving the previous payload.
func (m *Manager) fail(w *scheduler.Worker, e *entry, b *build) {
	cerr := &ConstructError{Hash: e.hash, Stage: b.stage, cause: b.err}

	m.mu.Lock()
	e.building = false
	var fire []func()
	if e.payload == nil {
		e.err = cerr
		e.setState(model.StateFailed)
		fire = m.collectLocked(w, e, cerr)
	}
	next := m.afterBuildLocked(e)
	m.mu.Unlock()

	if b.constructed {
		m.destroy(w, e, b.res, b.deps, b.bytes)
	} else {
		m.releaseAll(w, b.deps)
	}

	d := time.Since(b.start)
	if b.reload {
		m.metrics.RecordReload(d, cerr)
		m.logger.LogReload(m.ctx, e.hash, d, cerr)
	} else {
		m.metrics.RecordConstruct(d, cerr)
		m.logger.LogConstruct(m.ctx, e.hash, d, cerr)
	}
	if b.background {
		m.rc.ReleaseBackground()
	}

	for _, fn := range fire {
		fn()
	}
	m.after(w, e, next)
}

// collectLocked gathers the callbacks due after a build settled with err.
func (m *Manager) collectLocked(w *scheduler.Worker, e *entry, err error) []func() {
	var fire []func()
	for inst := range e.watchers {
		if fn := inst.onSettle; fn != nil {
			fire = append(fire, func() { fn(w, inst, err) })
			inst.onSettle = nil
		}
		if fn := inst.onReady; fn != nil && err == nil {
			fire = append(fire, func() { fn(inst) })
		}
		if inst.onReady == nil {
			delete(e.watchers, inst)
		}
	}
	return fire
}

func (m *Manager) afterBuildLocked(e *entry) afterBuild {
	if e.refs == 0 && !e.permanent {
		e.reloadPending = false
		e.setState(model.StateDeleting)
		return afterDelete
	}
	if e.reloadPending {
		e.reloadPending = false
		e.building = true
		if e.state == model.StateFailed {
			e.err = nil
			e.setState(model.StateConstructing)
		}
		return afterReload
	}
	return afterNone
}

func (m *Manager) after(w *scheduler.Worker, e *entry, next afterBuild) {
	switch next {
	case afterReload:
		m.invalidate(e.hash)
		m.startBuild(w, e, newBuild(true, false))
	case afterDelete:
		m.startDelete(w, e)
	}
}

// destroy runs OnDelete on a payload that left the entry and releases what
// it owned.
func (m *Manager) destroy(w *scheduler.Worker, e *entry, res Resource, deps []*Instance, bytes int64) {
	err := safeCall(res.OnDelete)
	m.mu.Lock()
	e.counters.Delete++
	m.mu.Unlock()
	if err != nil {
		m.logger.LogDelete(m.ctx, e.hash, err)
	}
	m.releaseAll(w, deps)
	m.rc.ReleaseMemory(resource.ClassPayload, bytes)
}

func (m *Manager) releaseAll(w *scheduler.Worker, insts []*Instance) {
	for _, inst := range insts {
		inst.release(w)
	}
}

// release drops one reference of e.
func (m *Manager) release(w *scheduler.Worker, e *entry) {
	m.mu.Lock()
	e.refs--
	del := e.refs == 0 && !e.permanent && !e.building && e.state != model.StateDeleting
	if del {
		e.setState(model.StateDeleting)
	}
	m.mu.Unlock()

	if del {
		m.startDelete(w, e)
	}
}

func (m *Manager) startDelete(w *scheduler.Worker, e *entry) {
	j := m.sched.CreateJob(nil, func(w *scheduler.Worker, _ *scheduler.Job) {
		m.runDelete(w, e)
	})
	m.sched.StartJob(w, j)
}

func (m *Manager) runDelete(w *scheduler.Worker, e *entry) {
	start := time.Now()

	m.mu.Lock()
	res, deps, bytes := e.payload, e.deps, e.bytes
	e.payload, e.deps, e.bytes = nil, nil, 0
	m.mu.Unlock()

	var err error
	if res != nil {
		err = safeCall(res.OnDelete)
		m.mu.Lock()
		e.counters.Delete++
		m.mu.Unlock()
	}
	m.releaseAll(w, deps)
	m.rc.ReleaseMemory(resource.ClassPayload, bytes)

	m.mu.Lock()
	if m.entries[e.hash] == e {
		delete(m.entries, e.hash)
	}
	e.broadcast()
	m.mu.Unlock()

	m.metrics.RecordDelete(time.Since(start), err)
	m.logger.LogDelete(m.ctx, e.hash, err)
}

func (m *Manager) invalidate(h model.Hash) {
	if inv, ok := m.loader.(Invalidator); ok {
		inv.Invalidate(h)
	}
}

type reloadResult uint8

const (
	reloadNone reloadResult = iota
	reloadStarted
	reloadCoalesced
)

// NotifyChanged reconstructs the entry of h because its backing content
// changed. The entry keeps serving its current payload until the new one is
// Ready. A notification for an entry with a construction in flight is
// coalesced into one more run after it. Failed entries are retried.
//
// It returns false if h has no live entry.
func (m *Manager) NotifyChanged(h model.Hash) bool {
	return m.reload(h, false) != reloadNone
}

func (m *Manager) reload(h model.Hash, background bool) reloadResult {
	if m.closed.Load() {
		return reloadNone
	}

	m.mu.Lock()
	e, ok := m.entries[h]
	if !ok || e.state == model.StateDeleting {
		m.mu.Unlock()
		return reloadNone
	}
	if e.building {
		e.reloadPending = true
		m.mu.Unlock()
		return reloadCoalesced
	}
	e.building = true
	if e.state == model.StateFailed {
		e.err = nil
		e.setState(model.StateConstructing)
	}
	m.mu.Unlock()

	m.invalidate(h)
	m.startBuild(nil, e, newBuild(true, background))
	return reloadStarted
}

// Watch consumes src in the background until src is closed, ctx is done or
// the manager is closed. Reloads are admitted through the resource
// controller's background slots.
func (m *Manager) Watch(ctx context.Context, src ChangeSource) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case h, ok := <-src.Changes():
				if !ok {
					return
				}
				m.handleChange(ctx, h)
			case <-ctx.Done():
				return
			case <-m.ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (m *Manager) handleChange(ctx context.Context, h model.Hash) {
	if m.opts.skipUnchanged {
		if cd, ok := m.loader.(ChangeDetector); ok {
			changed, err := cd.Changed(ctx, h)
			if err == nil && !changed {
				m.logger.Debug("content unchanged, skipping reload", "hash", h.String())
				return
			}
		}
	}

	if err := m.rc.AcquireBackground(ctx); err != nil {
		m.logger.Debug("reload slot unavailable, dropping change", "hash", h.String(), "error", err)
		return
	}
	if m.reload(h, true) != reloadStarted {
		m.rc.ReleaseBackground()
	}
}

// WaitForInstance blocks until inst is Ready or timeout elapsed and reports
// whether it became Ready. It never cancels the construction.
func (m *Manager) WaitForInstance(inst *Instance, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return inst.Wait(ctx) == nil
}

// ApproximateResourceCount returns the number of cache entries. Entries are
// removed by asynchronous deletion jobs, so the count lags releases.
func (m *Manager) ApproximateResourceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// MemoryUsage returns the bytes accounted for live payloads. Cache bytes of
// a shared controller are not included.
func (m *Manager) MemoryUsage() int64 {
	return m.rc.Usage().Payload
}

// Close stops Watch goroutines and, if the manager created its scheduler,
// stops the workers. Instances are not released; construction and deletion
// jobs that did not run yet are dropped.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.cancel()
	m.wg.Wait()
	if m.ownsSched {
		return m.sched.Close()
	}
	return nil
}
