package rescache

import (
	"log/slog"

	"github.com/hupe1980/rescache/resource"
	"github.com/hupe1980/rescache/scheduler"
)

type options struct {
	scheduler        *scheduler.Scheduler
	workers          int
	controller       *resource.Controller
	memoryLimit      int64
	maxReloads       int64
	skipUnchanged    bool
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures the Manager.
type Option func(*options)

// WithScheduler runs construction jobs on s. The manager does not close a
// scheduler it was given.
func WithScheduler(s *scheduler.Scheduler) Option {
	return func(o *options) {
		o.scheduler = s
	}
}

// WithWorkers sets the worker count of the scheduler the manager creates
// when none is given with WithScheduler.
// Default: runtime.GOMAXPROCS(0)
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithController shares a resource controller with other components
// (for example the loader), so memory and IO limits are global.
func WithController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

// WithMemoryLimit bounds the bytes of constructed payloads. Ignored when
// WithController is used.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithMaxConcurrentReloads bounds the reloads started by Watch that may be
// in flight at once. Ignored when WithController is used.
// Default: 1
func WithMaxConcurrentReloads(n int64) Option {
	return func(o *options) {
		o.maxReloads = n
	}
}

// WithSkipUnchanged makes Watch drop notifications whose content checksum
// did not change, if the loader can tell.
func WithSkipUnchanged() Option {
	return func(o *options) {
		o.skipUnchanged = true
	}
}

// WithMetricsCollector enables metrics collection for manager operations.
//
// Example:
//
//	metrics := &rescache.BasicMetricsCollector{}
//	mgr, _ := rescache.New(ldr, rescache.WithMetricsCollector(metrics))
//	// ... use mgr ...
//	stats := metrics.GetStats()
//	fmt.Printf("Constructs: %d, Avg latency: %dns\n", stats.ConstructCount, stats.ConstructAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := rescache.NewJSONLogger(slog.LevelInfo)
//	mgr, _ := rescache.New(ldr, rescache.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	return o
}

// RequestOption configures a single request.
type RequestOption func(*requestOptions)

type requestOptions struct {
	permanent bool
	sync      bool
	onReady   func(*Instance)
	// onSettle is called once when the entry first becomes Ready or Failed.
	onSettle func(w *scheduler.Worker, inst *Instance, err error)
}

// WithPermanent keeps the entry cached regardless of its reference count.
// Permanence is decided by the request that creates the entry.
func WithPermanent() RequestOption {
	return func(o *requestOptions) {
		o.permanent = true
	}
}

// WithSync constructs on the calling goroutine and returns once the
// instance is Ready or construction failed.
func WithSync() RequestOption {
	return func(o *requestOptions) {
		o.sync = true
	}
}

// WithOnReady registers fn to run whenever the instance becomes Ready:
// immediately if it already is, after construction, and after every
// successful reload. If the instance is already Ready, fn runs synchronously
// on the requesting goroutine before the request returns. Otherwise it runs
// on the scheduler worker that completes the construction or reload. fn must
// not block.
func WithOnReady(fn func(*Instance)) RequestOption {
	return func(o *requestOptions) {
		o.onReady = fn
	}
}

func applyRequestOptions(optFns []RequestOption) requestOptions {
	var o requestOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
