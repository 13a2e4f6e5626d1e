package resource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when memory limit would be exceeded.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Class tags accounted bytes with their owner.
type Class uint8

const (
	// ClassPayload is the resident size of constructed resources.
	ClassPayload Class = iota
	// ClassCache is raw content and blocks held by byte caches.
	ClassCache
	numClasses
)

func (c Class) String() string {
	switch c {
	case ClassPayload:
		return "payload"
	case ClassCache:
		return "cache"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for payload and cache bytes together.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// MaxBackgroundReloads is the maximum number of hot reloads admitted at once.
	// If 0, defaults to 1.
	MaxBackgroundReloads int64

	// IOLimitBytesPerSec is the maximum read throughput of the loader.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Reclaimer frees up to need bytes of ClassCache memory and returns how many
// it freed. It must release them through ReleaseMemory before returning.
type Reclaimer func(need int64) int64

// Usage is a point-in-time snapshot of the controller.
type Usage struct {
	Payload         int64
	Cache           int64
	Limit           int64
	ReloadsInFlight int64
	IOBytes         int64
}

// Total returns the accounted bytes of all classes.
func (u Usage) Total() int64 {
	return u.Payload + u.Cache
}

// Controller manages global limits shared by the manager, loader and caches.
type Controller struct {
	cfg Config

	memSem *semaphore.Weighted // nil if unlimited
	used   [numClasses]atomic.Int64

	mu         sync.Mutex
	reclaimers []Reclaimer

	bgSem      *semaphore.Weighted
	bgInFlight atomic.Int64

	ioLimiter *rate.Limiter
	ioBytes   atomic.Int64
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundReloads <= 0 {
		cfg.MaxBackgroundReloads = 1
	}

	c := &Controller{
		cfg:   cfg,
		bgSem: semaphore.NewWeighted(cfg.MaxBackgroundReloads),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// RegisterReclaimer adds a cache that gives memory back when a payload does
// not fit.
func (c *Controller) RegisterReclaimer(fn Reclaimer) {
	if c == nil || fn == nil {
		return
	}
	c.mu.Lock()
	c.reclaimers = append(c.reclaimers, fn)
	c.mu.Unlock()
}

// AcquireMemory reserves bytes for class without blocking.
//
// If the limit would be exceeded, a ClassPayload request first asks the
// registered reclaimers to evict the missing bytes and retries once. Cached bytes
// never displace payloads. Returns ErrMemoryLimitExceeded if it still does
// not fit.
func (c *Controller) AcquireMemory(class Class, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		if class != ClassPayload || c.reclaim(c.deficit(bytes)) == 0 || !c.memSem.TryAcquire(bytes) {
			return fmt.Errorf("%w: %s needs %d bytes, %d of %d in use",
				ErrMemoryLimitExceeded, class, bytes, c.inUse(), c.cfg.MemoryLimitBytes)
		}
	}

	c.used[class].Add(bytes)
	return nil
}

func (c *Controller) reclaim(need int64) int64 {
	c.mu.Lock()
	rs := c.reclaimers
	c.mu.Unlock()

	var freed int64
	for _, fn := range rs {
		if freed >= need {
			break
		}
		freed += fn(need - freed)
	}
	return freed
}

// deficit is how many bytes must be freed for bytes to fit.
func (c *Controller) deficit(bytes int64) int64 {
	return max(bytes-(c.cfg.MemoryLimitBytes-c.inUse()), 1)
}

func (c *Controller) inUse() int64 {
	return c.used[ClassPayload].Load() + c.used[ClassCache].Load()
}

// ReleaseMemory returns bytes reserved for class.
func (c *Controller) ReleaseMemory(class Class, bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.used[class].Add(-bytes)
}

// MemoryUsage returns the accounted bytes of all classes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.inUse()
}

// Usage returns a snapshot of memory, reload and IO accounting.
func (c *Controller) Usage() Usage {
	if c == nil {
		return Usage{}
	}
	return Usage{
		Payload:         c.used[ClassPayload].Load(),
		Cache:           c.used[ClassCache].Load(),
		Limit:           c.cfg.MemoryLimitBytes,
		ReloadsInFlight: c.bgInFlight.Load(),
		IOBytes:         c.ioBytes.Load(),
	}
}

// AcquireBackground reserves a reload slot.
// Blocks if all slots are busy.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.bgSem.Acquire(ctx, 1); err != nil {
		return err
	}
	c.bgInFlight.Add(1)
	return nil
}

// ReleaseBackground releases a reload slot.
func (c *Controller) ReleaseBackground() {
	if c == nil {
		return
	}
	c.bgInFlight.Add(-1)
	c.bgSem.Release(1)
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
// Requests larger than the burst size are admitted in burst-sized chunks.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil {
		return nil
	}
	c.ioBytes.Add(int64(bytes))
	if c.ioLimiter == nil {
		return nil
	}

	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}

// IOBytes returns the total number of bytes admitted through AcquireIO.
func (c *Controller) IOBytes() int64 {
	if c == nil {
		return 0
	}
	return c.ioBytes.Load()
}
