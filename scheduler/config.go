package scheduler

import (
	"log/slog"
	"runtime"
	"time"
)

const (
	// DefaultQueueCapacity is the default number of slots per worker deque.
	DefaultQueueCapacity = 4096
	// DefaultJobPoolSize is the default number of pooled jobs per worker and frame.
	DefaultJobPoolSize = 4096
	// DefaultIdleSpins is the number of empty scheduling rounds before a worker parks.
	DefaultIdleSpins = 64
	// DefaultIdleSleep bounds how long a parked worker sleeps without a wake-up.
	DefaultIdleSleep = time.Millisecond
)

// Config holds scheduler settings. Zero values select defaults.
type Config struct {
	// NumWorkers is the total number of workers including the main worker.
	// Defaults to GOMAXPROCS. At least two workers are always created so that
	// one goroutine services the injection channel.
	NumWorkers int

	// QueueCapacity is the per-worker deque capacity (rounded up to a power of two).
	QueueCapacity int

	// JobPoolSize is the per-worker job pool size (rounded up to a power of two).
	JobPoolSize int

	// IdleSpins is the number of empty rounds a worker yields before parking.
	IdleSpins int

	// IdleSleep is the maximum time a parked worker waits for a wake-up.
	IdleSleep time.Duration

	// Logger receives scheduler diagnostics. Defaults to a discarding logger.
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.NumWorkers <= 0 {
		c.NumWorkers = runtime.GOMAXPROCS(0)
	}
	if c.NumWorkers < 2 {
		c.NumWorkers = 2
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.JobPoolSize <= 0 {
		c.JobPoolSize = DefaultJobPoolSize
	}
	c.JobPoolSize = nextPow2(c.JobPoolSize)
	if c.IdleSpins <= 0 {
		c.IdleSpins = DefaultIdleSpins
	}
	if c.IdleSleep <= 0 {
		c.IdleSleep = DefaultIdleSleep
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
