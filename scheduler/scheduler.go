package scheduler

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler distributes jobs over a fixed set of workers.
type Scheduler struct {
	cfg     Config
	logger  *slog.Logger
	workers []*Worker

	injector chan *Job
	wake     chan struct{}

	blocked atomic.Bool
	closed  atomic.Bool
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// New creates a scheduler and starts its background workers.
func New(cfg Config) *Scheduler {
	cfg = cfg.withDefaults()

	s := &Scheduler{
		cfg:      cfg,
		logger:   cfg.Logger,
		injector: make(chan *Job, cfg.QueueCapacity),
		wake:     make(chan struct{}, cfg.NumWorkers),
		done:     make(chan struct{}),
	}

	s.workers = make([]*Worker, cfg.NumWorkers)
	for i := range s.workers {
		s.workers[i] = newWorker(s, i)
	}

	s.wg.Add(len(s.workers) - 1)
	for _, w := range s.workers[1:] {
		go w.run()
	}

	s.logger.Debug("scheduler started",
		"workers", cfg.NumWorkers,
		"queue_capacity", cfg.QueueCapacity,
		"job_pool_size", cfg.JobPoolSize,
	)
	return s
}

// Main returns worker 0. It must be driven by a single goroutine at a time.
func (s *Scheduler) Main() *Worker {
	return s.workers[0]
}

// NumWorkers returns the number of workers including the main worker.
func (s *Scheduler) NumWorkers() int {
	return len(s.workers)
}

// CreateJob allocates a job with an unfinished count of 1.
//
// If w is non-nil the job comes from w's pool and w must be the calling
// goroutine's worker. With a nil w the job is heap allocated.
func (s *Scheduler) CreateJob(w *Worker, fn JobFunc) *Job {
	j := s.alloc(w)
	j.reset(fn, nil)
	return j
}

// CreateChildJob allocates a child of parent. The parent's unfinished count is
// incremented first, so the parent cannot complete before the child.
//
// Children must be created by the goroutine executing the parent (or before the
// parent is started).
func (s *Scheduler) CreateChildJob(w *Worker, parent *Job, fn JobFunc) *Job {
	if parent != nil {
		parent.unfinished.Add(1)
	}
	j := s.alloc(w)
	j.reset(fn, parent)
	return j
}

func (s *Scheduler) alloc(w *Worker) *Job {
	if w == nil {
		return &Job{}
	}
	return w.pool.alloc()
}

// StartJob makes j runnable.
//
// With a non-nil w the job is pushed to the bottom of w's deque; if the deque
// is full the job runs inline instead. With a nil w the job goes through the
// injection channel, which any goroutine may use.
func (s *Scheduler) StartJob(w *Worker, j *Job) {
	if w == nil {
		select {
		case s.injector <- j:
			s.signal()
		case <-s.done:
		}
		return
	}

	if !w.queue.Push(j) {
		w.inline.Add(1)
		s.logger.Warn("worker queue full, executing job inline",
			"worker", w.id,
			"capacity", w.queue.Cap(),
		)
		w.execute(j)
		return
	}
	s.signal()
}

// Run creates and starts a job in one step.
func (s *Scheduler) Run(w *Worker, fn JobFunc) *Job {
	j := s.CreateJob(w, fn)
	s.StartJob(w, j)
	return j
}

// WaitForJob returns once j is complete.
//
// With a non-nil w the caller keeps executing other jobs while it waits
// instead of blocking. With a nil w the caller polls.
func (s *Scheduler) WaitForJob(w *Worker, j *Job) {
	spins := 0
	for !j.IsComplete() {
		if w != nil && !s.blocked.Load() {
			if next := w.getJob(); next != nil {
				w.execute(next)
				spins = 0
				continue
			}
		}

		spins++
		if w == nil && spins > s.cfg.IdleSpins {
			time.Sleep(s.cfg.IdleSleep / 10)
			continue
		}
		runtime.Gosched()
	}
}

// RunPending executes jobs on w until no job can be found. It returns the
// number of executed jobs. Useful for driving the main worker once per frame.
func (s *Scheduler) RunPending(w *Worker) int {
	n := 0
	for !s.blocked.Load() {
		j := w.getJob()
		if j == nil {
			return n
		}
		w.execute(j)
		n++
	}
	return n
}

// SetBlocked pauses (true) or resumes (false) job execution on all workers.
// Paused workers keep yielding; threads are not torn down.
func (s *Scheduler) SetBlocked(blocked bool) {
	s.blocked.Store(blocked)
	if !blocked {
		s.signalAll()
	}
}

// Blocked reports whether execution is paused.
func (s *Scheduler) Blocked() bool {
	return s.blocked.Load()
}

// ResetFrame rewinds every worker's job pool.
// No pooled job of the previous frame may still be referenced.
func (s *Scheduler) ResetFrame() {
	for _, w := range s.workers {
		w.pool.reset()
	}
}

// Close stops the background workers and waits for them to exit.
// Jobs still queued are dropped.
func (s *Scheduler) Close() error {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.done)
		s.wg.Wait()
		s.logger.Debug("scheduler stopped")
	})
	return nil
}

// WorkerStats describes one worker.
type WorkerStats struct {
	ID       int
	Executed int64
	Stolen   int64
	Inline   int64
	Panics   int64
	Queued   int
}

// Stats returns per-worker statistics.
func (s *Scheduler) Stats() []WorkerStats {
	stats := make([]WorkerStats, len(s.workers))
	for i, w := range s.workers {
		stats[i] = WorkerStats{
			ID:       w.id,
			Executed: w.executed.Load(),
			Stolen:   w.stolen.Load(),
			Inline:   w.inline.Load(),
			Panics:   w.panics.Load(),
			Queued:   w.queue.Len(),
		}
	}
	return stats
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) signalAll() {
	for range len(s.workers) {
		s.signal()
	}
}
