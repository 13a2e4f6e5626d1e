package scheduler

import (
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/hupe1980/rescache/internal/queue"
)

// Worker owns a deque and a job pool. All methods that touch them must be
// called from the goroutine that owns the worker.
type Worker struct {
	id    int
	s     *Scheduler
	queue *queue.Deque[Job]
	pool  *jobPool
	rng   *rand.Rand

	executed atomic.Int64
	stolen   atomic.Int64
	inline   atomic.Int64
	panics   atomic.Int64
}

func newWorker(s *Scheduler, id int) *Worker {
	return &Worker{
		id:    id,
		s:     s,
		queue: queue.New[Job](s.cfg.QueueCapacity),
		pool:  newJobPool(s.cfg.JobPoolSize),
		rng:   rand.New(rand.NewPCG(uint64(id)+1, uint64(time.Now().UnixNano()))),
	}
}

// ID returns the worker index. Worker 0 is the main worker.
func (w *Worker) ID() int {
	return w.id
}

// Scheduler returns the scheduler the worker belongs to.
func (w *Worker) Scheduler() *Scheduler {
	return w.s
}

// getJob fetches the next job: local pop, then the injection channel, then
// one steal attempt from a random victim.
func (w *Worker) getJob() *Job {
	if j := w.queue.Pop(); j != nil {
		return j
	}

	select {
	case j := <-w.s.injector:
		return j
	default:
	}

	n := len(w.s.workers)
	if n <= 1 {
		return nil
	}
	victim := w.rng.IntN(n - 1)
	if victim >= w.id {
		victim++
	}
	j := w.s.workers[victim].queue.Steal()
	if j != nil {
		w.stolen.Add(1)
	}
	return j
}

func (w *Worker) execute(j *Job) {
	defer j.finish()
	defer func() {
		if r := recover(); r != nil {
			w.panics.Add(1)
			w.s.logger.Error("job panicked",
				"worker", w.id,
				"panic", fmt.Sprint(r),
			)
		}
	}()

	w.executed.Add(1)
	if j.fn != nil {
		j.fn(w, j)
	}
}

// run is the loop of a background worker.
func (w *Worker) run() {
	defer w.s.wg.Done()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	timer := time.NewTimer(w.s.cfg.IdleSleep)
	defer timer.Stop()

	idle := 0
	for !w.s.closed.Load() {
		if !w.s.blocked.Load() {
			if j := w.getJob(); j != nil {
				w.execute(j)
				idle = 0
				continue
			}
		}

		idle++
		if idle < w.s.cfg.IdleSpins {
			runtime.Gosched()
			continue
		}

		timer.Reset(w.s.cfg.IdleSleep)
		select {
		case <-w.s.wake:
		case <-timer.C:
		case <-w.s.done:
		}
	}
}
