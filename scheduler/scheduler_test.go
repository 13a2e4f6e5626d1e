package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	s := New(cfg)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{NumWorkers: 1, JobPoolSize: 100}.withDefaults()
	assert.Equal(t, 2, cfg.NumWorkers)
	assert.Equal(t, 128, cfg.JobPoolSize)
	assert.Equal(t, DefaultQueueCapacity, cfg.QueueCapacity)
	assert.Equal(t, DefaultIdleSleep, cfg.IdleSleep)
	assert.NotNil(t, cfg.Logger)
}

func TestJob_CompletionCascade(t *testing.T) {
	s := newTestScheduler(t, Config{NumWorkers: 2})
	w := s.Main()

	root := s.CreateJob(w, nil)
	child := s.CreateChildJob(w, root, nil)
	grandchild := s.CreateChildJob(w, child, nil)

	assert.Equal(t, int32(2), root.unfinished.Load())
	assert.Equal(t, int32(2), child.unfinished.Load())

	root.finish()
	assert.False(t, root.IsComplete())
	child.finish()
	assert.False(t, root.IsComplete())
	assert.False(t, child.IsComplete())

	grandchild.finish()
	assert.True(t, grandchild.IsComplete())
	assert.True(t, child.IsComplete())
	assert.True(t, root.IsComplete())
}

func TestScheduler_RunOnMainWorker(t *testing.T) {
	s := newTestScheduler(t, Config{NumWorkers: 2})
	w := s.Main()

	var ran atomic.Bool
	j := s.Run(w, func(w *Worker, j *Job) {
		ran.Store(true)
	})
	s.WaitForJob(w, j)

	assert.True(t, ran.Load())
	assert.True(t, j.IsComplete())
}

func TestScheduler_InjectedJobs(t *testing.T) {
	s := newTestScheduler(t, Config{NumWorkers: 4})

	const n = 500
	var count atomic.Int64
	jobs := make([]*Job, n)
	for i := range n {
		jobs[i] = s.Run(nil, func(w *Worker, j *Job) {
			assert.NotNil(t, w)
			count.Add(1)
		})
	}
	for _, j := range jobs {
		s.WaitForJob(nil, j)
	}

	assert.Equal(t, int64(n), count.Load())
}

// WaitForJob on a root must return only after every transitively created child ran.
func TestScheduler_JobTree(t *testing.T) {
	s := newTestScheduler(t, Config{NumWorkers: 4})
	w := s.Main()

	const (
		fanout = 4
		depth  = 5
	)
	var executed atomic.Int64

	var spawn func(level int) JobFunc
	spawn = func(level int) JobFunc {
		return func(w *Worker, j *Job) {
			executed.Add(1)
			if level == depth {
				time.Sleep(10 * time.Microsecond)
				return
			}
			for range fanout {
				s.StartJob(w, s.CreateChildJob(w, j, spawn(level+1)))
			}
		}
	}

	root := s.CreateJob(w, spawn(0))
	s.StartJob(w, root)
	s.WaitForJob(w, root)

	// 1 + 4 + 16 + 64 + 256 + 1024
	expected := int64(0)
	nodes := int64(1)
	for range depth + 1 {
		expected += nodes
		nodes *= fanout
	}
	assert.Equal(t, expected, executed.Load())
}

// A job body that waits on its own children must not deadlock the worker.
func TestScheduler_NestedWait(t *testing.T) {
	s := newTestScheduler(t, Config{NumWorkers: 2})

	var sum atomic.Int64
	root := s.Run(nil, func(w *Worker, j *Job) {
		children := make([]*Job, 16)
		for i := range children {
			children[i] = s.CreateJob(w, func(*Worker, *Job) {
				sum.Add(int64(i))
			})
			s.StartJob(w, children[i])
		}
		for _, c := range children {
			s.WaitForJob(w, c)
		}
		sum.Add(1000)
	})
	s.WaitForJob(nil, root)

	assert.Equal(t, int64(1000+120), sum.Load())
}

func TestScheduler_Stealing(t *testing.T) {
	s := newTestScheduler(t, Config{NumWorkers: 4})
	w := s.Main()

	root := s.CreateJob(w, nil)
	for range 200 {
		s.StartJob(w, s.CreateChildJob(w, root, func(*Worker, *Job) {
			time.Sleep(100 * time.Microsecond)
		}))
	}
	s.StartJob(w, root)
	s.WaitForJob(w, root)

	var executed, stolen int64
	for _, st := range s.Stats() {
		executed += st.Executed
		stolen += st.Stolen
	}
	assert.Equal(t, int64(201), executed)
	assert.Positive(t, stolen)
}

func TestScheduler_QueueOverflowRunsInline(t *testing.T) {
	s := newTestScheduler(t, Config{NumWorkers: 2, QueueCapacity: 2})
	s.SetBlocked(true)
	w := s.Main()

	var count atomic.Int64
	jobs := make([]*Job, 6)
	for i := range jobs {
		jobs[i] = s.CreateJob(w, func(*Worker, *Job) { count.Add(1) })
		s.StartJob(w, jobs[i])
	}

	// Two fit into the deque; the rest ran inline despite the block.
	assert.Equal(t, int64(4), count.Load())
	assert.Equal(t, int64(4), s.Stats()[0].Inline)

	s.SetBlocked(false)
	for _, j := range jobs {
		s.WaitForJob(w, j)
	}
	assert.Equal(t, int64(6), count.Load())
}

func TestScheduler_Blocked(t *testing.T) {
	s := newTestScheduler(t, Config{NumWorkers: 3})
	s.SetBlocked(true)
	assert.True(t, s.Blocked())

	var ran atomic.Bool
	j := s.Run(nil, func(*Worker, *Job) { ran.Store(true) })

	time.Sleep(20 * time.Millisecond)
	assert.False(t, ran.Load())
	assert.Zero(t, s.RunPending(s.Main()))

	s.SetBlocked(false)
	s.WaitForJob(nil, j)
	assert.True(t, ran.Load())
}

func TestScheduler_RunPending(t *testing.T) {
	s := newTestScheduler(t, Config{NumWorkers: 2})
	s.SetBlocked(true)
	w := s.Main()

	var count atomic.Int64
	for range 10 {
		s.StartJob(w, s.CreateJob(w, func(*Worker, *Job) { count.Add(1) }))
	}
	s.SetBlocked(false)

	// The background worker may steal some of them.
	n := s.RunPending(w)
	assert.LessOrEqual(t, n, 10)
	require.Eventually(t, func() bool { return count.Load() == 10 }, time.Second, time.Millisecond)
}

func TestScheduler_ResetFrame(t *testing.T) {
	s := newTestScheduler(t, Config{NumWorkers: 2, JobPoolSize: 8})
	w := s.Main()

	first := s.CreateJob(w, nil)
	for range 5 {
		s.CreateJob(w, nil)
	}
	assert.Equal(t, uint32(6), w.pool.next.Load())

	s.ResetFrame()
	assert.Equal(t, uint32(0), w.pool.next.Load())

	again := s.CreateJob(w, nil)
	assert.Same(t, first, again)
	assert.False(t, again.IsComplete())
}

func TestScheduler_PanicFinishesJob(t *testing.T) {
	s := newTestScheduler(t, Config{NumWorkers: 2})

	j := s.Run(nil, func(*Worker, *Job) {
		panic("boom")
	})
	s.WaitForJob(nil, j)

	var panics int64
	for _, st := range s.Stats() {
		panics += st.Panics
	}
	assert.Equal(t, int64(1), panics)
}

func TestScheduler_CloseIsIdempotent(t *testing.T) {
	s := New(Config{NumWorkers: 3})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	// Starting after close must not block.
	s.StartJob(nil, s.CreateJob(nil, nil))
}
