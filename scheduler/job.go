package scheduler

import "sync/atomic"

// JobFunc is the body of a job. w is the worker executing it and j the job
// itself, so the body can create children of j on w.
type JobFunc func(w *Worker, j *Job)

// Job is a unit of deferred work with completion tracking.
//
// A job is complete once its unfinished counter drops to zero or below, which
// happens after its own body ran and all of its children completed.
type Job struct {
	fn         JobFunc
	parent     *Job // not owned
	unfinished atomic.Int32
}

func (j *Job) reset(fn JobFunc, parent *Job) {
	j.fn = fn
	j.parent = parent
	j.unfinished.Store(1)
}

// IsComplete reports whether the job and all of its descendants finished.
func (j *Job) IsComplete() bool {
	return j.unfinished.Load() <= 0
}

// finish decrements the unfinished counter and walks up the parent chain for
// every job that reaches zero.
func (j *Job) finish() {
	for cur := j; cur != nil; {
		parent := cur.parent
		if cur.unfinished.Add(-1) != 0 {
			return
		}
		cur = parent
	}
}

// jobPool is a ring of jobs owned by one worker. Slots are reused after
// wrap-around or a frame reset.
type jobPool struct {
	jobs []Job
	mask uint32
	next atomic.Uint32
}

func newJobPool(size int) *jobPool {
	return &jobPool{
		jobs: make([]Job, size),
		mask: uint32(size - 1),
	}
}

// alloc must only be called by the owning worker.
func (p *jobPool) alloc() *Job {
	i := p.next.Add(1) - 1
	return &p.jobs[i&p.mask]
}

func (p *jobPool) reset() {
	p.next.Store(0)
}
