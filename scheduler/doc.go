// Package scheduler implements a work-stealing job scheduler.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                          Scheduler                           │
//	├──────────────┬──────────────┬──────────────┬─────────────────┤
//	│  Worker 0    │  Worker 1    │  Worker 2    │  ...            │
//	│  (main)      │  (goroutine) │  (goroutine) │                 │
//	│  Deque+Pool  │  Deque+Pool  │  Deque+Pool  │                 │
//	├──────────────┴──────────────┴──────────────┴─────────────────┤
//	│          injection channel (jobs from foreign goroutines)    │
//	└──────────────────────────────────────────────────────────────┘
//
// Each worker owns a bounded Chase-Lev deque and a ring of reusable Job
// objects. A worker looks for work in this order:
//
//  1. its own deque, newest first (LIFO keeps continuations cache-hot)
//  2. the shared injection channel
//  3. one other worker picked uniformly at random, oldest first (steal)
//
// Worker 0 is the "main" worker. It has no goroutine of its own; the single
// goroutine that owns it runs jobs while it waits (WaitForJob, RunPending).
//
// # Jobs
//
// A Job carries an unfinished counter initialised to 1. Creating a child
// increments the parent's counter; finishing a job decrements its own counter
// and, when that reaches zero, finishes the parent. Waiting on a root job
// therefore waits for the whole tree:
//
//	root := s.CreateJob(w, func(w *scheduler.Worker, j *scheduler.Job) {
//	    for i := range 8 {
//	        s.StartJob(w, s.CreateChildJob(w, j, work(i)))
//	    }
//	})
//	s.StartJob(w, root)
//	s.WaitForJob(w, root)
//
// WaitForJob never blocks the goroutine: it keeps executing other jobs until
// the awaited one completes.
//
// # Frames
//
// Jobs created on a worker come from that worker's pool and stay valid until
// ResetFrame. Callers must not hold on to jobs across a frame reset. Jobs
// created with a nil worker are heap allocated and unaffected by frames.
package scheduler
