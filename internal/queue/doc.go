// Package queue provides the bounded work-stealing deque used by the scheduler.
//
// # Algorithm
//
// Deque is a Chase-Lev deque over a fixed, power-of-two sized ring:
//
//	      top (thieves)                bottom (owner)
//	        │                              │
//	        ▼                              ▼
//	┌────┬────┬────┬────┬────┬────┬────┬────┬────┐
//	│    │ j1 │ j2 │ j3 │ j4 │ j5 │    │    │    │
//	└────┴────┴────┴────┴────┴────┴────┴────┴────┘
//	        Steal → FIFO             Pop → LIFO
//
// The owner pushes and pops at the bottom; any goroutine steals from the top.
// The only contended transition is the last element, which the owner and the
// thieves race for with a compare-and-swap on top. A thief that loses the race
// gets nil and is expected to retry on its next scheduling iteration.
//
// The ring never grows. Push reports false when the ring is full.
package queue
