// Package resource implements the Controller for global limits shared by the
// resource manager, the loader and the byte caches.
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                         Controller                          │
//	├─────────────────┬─────────────────┬─────────────────────────┤
//	│  Memory Limit   │  Reload Slots   │  IO Rate Limiter        │
//	│  (per class)    │  (semaphore)    │  (token bucket)         │
//	├─────────────────┼─────────────────┼─────────────────────────┤
//	│  AcquireMemory  │  AcquireBack-   │  AcquireIO              │
//	│  ReleaseMemory  │  ground         │  IOBytes                │
//	│  Reclaimer      │  Release...     │                         │
//	└─────────────────┴─────────────────┴─────────────────────────┘
//
// # Memory
//
// Bytes are accounted per Class: ClassPayload for constructed resources and
// ClassCache for bytes held by caches. Both share one limit. AcquireMemory
// never blocks; it returns ErrMemoryLimitExceeded and the caller fails the
// construction (or skips caching):
//
//	rc := resource.NewController(resource.Config{MemoryLimitBytes: 256 << 20})
//	if err := rc.AcquireMemory(resource.ClassPayload, size); err != nil {
//	    return err
//	}
//	defer rc.ReleaseMemory(resource.ClassPayload, size)
//
// Caches register a Reclaimer. A payload that does not fit evicts cached
// bytes before it fails; a cache write never evicts anything but its own
// entries.
//
// # Reload Slots
//
// Hot reloads triggered by change notifications acquire a slot so a burst of
// file changes cannot monopolize the workers.
//
// # IO Rate Limiting
//
// The loader admits every read through AcquireIO. Large reads are split into
// burst-sized chunks.
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully; they become no-ops.
package resource
