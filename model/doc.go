// Package model defines core types used throughout rescache.
//
// # Identity Types
//
//   - Hash: content-addressing fingerprint of a logical resource path (uint64)
//
// # Lifecycle Types
//
//   - State: position of a cache entry in the construction pipeline
//   - Counters: cumulative lifecycle hook call counts of an entry
//
// Fingerprints are stable across processes, so a hash computed by a packaging
// tool can be used to request the resource at runtime:
//
//	h := model.Fingerprint("textures/stone.png")
package model
