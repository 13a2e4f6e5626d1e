// Package hash provides the hashing primitives used by rescache.
//
// # FNV-1a 64
//
// Resource fingerprints are FNV-1a 64 hashes of normalized logical paths.
// FNV-1a is stable across processes and platforms, which lets packaging tools
// precompute hashes that the runtime then requests.
//
// # CRC32-Castagnoli (CRC32C)
//
// Content checksums use CRC32C, which is hardware accelerated on x86 (SSE4.2)
// and ARM (CRC extension). The loader uses them to detect whether a change
// notification actually changed the bytes of a resource.
//
// For one-shot checksums:
//
//	checksum := hash.CRC32C(data)
package hash
