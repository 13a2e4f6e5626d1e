// Package blobstore provides the storage abstraction resources are loaded from.
//
// A BlobStore holds one blob per resource name. Names are slash separated and
// relative to the store root; stores accept the spellings model.NormalizePath
// folds together, so a name and the hash of its path always agree.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: directory tree on the local file system, watched in dev builds
//   - MemoryStore: in-process map, for tests and embedding
//   - CachingStore: block cache in front of a remote store
//   - s3.Store: Amazon S3 with ETag-pinned range reads and managed uploads
//   - minio.Store: MinIO and other S3-compatible services
//
// A Blob is a snapshot: reads of an open blob see the content at Open, or
// fail if the store cannot guarantee that.
package blobstore
