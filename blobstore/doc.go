// Package blobstore provides the storage abstraction for filter indexes, segments and
// snapshots.
//
// Every object is written once under a unique name and never modified, except for
// the CURRENT pointer, which is replaced atomically on each commit.
//
// # Built-in Implementations
//
//   - MemoryStore: in-memory, for tests
//   - LocalStore: local filesystem, atomic temp-file rename
//   - CachingStore: page cache in front of any store
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - s3.DDBCommitStore: DynamoDB-backed conditional commits
//   - minio.Store: S3-compatible object stores
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
