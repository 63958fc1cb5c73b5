// Package blobstore provides the shared-filesystem abstraction used by
// graphmap for script units and partitioned datasets.
//
// Store is the interface for reading and writing named blobs (partition
// files, manifests, script descriptors). Implementations must be safe for
// concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: Local filesystem with mmap-backed reads
//   - MemoryStore: In-memory store for tests
//   - minio.Store: MinIO and S3-compatible object storage
//   - s3.Store: Amazon S3 with range reads and streaming uploads
//
// # Custom Implementations
//
// Implement the Store interface to support custom backends:
//
//	type Store interface {
//	    Open(ctx, name) (Blob, error)            // Open for reading
//	    Create(ctx, name) (WritableBlob, error)  // Create for streaming writes
//	    Put(ctx, name, data) error               // Atomic write
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// For cloud backends, implement ReadRange for efficient partial reads.
package blobstore
