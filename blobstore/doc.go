// Package blobstore abstracts where the matcher's inputs live.
//
// Vocabulary trees, weight files, descriptor files and scene metadata are
// addressed by name relative to a BlobStore. Outputs are written back
// through Put when the inputs live in object storage. LocalStore maps files from disk,
// MemoryStore keeps them in memory for tests, and the s3 and minio
// subpackages read them from object storage:
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)      // Open for reading
//	    Put(ctx, name, data) error         // Atomic write
//	    List(ctx, prefix) ([]string, error)
//	    Delete(ctx, name) error
//	}
//
// ReadAll is the common entry point for callers that decode whole blobs.
package blobstore
