// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "datasets/castle/")
//	tree, err := voctree.Load(ctx, store, "vocabulary/tree.bin")
//
// # Features
//
//   - Range reads for blob access
//   - Multipart uploads via the transfer manager for large artifacts
//   - Automatic pagination for listing
//   - Configurable prefix to address a dataset inside a shared bucket
package s3
