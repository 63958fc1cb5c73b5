// Package s3 implements blobstore.Store for Amazon S3.
//
// Reads use ranged GETs; writes stream through a multipart uploader so large
// materialized partitions never buffer fully in memory.
//
//	store, _ := s3.New(ctx, "my-bucket", s3.WithPrefix("jobs/"))
package s3
