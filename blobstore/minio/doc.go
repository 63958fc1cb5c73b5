// Package minio implements blobstore.Store for MinIO and other S3-compatible
// object storage.
//
// Use it when the shared script/dataset store lives on a self-hosted object
// store:
//
//	client, _ := miniogo.New("minio.local:9000", &miniogo.Options{...})
//	store := minio.NewStore(client, "graphmap", "jobs/")
package minio
