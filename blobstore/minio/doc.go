// Package minio provides a BlobStore implementation using the MinIO client.
//
// It works with MinIO and other S3-compatible systems such as Ceph,
// SeaweedFS and Garage, without pulling in the AWS SDK.
//
// # Basic Usage
//
//	store, err := minio.New("localhost:9000", "my-bucket",
//	    minio.WithStaticCredentials("minioadmin", "minioadmin"),
//	    minio.WithPrefix("assets/"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ldr := loader.New(store, loader.Config{})
package minio
