// Package minio provides a BlobStore implementation using the MinIO client.
//
// It works with MinIO and other S3-compatible storage systems like Ceph,
// SeaweedFS and Garage, without pulling in the AWS SDK credential chain.
//
// # Basic Usage
//
//	store, err := minio.Dial("localhost:9000", "my-bucket",
//	    minio.WithCredentials("minioadmin", "minioadmin"),
//	    minio.WithPrefix("datastores/wiki/"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = ds.Save(ctx, store)
package minio
