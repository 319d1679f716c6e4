// Package minio provides a BlobStore implementation using the MinIO client.
//
// It works with MinIO and other S3-compatible storage systems like Ceph, SeaweedFS
// and Garage, without any AWS dependency.
//
// # Basic Usage
//
//	store, err := minio.Dial(minio.Config{
//	    Endpoint:  "localhost:9000",
//	    AccessKey: "minioadmin",
//	    SecretKey: "minioadmin",
//	    Bucket:    "tables",
//	    Prefix:    "orders",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	table, err := blockidx.Open(ctx, store)
//
// Plain object stores have no compare-and-swap on CURRENT, so only one writer may
// append to a table at a time.
package minio
