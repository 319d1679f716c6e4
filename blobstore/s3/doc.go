// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("tables/orders"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	table, err := blockidx.Open(ctx, store)
//
// S3 has no compare-and-swap, so concurrent writers must commit through
// DDBCommitStore, which serializes the CURRENT pointer with DynamoDB conditional writes.
//
// # Features
//
//   - Range reads for partial fetches
//   - CRC32C checksums on single-part writes
//   - Multipart uploads for large segments
//   - Automatic pagination for listing
package s3
