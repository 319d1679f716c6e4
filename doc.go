// Package blockidx provides block-level pruning indexes and versioned table metadata
// for columnar tables stored in blob storage.
//
// Every data block written through a Table gets a compact filter index: one xor filter
// per eligible column, built over 64-bit digests of the column values. At query time
// the equality predicates of a filter expression are checked against those filters and
// every block that provably cannot contain a matching row is skipped. Filters never
// produce false negatives, so pruning is always safe; a block is only ever skipped
// when the whole predicate folds to FALSE.
//
// Table versions are recorded as immutable snapshots that link to their parent.
// A commit writes a new snapshot and then moves the CURRENT pointer, failing with
// ErrConcurrentCommit if another writer moved it first.
//
// # Quick Start
//
// Local mode:
//
//	ctx := context.Background()
//	tbl, _ := blockidx.Open(ctx, blobstore.NewLocalStore("./sales"))
//	_, _ = tbl.Append(ctx, schema, blocks...)
//
// Cloud mode:
//
//	store, _ := s3.New(ctx, "my-bucket", s3.WithPrefix("sales"))
//	tbl, _ := blockidx.Open(ctx, store, blockidx.WithCacheBytes(256<<20))
//
// # Pruning
//
//	pred := expr.Eq(expr.Col("city", types.String), expr.Lit(types.NewString("Berlin")))
//	res, _ := tbl.Prune(ctx, pred)
//	for _, bm := range res.KeptBlocks() {
//	    // read bm.Location
//	}
//
// # History
//
//	history, _ := tbl.History(ctx, 10)
//	for _, s := range history {
//	    fmt.Println(s.SnapshotID, s.Timestamp, s.RowCount)
//	}
//
// # Key Features
//
//   - Xor8 filters over xxhash64 or xxh3 digests (about 0.4% false positives)
//   - Snapshot chains with strictly increasing microsecond timestamps
//   - CBOR or JSON metadata with zstd, lz4 or snappy compression
//   - Local, S3, MinIO and DynamoDB-committed storage via BlobStore
package blockidx
