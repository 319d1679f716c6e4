package blockidx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/blockidx/blobstore"
	"github.com/hupe1980/blockidx/block"
	"github.com/hupe1980/blockidx/digest"
	"github.com/hupe1980/blockidx/expr"
	"github.com/hupe1980/blockidx/internal/cache"
	"github.com/hupe1980/blockidx/internal/resource"
	"github.com/hupe1980/blockidx/meta"
	"github.com/hupe1980/blockidx/prune"
	"github.com/hupe1980/blockidx/types"
	"github.com/hupe1980/blockidx/writer"
)

// Table is a handle to a table stored in a blob store.
//
// Reads (Current, Prune, History) are safe for concurrent use. Appends through one
// Table are serialized; appends from different processes are arbitrated by the commit
// of the CURRENT pointer.
type Table struct {
	blobs  blobstore.BlobStore
	store  *meta.Store
	engine *digest.Engine
	pruner *prune.Pruner
	cache  *cache.LRUBlockCache
	opts   options

	mu      sync.Mutex // serializes Append
	current atomic.Pointer[meta.TableSnapshot]
	closed  atomic.Bool
}

// Open opens the table stored in blobs. A store without a committed snapshot is an
// empty table; its first Append creates it.
func Open(ctx context.Context, blobs blobstore.BlobStore, optFns ...Option) (*Table, error) {
	o, err := applyOptions(optFns)
	if err != nil {
		return nil, err
	}

	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:   o.cacheBytes,
		MaxConcurrentReads: int64(o.maxConcurrentReads),
		ReadBytesPerSec:    o.readBytesPerSec,
	})
	engine := digest.NewEngine(digest.WithHasher(o.hasher), digest.WithLogger(o.logger.Logger))

	t := &Table{
		blobs:  blobs,
		engine: engine,
		opts:   o,
		store: meta.NewStore(blobs,
			meta.WithCodec(o.codec),
			meta.WithCompression(o.compression),
			meta.WithLogger(o.logger.Logger),
		),
	}

	pruneOpts := []prune.Option{
		prune.WithEngine(engine),
		prune.WithResourceController(rc),
		prune.WithConcurrency(o.concurrency),
		prune.WithLogger(o.logger.Logger),
	}
	if o.cacheBytes > 0 {
		t.cache = cache.NewLRUBlockCache(o.cacheBytes, rc)
		pruneOpts = append(pruneOpts, prune.WithCache(t.cache))
	}
	t.pruner = prune.New(blobs, pruneOpts...)

	if err := t.Refresh(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Refresh reloads the current snapshot from the store.
func (t *Table) Refresh(ctx context.Context) error {
	if t.closed.Load() {
		return ErrClosed
	}
	snap, err := t.store.Load(ctx)
	if err != nil {
		if errors.Is(err, meta.ErrNoSnapshot) {
			t.current.Store(nil)
			return nil
		}
		return translateError(err)
	}
	t.current.Store(snap)
	return nil
}

// Current returns the current snapshot, or nil for an empty table. The snapshot must
// not be modified.
func (t *Table) Current() *meta.TableSnapshot {
	return t.current.Load()
}

// Append writes blocks as a new segment and commits a snapshot that adds it.
// Each block becomes one physical block with its own filter index. The schema must
// match the table's schema once the table exists.
//
// If another writer committed in the meantime, Append fails with ErrConcurrentCommit
// and the table is refreshed; the written blocks are left unreferenced.
func (t *Table) Append(ctx context.Context, schema types.Schema, blocks ...*block.DataBlock) (*meta.TableSnapshot, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: no blocks", ErrBadInput)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	parent := t.current.Load()
	if parent != nil && !parent.Schema.Equal(schema) {
		if parent.Schema.NumFields() != schema.NumFields() {
			return nil, &ErrColumnMismatch{Expected: parent.Schema.NumFields(), Actual: schema.NumFields(), cause: ErrBadInput}
		}
		return nil, fmt.Errorf("%w: schema differs from the table schema", ErrBadInput)
	}
	for _, b := range blocks {
		if b.NumColumns() != schema.NumFields() {
			return nil, &ErrColumnMismatch{Expected: schema.NumFields(), Actual: b.NumColumns(), cause: ErrBadInput}
		}
	}

	start := time.Now()
	w := writer.New(t.blobs, schema,
		writer.WithEngine(t.engine),
		writer.WithIndexVersion(t.opts.indexVersion),
		writer.WithCodec(t.opts.codec),
		writer.WithCompression(t.opts.compression),
		writer.WithConcurrency(t.opts.concurrency),
		writer.WithLogger(t.opts.logger.Logger),
	)
	metas, err := w.WriteBlocks(ctx, blocks)
	if err != nil {
		err = translateError(err)
		t.opts.metricsCollector.RecordIndexBuild(len(blocks), 0, time.Since(start), err)
		t.opts.logger.LogIndexBuild(ctx, len(blocks), 0, 0, err)
		return nil, err
	}
	var rows, indexBytes uint64
	for i := range metas {
		rows += metas[i].RowCount
		indexBytes += metas[i].BloomFilterIndexSize
	}
	t.opts.metricsCollector.RecordIndexBuild(len(metas), indexBytes, time.Since(start), nil)
	t.opts.logger.LogIndexBuild(ctx, len(metas), int(rows), indexBytes, nil)

	segLoc, summary, err := w.WriteSegment(ctx, metas)
	if err != nil {
		return nil, translateError(err)
	}

	var next *meta.TableSnapshot
	if parent == nil {
		next = meta.NewTableSnapshot(uuid.New(), nil, nil, schema, summary, []meta.Location{segLoc}, nil, nil)
	} else {
		next = meta.FromPrevious(parent)
		next.Segments = append(next.Segments, segLoc)
		next.Summary = next.Summary.Merge(summary)
	}

	commitStart := time.Now()
	loc, err := t.store.Save(ctx, next)
	t.opts.metricsCollector.RecordCommit(time.Since(commitStart), err)
	t.opts.logger.LogCommit(ctx, next.SnapshotID, loc.Path, err)
	if err != nil {
		if errors.Is(err, ErrConcurrentCommit) {
			if rerr := t.Refresh(ctx); rerr != nil {
				return nil, errors.Join(err, rerr)
			}
		}
		return nil, translateError(err)
	}

	t.current.Store(next)
	return next, nil
}

// Prune returns the blocks of the current snapshot that may contain rows satisfying
// predicate. An empty table yields an empty result.
func (t *Table) Prune(ctx context.Context, predicate expr.Expr) (*prune.Result, error) {
	snap := t.current.Load()
	if snap == nil {
		return &prune.Result{}, nil
	}
	return t.PruneSnapshot(ctx, snap, predicate)
}

// PruneSnapshot is like Prune for an explicit snapshot, for example one from History.
func (t *Table) PruneSnapshot(ctx context.Context, snap *meta.TableSnapshot, predicate expr.Expr) (*prune.Result, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	start := time.Now()
	res, err := t.pruner.Prune(ctx, snap, predicate)
	err = translateError(err)
	if err != nil {
		t.opts.metricsCollector.RecordPrune(0, 0, time.Since(start), err)
		t.opts.logger.LogPrune(ctx, 0, 0, time.Since(start), err)
		return nil, err
	}
	t.opts.metricsCollector.RecordPrune(res.Stats.Blocks, res.Stats.Pruned, res.Stats.Duration, nil)
	t.opts.logger.LogPrune(ctx, res.Stats.Blocks, res.Stats.Pruned, res.Stats.Duration, nil)
	return res, nil
}

// History lists committed snapshots, newest first. limit <= 0 lists all of them.
func (t *Table) History(ctx context.Context, limit int) ([]meta.TableSnapshotLite, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	h, err := t.store.History(ctx, limit)
	return h, translateError(err)
}

// Snapshot loads a snapshot of the table by its location.
func (t *Table) Snapshot(ctx context.Context, id uuid.UUID, formatVersion uint64) (*meta.TableSnapshot, error) {
	snap, err := t.store.LoadByLocation(ctx, meta.Location{
		Path:          meta.SnapshotPath(id, formatVersion),
		FormatVersion: formatVersion,
	})
	return snap, translateError(err)
}

// SegmentOrdinals maps the segment paths of the current snapshot to ordinals; the most
// recently appended segment has ordinal 0.
func (t *Table) SegmentOrdinals() map[string]int {
	snap := t.current.Load()
	if snap == nil {
		return map[string]int{}
	}
	return snap.BuildSegmentIDMap()
}

// Segment loads the metadata of a segment.
func (t *Table) Segment(ctx context.Context, loc meta.Location) (*meta.SegmentInfo, error) {
	seg, err := t.store.LoadSegment(ctx, loc)
	return seg, translateError(err)
}

// ReadBlock reads the data of a block.
func (t *Table) ReadBlock(ctx context.Context, bm meta.BlockMeta) (*block.DataBlock, error) {
	b, err := writer.ReadBlock(ctx, t.blobs, bm.Location)
	return b, translateError(err)
}

// Close releases the cache. The underlying blob store is not closed.
func (t *Table) Close() error {
	if t == nil || !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	if t.cache != nil {
		return t.cache.Close()
	}
	return nil
}
