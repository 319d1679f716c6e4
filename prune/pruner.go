// Package prune selects the blocks of a table snapshot that may satisfy a predicate.
//
// The digests of the predicate's constants are computed once per call. Segments are
// then loaded and every indexed block is evaluated concurrently against its filter
// index; blocks whose predicate folds to FALSE are skipped. Blocks without an index,
// and blocks whose index cannot decide, are kept. Unreadable or corrupt metadata is
// reported as an error rather than treated as prunable.
package prune

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/sourcegraph/conc/pool"

	"github.com/hupe1980/blockidx/blobstore"
	"github.com/hupe1980/blockidx/digest"
	"github.com/hupe1980/blockidx/expr"
	"github.com/hupe1980/blockidx/index"
	"github.com/hupe1980/blockidx/internal/cache"
	"github.com/hupe1980/blockidx/internal/resource"
	"github.com/hupe1980/blockidx/meta"
)

// Option configures a Pruner.
type Option func(*Pruner)

// WithEngine sets the digest engine. It must use the hasher the indexes were built with;
// indexes built with another hasher are never pruned.
func WithEngine(e *digest.Engine) Option {
	return func(p *Pruner) {
		p.engine = e
	}
}

// WithCache caches serialized segments and indexes.
func WithCache(c cache.BlockCache) Option {
	return func(p *Pruner) {
		p.cache = c
	}
}

// WithResourceController bounds concurrent reads and read bandwidth.
func WithResourceController(rc *resource.Controller) Option {
	return func(p *Pruner) {
		p.rc = rc
	}
}

// WithConcurrency limits the number of blocks evaluated in parallel.
func WithConcurrency(n int) Option {
	return func(p *Pruner) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pruner) {
		p.logger = l
	}
}

// Pruner evaluates predicates against the filter indexes of a table. It is safe for
// concurrent use.
type Pruner struct {
	blobs       blobstore.BlobStore
	engine      *digest.Engine
	cache       cache.BlockCache
	rc          *resource.Controller
	concurrency int
	logger      *slog.Logger
}

// New creates a pruner that reads metadata from blobs.
func New(blobs blobstore.BlobStore, opts ...Option) *Pruner {
	p := &Pruner{
		blobs:       blobs,
		concurrency: runtime.GOMAXPROCS(0),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.engine == nil {
		p.engine = digest.NewEngine(digest.WithLogger(p.logger))
	}
	return p
}

// Prune returns, per segment of snap, the blocks that may contain rows satisfying
// predicate. A nil predicate keeps every block.
func (p *Pruner) Prune(ctx context.Context, snap *meta.TableSnapshot, predicate expr.Expr) (*Result, error) {
	start := time.Now()

	var lookup *index.LookupTable
	if predicate != nil {
		var err error
		if lookup, err = index.BuildLookupTable(p.engine, predicate); err != nil {
			return nil, fmt.Errorf("prune: build lookup table: %w", err)
		}
	}

	res := &Result{Segments: make([]SegmentResult, len(snap.Segments))}
	ordinals := snap.BuildSegmentIDMap()
	var hits atomic.Int64

	segPool := pool.New().WithMaxGoroutines(p.concurrency).WithContext(ctx).WithCancelOnError().WithFirstError()
	for i, loc := range snap.Segments {
		segPool.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			seg, hit, err := p.loadSegment(ctx, loc)
			if err != nil {
				return fmt.Errorf("prune: segment %s: %w", loc.Path, err)
			}
			if hit {
				hits.Add(1)
			}
			res.Segments[i] = SegmentResult{
				Location: loc,
				Ordinal:  ordinals[loc.Path],
				Blocks:   seg.Blocks,
			}
			return nil
		})
	}
	if err := segPool.Wait(); err != nil {
		return nil, err
	}

	// pruned[s][b] is written by exactly one goroutine.
	pruned := make([][]bool, len(res.Segments))
	var indexed atomic.Int64
	blockPool := pool.New().WithMaxGoroutines(p.concurrency).WithContext(ctx).WithCancelOnError().WithFirstError()
	for s := range res.Segments {
		pruned[s] = make([]bool, len(res.Segments[s].Blocks))
		if predicate == nil {
			continue
		}
		for b := range res.Segments[s].Blocks {
			bm := &res.Segments[s].Blocks[b]
			if !bm.HasIndex() {
				continue
			}
			indexed.Add(1)
			blockPool.Go(func(ctx context.Context) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				r, hit, err := p.evaluate(ctx, bm, predicate, lookup)
				if err != nil {
					return fmt.Errorf("prune: block %s: %w", bm.Location.Path, err)
				}
				if hit {
					hits.Add(1)
				}
				pruned[s][b] = r == index.MustFalse
				return nil
			})
		}
	}
	if err := blockPool.Wait(); err != nil {
		return nil, err
	}

	for s := range res.Segments {
		seg := &res.Segments[s]
		seg.Kept = roaring.New()
		for b, skip := range pruned[s] {
			if skip {
				res.Stats.Pruned++
			} else {
				seg.Kept.Add(uint32(b))
			}
		}
		res.Stats.Blocks += len(seg.Blocks)
	}
	res.Stats.Segments = len(res.Segments)
	res.Stats.Indexed = int(indexed.Load())
	res.Stats.CacheHits = int(hits.Load())
	res.Stats.Duration = time.Since(start)

	p.logger.Debug("pruned snapshot",
		"snapshot_id", snap.SnapshotID.String(),
		"segments", res.Stats.Segments,
		"blocks", res.Stats.Blocks,
		"pruned", res.Stats.Pruned,
		"duration", res.Stats.Duration,
	)
	return res, nil
}

func (p *Pruner) evaluate(ctx context.Context, bm *meta.BlockMeta, predicate expr.Expr, lookup *index.LookupTable) (index.Result, bool, error) {
	data, hit, err := p.read(ctx, cache.KindIndex, bm.BloomFilterIndexLocation.Path)
	if err != nil {
		return index.Uncertain, false, err
	}
	bf, err := index.Load(data)
	if err != nil {
		return index.Uncertain, hit, err
	}
	r, err := bf.Evaluate(predicate, lookup)
	return r, hit, err
}

func (p *Pruner) loadSegment(ctx context.Context, loc meta.Location) (*meta.SegmentInfo, bool, error) {
	data, hit, err := p.read(ctx, cache.KindSegment, loc.Path)
	if err != nil {
		return nil, false, err
	}
	seg, err := meta.SegmentFromBytes(data)
	return seg, hit, err
}

// read returns the blob at path, from the cache if possible.
func (p *Pruner) read(ctx context.Context, kind cache.Kind, path string) ([]byte, bool, error) {
	key := cache.Key{Kind: kind, Path: path}
	if p.cache != nil {
		if data, ok := p.cache.Get(ctx, key); ok {
			return data, true, nil
		}
	}

	blob, err := p.blobs.Open(ctx, path)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, false, fmt.Errorf("%s is referenced but missing: %w", kind, err)
		}
		return nil, false, err
	}
	defer blob.Close()

	release, err := p.rc.AcquireRead(ctx, blob.Size())
	if err != nil {
		return nil, false, err
	}
	defer release()

	data := make([]byte, blob.Size())
	n, err := blob.ReadAt(ctx, data, 0)
	if err != nil && !(errors.Is(err, io.EOF) && n == len(data)) {
		return nil, false, err
	}
	if n != len(data) {
		return nil, false, fmt.Errorf("short read %d of %d bytes", n, len(data))
	}

	if p.cache != nil {
		p.cache.Set(ctx, key, data)
	}
	return data, false, nil
}
