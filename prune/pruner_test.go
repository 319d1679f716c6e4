package prune

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/blockidx/blobstore"
	"github.com/hupe1980/blockidx/block"
	"github.com/hupe1980/blockidx/digest"
	"github.com/hupe1980/blockidx/expr"
	"github.com/hupe1980/blockidx/index"
	"github.com/hupe1980/blockidx/internal/cache"
	"github.com/hupe1980/blockidx/internal/resource"
	"github.com/hupe1980/blockidx/meta"
	"github.com/hupe1980/blockidx/types"
	"github.com/hupe1980/blockidx/writer"
)

var schema = types.NewSchema(
	types.NewField("id", types.Int64),
	types.NewField("city", types.String),
)

var (
	idCol   = expr.Col("id", types.Int64)
	cityCol = expr.Col("city", types.String)
)

// fixture writes segments of blocks; block j of segment s holds the ids
// [100*(s*10+j), 100*(s*10+j)+10) and the city "city-<s>-<j>".
type fixture struct {
	blobs *blobstore.MemoryStore
	snap  *meta.TableSnapshot
}

func newFixture(t *testing.T, segments, blocksPerSegment int, opts ...writer.Option) *fixture {
	t.Helper()
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	w := writer.New(blobs, schema, opts...)

	snap := meta.NewEmptyTableSnapshot(schema)
	for s := 0; s < segments; s++ {
		blocks := make([]*block.DataBlock, blocksPerSegment)
		for j := range blocks {
			base := int64(100 * (s*10 + j))
			ids := make([]int64, 10)
			cities := make([]string, 10)
			for k := range ids {
				ids[k] = base + int64(k)
				cities[k] = fmt.Sprintf("city-%d-%d", s, j)
			}
			b, err := block.NewDataBlock(block.Int64s(ids...), block.Strings(cities...))
			require.NoError(t, err)
			blocks[j] = b
		}
		metas, err := w.WriteBlocks(ctx, blocks)
		require.NoError(t, err)
		loc, summary, err := w.WriteSegment(ctx, metas)
		require.NoError(t, err)

		snap = meta.FromPrevious(snap)
		snap.Segments = append(snap.Segments, loc)
		snap.Summary = snap.Summary.Merge(summary)
	}
	return &fixture{blobs: blobs, snap: snap}
}

func eqID(v int64) expr.Expr { return expr.Eq(idCol, expr.Lit(types.NewInt64(v))) }

func TestPruneKeepsMatchingBlock(t *testing.T) {
	f := newFixture(t, 2, 5)
	p := New(f.blobs)

	// Block 3 of segment 1 holds ids 1300..1309.
	res, err := p.Prune(context.Background(), f.snap, eqID(1305))
	require.NoError(t, err)

	require.Len(t, res.Segments, 2)
	assert.Equal(t, 10, res.Stats.Blocks)
	assert.Equal(t, 10, res.Stats.Indexed)
	assert.True(t, res.Segments[1].Kept.Contains(3))
	assert.GreaterOrEqual(t, res.Stats.Pruned, 7, "almost every other block must be pruned")
	assert.Equal(t, res.Stats.Blocks-res.Stats.Pruned, res.Kept())
	assert.Len(t, res.KeptBlocks(), res.Kept())

	// The newest segment has ordinal 0.
	assert.Equal(t, 1, res.Segments[0].Ordinal)
	assert.Equal(t, 0, res.Segments[1].Ordinal)
}

func TestPruneNeverDropsMatches(t *testing.T) {
	f := newFixture(t, 1, 8)
	p := New(f.blobs, WithConcurrency(3))

	for j := 0; j < 8; j++ {
		for k := int64(0); k < 10; k++ {
			res, err := p.Prune(context.Background(), f.snap, eqID(int64(100*j)+k))
			require.NoError(t, err)
			assert.True(t, res.Segments[0].Kept.Contains(uint32(j)), "block %d value %d", j, k)
		}
	}
}

func TestPruneBooleanShapes(t *testing.T) {
	f := newFixture(t, 1, 4)
	p := New(f.blobs)
	ctx := context.Background()

	t.Run("or keeps both sides", func(t *testing.T) {
		res, err := p.Prune(ctx, f.snap, expr.Or(eqID(5), eqID(305)))
		require.NoError(t, err)
		assert.True(t, res.Segments[0].Kept.Contains(0))
		assert.True(t, res.Segments[0].Kept.Contains(3))
	})

	t.Run("and across columns", func(t *testing.T) {
		pred := expr.And(eqID(105), expr.Eq(cityCol, expr.Lit(types.NewString("city-0-2"))))
		res, err := p.Prune(ctx, f.snap, pred)
		require.NoError(t, err)
		// id 105 lives in block 1 and city-0-2 in block 2: no block has both.
		assert.GreaterOrEqual(t, res.Stats.Pruned, 3)
	})

	t.Run("not is never pruned", func(t *testing.T) {
		res, err := p.Prune(ctx, f.snap, expr.Not(eqID(99999)))
		require.NoError(t, err)
		assert.Zero(t, res.Stats.Pruned)
	})

	t.Run("nil predicate keeps everything", func(t *testing.T) {
		res, err := p.Prune(ctx, f.snap, nil)
		require.NoError(t, err)
		assert.Zero(t, res.Stats.Pruned)
		assert.Equal(t, 4, res.Kept())
	})

	t.Run("unknown column is uncertain", func(t *testing.T) {
		res, err := p.Prune(ctx, f.snap, expr.Eq(expr.Col("missing", types.Int64), expr.Lit(types.NewInt64(1))))
		require.NoError(t, err)
		assert.Zero(t, res.Stats.Pruned)
	})
}

func TestPruneKeepsBlocksWithoutIndex(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1, 2)

	seg, err := meta.NewStore(f.blobs).LoadSegment(ctx, f.snap.Segments[0])
	require.NoError(t, err)
	for i := range seg.Blocks {
		seg.Blocks[i].BloomFilterIndexLocation = nil
	}
	loc, err := meta.NewStore(f.blobs).SaveSegment(ctx, meta.SegmentPath(uuid.New(), meta.SegmentVersion), seg)
	require.NoError(t, err)
	f.snap.Segments = []meta.Location{loc}

	res, err := New(f.blobs).Prune(ctx, f.snap, eqID(99999))
	require.NoError(t, err)
	assert.Zero(t, res.Stats.Indexed)
	assert.Zero(t, res.Stats.Pruned)
	assert.Equal(t, 2, res.Kept())
}

func TestPruneHasherMismatchIsUncertain(t *testing.T) {
	xxh3, err := digest.ByName("xxh3")
	require.NoError(t, err)
	f := newFixture(t, 1, 3, writer.WithEngine(digest.NewEngine(digest.WithHasher(xxh3))))

	res, err := New(f.blobs).Prune(context.Background(), f.snap, eqID(99999))
	require.NoError(t, err)
	assert.Zero(t, res.Stats.Pruned)

	res, err = New(f.blobs, WithEngine(digest.NewEngine(digest.WithHasher(xxh3)))).Prune(context.Background(), f.snap, eqID(99999))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Stats.Pruned, 2)
}

func TestPruneCorruptIndex(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1, 2)

	seg, err := meta.NewStore(f.blobs).LoadSegment(ctx, f.snap.Segments[0])
	require.NoError(t, err)
	path := seg.Blocks[1].BloomFilterIndexLocation.Path
	data, err := blobstore.ReadAll(ctx, f.blobs, path)
	require.NoError(t, err)
	data[len(data)/2] ^= 0xff
	require.NoError(t, f.blobs.Put(ctx, path, data))

	_, err = New(f.blobs).Prune(ctx, f.snap, eqID(5))
	assert.ErrorIs(t, err, index.ErrCorrupt)
}

func TestPruneMissingSegment(t *testing.T) {
	f := newFixture(t, 1, 1)
	f.snap.Segments = append(f.snap.Segments, meta.Location{Path: "_sg/missing_v3.seg", FormatVersion: 3})

	_, err := New(f.blobs).Prune(context.Background(), f.snap, eqID(5))
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestPruneCanceled(t *testing.T) {
	f := newFixture(t, 2, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(f.blobs).Prune(ctx, f.snap, eqID(5))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPruneUsesCache(t *testing.T) {
	f := newFixture(t, 1, 3)
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 20, MaxConcurrentReads: 2})
	c := cache.NewLRUBlockCache(1<<20, rc)
	defer c.Close()

	p := New(f.blobs, WithCache(c), WithResourceController(rc))
	ctx := context.Background()

	first, err := p.Prune(ctx, f.snap, eqID(5))
	require.NoError(t, err)
	assert.Zero(t, first.Stats.CacheHits)

	second, err := p.Prune(ctx, f.snap, eqID(5))
	require.NoError(t, err)
	assert.Equal(t, 4, second.Stats.CacheHits, "one segment and three indexes")
	assert.Equal(t, first.Stats.Pruned, second.Stats.Pruned)

	hits, _ := c.Stats()
	assert.Equal(t, int64(4), hits)
	assert.Positive(t, rc.MemoryUsage())
}

func TestPruneEmptySnapshot(t *testing.T) {
	res, err := New(blobstore.NewMemoryStore()).Prune(context.Background(), meta.NewEmptyTableSnapshot(schema), eqID(1))
	require.NoError(t, err)
	assert.Empty(t, res.Segments)
	assert.Zero(t, res.Kept())
}
