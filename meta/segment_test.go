package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/blockidx/block"
	"github.com/hupe1980/blockidx/codec"
	"github.com/hupe1980/blockidx/internal/compress"
	"github.com/hupe1980/blockidx/types"
)

func u64(v uint64) *uint64 { return &v }

func TestMergeColumnStats(t *testing.T) {
	a := map[int]ColumnStatistics{
		0: {Min: types.NewInt64(5), Max: types.NewInt64(10), NullCount: 1, InMemorySize: 80, DistinctOf: u64(4)},
		1: {Min: types.NewString("m"), Max: types.NewString("q"), InMemorySize: 10},
	}
	b := map[int]ColumnStatistics{
		0: {Min: types.NewInt64(-3), Max: types.NewInt64(7), NullCount: 2, InMemorySize: 40, DistinctOf: u64(2)},
		2: {Min: types.NullScalar(), Max: types.NullScalar(), NullCount: 3},
	}

	got := MergeColumnStats(a, b)
	require.Len(t, got, 3)
	assert.Equal(t, ColumnStatistics{
		Min: types.NewInt64(-3), Max: types.NewInt64(10), NullCount: 3, InMemorySize: 120,
	}, got[0])
	assert.Nil(t, got[1].DistinctOf)
	assert.Equal(t, types.NewString("m"), got[1].Min)
	assert.Equal(t, uint64(3), got[2].NullCount)

	assert.Nil(t, MergeColumnStats(nil, nil))
	assert.NotNil(t, a[0].DistinctOf, "inputs are not modified")
}

func TestMergeNullBounds(t *testing.T) {
	a := map[int]ColumnStatistics{0: {Min: types.NullScalar(), Max: types.NullScalar()}}
	b := map[int]ColumnStatistics{0: {Min: types.NewInt64(1), Max: types.NewInt64(2)}}

	got := MergeColumnStats(a, b)
	assert.Equal(t, types.NewInt64(1), got[0].Min)
	assert.Equal(t, types.NewInt64(2), got[0].Max)
}

func TestCompareScalars(t *testing.T) {
	tests := []struct {
		name string
		a, b types.Scalar
		want int
		ok   bool
	}{
		{"ints of different width", types.NewInt8(3), types.NewInt64(4), -1, true},
		{"unsigned", types.NewUInt64(9), types.NewUInt32(9), 0, true},
		{"floats", types.NewFloat64(2.5), types.NewFloat32(1), 1, true},
		{"strings", types.NewString("a"), types.NewString("b"), -1, true},
		{"bools", types.NewBool(true), types.NewBool(false), 1, true},
		{"null", types.NullScalar(), types.NewInt64(1), 0, false},
		{"mixed classes", types.NewInt64(1), types.NewString("1"), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CompareScalars(tt.a, tt.b)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatisticsMerge(t *testing.T) {
	a := Statistics{RowCount: 10, BlockCount: 1, SegmentCount: 1, IndexSize: 5}
	b := Statistics{RowCount: 5, BlockCount: 2, SegmentCount: 1, CompressedByteSize: 7}

	got := a.Merge(b)
	assert.Equal(t, uint64(15), got.RowCount)
	assert.Equal(t, uint64(3), got.BlockCount)
	assert.Equal(t, uint64(2), got.SegmentCount)
	assert.Equal(t, uint64(5), got.IndexSize)
	assert.Equal(t, uint64(7), got.CompressedByteSize)
}

func TestSegmentInfo(t *testing.T) {
	idx := &Location{Path: "_i_b/x_v3.bf", FormatVersion: 3}
	seg := NewSegmentInfo([]BlockMeta{
		{
			Location: Location{Path: "_b/x_v3.blk", FormatVersion: 3}, RowCount: 4, BlockSize: 100, FileSize: 40,
			ColStats:                 map[int]ColumnStatistics{0: {Min: types.NewInt64(1), Max: types.NewInt64(4), DistinctOf: u64(4)}},
			BloomFilterIndexLocation: idx, BloomFilterIndexSize: 16,
		},
		{
			Location: Location{Path: "_b/y_v3.blk", FormatVersion: 3}, RowCount: 2, BlockSize: 50, FileSize: 20,
			ColStats: map[int]ColumnStatistics{0: {Min: types.NewInt64(-1), Max: types.NewInt64(2)}},
		},
	})

	assert.Equal(t, SegmentVersion, seg.FormatVersion)
	assert.Equal(t, uint64(6), seg.Summary.RowCount)
	assert.Equal(t, uint64(2), seg.Summary.BlockCount)
	assert.Equal(t, uint64(1), seg.Summary.SegmentCount)
	assert.Equal(t, uint64(150), seg.Summary.UncompressedByteSize)
	assert.Equal(t, uint64(60), seg.Summary.CompressedByteSize)
	assert.Equal(t, uint64(16), seg.Summary.IndexSize)
	assert.Equal(t, types.NewInt64(-1), seg.Summary.ColumnStats[0].Min)
	assert.True(t, seg.Blocks[0].HasIndex())
	assert.False(t, seg.Blocks[1].HasIndex())

	for _, c := range []codec.Codec{codec.CBOR{}, codec.GoJSON{}} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := seg.ToBytesWith(c, compress.TypeZstd)
			require.NoError(t, err)

			got, err := SegmentFromBytes(data)
			require.NoError(t, err)
			assert.Equal(t, seg.Blocks, got.Blocks)
			assert.Equal(t, seg.Summary, got.Summary)

			_, err = SegmentFromBytes(data[:len(data)-1])
			assert.ErrorIs(t, err, ErrCorruptSegment)
		})
	}
}

func TestBlockDataRoundTrip(t *testing.T) {
	b, err := block.NewDataBlock(
		block.Int64s(1, 2, 3),
		block.MustColumn(types.Nullable(types.String), types.NewString("a"), types.NullScalar(), types.NewString("c")),
	)
	require.NoError(t, err)

	data, err := MarshalBlock(b, codec.Default, compress.TypeSnappy)
	require.NoError(t, err)

	got, err := UnmarshalBlock(data)
	require.NoError(t, err)
	require.Equal(t, 3, got.NumRows())
	require.Equal(t, 2, got.NumColumns())
	assert.Equal(t, types.NewInt64(2), got.Column(0).Value(1))
	assert.True(t, got.Column(1).Value(1).IsNull())
	assert.Equal(t, 1, got.Column(1).NullCount())
	assert.True(t, got.Column(1).Type().Equal(types.Nullable(types.String)))

	_, err = UnmarshalBlock(data[:5])
	assert.ErrorIs(t, err, ErrCorruptBlock)
}
