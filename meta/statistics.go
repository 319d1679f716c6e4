package meta

import (
	"cmp"

	"github.com/hupe1980/blockidx/types"
)

// ColumnStatistics summarizes one column of a block, segment or table.
type ColumnStatistics struct {
	Min          types.Scalar `json:"min" cbor:"1,keyasint"`
	Max          types.Scalar `json:"max" cbor:"2,keyasint"`
	NullCount    uint64       `json:"null_count" cbor:"3,keyasint"`
	InMemorySize uint64       `json:"in_memory_size" cbor:"4,keyasint"`
	// DistinctOf is the approximate number of distinct values. It is only known for
	// single blocks and is dropped when statistics are merged.
	DistinctOf *uint64 `json:"distinct_of,omitempty" cbor:"5,keyasint,omitempty"`
}

// Statistics are aggregate counters of a segment or table.
type Statistics struct {
	RowCount             uint64 `json:"row_count" cbor:"1,keyasint"`
	BlockCount           uint64 `json:"block_count" cbor:"2,keyasint"`
	PerfectBlockCount    uint64 `json:"perfect_block_count" cbor:"3,keyasint"`
	SegmentCount         uint64 `json:"segment_count" cbor:"4,keyasint"`
	UncompressedByteSize uint64 `json:"uncompressed_byte_size" cbor:"5,keyasint"`
	CompressedByteSize   uint64 `json:"compressed_byte_size" cbor:"6,keyasint"`
	IndexSize            uint64 `json:"index_size" cbor:"7,keyasint"`
	// ColumnStats is keyed by column position in the table schema.
	ColumnStats map[int]ColumnStatistics `json:"col_stats,omitempty" cbor:"8,keyasint,omitempty"`
}

// Clone returns a deep copy of s.
func (s Statistics) Clone() Statistics {
	s.ColumnStats = cloneColumnStats(s.ColumnStats)
	return s
}

// Merge returns the sum of s and o. Column statistics are combined per column.
func (s Statistics) Merge(o Statistics) Statistics {
	out := Statistics{
		RowCount:             s.RowCount + o.RowCount,
		BlockCount:           s.BlockCount + o.BlockCount,
		PerfectBlockCount:    s.PerfectBlockCount + o.PerfectBlockCount,
		SegmentCount:         s.SegmentCount + o.SegmentCount,
		UncompressedByteSize: s.UncompressedByteSize + o.UncompressedByteSize,
		CompressedByteSize:   s.CompressedByteSize + o.CompressedByteSize,
		IndexSize:            s.IndexSize + o.IndexSize,
	}
	out.ColumnStats = MergeColumnStats(s.ColumnStats, o.ColumnStats)
	return out
}

// MergeColumnStats combines two per-column maps. Columns present in only one map are
// copied unchanged apart from DistinctOf.
func MergeColumnStats(a, b map[int]ColumnStatistics) map[int]ColumnStatistics {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[int]ColumnStatistics, max(len(a), len(b)))
	for k, v := range a {
		v.DistinctOf = nil
		out[k] = v
	}
	for k, v := range b {
		v.DistinctOf = nil
		cur, ok := out[k]
		if !ok {
			out[k] = v
			continue
		}
		out[k] = ColumnStatistics{
			Min:          minScalar(cur.Min, v.Min),
			Max:          maxScalar(cur.Max, v.Max),
			NullCount:    cur.NullCount + v.NullCount,
			InMemorySize: cur.InMemorySize + v.InMemorySize,
		}
	}
	return out
}

func minScalar(a, b types.Scalar) types.Scalar {
	if c, ok := CompareScalars(a, b); ok && c > 0 {
		return b
	}
	if a.IsNull() {
		return b
	}
	return a
}

func maxScalar(a, b types.Scalar) types.Scalar {
	if c, ok := CompareScalars(a, b); ok && c < 0 {
		return b
	}
	if a.IsNull() {
		return b
	}
	return a
}

// CompareScalars orders two scalars of the same comparison class. ok is false for
// NULLs and for values that cannot be compared.
func CompareScalars(a, b types.Scalar) (int, bool) {
	if a.IsNull() || b.IsNull() {
		return 0, false
	}
	switch {
	case a.Kind.IsSignedInteger() && b.Kind.IsSignedInteger(),
		a.Kind == types.KindDate && b.Kind == types.KindDate,
		a.Kind == types.KindTimestamp && b.Kind == types.KindTimestamp:
		return cmp.Compare(a.I64, b.I64), true
	case a.Kind.IsUnsignedInteger() && b.Kind.IsUnsignedInteger():
		return cmp.Compare(a.U64, b.U64), true
	case a.Kind.IsFloat() && b.Kind.IsFloat():
		return cmp.Compare(a.F64, b.F64), true
	case a.Kind == types.KindString && b.Kind == types.KindString:
		return cmp.Compare(a.Str, b.Str), true
	case a.Kind == types.KindBoolean && b.Kind == types.KindBoolean:
		return cmp.Compare(boolRank(a.Bool), boolRank(b.Bool)), true
	default:
		return 0, false
	}
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}
