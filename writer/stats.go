package writer

import (
	"github.com/hupe1980/blockidx/block"
	"github.com/hupe1980/blockidx/index"
	"github.com/hupe1980/blockidx/meta"
	"github.com/hupe1980/blockidx/types"
)

// columnStats computes per-column statistics of b. Distinct counts come from the
// filter index when one was built.
func columnStats(b *block.DataBlock, bf *index.BlockFilter) map[int]meta.ColumnStatistics {
	out := make(map[int]meta.ColumnStatistics, b.NumColumns())
	for i, col := range b.Columns() {
		cs := meta.ColumnStatistics{
			Min:          types.NullScalar(),
			Max:          types.NullScalar(),
			NullCount:    uint64(col.NullCount()),
			InMemorySize: columnSize(col),
		}
		for row := 0; row < col.Len(); row++ {
			if !col.IsValid(row) {
				continue
			}
			v := col.RawValue(row)
			if c, ok := meta.CompareScalars(v, cs.Min); cs.Min.IsNull() || (ok && c < 0) {
				cs.Min = v
			}
			if c, ok := meta.CompareScalars(v, cs.Max); cs.Max.IsNull() || (ok && c > 0) {
				cs.Max = v
			}
		}
		if bf != nil {
			if n, ok := bf.ColumnDistinctCount[i]; ok {
				d := uint64(n)
				cs.DistinctOf = &d
			}
		}
		out[i] = cs
	}
	return out
}

func estimateSize(b *block.DataBlock) uint64 {
	var n uint64
	for _, col := range b.Columns() {
		n += columnSize(col)
	}
	return n
}

// columnSize approximates the in-memory size: fixed-width values by their width,
// strings by their length, plus one validity bit per row for nullable columns.
func columnSize(col *block.Column) uint64 {
	var n uint64
	width := fixedWidth(col.Type().Kind)
	for row := 0; row < col.Len(); row++ {
		if width > 0 {
			n += width
			continue
		}
		n += uint64(len(col.RawValue(row).Str))
	}
	if col.Type().IsNullable() {
		n += uint64(col.Len()+7) / 8
	}
	return n
}

func fixedWidth(k types.Kind) uint64 {
	switch k {
	case types.KindBoolean, types.KindInt8, types.KindUInt8:
		return 1
	case types.KindInt16, types.KindUInt16:
		return 2
	case types.KindInt32, types.KindUInt32, types.KindFloat32, types.KindDate:
		return 4
	case types.KindInt64, types.KindUInt64, types.KindFloat64, types.KindTimestamp:
		return 8
	default:
		return 0
	}
}
