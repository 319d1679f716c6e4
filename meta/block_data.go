package meta

import (
	"errors"
	"fmt"

	"github.com/hupe1980/blockidx/block"
	"github.com/hupe1980/blockidx/codec"
	"github.com/hupe1980/blockidx/internal/compress"
	"github.com/hupe1980/blockidx/types"
)

// BlockDataVersion is the format version of persisted data blocks.
const BlockDataVersion uint64 = 3

// ErrCorruptBlock indicates block bytes that cannot be decoded.
var ErrCorruptBlock = errors.New("meta: corrupt block")

type blockRecord struct {
	Columns []columnRecord `json:"columns" cbor:"1,keyasint"`
}

type columnRecord struct {
	Type   types.DataType `json:"type" cbor:"1,keyasint"`
	Values []types.Scalar `json:"values" cbor:"2,keyasint"`
}

// MarshalBlock serializes a data block in the metadata envelope. NULL rows are stored
// as NULL scalars.
func MarshalBlock(b *block.DataBlock, c codec.Codec, comp compress.Type) ([]byte, error) {
	rec := blockRecord{Columns: make([]columnRecord, b.NumColumns())}
	for i, col := range b.Columns() {
		values := make([]types.Scalar, col.Len())
		for row := range values {
			values[row] = col.Value(row)
		}
		rec.Columns[i] = columnRecord{Type: col.Type(), Values: values}
	}
	data, err := encodeEnvelope(BlockDataVersion, c, comp, &rec)
	if err != nil {
		return nil, fmt.Errorf("meta: serialize block: %w", err)
	}
	return data, nil
}

// UnmarshalBlock is the inverse of MarshalBlock.
func UnmarshalBlock(data []byte) (*block.DataBlock, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBlock, err)
	}
	if env.formatVersion != BlockDataVersion {
		return nil, fmt.Errorf("%w: block version %d", ErrUnsupportedVersion, env.formatVersion)
	}
	var rec blockRecord
	if err := env.decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBlock, err)
	}
	cols := make([]*block.Column, len(rec.Columns))
	for i, cr := range rec.Columns {
		col, err := block.NewColumn(cr.Type, cr.Values...)
		if err != nil {
			return nil, fmt.Errorf("%w: column %d: %v", ErrCorruptBlock, i, err)
		}
		cols[i] = col
	}
	b, err := block.NewDataBlock(cols...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBlock, err)
	}
	return b, nil
}
