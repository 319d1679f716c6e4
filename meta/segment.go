package meta

import (
	"errors"
	"fmt"

	"github.com/hupe1980/blockidx/codec"
	"github.com/hupe1980/blockidx/internal/compress"
)

// SegmentVersion is the format version of segments written by this package.
const SegmentVersion uint64 = 3

// ErrCorruptSegment indicates segment bytes that cannot be decoded.
var ErrCorruptSegment = errors.New("meta: corrupt segment")

// BlockMeta describes one persisted data block and its filter index.
type BlockMeta struct {
	Location  Location `json:"location" cbor:"1,keyasint"`
	RowCount  uint64   `json:"row_count" cbor:"2,keyasint"`
	BlockSize uint64   `json:"block_size" cbor:"3,keyasint"`
	FileSize  uint64   `json:"file_size" cbor:"4,keyasint"`
	// ColStats is keyed by column position in the table schema.
	ColStats map[int]ColumnStatistics `json:"col_stats,omitempty" cbor:"5,keyasint,omitempty"`
	// BloomFilterIndexLocation is nil when the block has no filter index.
	BloomFilterIndexLocation *Location `json:"bloom_filter_index_location,omitempty" cbor:"6,keyasint,omitempty"`
	BloomFilterIndexSize     uint64    `json:"bloom_filter_index_size" cbor:"7,keyasint"`
}

// HasIndex reports whether the block has a filter index.
func (b *BlockMeta) HasIndex() bool { return b.BloomFilterIndexLocation != nil }

// SegmentInfo is the metadata of a segment: an ordered group of blocks.
type SegmentInfo struct {
	FormatVersion uint64      `json:"format_version" cbor:"1,keyasint"`
	Blocks        []BlockMeta `json:"blocks" cbor:"2,keyasint"`
	Summary       Statistics  `json:"summary" cbor:"3,keyasint"`
}

// NewSegmentInfo creates a segment from its blocks and derives the summary.
func NewSegmentInfo(blocks []BlockMeta) *SegmentInfo {
	return &SegmentInfo{
		FormatVersion: SegmentVersion,
		Blocks:        blocks,
		Summary:       ReduceBlockMetas(blocks),
	}
}

// ReduceBlockMetas sums block metadata into segment statistics.
func ReduceBlockMetas(blocks []BlockMeta) Statistics {
	s := Statistics{SegmentCount: 1}
	for i := range blocks {
		b := &blocks[i]
		s.RowCount += b.RowCount
		s.BlockCount++
		s.UncompressedByteSize += b.BlockSize
		s.CompressedByteSize += b.FileSize
		s.IndexSize += b.BloomFilterIndexSize
		s.ColumnStats = MergeColumnStats(s.ColumnStats, b.ColStats)
	}
	return s
}

// ToBytes serializes the segment with the default encoding and compression.
func (s *SegmentInfo) ToBytes() ([]byte, error) {
	return s.ToBytesWith(codec.Default, compress.Default)
}

// ToBytesWith serializes the segment with the given encoding and compression.
func (s *SegmentInfo) ToBytesWith(c codec.Codec, comp compress.Type) ([]byte, error) {
	data, err := encodeEnvelope(SegmentVersion, c, comp, s)
	if err != nil {
		return nil, fmt.Errorf("meta: serialize segment: %w", err)
	}
	return data, nil
}

// SegmentFromBytes is the inverse of SegmentInfo.ToBytes.
func SegmentFromBytes(data []byte) (*SegmentInfo, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSegment, err)
	}
	if env.formatVersion != SegmentVersion {
		return nil, fmt.Errorf("%w: segment version %d", ErrUnsupportedVersion, env.formatVersion)
	}
	var s SegmentInfo
	if err := env.decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSegment, err)
	}
	s.FormatVersion = env.formatVersion
	return &s, nil
}
