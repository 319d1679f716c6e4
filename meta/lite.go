package meta

import (
	"time"

	"github.com/google/uuid"
)

// TableSnapshotLite is the scalar part of a snapshot, used to list table history
// without holding segment lists in memory.
type TableSnapshotLite struct {
	// FormatVersion is the version of the bytes the snapshot was read from.
	FormatVersion        uint64
	SnapshotID           uuid.UUID
	Timestamp            *time.Time
	PrevSnapshotID       *SnapshotRef
	RowCount             uint64
	BlockCount           uint64
	SegmentCount         uint64
	UncompressedByteSize uint64
	CompressedByteSize   uint64
	IndexSize            uint64
}

// Lite returns the lightweight view of s with its own format version.
func (s *TableSnapshot) Lite() TableSnapshotLite {
	return NewLite(s, s.formatVersion)
}

// NewLite returns the lightweight view of s tagged with formatVersion.
func NewLite(s *TableSnapshot, formatVersion uint64) TableSnapshotLite {
	l := TableSnapshotLite{
		FormatVersion:        formatVersion,
		SnapshotID:           s.SnapshotID,
		PrevSnapshotID:       cloneRef(s.PrevSnapshotID),
		RowCount:             s.Summary.RowCount,
		BlockCount:           s.Summary.BlockCount,
		SegmentCount:         uint64(len(s.Segments)),
		UncompressedByteSize: s.Summary.UncompressedByteSize,
		CompressedByteSize:   s.Summary.CompressedByteSize,
		IndexSize:            s.Summary.IndexSize,
	}
	if s.Timestamp != nil {
		ts := *s.Timestamp
		l.Timestamp = &ts
	}
	return l
}
