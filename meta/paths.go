package meta

import (
	"fmt"

	"github.com/google/uuid"
)

// Object key prefixes below the table root.
const (
	SnapshotPrefix = "_ss/"
	SegmentPrefix  = "_sg/"
	BlockPrefix    = "_b/"
	IndexPrefix    = "_i_b/"
)

// SnapshotPath returns the key of a snapshot.
func SnapshotPath(id uuid.UUID, version uint64) string {
	return fmt.Sprintf("%s%s_v%d.snapshot", SnapshotPrefix, id, version)
}

// SegmentPath returns the key of a segment.
func SegmentPath(id uuid.UUID, version uint64) string {
	return fmt.Sprintf("%s%s_v%d.seg", SegmentPrefix, id, version)
}

// BlockPath returns the key of a data block.
func BlockPath(id uuid.UUID, version uint64) string {
	return fmt.Sprintf("%s%s_v%d.blk", BlockPrefix, id, version)
}

// IndexPath returns the key of a block filter index.
func IndexPath(id uuid.UUID, version uint64) string {
	return fmt.Sprintf("%s%s_v%d.bf", IndexPrefix, id, version)
}
