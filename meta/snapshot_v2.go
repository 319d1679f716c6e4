package meta

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/blockidx/codec"
	"github.com/hupe1980/blockidx/internal/compress"
	"github.com/hupe1980/blockidx/types"
)

const snapshotVersionV2 uint64 = 2

// TableSnapshotV2 is the version 2 snapshot layout. It stores the timestamp as RFC 3339
// text, splits the parent reference into two fields and has no table statistics
// location.
type TableSnapshotV2 struct {
	SnapshotID          string       `json:"snapshot_id" cbor:"1,keyasint"`
	Timestamp           string       `json:"timestamp,omitempty" cbor:"2,keyasint,omitempty"`
	PrevSnapshotID      string       `json:"prev_snapshot_id,omitempty" cbor:"3,keyasint,omitempty"`
	PrevSnapshotVersion uint64       `json:"prev_snapshot_version,omitempty" cbor:"4,keyasint,omitempty"`
	Schema              types.Schema `json:"schema" cbor:"5,keyasint"`
	Summary             Statistics   `json:"summary" cbor:"6,keyasint"`
	Segments            []Location   `json:"segments" cbor:"7,keyasint"`
	ClusterKeyMeta      *ClusterKey  `json:"cluster_key_meta,omitempty" cbor:"8,keyasint,omitempty"`
}

// UpgradeV2 converts a version 2 snapshot into the current version. Every field is
// carried over; the table statistics location is left unset.
func UpgradeV2(v2 *TableSnapshotV2) (*TableSnapshot, error) {
	id, err := uuid.Parse(v2.SnapshotID)
	if err != nil {
		return nil, fmt.Errorf("%w: v2 snapshot id: %v", ErrCorruptSnapshot, err)
	}
	s := &TableSnapshot{
		formatVersion:  SnapshotVersion,
		SnapshotID:     id,
		Schema:         v2.Schema,
		Summary:        v2.Summary,
		Segments:       v2.Segments,
		ClusterKeyMeta: v2.ClusterKeyMeta,
	}
	if v2.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, v2.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: v2 timestamp: %v", ErrCorruptSnapshot, err)
		}
		ts = TrimToMicrosecond(ts)
		s.Timestamp = &ts
	}
	if v2.PrevSnapshotID != "" {
		prev, err := uuid.Parse(v2.PrevSnapshotID)
		if err != nil {
			return nil, fmt.Errorf("%w: v2 prev snapshot id: %v", ErrCorruptSnapshot, err)
		}
		s.PrevSnapshotID = &SnapshotRef{ID: prev, FormatVersion: v2.PrevSnapshotVersion}
	}
	return s, nil
}

// ToBytesV2 serializes v2 in the version 2 envelope.
func (v2 *TableSnapshotV2) ToBytesV2(c codec.Codec, comp compress.Type) ([]byte, error) {
	return encodeEnvelope(snapshotVersionV2, c, comp, v2)
}
