package meta

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/blockidx/codec"
	"github.com/hupe1980/blockidx/internal/compress"
	"github.com/hupe1980/blockidx/types"
)

var (
	// ErrCorruptSnapshot indicates snapshot bytes that cannot be decoded.
	ErrCorruptSnapshot = errors.New("meta: corrupt snapshot")
	// ErrUnsupportedVersion indicates a format version this package cannot read.
	ErrUnsupportedVersion = errors.New("meta: unsupported format version")
)

// snapshotRecord is the persisted form of a version 3 TableSnapshot.
type snapshotRecord struct {
	FormatVersion           uint64       `json:"format_version" cbor:"1,keyasint"`
	SnapshotID              string       `json:"snapshot_id" cbor:"2,keyasint"`
	TimestampMicros         *int64       `json:"timestamp_micros,omitempty" cbor:"3,keyasint,omitempty"`
	PrevSnapshot            *refRecord   `json:"prev_snapshot_id,omitempty" cbor:"4,keyasint,omitempty"`
	Schema                  types.Schema `json:"schema" cbor:"5,keyasint"`
	Summary                 Statistics   `json:"summary" cbor:"6,keyasint"`
	Segments                []Location   `json:"segments" cbor:"7,keyasint"`
	ClusterKeyMeta          *ClusterKey  `json:"cluster_key_meta,omitempty" cbor:"8,keyasint,omitempty"`
	TableStatisticsLocation *string      `json:"table_statistics_location,omitempty" cbor:"9,keyasint,omitempty"`
}

type refRecord struct {
	ID            string `json:"id" cbor:"1,keyasint"`
	FormatVersion uint64 `json:"format_version" cbor:"2,keyasint"`
}

func (s *TableSnapshot) record() *snapshotRecord {
	rec := &snapshotRecord{
		FormatVersion:           SnapshotVersion,
		SnapshotID:              s.SnapshotID.String(),
		Schema:                  s.Schema,
		Summary:                 s.Summary,
		Segments:                s.Segments,
		ClusterKeyMeta:          s.ClusterKeyMeta,
		TableStatisticsLocation: s.TableStatisticsLocation,
	}
	if s.Timestamp != nil {
		us := s.Timestamp.UnixMicro()
		rec.TimestampMicros = &us
	}
	if s.PrevSnapshotID != nil {
		rec.PrevSnapshot = &refRecord{ID: s.PrevSnapshotID.ID.String(), FormatVersion: s.PrevSnapshotID.FormatVersion}
	}
	if rec.Segments == nil {
		rec.Segments = []Location{}
	}
	return rec
}

func (rec *snapshotRecord) snapshot() (*TableSnapshot, error) {
	id, err := uuid.Parse(rec.SnapshotID)
	if err != nil {
		return nil, fmt.Errorf("snapshot id: %w", err)
	}
	s := &TableSnapshot{
		formatVersion:           SnapshotVersion,
		SnapshotID:              id,
		Schema:                  rec.Schema,
		Summary:                 rec.Summary,
		Segments:                rec.Segments,
		ClusterKeyMeta:          rec.ClusterKeyMeta,
		TableStatisticsLocation: rec.TableStatisticsLocation,
	}
	if rec.TimestampMicros != nil {
		ts := time.UnixMicro(*rec.TimestampMicros).UTC()
		s.Timestamp = &ts
	}
	if rec.PrevSnapshot != nil {
		prev, err := uuid.Parse(rec.PrevSnapshot.ID)
		if err != nil {
			return nil, fmt.Errorf("prev snapshot id: %w", err)
		}
		s.PrevSnapshotID = &SnapshotRef{ID: prev, FormatVersion: rec.PrevSnapshot.FormatVersion}
	}
	return s, nil
}

// ToBytes serializes the snapshot with the default encoding and compression.
func (s *TableSnapshot) ToBytes() ([]byte, error) {
	return s.ToBytesWith(s.Encoding(), s.Compression())
}

// ToBytesWith serializes the snapshot with the given encoding and compression.
// Snapshots are always written in the current format version.
func (s *TableSnapshot) ToBytesWith(c codec.Codec, comp compress.Type) ([]byte, error) {
	data, err := encodeEnvelope(SnapshotVersion, c, comp, s.record())
	if err != nil {
		return nil, fmt.Errorf("meta: serialize snapshot %s: %w", s.SnapshotID, err)
	}
	return data, nil
}

// FromBytes is the inverse of ToBytes. Version 2 payloads are upgraded to the current
// layout; FormatVersion of the result still reports 2. Truncated or trailing bytes, unknown tags and decoding failures are
// reported as ErrCorruptSnapshot.
func FromBytes(data []byte) (*TableSnapshot, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	switch env.formatVersion {
	case SnapshotVersion:
		var rec snapshotRecord
		if err := env.decode(&rec); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
		s, err := rec.snapshot()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
		return s, nil
	case snapshotVersionV2:
		var v2 TableSnapshotV2
		if err := env.decode(&v2); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
		s, err := UpgradeV2(&v2)
		if err != nil {
			return nil, err
		}
		// Keep the stored version so that children reference the existing object.
		s.formatVersion = snapshotVersionV2
		return s, nil
	default:
		return nil, fmt.Errorf("%w: snapshot version %d", ErrUnsupportedVersion, env.formatVersion)
	}
}

// PeekFormatVersion returns the format version recorded in serialized snapshot or
// segment bytes.
func PeekFormatVersion(data []byte) (uint64, error) {
	v, err := peekVersion(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return v, nil
}
