// Package meta defines the persisted table metadata: snapshots, segments and the
// binary envelope they are stored in.
//
// A TableSnapshot is an immutable point-in-time view of a table. Snapshots form a
// singly linked chain through PrevSnapshotID; a writer derives a successor with
// FromPrevious, replaces the fields that changed and persists it under a new identity.
// Timestamps along the chain strictly increase, even when the wall clock does not
// advance between two commits.
package meta

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/blockidx/codec"
	"github.com/hupe1980/blockidx/internal/compress"
	"github.com/hupe1980/blockidx/types"
)

// SnapshotVersion is the format version of snapshots written by this package.
const SnapshotVersion uint64 = 3

// timeNow is the clock used for new snapshots.
var timeNow = time.Now

// SnapshotRef identifies a snapshot together with the format version it was written in.
type SnapshotRef struct {
	ID            uuid.UUID
	FormatVersion uint64
}

// Location points at a persisted object.
type Location struct {
	Path          string `json:"path" cbor:"1,keyasint"`
	FormatVersion uint64 `json:"format_version" cbor:"2,keyasint"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s@v%d", l.Path, l.FormatVersion)
}

// ClusterKey describes the clustering key of a table.
type ClusterKey struct {
	ID         uint32 `json:"id" cbor:"1,keyasint"`
	Definition string `json:"definition" cbor:"2,keyasint"`
}

// TableSnapshot is the metadata of one table version.
type TableSnapshot struct {
	formatVersion uint64

	// SnapshotID is globally unique.
	SnapshotID uuid.UUID
	// Timestamp is truncated to microseconds. It is nil for snapshots that never had one.
	Timestamp *time.Time
	// PrevSnapshotID links to the parent snapshot; nil for the first snapshot of a table.
	PrevSnapshotID *SnapshotRef
	Schema         types.Schema
	Summary        Statistics
	// Segments is in append order: the most recently appended segment is last.
	Segments                []Location
	ClusterKeyMeta          *ClusterKey
	TableStatisticsLocation *string
}

// NewTableSnapshot creates a snapshot from explicit fields. The timestamp is derived
// from the current time and prevTimestamp so that it is strictly greater than the
// parent's.
func NewTableSnapshot(
	id uuid.UUID,
	prevTimestamp *time.Time,
	prev *SnapshotRef,
	schema types.Schema,
	summary Statistics,
	segments []Location,
	clusterKey *ClusterKey,
	statsLocation *string,
) *TableSnapshot {
	ts := nextTimestamp(prevTimestamp)
	return &TableSnapshot{
		formatVersion:           SnapshotVersion,
		SnapshotID:              id,
		Timestamp:               &ts,
		PrevSnapshotID:          cloneRef(prev),
		Schema:                  schema.Clone(),
		Summary:                 summary.Clone(),
		Segments:                slices.Clone(segments),
		ClusterKeyMeta:          cloneClusterKey(clusterKey),
		TableStatisticsLocation: cloneString(statsLocation),
	}
}

// NewEmptyTableSnapshot creates the first snapshot of a table.
func NewEmptyTableSnapshot(schema types.Schema) *TableSnapshot {
	return NewTableSnapshot(uuid.New(), nil, nil, schema, Statistics{}, nil, nil, nil)
}

// FromPrevious derives a successor of parent: every field is deep-copied, the
// successor gets a new identity, links back to parent and receives a timestamp
// strictly greater than parent's.
func FromPrevious(parent *TableSnapshot) *TableSnapshot {
	s := parent.Clone()
	s.formatVersion = SnapshotVersion
	s.SnapshotID = uuid.New()
	s.PrevSnapshotID = &SnapshotRef{ID: parent.SnapshotID, FormatVersion: parent.formatVersion}
	ts := nextTimestamp(parent.Timestamp)
	s.Timestamp = &ts
	return s
}

func nextTimestamp(prev *time.Time) time.Time {
	now := TrimToMicrosecond(timeNow())
	if prev == nil {
		return now
	}
	p := TrimToMicrosecond(*prev)
	return MonotonicallyIncreasedTimestamp(now, &p)
}

// MonotonicallyIncreasedTimestamp returns now, or prev plus one microsecond if prev is
// not strictly before now. One microsecond is the smallest step that survives
// TrimToMicrosecond.
func MonotonicallyIncreasedTimestamp(now time.Time, prev *time.Time) time.Time {
	if prev != nil && !prev.Before(now) {
		return prev.Add(time.Microsecond)
	}
	return now
}

// TrimToMicrosecond truncates t to microsecond precision in UTC.
func TrimToMicrosecond(t time.Time) time.Time {
	return time.UnixMicro(t.UnixMicro()).UTC()
}

// FormatVersion returns the format version the snapshot was created or decoded with.
// Serialization always writes SnapshotVersion.
func (s *TableSnapshot) FormatVersion() uint64 { return s.formatVersion }

// Ref returns the reference children use to link to s.
func (s *TableSnapshot) Ref() SnapshotRef {
	return SnapshotRef{ID: s.SnapshotID, FormatVersion: s.formatVersion}
}

// Encoding returns the codec used for new snapshot payloads.
func (s *TableSnapshot) Encoding() codec.Codec { return codec.Default }

// Compression returns the compression used for new snapshot payloads.
func (s *TableSnapshot) Compression() compress.Type { return compress.Default }

// Clone returns a deep copy of s.
func (s *TableSnapshot) Clone() *TableSnapshot {
	c := &TableSnapshot{
		formatVersion:           s.formatVersion,
		SnapshotID:              s.SnapshotID,
		PrevSnapshotID:          cloneRef(s.PrevSnapshotID),
		Schema:                  s.Schema.Clone(),
		Summary:                 s.Summary.Clone(),
		Segments:                slices.Clone(s.Segments),
		ClusterKeyMeta:          cloneClusterKey(s.ClusterKeyMeta),
		TableStatisticsLocation: cloneString(s.TableStatisticsLocation),
	}
	if s.Timestamp != nil {
		ts := *s.Timestamp
		c.Timestamp = &ts
	}
	return c
}

// BuildSegmentIDMap maps segment paths to ordinals. The most recently appended
// segment gets ordinal 0, so ordinals of existing segments do not change when new
// segments are appended.
func (s *TableSnapshot) BuildSegmentIDMap() map[string]int {
	n := len(s.Segments)
	m := make(map[string]int, n)
	for i, loc := range s.Segments {
		m[loc.Path] = n - 1 - i
	}
	return m
}

func cloneRef(r *SnapshotRef) *SnapshotRef {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

func cloneClusterKey(k *ClusterKey) *ClusterKey {
	if k == nil {
		return nil
	}
	c := *k
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func cloneColumnStats(m map[int]ColumnStatistics) map[int]ColumnStatistics {
	if m == nil {
		return nil
	}
	c := maps.Clone(m)
	for k, v := range c {
		if v.DistinctOf != nil {
			d := *v.DistinctOf
			v.DistinctOf = &d
			c[k] = v
		}
	}
	return c
}
