package meta

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hupe1980/blockidx/blobstore"
	"github.com/hupe1980/blockidx/codec"
	"github.com/hupe1980/blockidx/internal/compress"
)

var (
	// ErrSnapshotCycle is returned when following parent links revisits a snapshot.
	ErrSnapshotCycle = errors.New("meta: snapshot chain contains a cycle")
	// ErrNoSnapshot is returned by Load when the table has no committed snapshot.
	ErrNoSnapshot = fmt.Errorf("meta: no snapshot committed: %w", blobstore.ErrNotFound)
)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithCodec sets the encoding for newly written snapshots and segments.
func WithCodec(c codec.Codec) StoreOption {
	return func(s *Store) {
		s.codec = c
	}
}

// WithCompression sets the compression for newly written snapshots and segments.
func WithCompression(t compress.Type) StoreOption {
	return func(s *Store) {
		s.compression = t
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

// Store persists snapshots and segments in a blob store. The blob CURRENT holds the
// path of the latest snapshot.
type Store struct {
	blobs       blobstore.BlobStore
	codec       codec.Codec
	compression compress.Type
	logger      *slog.Logger
}

// NewStore creates a snapshot store on top of blobs.
func NewStore(blobs blobstore.BlobStore, opts ...StoreOption) *Store {
	s := &Store{
		blobs:       blobs,
		codec:       codec.Default,
		compression: compress.Default,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Blobs returns the underlying blob store.
func (s *Store) Blobs() blobstore.BlobStore { return s.blobs }

// Save writes snap and makes it current. The commit is rejected with
// blobstore.ErrConflict if CURRENT no longer points at snap's parent.
func (s *Store) Save(ctx context.Context, snap *TableSnapshot) (Location, error) {
	loc := Location{Path: SnapshotPath(snap.SnapshotID, SnapshotVersion), FormatVersion: SnapshotVersion}

	current, err := s.currentPath(ctx)
	if err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		return Location{}, err
	}
	expected := ""
	if snap.PrevSnapshotID != nil {
		expected = SnapshotPath(snap.PrevSnapshotID.ID, snap.PrevSnapshotID.FormatVersion)
	}
	if current != expected {
		return Location{}, fmt.Errorf("%w: CURRENT is %q, expected %q", blobstore.ErrConflict, current, expected)
	}

	data, err := snap.ToBytesWith(s.codec, s.compression)
	if err != nil {
		return Location{}, err
	}
	if err := s.blobs.Put(ctx, loc.Path, data); err != nil {
		return Location{}, fmt.Errorf("meta: write snapshot: %w", err)
	}
	if err := s.blobs.Put(ctx, blobstore.CurrentName, []byte(loc.Path)); err != nil {
		return Location{}, fmt.Errorf("meta: commit snapshot: %w", err)
	}

	s.logger.Debug("snapshot committed",
		"snapshot_id", snap.SnapshotID.String(),
		"path", loc.Path,
		"segments", len(snap.Segments),
		"bytes", len(data),
	)
	return loc, nil
}

// Load returns the current snapshot, or ErrNoSnapshot.
func (s *Store) Load(ctx context.Context) (*TableSnapshot, error) {
	path, err := s.currentPath(ctx)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, ErrNoSnapshot
		}
		return nil, err
	}
	snap, _, err := s.read(ctx, path)
	return snap, err
}

// LoadByLocation reads the snapshot at loc.
func (s *Store) LoadByLocation(ctx context.Context, loc Location) (*TableSnapshot, error) {
	snap, _, err := s.read(ctx, loc.Path)
	return snap, err
}

// Chain returns snap followed by its ancestors, newest first. At most limit snapshots
// are returned; limit <= 0 walks to the first snapshot of the table.
func (s *Store) Chain(ctx context.Context, snap *TableSnapshot, limit int) ([]*TableSnapshot, error) {
	out := []*TableSnapshot{snap}
	_, err := s.walk(ctx, snap, limit, func(parent *TableSnapshot, _ uint64) {
		out = append(out, parent)
	})
	return out, err
}

// History lists the current snapshot and its ancestors, newest first. Each entry carries
// the format version of the bytes it was read from.
func (s *Store) History(ctx context.Context, limit int) ([]TableSnapshotLite, error) {
	path, err := s.currentPath(ctx)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	head, version, err := s.read(ctx, path)
	if err != nil {
		return nil, err
	}
	out := []TableSnapshotLite{NewLite(head, version)}
	_, err = s.walk(ctx, head, limit, func(parent *TableSnapshot, v uint64) {
		out = append(out, NewLite(parent, v))
	})
	return out, err
}

// walk follows parent links starting at snap until the first snapshot, limit entries
// in total, or a missing parent.
func (s *Store) walk(ctx context.Context, snap *TableSnapshot, limit int, visit func(*TableSnapshot, uint64)) (int, error) {
	seen := map[string]struct{}{snap.SnapshotID.String(): {}}
	n := 1
	for cur := snap; cur.PrevSnapshotID != nil; {
		if limit > 0 && n >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		ref := cur.PrevSnapshotID
		if _, ok := seen[ref.ID.String()]; ok {
			return n, fmt.Errorf("%w: %s", ErrSnapshotCycle, ref.ID)
		}
		seen[ref.ID.String()] = struct{}{}

		parent, version, err := s.read(ctx, SnapshotPath(ref.ID, ref.FormatVersion))
		if err != nil {
			if errors.Is(err, blobstore.ErrNotFound) {
				// Purged ancestors end the chain.
				s.logger.Debug("snapshot chain truncated", "missing", ref.ID.String())
				break
			}
			return n, err
		}
		visit(parent, version)
		cur = parent
		n++
	}
	return n, nil
}

// Delete removes the snapshot at loc. The current snapshot cannot be deleted.
func (s *Store) Delete(ctx context.Context, loc Location) error {
	current, err := s.currentPath(ctx)
	if err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		return err
	}
	if current == loc.Path {
		return fmt.Errorf("meta: cannot delete current snapshot %s", loc.Path)
	}
	return s.blobs.Delete(ctx, loc.Path)
}

// SaveSegment writes a segment and returns its location.
func (s *Store) SaveSegment(ctx context.Context, path string, seg *SegmentInfo) (Location, error) {
	data, err := seg.ToBytesWith(s.codec, s.compression)
	if err != nil {
		return Location{}, err
	}
	if err := s.blobs.Put(ctx, path, data); err != nil {
		return Location{}, fmt.Errorf("meta: write segment: %w", err)
	}
	return Location{Path: path, FormatVersion: SegmentVersion}, nil
}

// LoadSegment reads the segment at loc.
func (s *Store) LoadSegment(ctx context.Context, loc Location) (*SegmentInfo, error) {
	data, err := blobstore.ReadAll(ctx, s.blobs, loc.Path)
	if err != nil {
		return nil, err
	}
	return SegmentFromBytes(data)
}

func (s *Store) currentPath(ctx context.Context) (string, error) {
	data, err := blobstore.ReadAll(ctx, s.blobs, blobstore.CurrentName)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *Store) read(ctx context.Context, path string) (*TableSnapshot, uint64, error) {
	data, err := blobstore.ReadAll(ctx, s.blobs, path)
	if err != nil {
		return nil, 0, err
	}
	version, err := PeekFormatVersion(data)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", path, err)
	}
	snap, err := FromBytes(data)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", path, err)
	}
	return snap, version, nil
}
