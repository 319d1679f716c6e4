// Package writer persists data blocks, their filter indexes and segment metadata.
//
// A physical block is written as two objects: the block data under _b/ and, if any
// column is eligible, its filter index under _i_b/. Blocks whose index cannot be built
// are stored without one; readers treat a missing index as "must scan".
package writer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/blockidx/blobstore"
	"github.com/hupe1980/blockidx/block"
	"github.com/hupe1980/blockidx/codec"
	"github.com/hupe1980/blockidx/digest"
	"github.com/hupe1980/blockidx/filter"
	"github.com/hupe1980/blockidx/index"
	"github.com/hupe1980/blockidx/internal/compress"
	"github.com/hupe1980/blockidx/meta"
	"github.com/hupe1980/blockidx/types"
)

// ErrSchemaMismatch is returned when a block does not match the writer's schema.
var ErrSchemaMismatch = errors.New("writer: block does not match schema")

// Option configures a Writer.
type Option func(*Writer)

// WithEngine sets the digest engine used for version 3 indexes.
func WithEngine(e *digest.Engine) Option {
	return func(w *Writer) {
		w.engine = e
	}
}

// WithIndexVersion sets the filter index format version.
func WithIndexVersion(v index.Version) Option {
	return func(w *Writer) {
		w.indexVersion = v
	}
}

// WithCodec sets the encoding of block data and segments.
func WithCodec(c codec.Codec) Option {
	return func(w *Writer) {
		if c == nil {
			c = codec.Default
		}
		w.codec = c
	}
}

// WithCompression sets the compression of block data and segments.
func WithCompression(t compress.Type) Option {
	return func(w *Writer) {
		w.compression = t
	}
}

// WithConcurrency limits the number of blocks written in parallel.
func WithConcurrency(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Writer) {
		w.logger = l
	}
}

// Writer writes blocks of one table schema. It is safe for concurrent use.
type Writer struct {
	blobs        blobstore.BlobStore
	schema       types.Schema
	engine       *digest.Engine
	indexVersion index.Version
	codec        codec.Codec
	compression  compress.Type
	concurrency  int
	logger       *slog.Logger
}

// New creates a writer for blocks of schema.
func New(blobs blobstore.BlobStore, schema types.Schema, opts ...Option) *Writer {
	w := &Writer{
		blobs:        blobs,
		schema:       schema.Clone(),
		indexVersion: index.CurrentVersion,
		codec:        codec.Default,
		compression:  compress.Default,
		concurrency:  runtime.GOMAXPROCS(0),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.engine == nil {
		w.engine = digest.NewEngine(digest.WithLogger(w.logger))
	}
	return w
}

// Schema returns the schema of the written blocks.
func (w *Writer) Schema() types.Schema { return w.schema }

// WriteBlock writes blocks as one physical block with a single filter index.
func (w *Writer) WriteBlock(ctx context.Context, blocks ...*block.DataBlock) (meta.BlockMeta, error) {
	if len(blocks) == 0 {
		return meta.BlockMeta{}, fmt.Errorf("%w: no blocks", index.ErrBadInput)
	}
	if err := ctx.Err(); err != nil {
		return meta.BlockMeta{}, err
	}

	merged, err := w.merge(blocks)
	if err != nil {
		return meta.BlockMeta{}, err
	}

	start := time.Now()
	bf, err := index.Build(w.engine, w.schema, w.indexVersion, merged)
	switch {
	case errors.Is(err, filter.ErrConstruction):
		w.logger.Debug("block stored without filter index", "rows", merged.NumRows(), "error", err)
		bf = nil
	case err != nil:
		return meta.BlockMeta{}, fmt.Errorf("writer: build index: %w", err)
	}

	id := uuid.New()
	data, err := meta.MarshalBlock(merged, w.codec, w.compression)
	if err != nil {
		return meta.BlockMeta{}, err
	}
	bm := meta.BlockMeta{
		Location:  meta.Location{Path: meta.BlockPath(id, meta.BlockDataVersion), FormatVersion: meta.BlockDataVersion},
		RowCount:  uint64(merged.NumRows()),
		BlockSize: estimateSize(merged),
		FileSize:  uint64(len(data)),
		ColStats:  columnStats(merged, bf),
	}

	var idxData []byte
	if bf != nil {
		if idxData, err = bf.Marshal(); err != nil {
			return meta.BlockMeta{}, fmt.Errorf("writer: marshal index: %w", err)
		}
		loc := meta.Location{Path: meta.IndexPath(id, uint64(bf.Version)), FormatVersion: uint64(bf.Version)}
		bm.BloomFilterIndexLocation = &loc
		bm.BloomFilterIndexSize = uint64(len(idxData))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := w.blobs.Put(gctx, bm.Location.Path, data); err != nil {
			return fmt.Errorf("writer: write block: %w", err)
		}
		return nil
	})
	if bm.BloomFilterIndexLocation != nil {
		path := bm.BloomFilterIndexLocation.Path
		g.Go(func() error {
			if err := w.blobs.Put(gctx, path, idxData); err != nil {
				return fmt.Errorf("writer: write index: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return meta.BlockMeta{}, err
	}

	w.logger.Debug("block written",
		"path", bm.Location.Path,
		"rows", bm.RowCount,
		"index_size", bm.BloomFilterIndexSize,
		"duration", time.Since(start),
	)
	return bm, nil
}

// WriteBlocks writes every block as its own physical block. Blocks are written
// concurrently; the returned metadata is in input order.
func (w *Writer) WriteBlocks(ctx context.Context, blocks []*block.DataBlock) ([]meta.BlockMeta, error) {
	out := make([]meta.BlockMeta, len(blocks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for i, b := range blocks {
		g.Go(func() error {
			bm, err := w.WriteBlock(gctx, b)
			if err != nil {
				return fmt.Errorf("block %d: %w", i, err)
			}
			out[i] = bm
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteSegment stores a segment over metas and returns its location and summary.
func (w *Writer) WriteSegment(ctx context.Context, metas []meta.BlockMeta) (meta.Location, meta.Statistics, error) {
	seg := meta.NewSegmentInfo(metas)
	data, err := seg.ToBytesWith(w.codec, w.compression)
	if err != nil {
		return meta.Location{}, meta.Statistics{}, err
	}
	loc := meta.Location{Path: meta.SegmentPath(uuid.New(), meta.SegmentVersion), FormatVersion: meta.SegmentVersion}
	if err := w.blobs.Put(ctx, loc.Path, data); err != nil {
		return meta.Location{}, meta.Statistics{}, fmt.Errorf("writer: write segment: %w", err)
	}
	w.logger.Debug("segment written", "path", loc.Path, "blocks", len(metas), "rows", seg.Summary.RowCount)
	return loc, seg.Summary, nil
}

// ReadBlock reads the data block at loc.
func ReadBlock(ctx context.Context, blobs blobstore.BlobStore, loc meta.Location) (*block.DataBlock, error) {
	data, err := blobstore.ReadAll(ctx, blobs, loc.Path)
	if err != nil {
		return nil, err
	}
	return meta.UnmarshalBlock(data)
}

func (w *Writer) merge(blocks []*block.DataBlock) (*block.DataBlock, error) {
	for i, b := range blocks {
		if err := w.check(b); err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
	}
	if len(blocks) == 1 {
		return blocks[0], nil
	}
	cols := make([]*block.Column, w.schema.NumFields())
	for c := range cols {
		parts := make([]*block.Column, len(blocks))
		for i, b := range blocks {
			parts[i] = b.Column(c)
		}
		col, err := block.Concat(parts...)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q: %w", ErrSchemaMismatch, w.schema.Field(c).Name, err)
		}
		cols[c] = col
	}
	return block.NewDataBlock(cols...)
}

func (w *Writer) check(b *block.DataBlock) error {
	if b.NumColumns() != w.schema.NumFields() {
		return fmt.Errorf("%w: %d columns, schema has %d", ErrSchemaMismatch, b.NumColumns(), w.schema.NumFields())
	}
	for i, c := range b.Columns() {
		if f := w.schema.Field(i); !c.Type().Equal(f.Type) {
			return fmt.Errorf("%w: column %q is %s, schema says %s", ErrSchemaMismatch, f.Name, c.Type(), f.Type)
		}
	}
	return nil
}
