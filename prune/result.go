package prune

import (
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/blockidx/meta"
)

// SegmentResult is the outcome for one segment of a snapshot.
type SegmentResult struct {
	Location meta.Location
	// Ordinal is the segment's position counted from the most recently appended one.
	Ordinal int
	Blocks  []meta.BlockMeta
	// Kept holds the positions in Blocks that must be read.
	Kept *roaring.Bitmap
}

// KeptBlocks returns the blocks that must be read, in segment order.
func (s *SegmentResult) KeptBlocks() []meta.BlockMeta {
	out := make([]meta.BlockMeta, 0, s.Kept.GetCardinality())
	it := s.Kept.Iterator()
	for it.HasNext() {
		out = append(out, s.Blocks[it.Next()])
	}
	return out
}

// Stats are the counters of one Prune call.
type Stats struct {
	Segments int
	Blocks   int
	// Indexed is the number of blocks that had a filter index.
	Indexed int
	Pruned  int
	// CacheHits counts index and segment reads served from the cache.
	CacheHits int
	Duration  time.Duration
}

// Result is the outcome of pruning a snapshot, with segments in snapshot order.
type Result struct {
	Segments []SegmentResult
	Stats    Stats
}

// KeptBlocks returns every block that must be read, segment by segment.
func (r *Result) KeptBlocks() []meta.BlockMeta {
	var out []meta.BlockMeta
	for i := range r.Segments {
		out = append(out, r.Segments[i].KeptBlocks()...)
	}
	return out
}

// Kept returns the number of blocks that must be read.
func (r *Result) Kept() int {
	return r.Stats.Blocks - r.Stats.Pruned
}
