package blockidx

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    prunedBlocks prometheus.Counter
//	    pruneLatency prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordPrune(blocks, pruned int, duration time.Duration, err error) {
//	    p.prunedBlocks.Add(float64(pruned))
//	    p.pruneLatency.Observe(duration.Seconds())
//	}
type MetricsCollector interface {
	// RecordIndexBuild is called after each batch of blocks is written.
	// blocks is the number of blocks, bytes the total size of their filter indexes.
	RecordIndexBuild(blocks int, bytes uint64, duration time.Duration, err error)

	// RecordPrune is called after each prune operation.
	// blocks is the number of candidate blocks, pruned the number skipped.
	RecordPrune(blocks, pruned int, duration time.Duration, err error)

	// RecordCommit is called after each snapshot commit attempt.
	RecordCommit(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordIndexBuild(int, uint64, time.Duration, error) {}
func (NoopMetricsCollector) RecordPrune(int, int, time.Duration, error)         {}
func (NoopMetricsCollector) RecordCommit(time.Duration, error)                  {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	IndexBuildCount  atomic.Int64
	IndexBuildErrors atomic.Int64
	IndexBlocks      atomic.Int64
	IndexBytes       atomic.Int64
	PruneCount       atomic.Int64
	PruneErrors      atomic.Int64
	PruneBlocks      atomic.Int64
	PrunedBlocks     atomic.Int64
	PruneTotalNanos  atomic.Int64
	CommitCount      atomic.Int64
	CommitErrors     atomic.Int64
}

// RecordIndexBuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIndexBuild(blocks int, bytes uint64, duration time.Duration, err error) {
	b.IndexBuildCount.Add(1)
	if err != nil {
		b.IndexBuildErrors.Add(1)
		return
	}
	b.IndexBlocks.Add(int64(blocks))
	b.IndexBytes.Add(int64(bytes))
}

// RecordPrune implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPrune(blocks, pruned int, duration time.Duration, err error) {
	b.PruneCount.Add(1)
	b.PruneTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.PruneErrors.Add(1)
		return
	}
	b.PruneBlocks.Add(int64(blocks))
	b.PrunedBlocks.Add(int64(pruned))
}

// RecordCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommit(duration time.Duration, err error) {
	b.CommitCount.Add(1)
	if err != nil {
		b.CommitErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		IndexBuildCount:  b.IndexBuildCount.Load(),
		IndexBuildErrors: b.IndexBuildErrors.Load(),
		IndexBlocks:      b.IndexBlocks.Load(),
		IndexBytes:       b.IndexBytes.Load(),
		PruneCount:       b.PruneCount.Load(),
		PruneErrors:      b.PruneErrors.Load(),
		PruneAvgNanos:    b.getAvgPruneNanos(),
		PruneBlocks:      b.PruneBlocks.Load(),
		PrunedBlocks:     b.PrunedBlocks.Load(),
		CommitCount:      b.CommitCount.Load(),
		CommitErrors:     b.CommitErrors.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgPruneNanos() int64 {
	count := b.PruneCount.Load()
	if count == 0 {
		return 0
	}
	return b.PruneTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	IndexBuildCount  int64
	IndexBuildErrors int64
	IndexBlocks      int64
	IndexBytes       int64
	PruneCount       int64
	PruneErrors      int64
	PruneAvgNanos    int64
	PruneBlocks      int64
	PrunedBlocks     int64
	CommitCount      int64
	CommitErrors     int64
}
