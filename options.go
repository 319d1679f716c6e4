package blockidx

import (
	"log/slog"

	"github.com/hupe1980/blockidx/codec"
	"github.com/hupe1980/blockidx/digest"
	"github.com/hupe1980/blockidx/index"
	"github.com/hupe1980/blockidx/internal/compress"
)

type options struct {
	codec              codec.Codec
	compression        compress.Type
	compressionName    string
	hasher             digest.Hasher
	indexVersion       index.Version
	metricsCollector   MetricsCollector
	logger             *Logger
	cacheBytes         int64
	maxConcurrentReads int
	readBytesPerSec    int64
	concurrency        int
}

// Option configures Open.
type Option func(*options)

// WithCodec configures the encoding of new snapshots, segments and block data.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCompression configures the compression of new snapshots, segments and block data
// by name: "none", "zstd", "lz4" or "snappy". Unknown names make Open fail.
func WithCompression(name string) Option {
	return func(o *options) {
		o.compressionName = name
	}
}

// WithHasher configures the digest hasher for new filter indexes and for queries.
//
// Indexes built with a different hasher are never pruned, so changing the hasher of an
// existing table only costs pruning efficiency on older blocks.
func WithHasher(h digest.Hasher) Option {
	return func(o *options) {
		o.hasher = h
	}
}

// WithIndexVersion configures the format version of new filter indexes.
func WithIndexVersion(v index.Version) Option {
	return func(o *options) {
		o.indexVersion = v
	}
}

// WithCacheBytes sizes the in-memory cache of segments and filter indexes.
// Zero disables caching.
func WithCacheBytes(n int64) Option {
	return func(o *options) {
		o.cacheBytes = n
	}
}

// WithMaxConcurrentReads limits concurrent metadata reads during pruning.
// Zero means unlimited.
func WithMaxConcurrentReads(n int) Option {
	return func(o *options) {
		o.maxConcurrentReads = n
	}
}

// WithReadBytesPerSec limits the metadata read bandwidth during pruning.
// Zero means unlimited.
func WithReadBytesPerSec(n int64) Option {
	return func(o *options) {
		o.readBytesPerSec = n
	}
}

// WithConcurrency limits parallel block writes and block evaluations.
// Zero uses GOMAXPROCS.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &blockidx.BasicMetricsCollector{}
//	tbl, _ := blockidx.Open(ctx, store, blockidx.WithMetricsCollector(metrics))
//	// ... use tbl ...
//	stats := metrics.GetStats()
//	fmt.Printf("Pruned: %d of %d blocks\n", stats.PrunedBlocks, stats.PruneBlocks)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := blockidx.NewJSONLogger(slog.LevelInfo)
//	tbl, _ := blockidx.Open(ctx, store, blockidx.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) (options, error) {
	o := options{
		codec:              codec.Default,
		compression:        compress.Default,
		hasher:             digest.Default(),
		indexVersion:       index.CurrentVersion,
		metricsCollector:   NoopMetricsCollector{},
		logger:             NoopLogger(),
		cacheBytes:         64 << 20,
		maxConcurrentReads: 16,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.compressionName != "" {
		t, err := compress.ParseType(o.compressionName)
		if err != nil {
			return o, err
		}
		o.compression = t
	}
	return o, nil
}
