package blockidx

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

// Logger wraps slog.Logger with blockidx-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithSnapshot adds a snapshot_id field to the logger.
func (l *Logger) WithSnapshot(id uuid.UUID) *Logger {
	return &Logger{
		Logger: l.Logger.With("snapshot_id", id.String()),
	}
}

// WithTable adds a table field to the logger.
func (l *Logger) WithTable(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("table", name),
	}
}

// LogIndexBuild logs the write of a batch of blocks and their filter indexes.
func (l *Logger) LogIndexBuild(ctx context.Context, blocks, rows int, indexBytes uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index build failed",
			"blocks", blocks,
			"rows", rows,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "index build completed",
			"blocks", blocks,
			"rows", rows,
			"index_bytes", indexBytes,
		)
	}
}

// LogPrune logs a prune operation.
func (l *Logger) LogPrune(ctx context.Context, blocks, pruned int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "prune failed",
			"blocks", blocks,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "prune completed",
			"blocks", blocks,
			"pruned", pruned,
			"kept", blocks-pruned,
			"duration", elapsed,
		)
	}
}

// LogCommit logs a snapshot commit.
func (l *Logger) LogCommit(ctx context.Context, id uuid.UUID, path string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "commit failed",
			"snapshot_id", id.String(),
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot committed",
			"snapshot_id", id.String(),
			"path", path,
		)
	}
}
