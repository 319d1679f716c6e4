package digest

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/hupe1980/blockidx/block"
	"github.com/hupe1980/blockidx/types"
)

// Engine computes digests for columns and constants with a single hasher.
// An Engine is immutable and safe for concurrent use.
type Engine struct {
	hasher Hasher
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithHasher sets the hasher. The default is xxhash64.
func WithHasher(h Hasher) Option {
	return func(e *Engine) {
		if h != nil {
			e.hasher = h
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates a digest engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		hasher: Default(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Hasher returns the hasher used by the engine.
func (e *Engine) Hasher() Hasher { return e.hasher }

// Column returns one digest per row of col. NULL rows are digested from the zero value
// of the column type.
func (e *Engine) Column(col *block.Column) ([]Digest, error) {
	t := col.Type()
	if !t.IsSupportedForFilter() {
		return nil, fmt.Errorf("%w: column of type %s", ErrUnsupportedType, t)
	}

	out := make([]Digest, col.Len())
	buf := make([]byte, 0, 64)
	sentinel := types.ZeroOf(t)

	var err error
	for i := range out {
		v := col.RawValue(i)
		if !col.IsValid(i) {
			v = sentinel
		}
		buf, err = AppendCanonical(buf[:0], v)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = e.hasher.Sum64(buf)
	}

	e.logger.Debug("digested column", "type", t.String(), "rows", len(out), "nulls", col.NullCount())

	return out, nil
}

// Scalar returns the digest of s as a value of column type t. A NULL scalar yields the
// sentinel digest of t. Constants whose kind cannot occur in t are rejected with
// ErrUnsupportedType.
func (e *Engine) Scalar(s types.Scalar, t types.DataType) (Digest, error) {
	if s.IsNull() {
		s = types.ZeroOf(t)
	}
	if !Compatible(s.Kind, t) {
		return 0, fmt.Errorf("%w: %s constant for %s column", ErrUnsupportedType, s.Kind, t)
	}
	var arr [64]byte
	buf, err := AppendCanonical(arr[:0], s)
	if err != nil {
		return 0, err
	}
	return e.hasher.Sum64(buf), nil
}
