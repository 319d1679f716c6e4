package blockidx

import (
	"errors"
	"fmt"

	"github.com/hupe1980/blockidx/blobstore"
	"github.com/hupe1980/blockidx/block"
	"github.com/hupe1980/blockidx/filter"
	"github.com/hupe1980/blockidx/index"
	"github.com/hupe1980/blockidx/meta"
	"github.com/hupe1980/blockidx/writer"
)

var (
	// ErrBadInput is returned for index builds without blocks or with blocks that do not
	// match the schema.
	ErrBadInput = index.ErrBadInput
	// ErrConstruction is returned when a filter cannot be built.
	ErrConstruction = filter.ErrConstruction
	// ErrCorruptFilter indicates invalid serialized filter or index bytes.
	ErrCorruptFilter = errors.New("blockidx: corrupt filter")
	// ErrCorruptSnapshot indicates invalid serialized snapshot or segment bytes.
	ErrCorruptSnapshot = meta.ErrCorruptSnapshot
	// ErrNotFound is returned when a table or one of its objects does not exist.
	ErrNotFound = blobstore.ErrNotFound
	// ErrConcurrentCommit is returned when another writer committed a snapshot first.
	ErrConcurrentCommit = blobstore.ErrConflict
	// ErrClosed is returned by operations on a closed table.
	ErrClosed = errors.New("blockidx: table is closed")
)

// ErrColumnMismatch indicates a block whose columns do not match the table schema.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrColumnMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrColumnMismatch) Error() string {
	return fmt.Sprintf("column mismatch: expected %d columns, got %d", e.Expected, e.Actual)
}

func (e *ErrColumnMismatch) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Corruption unification.
	if errors.Is(err, filter.ErrCorrupt) || errors.Is(err, index.ErrCorrupt) {
		return fmt.Errorf("%w: %w", ErrCorruptFilter, err)
	}
	if errors.Is(err, meta.ErrCorruptSegment) || errors.Is(err, meta.ErrCorruptBlock) {
		return fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}

	// Schema normalization.
	if errors.Is(err, writer.ErrSchemaMismatch) || errors.Is(err, block.ErrTypeMismatch) || errors.Is(err, block.ErrLengthMismatch) {
		return fmt.Errorf("%w: %w", ErrBadInput, err)
	}

	return err
}
