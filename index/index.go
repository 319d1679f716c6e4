// Package index builds and evaluates block filter indexes.
//
// A BlockFilter holds one membership filter per eligible column of a data block (or of
// several blocks written as one unit). At query time Evaluate answers whether the block
// can contain rows satisfying a predicate: every eq(column, constant) whose filter
// reports the constant as absent is replaced by FALSE, the predicate is constant folded,
// and the block can be skipped only if the whole predicate folds to FALSE.
//
// Two on-disk versions exist. Version 2 filters are keyed by typed values and probed
// with the constant itself. Version 3 filters are keyed by digests; the digests of all
// constants of a query are computed once into a LookupTable that is shared by every
// block evaluated for that query. The version is resolved into a probe strategy once,
// when the index is built or loaded.
package index

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/blockidx/block"
	"github.com/hupe1980/blockidx/digest"
	"github.com/hupe1980/blockidx/filter"
	"github.com/hupe1980/blockidx/types"
)

var (
	// ErrBadInput is returned when Build is called without blocks or with blocks that do
	// not match the source schema.
	ErrBadInput = errors.New("index: bad input")
	// ErrCorrupt indicates that serialized index bytes are invalid.
	ErrCorrupt = errors.New("index: corrupt filter index")
)

// Version is the filter index format version.
type Version uint64

const (
	// VersionV2 indexes hold filters over typed values.
	VersionV2 Version = 2
	// VersionV3 indexes hold filters over digests.
	VersionV3 Version = 3
	// CurrentVersion is the version written by Build by default.
	CurrentVersion = VersionV3
)

// Result is the outcome of evaluating a predicate against a block.
type Result int

const (
	// Uncertain means the block may contain matching rows and must be read.
	Uncertain Result = iota
	// MustFalse means no row of the block can satisfy the predicate.
	MustFalse
)

func (r Result) String() string {
	if r == MustFalse {
		return "MustFalse"
	}
	return "Uncertain"
}

// FilterColumnName returns the name of the filter column for a source column.
func FilterColumnName(column string) string {
	return "Bloom(" + column + ")"
}

// column is one serialized filter plus its lazily decoded form.
type column struct {
	name        string
	sourceIndex int
	data        []byte

	once   sync.Once
	filter *filter.Filter
	err    error
}

func (c *column) decode() (*filter.Filter, error) {
	c.once.Do(func() {
		c.filter, c.err = filter.Parse(c.data)
		if c.err != nil {
			c.err = fmt.Errorf("%w: column %q: %w", ErrCorrupt, c.name, c.err)
		}
	})
	return c.filter, c.err
}

// BlockFilter is the filter index of one block. It is immutable after construction and
// safe for concurrent use; filters are decoded on first use and then shared.
type BlockFilter struct {
	// SourceSchema is the schema of the indexed data.
	SourceSchema types.Schema
	// FilterSchema has one field per filter, named FilterColumnName(source column).
	FilterSchema types.Schema
	// Version is the format version.
	Version Version
	// ColumnDistinctCount maps source column positions to the number of distinct values
	// seen at build time. It is empty for loaded indexes.
	ColumnDistinctCount map[int]int

	hasher  string
	columns []*column
	byName  map[string]*column
	probe   probeFunc
}

// Build creates the filter index of one or more blocks sharing sourceSchema. Eligible
// columns are determined from the first block. If no column is eligible, Build returns
// (nil, nil): the block has no index and must always be read.
func Build(engine *digest.Engine, sourceSchema types.Schema, version Version, blocks ...*block.DataBlock) (*BlockFilter, error) {
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: no blocks", ErrBadInput)
	}
	if version != VersionV2 && version != VersionV3 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadInput, version)
	}
	for i, b := range blocks {
		if b.NumColumns() != sourceSchema.NumFields() {
			return nil, fmt.Errorf("%w: block %d has %d columns, schema has %d", ErrBadInput, i, b.NumColumns(), sourceSchema.NumFields())
		}
	}

	var eligible []int
	for i, c := range blocks[0].Columns() {
		if c.Type().IsSupportedForFilter() {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	filters := make([]*filter.Filter, len(eligible))

	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for slot, idx := range eligible {
		g.Go(func() error {
			parts := make([]*block.Column, len(blocks))
			for i, b := range blocks {
				parts[i] = b.Column(idx)
			}
			col, err := block.Concat(parts...)
			if err != nil {
				return fmt.Errorf("%w: column %q: %w", ErrBadInput, sourceSchema.Field(idx).Name, err)
			}
			f, err := buildColumn(engine, version, col)
			if err != nil {
				return fmt.Errorf("column %q: %w", sourceSchema.Field(idx).Name, err)
			}
			filters[slot] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bf := &BlockFilter{
		SourceSchema:        sourceSchema.Clone(),
		Version:             version,
		ColumnDistinctCount: make(map[int]int, len(eligible)),
		hasher:              engine.Hasher().Name(),
	}
	cols := make([]*column, len(eligible))
	for slot, idx := range eligible {
		f := filters[slot]
		if n, ok := f.ApproxDistinctCount(); ok {
			bf.ColumnDistinctCount[idx] = n
		}
		cols[slot] = &column{
			name:        sourceSchema.Field(idx).Name,
			sourceIndex: idx,
			data:        f.Bytes(),
		}
		cols[slot].once.Do(func() { cols[slot].filter = f })
	}
	bf.init(cols)

	return bf, nil
}

func buildColumn(engine *digest.Engine, version Version, col *block.Column) (*filter.Filter, error) {
	if version == VersionV2 {
		values := make([]types.Scalar, col.Len())
		sentinel := types.ZeroOf(col.Type())
		for i := range values {
			if col.IsValid(i) {
				values[i] = col.RawValue(i)
			} else {
				values[i] = sentinel
			}
		}
		return filter.BuildFromValues(values)
	}

	digests, err := engine.Column(col)
	if err != nil {
		return nil, err
	}
	return filter.Build(digests)
}

func (bf *BlockFilter) init(cols []*column) {
	bf.columns = cols
	bf.byName = make(map[string]*column, len(cols))
	fields := make([]types.Field, len(cols))
	for i, c := range cols {
		bf.byName[c.name] = c
		fields[i] = types.NewField(FilterColumnName(c.name), types.String)
	}
	bf.FilterSchema = types.NewSchema(fields...)
	bf.probe = probeFor(bf.Version, bf.hasher)
}

// Hasher returns the name of the digest hasher the filters were built with.
func (bf *BlockFilter) Hasher() string { return bf.hasher }

// NumColumns returns the number of filter columns.
func (bf *BlockFilter) NumColumns() int { return len(bf.columns) }

// Columns returns the source column names that have a filter, in source order.
func (bf *BlockFilter) Columns() []string {
	names := make([]string, len(bf.columns))
	for i, c := range bf.columns {
		names[i] = c.name
	}
	return names
}

// FilterBytes returns the serialized filter of a source column.
func (bf *BlockFilter) FilterBytes(column string) ([]byte, bool) {
	c, ok := bf.byName[column]
	if !ok {
		return nil, false
	}
	return c.data, true
}

// Filters returns the serialized filters keyed by filter column name.
func (bf *BlockFilter) Filters() map[string][]byte {
	out := make(map[string][]byte, len(bf.columns))
	for _, c := range bf.columns {
		out[FilterColumnName(c.name)] = c.data
	}
	return out
}

// Filter returns the decoded filter of a source column.
func (bf *BlockFilter) Filter(column string) (*filter.Filter, bool, error) {
	c, ok := bf.byName[column]
	if !ok {
		return nil, false, nil
	}
	f, err := c.decode()
	return f, true, err
}

// SizeBytes returns the total size of the serialized filters.
func (bf *BlockFilter) SizeBytes() int {
	n := 0
	for _, c := range bf.columns {
		n += len(c.data)
	}
	return n
}

// DistinctCounts returns the distinct counts sorted by source column position.
func (bf *BlockFilter) DistinctCounts() [][2]int {
	out := make([][2]int, 0, len(bf.ColumnDistinctCount))
	for idx, n := range bf.ColumnDistinctCount {
		out = append(out, [2]int{idx, n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
