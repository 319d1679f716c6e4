// Package block provides the in-memory columnar data blocks that filter indexes are
// built from.
package block

import (
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/blockidx/types"
)

var (
	// ErrTypeMismatch is returned when a value or column does not match the expected type.
	ErrTypeMismatch = errors.New("block: type mismatch")
	// ErrLengthMismatch is returned when the columns of a block differ in length.
	ErrLengthMismatch = errors.New("block: column length mismatch")
)

// Column is a typed vector of values with an optional validity bitmap.
// A nil validity bitmap means every row is valid.
type Column struct {
	typ      types.DataType
	values   []types.Scalar
	validity *bitset.BitSet
}

// NewColumn creates a column of type t from the given values. NULL scalars are only
// accepted for nullable types; their slot stores the type's zero value.
func NewColumn(t types.DataType, values ...types.Scalar) (*Column, error) {
	c := &Column{
		typ:    t,
		values: make([]types.Scalar, len(values)),
	}

	for i, v := range values {
		if v.IsNull() {
			if !t.IsNullable() {
				return nil, fmt.Errorf("%w: NULL at row %d of non-nullable %s", ErrTypeMismatch, i, t)
			}
			c.setNull(i, len(values))
			c.values[i] = types.ZeroOf(t)
			continue
		}
		if v.Kind != t.Kind {
			return nil, fmt.Errorf("%w: %s value at row %d of %s column", ErrTypeMismatch, v.Kind, i, t)
		}
		c.values[i] = v
	}

	return c, nil
}

// MustColumn is like NewColumn but panics on error. It is intended for tests and
// statically known data.
func MustColumn(t types.DataType, values ...types.Scalar) *Column {
	c, err := NewColumn(t, values...)
	if err != nil {
		panic(err)
	}
	return c
}

// Int64s creates a non-nullable Int64 column.
func Int64s(vals ...int64) *Column {
	values := make([]types.Scalar, len(vals))
	for i, v := range vals {
		values[i] = types.NewInt64(v)
	}
	return &Column{typ: types.Int64, values: values}
}

// Strings creates a non-nullable String column.
func Strings(vals ...string) *Column {
	values := make([]types.Scalar, len(vals))
	for i, v := range vals {
		values[i] = types.NewString(v)
	}
	return &Column{typ: types.String, values: values}
}

func (c *Column) setNull(i, n int) {
	if c.validity == nil {
		c.validity = bitset.New(uint(n))
		c.validity.FlipRange(0, uint(n))
	}
	c.validity.Clear(uint(i))
}

// Type returns the column type.
func (c *Column) Type() types.DataType { return c.typ }

// Len returns the number of rows.
func (c *Column) Len() int { return len(c.values) }

// IsValid reports whether row i holds a non-NULL value.
func (c *Column) IsValid(i int) bool {
	if c.validity == nil {
		return true
	}
	return c.validity.Test(uint(i))
}

// Value returns row i, or the NULL scalar if the row is invalid.
func (c *Column) Value(i int) types.Scalar {
	if !c.IsValid(i) {
		return types.NullScalar()
	}
	return c.values[i]
}

// RawValue returns the stored slot of row i. For NULL rows this is the type's zero value.
func (c *Column) RawValue(i int) types.Scalar {
	return c.values[i]
}

// NullCount returns the number of NULL rows.
func (c *Column) NullCount() int {
	if c.validity == nil {
		return 0
	}
	return len(c.values) - int(c.validity.Count())
}

// Validity returns a copy of the validity bitmap, or nil if every row is valid.
func (c *Column) Validity() *bitset.BitSet {
	if c.validity == nil {
		return nil
	}
	return c.validity.Clone()
}

// Concat concatenates columns of the same type into a single column.
func Concat(columns ...*Column) (*Column, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: no columns to concatenate", ErrLengthMismatch)
	}

	typ := columns[0].typ
	total := 0
	hasNulls := false
	for _, c := range columns {
		if !c.typ.Equal(typ) {
			return nil, fmt.Errorf("%w: cannot concatenate %s with %s", ErrTypeMismatch, c.typ, typ)
		}
		total += len(c.values)
		if c.validity != nil {
			hasNulls = true
		}
	}

	out := &Column{
		typ:    typ,
		values: make([]types.Scalar, 0, total),
	}
	if hasNulls {
		out.validity = bitset.New(uint(total))
	}

	for _, c := range columns {
		offset := len(out.values)
		out.values = append(out.values, c.values...)
		if out.validity == nil {
			continue
		}
		for i := range c.values {
			if c.IsValid(i) {
				out.validity.Set(uint(offset + i))
			}
		}
	}

	return out, nil
}

// DataBlock is a horizontal slice of a table: equally long columns.
type DataBlock struct {
	columns []*Column
	numRows int
}

// NewDataBlock creates a block from columns that all have the same length.
func NewDataBlock(columns ...*Column) (*DataBlock, error) {
	numRows := 0
	for i, c := range columns {
		if i == 0 {
			numRows = c.Len()
			continue
		}
		if c.Len() != numRows {
			return nil, fmt.Errorf("%w: column %d has %d rows, expected %d", ErrLengthMismatch, i, c.Len(), numRows)
		}
	}
	return &DataBlock{columns: columns, numRows: numRows}, nil
}

// NumColumns returns the number of columns.
func (b *DataBlock) NumColumns() int { return len(b.columns) }

// NumRows returns the number of rows.
func (b *DataBlock) NumRows() int { return b.numRows }

// Column returns the i-th column.
func (b *DataBlock) Column(i int) *Column { return b.columns[i] }

// Columns returns all columns.
func (b *DataBlock) Columns() []*Column { return b.columns }
