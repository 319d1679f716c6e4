package index

import (
	"errors"

	"github.com/hupe1980/blockidx/digest"
	"github.com/hupe1980/blockidx/expr"
	"github.com/hupe1980/blockidx/filter"
	"github.com/hupe1980/blockidx/types"
)

// probeFunc reports whether column = value may hold for a block. It must return true
// whenever it cannot decide.
type probeFunc func(f *filter.Filter, column string, value types.Scalar, columnType types.DataType, lookup *LookupTable) bool

func probeFor(v Version, hasher string) probeFunc {
	if v == VersionV2 {
		return func(f *filter.Filter, _ string, value types.Scalar, columnType types.DataType, _ *LookupTable) bool {
			if !digest.Compatible(value.Kind, columnType) {
				return true
			}
			return f.ContainsValue(value)
		}
	}

	return func(f *filter.Filter, column string, value types.Scalar, _ types.DataType, lookup *LookupTable) bool {
		if lookup == nil || lookup.hasher != hasher {
			return true
		}
		d, ok := lookup.Get(column, value)
		if !ok {
			return true
		}
		return f.Contains(d)
	}
}

// Evaluate decides whether the block can contain rows satisfying predicate.
// lookup holds the precomputed digests of the predicate's constants and is required for
// version 3 indexes; a missing entry is treated as "possibly contained".
//
// Equalities against columns without a filter, against unsupported types, or against
// NULL are left untouched. An error is returned only if a stored filter is corrupt.
func (bf *BlockFilter) Evaluate(predicate expr.Expr, lookup *LookupTable) (Result, error) {
	rewritten, err := expr.RewriteColumnEqConstant(predicate, func(span expr.Span, column string, value types.Scalar, columnType, returnType types.DataType) (expr.Expr, error) {
		if value.IsNull() || !columnType.IsSupportedForFilter() {
			return nil, nil
		}
		c, ok := bf.byName[column]
		if !ok {
			return nil, nil
		}
		if src := bf.SourceSchema.Field(c.sourceIndex).Type; !src.Unwrap().Equal(columnType.Unwrap()) {
			return nil, nil
		}
		f, err := c.decode()
		if err != nil {
			return nil, err
		}
		if bf.probe(f, column, value, columnType, lookup) {
			return nil, nil
		}
		return &expr.Constant{Span: span, Scalar: types.NewBool(false), Type: returnType}, nil
	})
	if err != nil {
		return Uncertain, err
	}

	if expr.IsConstFalse(expr.Fold(rewritten)) {
		return MustFalse, nil
	}
	return Uncertain, nil
}

// EqColumn is an eq(column, constant) pair found in a predicate.
type EqColumn struct {
	Column string
	Value  types.Scalar
	Type   types.DataType
}

// FindEqColumns lists the eq(column, constant) pairs of a predicate whose column type
// supports filters and whose constant is not NULL, in tree order.
func FindEqColumns(predicate expr.Expr) []EqColumn {
	var out []EqColumn
	_, _ = expr.RewriteColumnEqConstant(predicate, func(_ expr.Span, column string, value types.Scalar, columnType, _ types.DataType) (expr.Expr, error) {
		if !value.IsNull() && columnType.IsSupportedForFilter() {
			out = append(out, EqColumn{Column: column, Value: value, Type: columnType})
		}
		return nil, nil
	})
	return out
}

type lookupKey struct {
	column string
	value  types.ScalarKey
}

// LookupTable holds the digests of a predicate's constants. It is built once per query
// and is read-only afterwards, so it can be shared by concurrent evaluations.
type LookupTable struct {
	hasher  string
	digests map[lookupKey]uint64
}

// BuildLookupTable digests every constant found by FindEqColumns with engine. Constants
// whose kind cannot occur in their column are skipped.
func BuildLookupTable(engine *digest.Engine, predicate expr.Expr) (*LookupTable, error) {
	eqs := FindEqColumns(predicate)
	t := &LookupTable{
		hasher:  engine.Hasher().Name(),
		digests: make(map[lookupKey]uint64, len(eqs)),
	}
	for _, eq := range eqs {
		d, err := engine.Scalar(eq.Value, eq.Type)
		if errors.Is(err, digest.ErrUnsupportedType) {
			continue
		}
		if err != nil {
			return nil, err
		}
		t.digests[lookupKey{column: eq.Column, value: eq.Value.Key()}] = d
	}
	return t, nil
}

// Get returns the digest of value for column.
func (t *LookupTable) Get(column string, value types.Scalar) (uint64, bool) {
	d, ok := t.digests[lookupKey{column: column, value: value.Key()}]
	return d, ok
}

// Len returns the number of entries.
func (t *LookupTable) Len() int { return len(t.digests) }

// Hasher returns the name of the hasher the digests were computed with.
func (t *LookupTable) Hasher() string { return t.hasher }
