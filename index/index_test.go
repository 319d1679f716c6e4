package index

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/hupe1980/blockidx/block"
	"github.com/hupe1980/blockidx/digest"
	"github.com/hupe1980/blockidx/expr"
	"github.com/hupe1980/blockidx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var peopleSchema = types.NewSchema(
	types.NewField("age", types.Int64),
	types.NewField("name", types.Nullable(types.String)),
	types.NewField("tags", types.ArrayOf(types.String)),
)

func peopleBlock(t *testing.T) *block.DataBlock {
	t.Helper()
	b, err := block.NewDataBlock(
		block.Int64s(20, 30, 20),
		block.MustColumn(types.Nullable(types.String), types.NewString("ann"), types.NullScalar(), types.NewString("bob")),
		block.MustColumn(types.ArrayOf(types.String), types.Scalar{Kind: types.KindArray}, types.Scalar{Kind: types.KindArray}, types.Scalar{Kind: types.KindArray}),
	)
	require.NoError(t, err)
	return b
}

func evaluate(t *testing.T, engine *digest.Engine, bf *BlockFilter, e expr.Expr) Result {
	t.Helper()
	lookup, err := BuildLookupTable(engine, e)
	require.NoError(t, err)
	res, err := bf.Evaluate(e, lookup)
	require.NoError(t, err)
	return res
}

func TestFilterColumnName(t *testing.T) {
	assert.Equal(t, "Bloom(age)", FilterColumnName("age"))
}

func TestBuild(t *testing.T) {
	engine := digest.NewEngine()
	bf, err := Build(engine, peopleSchema, CurrentVersion, peopleBlock(t))
	require.NoError(t, err)
	require.NotNil(t, bf)

	assert.Equal(t, VersionV3, bf.Version)
	assert.Equal(t, []string{"age", "name"}, bf.Columns())
	assert.Equal(t, 2, bf.FilterSchema.NumFields())
	assert.Equal(t, "Bloom(age)", bf.FilterSchema.Field(0).Name)
	assert.Equal(t, "Bloom(name)", bf.FilterSchema.Field(1).Name)
	assert.Contains(t, bf.Filters(), "Bloom(name)")

	// Distinct counts are keyed by source position. The NULL name adds the sentinel.
	assert.Equal(t, map[int]int{0: 2, 1: 3}, bf.ColumnDistinctCount)
	assert.Equal(t, [][2]int{{0, 2}, {1, 3}}, bf.DistinctCounts())
	assert.Equal(t, digest.XXHash64, bf.Hasher())
}

func TestBuildEdgeCases(t *testing.T) {
	engine := digest.NewEngine()

	t.Run("no blocks", func(t *testing.T) {
		_, err := Build(engine, peopleSchema, CurrentVersion)
		assert.ErrorIs(t, err, ErrBadInput)
	})

	t.Run("schema mismatch", func(t *testing.T) {
		b, err := block.NewDataBlock(block.Int64s(1))
		require.NoError(t, err)
		_, err = Build(engine, peopleSchema, CurrentVersion, b)
		assert.ErrorIs(t, err, ErrBadInput)
	})

	t.Run("no eligible columns", func(t *testing.T) {
		schema := types.NewSchema(types.NewField("tags", types.ArrayOf(types.Int64)))
		b, err := block.NewDataBlock(block.MustColumn(types.ArrayOf(types.Int64), types.Scalar{Kind: types.KindArray}))
		require.NoError(t, err)
		bf, err := Build(engine, schema, CurrentVersion, b)
		require.NoError(t, err)
		assert.Nil(t, bf)
	})

	t.Run("unknown version", func(t *testing.T) {
		_, err := Build(engine, peopleSchema, Version(9), peopleBlock(t))
		assert.ErrorIs(t, err, ErrBadInput)
	})

	t.Run("multiple blocks", func(t *testing.T) {
		schema := types.NewSchema(types.NewField("age", types.Int64))
		b1, _ := block.NewDataBlock(block.Int64s(1, 2))
		b2, _ := block.NewDataBlock(block.Int64s(3))
		bf, err := Build(engine, schema, CurrentVersion, b1, b2)
		require.NoError(t, err)
		assert.Equal(t, 3, bf.ColumnDistinctCount[0])

		age := expr.Col("age", types.Int64)
		for _, v := range []int64{1, 2, 3} {
			assert.Equal(t, Uncertain, evaluate(t, engine, bf, expr.Eq(age, expr.Lit(types.NewInt64(v)))))
		}
	})
}

func TestEvaluateAgeScenario(t *testing.T) {
	for _, version := range []Version{VersionV2, VersionV3} {
		t.Run(fmt.Sprintf("v%d", version), func(t *testing.T) {
			engine := digest.NewEngine()
			bf, err := Build(engine, peopleSchema, version, peopleBlock(t))
			require.NoError(t, err)

			age := expr.Col("age", types.Int64)
			name := expr.Col("name", types.Nullable(types.String))

			assert.Equal(t, MustFalse, evaluate(t, engine, bf, expr.Eq(age, expr.Lit(types.NewInt64(99)))))
			assert.Equal(t, Uncertain, evaluate(t, engine, bf, expr.Eq(age, expr.Lit(types.NewInt64(20)))))
			assert.Equal(t, Uncertain, evaluate(t, engine, bf, expr.Eq(expr.Lit(types.NewUInt8(30)), age)))

			// Conjunction: one impossible side is enough.
			assert.Equal(t, MustFalse, evaluate(t, engine, bf, expr.And(
				expr.Eq(age, expr.Lit(types.NewInt64(20))),
				expr.Eq(name, expr.Lit(types.NewString("zed"))),
			)))

			// Disjunction: both sides must be impossible.
			assert.Equal(t, Uncertain, evaluate(t, engine, bf, expr.Or(
				expr.Eq(age, expr.Lit(types.NewInt64(99))),
				expr.Eq(name, expr.Lit(types.NewString("bob"))),
			)))
			assert.Equal(t, MustFalse, evaluate(t, engine, bf, expr.Or(
				expr.Eq(age, expr.Lit(types.NewInt64(99))),
				expr.Eq(name, expr.Lit(types.NewString("zed"))),
			)))

			// not(eq) can never prune.
			assert.Equal(t, Uncertain, evaluate(t, engine, bf, expr.Not(expr.Eq(age, expr.Lit(types.NewInt64(99))))))
		})
	}
}

func TestEvaluateLeavesUnknownShapesUntouched(t *testing.T) {
	engine := digest.NewEngine()
	bf, err := Build(engine, peopleSchema, CurrentVersion, peopleBlock(t))
	require.NoError(t, err)

	tests := []struct {
		name string
		e    expr.Expr
	}{
		{"null constant", expr.Eq(expr.Col("name", types.Nullable(types.String)), expr.Lit(types.NullScalar()))},
		{"column without filter", expr.Eq(expr.Col("city", types.String), expr.Lit(types.NewString("x")))},
		{"unsupported type", expr.Eq(expr.Col("tags", types.ArrayOf(types.String)), &expr.Constant{Scalar: types.Scalar{Kind: types.KindArray}, Type: types.ArrayOf(types.String)})},
		{"type mismatch", expr.Eq(expr.Col("age", types.String), expr.Lit(types.NewString("99")))},
		{"incompatible constant", expr.Eq(expr.Col("age", types.Int64), expr.Lit(types.NewFloat64(99.5)))},
		{"column to column", expr.Eq(expr.Col("age", types.Int64), expr.Col("age", types.Int64))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Uncertain, evaluate(t, engine, bf, tt.e))
		})
	}
}

func TestEvaluateLookupTable(t *testing.T) {
	engine := digest.NewEngine()
	bf, err := Build(engine, peopleSchema, CurrentVersion, peopleBlock(t))
	require.NoError(t, err)

	e := expr.Eq(expr.Col("age", types.Int64), expr.Lit(types.NewInt64(99)))

	t.Run("missing entry is uncertain", func(t *testing.T) {
		empty, err := BuildLookupTable(engine, expr.Bool(true, types.Boolean))
		require.NoError(t, err)
		res, err := bf.Evaluate(e, empty)
		require.NoError(t, err)
		assert.Equal(t, Uncertain, res)
	})

	t.Run("nil lookup is uncertain", func(t *testing.T) {
		res, err := bf.Evaluate(e, nil)
		require.NoError(t, err)
		assert.Equal(t, Uncertain, res)
	})

	t.Run("hasher mismatch is uncertain", func(t *testing.T) {
		h, err := digest.ByName(digest.XXH3)
		require.NoError(t, err)
		other := digest.NewEngine(digest.WithHasher(h))
		lookup, err := BuildLookupTable(other, e)
		require.NoError(t, err)
		res, err := bf.Evaluate(e, lookup)
		require.NoError(t, err)
		assert.Equal(t, Uncertain, res)
	})

	t.Run("keys are per column", func(t *testing.T) {
		lookup, err := BuildLookupTable(engine, expr.And(
			expr.Eq(expr.Col("age", types.Int64), expr.Lit(types.NewInt64(20))),
			expr.Eq(expr.Col("name", types.String), expr.Lit(types.NewString("bob"))),
			expr.Eq(expr.Col("name", types.String), expr.Lit(types.NullScalar())),
		))
		require.NoError(t, err)
		assert.Equal(t, 2, lookup.Len())
		_, ok := lookup.Get("age", types.NewUInt8(20))
		assert.True(t, ok)
		_, ok = lookup.Get("name", types.NewInt64(20))
		assert.False(t, ok)
	})
}

func TestFindEqColumns(t *testing.T) {
	age := expr.Col("age", types.Int64)
	tags := expr.Col("tags", types.ArrayOf(types.String))
	e := expr.And(
		expr.Eq(age, expr.Lit(types.NewInt64(1))),
		expr.Not(expr.Eq(expr.Lit(types.NewString("x")), expr.Col("name", types.String))),
		expr.Eq(age, expr.Lit(types.NullScalar())),
		expr.Eq(tags, &expr.Constant{Scalar: types.Scalar{Kind: types.KindArray}, Type: tags.Type}),
	)

	eqs := FindEqColumns(e)
	require.Len(t, eqs, 2)
	assert.Equal(t, EqColumn{Column: "age", Value: types.NewInt64(1), Type: types.Int64}, eqs[0])
	assert.Equal(t, "name", eqs[1].Column)
}

func TestNoFalseNegatives(t *testing.T) {
	const n = 5000
	ids := make([]int64, n)
	names := make([]string, n)
	for i := range ids {
		ids[i] = int64(i * 7)
		names[i] = fmt.Sprintf("user-%d", i)
	}
	schema := types.NewSchema(types.NewField("id", types.Int64), types.NewField("name", types.String))
	b, err := block.NewDataBlock(block.Int64s(ids...), block.Strings(names...))
	require.NoError(t, err)

	engine := digest.NewEngine()
	bf, err := Build(engine, schema, CurrentVersion, b)
	require.NoError(t, err)

	data, err := bf.Marshal()
	require.NoError(t, err)
	loaded, err := Load(data)
	require.NoError(t, err)

	for _, idx := range []*BlockFilter{bf, loaded} {
		for i := 0; i < n; i += 13 {
			e := expr.Or(
				expr.Eq(expr.Col("id", types.Int64), expr.Lit(types.NewInt64(ids[i]))),
				expr.Eq(expr.Col("name", types.String), expr.Lit(types.NewString("nobody"))),
			)
			require.Equal(t, Uncertain, evaluate(t, engine, idx, e))
			require.Equal(t, Uncertain, evaluate(t, engine, idx,
				expr.Eq(expr.Col("name", types.String), expr.Lit(types.NewString(names[i])))))
		}
	}
}

func TestEvaluateFloatEquality(t *testing.T) {
	negZero := math.Copysign(0, -1)
	schema := types.NewSchema(
		types.NewField("x", types.Float64),
		types.NewField("y", types.Float32),
	)
	b, err := block.NewDataBlock(
		block.MustColumn(types.Float64, types.NewFloat64(0), types.NewFloat64(1.5), types.NewFloat64(math.NaN())),
		block.MustColumn(types.Float32, types.NewFloat32(float32(negZero)), types.NewFloat32(2.25), types.NewFloat32(2.25)),
	)
	require.NoError(t, err)

	x := expr.Col("x", types.Float64)
	y := expr.Col("y", types.Float32)

	for _, version := range []Version{VersionV2, VersionV3} {
		t.Run(fmt.Sprintf("v%d", version), func(t *testing.T) {
			engine := digest.NewEngine()
			bf, err := Build(engine, schema, version, b)
			require.NoError(t, err)
			data, err := bf.Marshal()
			require.NoError(t, err)
			loaded, err := Load(data)
			require.NoError(t, err)

			for _, idx := range []*BlockFilter{bf, loaded} {
				assert.Equal(t, Uncertain, evaluate(t, engine, idx, expr.Eq(x, expr.Lit(types.NewFloat64(negZero)))))
				assert.Equal(t, Uncertain, evaluate(t, engine, idx, expr.Eq(expr.Lit(types.NewFloat64(0)), x)))
				assert.Equal(t, Uncertain, evaluate(t, engine, idx,
					expr.Eq(x, expr.Lit(types.NewFloat64(math.Float64frombits(0x7ff8000000000abc))))))
				assert.Equal(t, Uncertain, evaluate(t, engine, idx, expr.Eq(y, expr.Lit(types.NewFloat64(0)))))
				assert.Equal(t, Uncertain, evaluate(t, engine, idx, expr.Eq(y, expr.Lit(types.NewFloat64(2.25)))))
			}
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	for _, version := range []Version{VersionV2, VersionV3} {
		t.Run(fmt.Sprintf("v%d", version), func(t *testing.T) {
			engine := digest.NewEngine()
			bf, err := Build(engine, peopleSchema, version, peopleBlock(t))
			require.NoError(t, err)

			data, err := bf.Marshal()
			require.NoError(t, err)

			loaded, err := Unmarshal(data)
			require.NoError(t, err)
			assert.Equal(t, version, loaded.Version)
			assert.True(t, peopleSchema.Equal(loaded.SourceSchema))
			assert.Equal(t, bf.Columns(), loaded.Columns())
			assert.Equal(t, bf.Filters(), loaded.Filters())
			assert.Empty(t, loaded.ColumnDistinctCount)
			assert.Equal(t, bf.Hasher(), loaded.Hasher())

			age := expr.Col("age", types.Int64)
			assert.Equal(t, MustFalse, evaluate(t, engine, loaded, expr.Eq(age, expr.Lit(types.NewInt64(99)))))
			assert.Equal(t, Uncertain, evaluate(t, engine, loaded, expr.Eq(age, expr.Lit(types.NewInt64(20)))))
		})
	}
}

func TestLoadCorrupt(t *testing.T) {
	engine := digest.NewEngine()
	bf, err := Build(engine, peopleSchema, CurrentVersion, peopleBlock(t))
	require.NoError(t, err)
	data, err := bf.Marshal()
	require.NoError(t, err)

	t.Run("truncated", func(t *testing.T) {
		_, err := Load(data[:len(data)-1])
		assert.ErrorIs(t, err, ErrCorrupt)
	})
	t.Run("too short", func(t *testing.T) {
		_, err := Load(data[:10])
		assert.ErrorIs(t, err, ErrCorrupt)
	})
	t.Run("bit flip", func(t *testing.T) {
		b := append([]byte(nil), data...)
		b[len(b)/2] ^= 0x01
		_, err := Load(b)
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestConcurrentEvaluate(t *testing.T) {
	engine := digest.NewEngine()
	bf, err := Build(engine, peopleSchema, CurrentVersion, peopleBlock(t))
	require.NoError(t, err)
	data, err := bf.Marshal()
	require.NoError(t, err)
	loaded, err := Load(data)
	require.NoError(t, err)

	e := expr.Eq(expr.Col("age", types.Int64), expr.Lit(types.NewInt64(99)))
	lookup, err := BuildLookupTable(engine, e)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := loaded.Evaluate(e, lookup)
			assert.NoError(t, err)
			assert.Equal(t, MustFalse, res)
		}()
	}
	wg.Wait()
}

func TestEmptyIndexIsLegal(t *testing.T) {
	bf := &BlockFilter{SourceSchema: types.NewSchema(), Version: CurrentVersion, ColumnDistinctCount: map[int]int{}}
	bf.init(nil)

	data, err := bf.Marshal()
	require.NoError(t, err)
	loaded, err := Load(data)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.NumColumns())

	res, err := loaded.Evaluate(expr.Eq(expr.Col("age", types.Int64), expr.Lit(types.NewInt64(1))), nil)
	require.NoError(t, err)
	assert.Equal(t, Uncertain, res)
}
