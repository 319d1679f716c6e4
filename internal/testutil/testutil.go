// Package testutil generates deterministic tables for tests and benchmarks.
//
//	rng := testutil.NewRNG(1)
//	blocks, err := rng.Blocks(64, 1000, 20) // 64 blocks of 1000 rows, 20 cities each
package testutil

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/hupe1980/blockidx/block"
	"github.com/hupe1980/blockidx/types"
)

// RNG is a seeded random source. It is safe for concurrent use.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Int63 returns a non-negative pseudo-random int64.
func (r *RNG) Int63() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Int63()
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Schema returns the schema used by Block: a unique id, a low-cardinality city,
// a nullable amount and a flag.
func Schema() types.Schema {
	return types.NewSchema(
		types.NewField("id", types.Int64),
		types.NewField("city", types.String),
		types.NewField("amount", types.Nullable(types.Float64)),
		types.NewField("flag", types.Boolean),
	)
}

// City returns the i-th city name.
func City(i int) string { return fmt.Sprintf("city-%04d", i) }

// Block generates a block of rows for Schema. Ids are [firstID, firstID+rows), cities
// are drawn from City(cityOffset) to City(cityOffset+cities-1) and every tenth amount
// is NULL.
func (r *RNG) Block(firstID int64, rows, cityOffset, cities int) (*block.DataBlock, error) {
	s := Schema()
	values := make([][]types.Scalar, s.NumFields())
	for i := range values {
		values[i] = make([]types.Scalar, rows)
	}
	for i := range rows {
		values[0][i] = types.NewInt64(firstID + int64(i))
		values[1][i] = types.NewString(City(cityOffset + r.Intn(cities)))
		if i%10 == 9 {
			values[2][i] = types.NullScalar()
		} else {
			values[2][i] = types.NewFloat64(r.Float64() * 1000)
		}
		values[3][i] = types.NewBool(r.Intn(2) == 0)
	}

	cols := make([]*block.Column, len(values))
	for i := range cols {
		c, err := block.NewColumn(s.Field(i).Type, values[i]...)
		if err != nil {
			return nil, err
		}
		cols[i] = c
	}
	return block.NewDataBlock(cols...)
}

// Blocks generates n blocks of rows rows each with consecutive ids. The blocks draw
// their cities from disjoint ranges, so an equality predicate on one city matches a
// single block.
func (r *RNG) Blocks(n, rows, citiesPerBlock int) ([]*block.DataBlock, error) {
	out := make([]*block.DataBlock, n)
	for i := range out {
		b, err := r.Block(int64(i*rows), rows, i*citiesPerBlock, citiesPerBlock)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}
