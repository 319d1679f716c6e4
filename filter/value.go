package filter

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/blockidx/digest"
	"github.com/hupe1980/blockidx/types"
)

// ValueKey returns the key under which a typed value is stored by BuildFromValues.
// It is the xxhash64 of the canonical value encoding and is independent of the digest
// hasher configured for the index.
func ValueKey(s types.Scalar) (uint64, error) {
	var arr [64]byte
	buf, err := digest.AppendCanonical(arr[:0], s)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(buf), nil
}

// BuildFromValues builds a filter keyed by typed values. This is the layout of version 2
// filter indexes, which are probed with ContainsValue.
func BuildFromValues(values []types.Scalar) (*Filter, error) {
	keys := make([]uint64, len(values))
	for i, v := range values {
		k, err := ValueKey(v)
		if err != nil {
			return nil, fmt.Errorf("%w: value %d: %v", ErrConstruction, i, err)
		}
		keys[i] = k
	}
	return Build(keys)
}

// ContainsValue reports whether the typed value may be in a filter built by
// BuildFromValues. Values without a canonical encoding are reported as contained.
func (f *Filter) ContainsValue(s types.Scalar) bool {
	k, err := ValueKey(s)
	if err != nil {
		return true
	}
	return f.Contains(k)
}
