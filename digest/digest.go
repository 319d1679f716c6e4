// Package digest maps column values and constants to 64-bit digests.
//
// Every value is first reduced to a canonical byte encoding: a one byte class tag
// followed by either the 64-bit little-endian canonical form (booleans, integers of
// every width, floats widened to float64 with -0 and NaN payloads canonicalised, dates
// and timestamps) or the raw UTF-8 bytes of a string. The encoding is then hashed by a named Hasher. Because all integer widths
// share one canonical form, eq(age, 20) digests identically whether the constant is an
// Int64 or a UInt8.
//
// Hashers are selected by stable name so that persisted filter indexes can be probed
// with the digest function they were built with.
package digest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/xxh3"

	"github.com/hupe1980/blockidx/types"
)

// Digest is the 64-bit hash of a canonical value encoding.
type Digest = uint64

// ErrUnsupportedType is returned for values that have no canonical encoding, such as
// NULL or nested values, or for constants whose kind cannot occur in the column.
var ErrUnsupportedType = errors.New("digest: unsupported type")

// ErrUnknownHasher is returned by ByName for names that are not registered.
var ErrUnknownHasher = errors.New("digest: unknown hasher")

// ErrHasherExists is returned by Register when the name is already taken.
var ErrHasherExists = errors.New("digest: hasher already registered")

// Hasher hashes canonical value encodings.
// Implementations must be safe for concurrent use.
type Hasher interface {
	Name() string
	Sum64(b []byte) uint64
}

// Names of the built-in hashers.
const (
	XXHash64 = "xxhash64"
	XXH3     = "xxh3"
)

type funcHasher struct {
	name string
	sum  func([]byte) uint64
}

func (h funcHasher) Name() string          { return h.name }
func (h funcHasher) Sum64(b []byte) uint64 { return h.sum(b) }

var (
	registryMu sync.RWMutex
	registry   = map[string]Hasher{
		XXHash64: funcHasher{name: XXHash64, sum: xxhash.Sum64},
		XXH3:     funcHasher{name: XXH3, sum: xxh3.Hash},
	}
)

// Register adds a hasher under its Name. A name can be registered only once; the
// built-in names are always taken.
func Register(h Hasher) error {
	name := h.Name()
	if name == "" {
		return errors.New("digest: hasher name is empty")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[name]; ok {
		return fmt.Errorf("%w: %q", ErrHasherExists, name)
	}
	registry[name] = h
	return nil
}

// ByName returns a registered hasher by its stable name.
func ByName(name string) (Hasher, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	h, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHasher, name)
	}
	return h, nil
}

// Names returns the sorted names of all registered hashers.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Default returns the default hasher (xxhash64).
func Default() Hasher {
	h, _ := ByName(XXHash64)
	return h
}

const (
	tagBool byte = iota + 1
	tagInt
	tagFloat
	tagString
	tagDate
	tagTimestamp
)

func classTag(k types.Kind) (byte, bool) {
	switch {
	case k == types.KindBoolean:
		return tagBool, true
	case k.IsSignedInteger(), k.IsUnsignedInteger():
		return tagInt, true
	case k.IsFloat():
		return tagFloat, true
	case k == types.KindString:
		return tagString, true
	case k == types.KindDate:
		return tagDate, true
	case k == types.KindTimestamp:
		return tagTimestamp, true
	default:
		return 0, false
	}
}

// Compatible reports whether a constant of kind s can be compared against values of
// column type t without conversion.
func Compatible(s types.Kind, t types.DataType) bool {
	a, ok := classTag(s)
	if !ok {
		return false
	}
	b, ok := classTag(t.Kind)
	return ok && a == b
}

// AppendCanonical appends the canonical encoding of s to dst.
func AppendCanonical(dst []byte, s types.Scalar) ([]byte, error) {
	tag, ok := classTag(s.Kind)
	if !ok {
		return dst, fmt.Errorf("%w: %s", ErrUnsupportedType, s.Kind)
	}
	dst = append(dst, tag)
	if tag == tagString {
		return append(dst, s.Str...), nil
	}
	bits, _ := s.CanonicalBits()
	return binary.LittleEndian.AppendUint64(dst, bits), nil
}
