// Package filter provides the probabilistic membership filters stored per column in a
// block filter index.
//
// A filter answers "is this key possibly in the set?". A negative answer is exact: a key
// that was added is always reported as contained. A positive answer may be a false
// positive, so callers may only use a negative answer to skip work.
//
// The only filter kind today is an xor filter with 8-bit fingerprints (Xor8), which has
// a false positive rate of about 1/256 (0.39%) and uses roughly 9.84 bits per distinct
// key.
package filter

import (
	"errors"
	"fmt"
	"slices"

	"github.com/FastFilter/xorfilter"

	"github.com/hupe1980/blockidx/internal/hash"
	"github.com/hupe1980/blockidx/internal/wire"
)

var (
	// ErrConstruction indicates that a filter could not be built, for example from an
	// empty key set.
	ErrConstruction = errors.New("filter: construction failed")
	// ErrCorrupt indicates that serialized filter bytes are invalid.
	ErrCorrupt = errors.New("filter: corrupt filter data")
)

// Kind tags the filter variant in the serialized form.
type Kind uint8

const (
	// KindXor8 is an xor filter with 8-bit fingerprints.
	KindXor8 Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindXor8:
		return "xor8"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// FalsePositiveRate is the expected false positive rate of KindXor8.
const FalsePositiveRate = 1.0 / 256

const flagDistinct uint8 = 1 << 0

// headerSize is kind, flags, distinct, seed, blockLength and fpLen.
const headerSize = 1 + 1 + 4 + 8 + 4 + 4

// Filter is an immutable membership filter over 64-bit keys.
// It is safe for concurrent use.
type Filter struct {
	kind     Kind
	xor      *xorfilter.Xor8
	distinct int
	flags    uint8
}

// Build constructs a filter from digests. Duplicates are allowed; the number of distinct
// keys is recorded and available through ApproxDistinctCount.
func Build(digests []uint64) (*Filter, error) {
	if len(digests) == 0 {
		return nil, fmt.Errorf("%w: no keys", ErrConstruction)
	}

	keys := slices.Clone(digests)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	xf, err := xorfilter.Populate(keys)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConstruction, err)
	}

	return &Filter{
		kind:     KindXor8,
		xor:      xf,
		distinct: len(keys),
		flags:    flagDistinct,
	}, nil
}

// Kind returns the filter variant.
func (f *Filter) Kind() Kind { return f.kind }

// Contains reports whether key may be in the set. It never returns false for a key the
// filter was built from.
func (f *Filter) Contains(key uint64) bool {
	return f.xor.Contains(key)
}

// ApproxDistinctCount returns the number of distinct keys the filter was built from, if
// it was tracked.
func (f *Filter) ApproxDistinctCount() (int, bool) {
	if f.flags&flagDistinct == 0 {
		return 0, false
	}
	return f.distinct, true
}

// SizeBytes returns the size of the serialized filter.
func (f *Filter) SizeBytes() int {
	return headerSize + len(f.xor.Fingerprints) + hash.ChecksumSize
}

// Bytes serializes the filter:
//
//	kind (1) | flags (1) | distinct (4) | seed (8) | blockLength (4) |
//	fpLen (4) | fingerprints (fpLen) | crc32c (4)
//
// All integers are little-endian. The checksum covers every preceding byte.
func (f *Filter) Bytes() []byte {
	w := wire.NewWriter(make([]byte, 0, f.SizeBytes()))
	w.WriteUint8(uint8(f.kind))
	w.WriteUint8(f.flags)
	w.WriteUint32(uint32(f.distinct))
	w.WriteUint64(f.xor.Seed)
	w.WriteUint32(f.xor.BlockLength)
	w.WriteUint32(uint32(len(f.xor.Fingerprints)))
	w.WriteRaw(f.xor.Fingerprints)
	return hash.AppendChecksum(w.Bytes())
}

// Parse deserializes a filter produced by Bytes. The fingerprints are copied, so data
// may be reused by the caller.
func Parse(data []byte) (*Filter, error) {
	if len(data) < headerSize+hash.ChecksumSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(data))
	}

	body := data[:len(data)-hash.ChecksumSize]
	r := wire.NewReader(body)

	kind := Kind(r.ReadUint8())
	flags := r.ReadUint8()
	distinct := r.ReadUint32()
	seed := r.ReadUint64()
	blockLength := r.ReadUint32()
	fpLen := r.ReadUint32()

	if kind != KindXor8 {
		return nil, fmt.Errorf("%w: unknown kind %s", ErrCorrupt, kind)
	}
	if int64(fpLen) != int64(len(body)-headerSize) {
		return nil, fmt.Errorf("%w: fingerprint length %d does not match payload", ErrCorrupt, fpLen)
	}
	if uint64(fpLen) != 3*uint64(blockLength) || blockLength == 0 {
		return nil, fmt.Errorf("%w: block length %d inconsistent with %d fingerprints", ErrCorrupt, blockLength, fpLen)
	}

	fps := r.ReadRaw(int(fpLen))
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if _, ok := hash.VerifyChecksum(data); !ok {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	return &Filter{
		kind: kind,
		xor: &xorfilter.Xor8{
			Seed:         seed,
			BlockLength:  blockLength,
			Fingerprints: slices.Clone(fps),
		},
		distinct: int(distinct),
		flags:    flags,
	}, nil
}
