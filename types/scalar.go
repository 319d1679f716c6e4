package types

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Scalar is a typed constant. The payload field that is meaningful depends on Kind:
// signed integers, dates and timestamps use I64, unsigned integers use U64, floats use
// F64, strings use Str and booleans use Bool. A Scalar with KindNull is the NULL value.
//
// Scalars are comparable and may be used directly as map keys, but logically equal
// values of different integer widths compare unequal. Use Key for width-independent
// lookups.
type Scalar struct {
	Kind Kind    `json:"kind" cbor:"1,keyasint"`
	I64  int64   `json:"i64,omitempty" cbor:"2,keyasint,omitempty"`
	U64  uint64  `json:"u64,omitempty" cbor:"3,keyasint,omitempty"`
	F64  float64 `json:"f64,omitempty" cbor:"4,keyasint,omitempty"`
	Str  string  `json:"str,omitempty" cbor:"5,keyasint,omitempty"`
	Bool bool    `json:"bool,omitempty" cbor:"6,keyasint,omitempty"`
}

// NullScalar returns the NULL constant.
func NullScalar() Scalar { return Scalar{Kind: KindNull} }

func NewBool(v bool) Scalar       { return Scalar{Kind: KindBoolean, Bool: v} }
func NewInt8(v int8) Scalar       { return Scalar{Kind: KindInt8, I64: int64(v)} }
func NewInt16(v int16) Scalar     { return Scalar{Kind: KindInt16, I64: int64(v)} }
func NewInt32(v int32) Scalar     { return Scalar{Kind: KindInt32, I64: int64(v)} }
func NewInt64(v int64) Scalar     { return Scalar{Kind: KindInt64, I64: v} }
func NewUInt8(v uint8) Scalar     { return Scalar{Kind: KindUInt8, U64: uint64(v)} }
func NewUInt16(v uint16) Scalar   { return Scalar{Kind: KindUInt16, U64: uint64(v)} }
func NewUInt32(v uint32) Scalar   { return Scalar{Kind: KindUInt32, U64: uint64(v)} }
func NewUInt64(v uint64) Scalar   { return Scalar{Kind: KindUInt64, U64: v} }
func NewFloat32(v float32) Scalar { return Scalar{Kind: KindFloat32, F64: float64(v)} }
func NewFloat64(v float64) Scalar { return Scalar{Kind: KindFloat64, F64: v} }
func NewString(v string) Scalar   { return Scalar{Kind: KindString, Str: v} }

// NewDate returns a date scalar holding days since the Unix epoch.
func NewDate(days int32) Scalar { return Scalar{Kind: KindDate, I64: int64(days)} }

// NewTimestamp returns a timestamp scalar holding microseconds since the Unix epoch.
func NewTimestamp(t time.Time) Scalar { return Scalar{Kind: KindTimestamp, I64: t.UnixMicro()} }

// IsNull reports whether s is the NULL constant.
func (s Scalar) IsNull() bool { return s.Kind == KindNull }

// DataType returns the non-nullable type of s.
func (s Scalar) DataType() DataType {
	if s.Kind == KindNull {
		return Null
	}
	return DataType{Kind: s.Kind}
}

// ZeroOf returns the zero value of t. It is the sentinel stored in place of NULL rows.
func ZeroOf(t DataType) Scalar {
	switch t.Kind {
	case KindNull:
		return NullScalar()
	default:
		return Scalar{Kind: t.Kind}
	}
}

// keyClass groups kinds whose values share a canonical representation.
type keyClass uint8

const (
	classNull keyClass = iota
	classBool
	classInt
	classFloat
	classString
	classDate
	classTimestamp
	classOther
)

// ScalarKey is the width-independent, comparable identity of a Scalar.
// Integers of every width map to the same key when they hold the same value.
type ScalarKey struct {
	class keyClass
	bits  uint64
	str   string
}

// Key returns the canonical key of s.
func (s Scalar) Key() ScalarKey {
	switch {
	case s.Kind == KindNull:
		return ScalarKey{class: classNull}
	case s.Kind == KindBoolean:
		if s.Bool {
			return ScalarKey{class: classBool, bits: 1}
		}
		return ScalarKey{class: classBool}
	case s.Kind.IsSignedInteger():
		return ScalarKey{class: classInt, bits: uint64(s.I64)}
	case s.Kind.IsUnsignedInteger():
		return ScalarKey{class: classInt, bits: s.U64}
	case s.Kind.IsFloat():
		return ScalarKey{class: classFloat, bits: canonicalFloatBits(s.F64)}
	case s.Kind == KindString:
		return ScalarKey{class: classString, str: s.Str}
	case s.Kind == KindDate:
		return ScalarKey{class: classDate, bits: uint64(s.I64)}
	case s.Kind == KindTimestamp:
		return ScalarKey{class: classTimestamp, bits: uint64(s.I64)}
	default:
		return ScalarKey{class: classOther, str: s.String()}
	}
}

// CanonicalBits returns the 64-bit canonical form used for hashing fixed width values.
// The second result is false for strings and NULL.
func (s Scalar) CanonicalBits() (uint64, bool) {
	switch {
	case s.Kind == KindBoolean:
		if s.Bool {
			return 1, true
		}
		return 0, true
	case s.Kind.IsSignedInteger(), s.Kind == KindDate, s.Kind == KindTimestamp:
		return uint64(s.I64), true
	case s.Kind.IsUnsignedInteger():
		return s.U64, true
	case s.Kind.IsFloat():
		return canonicalFloatBits(s.F64), true
	default:
		return 0, false
	}
}

// canonicalNaN is the bit pattern every NaN payload is folded to.
const canonicalNaN = 0x7ff8000000000000

// canonicalFloatBits returns the IEEE bits of f with -0 folded to +0 and every NaN
// payload folded to one quiet NaN.
func canonicalFloatBits(f float64) uint64 {
	switch {
	case f == 0:
		return 0
	case math.IsNaN(f):
		return canonicalNaN
	default:
		return math.Float64bits(f)
	}
}

func (s Scalar) String() string {
	switch {
	case s.Kind == KindNull:
		return "NULL"
	case s.Kind == KindBoolean:
		return strconv.FormatBool(s.Bool)
	case s.Kind.IsSignedInteger():
		return strconv.FormatInt(s.I64, 10)
	case s.Kind.IsUnsignedInteger():
		return strconv.FormatUint(s.U64, 10)
	case s.Kind.IsFloat():
		return strconv.FormatFloat(s.F64, 'g', -1, 64)
	case s.Kind == KindString:
		return strconv.Quote(s.Str)
	case s.Kind == KindDate:
		return time.Unix(s.I64*86400, 0).UTC().Format(time.DateOnly)
	case s.Kind == KindTimestamp:
		return time.UnixMicro(s.I64).UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("<%s>", s.Kind)
	}
}
