// Package types defines the logical data types, scalar constants and schemas shared by
// the block, expression, filter index and snapshot packages.
package types

import (
	"strings"
)

// Kind identifies a logical column type.
type Kind uint8

const (
	// KindNull is the type of the NULL literal.
	KindNull Kind = iota
	KindBoolean
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUInt8
	KindUInt16
	KindUInt32
	KindUInt64
	KindFloat32
	KindFloat64
	KindString
	// KindDate stores days since the Unix epoch.
	KindDate
	// KindTimestamp stores microseconds since the Unix epoch.
	KindTimestamp
	KindArray
	KindMap
	KindTuple
	KindVariant
)

var kindNames = [...]string{
	KindNull:      "NULL",
	KindBoolean:   "BOOLEAN",
	KindInt8:      "INT8",
	KindInt16:     "INT16",
	KindInt32:     "INT32",
	KindInt64:     "INT64",
	KindUInt8:     "UINT8",
	KindUInt16:    "UINT16",
	KindUInt32:    "UINT32",
	KindUInt64:    "UINT64",
	KindFloat32:   "FLOAT32",
	KindFloat64:   "FLOAT64",
	KindString:    "STRING",
	KindDate:      "DATE",
	KindTimestamp: "TIMESTAMP",
	KindArray:     "ARRAY",
	KindMap:       "MAP",
	KindTuple:     "TUPLE",
	KindVariant:   "VARIANT",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "UNKNOWN"
}

// IsSignedInteger reports whether k is one of the signed integer kinds.
func (k Kind) IsSignedInteger() bool {
	return k >= KindInt8 && k <= KindInt64
}

// IsUnsignedInteger reports whether k is one of the unsigned integer kinds.
func (k Kind) IsUnsignedInteger() bool {
	return k >= KindUInt8 && k <= KindUInt64
}

// IsFloat reports whether k is a floating point kind.
func (k Kind) IsFloat() bool {
	return k == KindFloat32 || k == KindFloat64
}

// IsNumeric reports whether k is an integer or floating point kind.
func (k Kind) IsNumeric() bool {
	return k.IsSignedInteger() || k.IsUnsignedInteger() || k.IsFloat()
}

// IsNested reports whether k is a structured kind.
func (k Kind) IsNested() bool {
	switch k {
	case KindArray, KindMap, KindTuple, KindVariant:
		return true
	default:
		return false
	}
}

// DataType is a logical column type. Nested kinds carry their element types in Inner.
type DataType struct {
	Kind     Kind       `json:"kind" cbor:"1,keyasint"`
	Nullable bool       `json:"nullable,omitempty" cbor:"2,keyasint,omitempty"`
	Inner    []DataType `json:"inner,omitempty" cbor:"3,keyasint,omitempty"`
}

// Convenience constructors for the scalar types.
var (
	Null      = DataType{Kind: KindNull, Nullable: true}
	Boolean   = DataType{Kind: KindBoolean}
	Int8      = DataType{Kind: KindInt8}
	Int16     = DataType{Kind: KindInt16}
	Int32     = DataType{Kind: KindInt32}
	Int64     = DataType{Kind: KindInt64}
	UInt8     = DataType{Kind: KindUInt8}
	UInt16    = DataType{Kind: KindUInt16}
	UInt32    = DataType{Kind: KindUInt32}
	UInt64    = DataType{Kind: KindUInt64}
	Float32   = DataType{Kind: KindFloat32}
	Float64   = DataType{Kind: KindFloat64}
	String    = DataType{Kind: KindString}
	Date      = DataType{Kind: KindDate}
	Timestamp = DataType{Kind: KindTimestamp}
)

// Nullable returns the nullable variant of t.
func Nullable(t DataType) DataType {
	t.Nullable = true
	return t
}

// ArrayOf returns an array type with the given element type.
func ArrayOf(elem DataType) DataType {
	return DataType{Kind: KindArray, Inner: []DataType{elem}}
}

// TupleOf returns a tuple type with the given field types.
func TupleOf(fields ...DataType) DataType {
	return DataType{Kind: KindTuple, Inner: fields}
}

// MapOf returns a map type with the given key and value types.
func MapOf(key, value DataType) DataType {
	return DataType{Kind: KindMap, Inner: []DataType{key, value}}
}

// IsNullable reports whether the type admits NULL values.
func (t DataType) IsNullable() bool {
	return t.Nullable || t.Kind == KindNull
}

// Unwrap returns t without the nullable marker.
func (t DataType) Unwrap() DataType {
	t.Nullable = false
	return t
}

// IsSupportedForFilter reports whether a probabilistic membership filter can be built
// for columns of this type: numbers, strings, dates, timestamps and booleans,
// nullable or not. Nested and structured types are not supported.
func (t DataType) IsSupportedForFilter() bool {
	switch t.Kind {
	case KindBoolean, KindString, KindDate, KindTimestamp:
		return true
	default:
		return t.Kind.IsNumeric()
	}
}

// Equal reports whether two types are identical, including nested element types.
func (t DataType) Equal(o DataType) bool {
	if t.Kind != o.Kind || t.Nullable != o.Nullable || len(t.Inner) != len(o.Inner) {
		return false
	}
	for i := range t.Inner {
		if !t.Inner[i].Equal(o.Inner[i]) {
			return false
		}
	}
	return true
}

func (t DataType) String() string {
	var sb strings.Builder
	if t.Nullable && t.Kind != KindNull {
		sb.WriteString("NULLABLE(")
	}
	sb.WriteString(t.Kind.String())
	if len(t.Inner) > 0 {
		sb.WriteByte('(')
		for i, in := range t.Inner {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(in.String())
		}
		sb.WriteByte(')')
	}
	if t.Nullable && t.Kind != KindNull {
		sb.WriteByte(')')
	}
	return sb.String()
}
