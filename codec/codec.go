// Package codec centralizes the encoding of persisted metadata records.
//
// Codec selection is a breaking-change boundary: snapshot and segment envelopes record
// the codec tag in their header, and bytes written by one codec can only be decoded by
// the same codec.
package codec

import "fmt"

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// Tag is the persisted identifier of a built-in codec.
type Tag uint8

const (
	// TagCBOR identifies the CBOR codec.
	TagCBOR Tag = 1
	// TagGoJSON identifies the go-json codec.
	TagGoJSON Tag = 2
)

// Default is the codec used for newly written snapshots and segments.
var Default Codec = CBOR{}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "cbor":
		return CBOR{}, true
	case "go-json", "json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// ByTag returns a built-in codec by its persisted tag.
func ByTag(t Tag) (Codec, bool) {
	switch t {
	case TagCBOR:
		return CBOR{}, true
	case TagGoJSON:
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// TagOf returns the persisted tag of a built-in codec.
func TagOf(c Codec) (Tag, bool) {
	switch c.Name() {
	case "cbor":
		return TagCBOR, true
	case "go-json":
		return TagGoJSON, true
	default:
		return 0, false
	}
}

// MustMarshal is a helper for internal tests.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", c.Name(), err))
	}
	return b
}
