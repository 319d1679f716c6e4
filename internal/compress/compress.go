// Package compress implements the payload compression used by snapshot and segment
// envelopes.
//
// Every compressed payload starts with an 8-byte block header:
//
//	[UncompressedSize uint32][CompressedSize uint32][Data...]
//
// A CompressedSize of 0 means the data is stored raw because compression did not help.
// TypeNone payloads carry no header.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// ErrCorrupt indicates a payload that cannot be decompressed.
var ErrCorrupt = errors.New("compress: corrupt payload")

// ErrUnknownType indicates an unknown compression tag.
var ErrUnknownType = errors.New("compress: unknown compression type")

// Type identifies a compression algorithm. The values are persisted.
type Type uint8

const (
	// TypeNone stores payloads as is.
	TypeNone Type = 0
	// TypeZstd uses zstd (better ratio, the default for metadata).
	TypeZstd Type = 1
	// TypeLZ4 uses LZ4 block compression (fast).
	TypeLZ4 Type = 2
	// TypeSnappy uses snappy block compression.
	TypeSnappy Type = 3
)

// Default is the compression used for new snapshots and segments.
const Default = TypeZstd

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeZstd:
		return "zstd"
	case TypeLZ4:
		return "lz4"
	case TypeSnappy:
		return "snappy"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Valid reports whether t is a known compression type.
func (t Type) Valid() bool {
	return t <= TypeSnappy
}

// ParseType resolves a compression type by name.
func ParseType(name string) (Type, error) {
	switch name {
	case "none", "":
		return TypeNone, nil
	case "zstd":
		return TypeZstd, nil
	case "lz4":
		return TypeLZ4, nil
	case "snappy":
		return TypeSnappy, nil
	default:
		return TypeNone, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

const headerSize = 8

// Compress compresses data with t.
func Compress(t Type, data []byte) ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
	if t == TypeNone {
		return data, nil
	}
	if uint64(len(data)) > math.MaxUint32 {
		return nil, fmt.Errorf("compress: payload of %d bytes exceeds block limit", len(data))
	}

	var compressed []byte
	switch t {
	case TypeZstd:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		putZstdEncoder(enc)
	case TypeLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n]
	case TypeSnappy:
		compressed = snappy.Encode(nil, data)
	}

	// Store raw if compression doesn't help.
	if len(compressed) == 0 || len(compressed) >= len(data) {
		out := make([]byte, headerSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		binary.LittleEndian.PutUint32(out[4:], 0)
		copy(out[headerSize:], data)
		return out, nil
	}

	out := make([]byte, headerSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[headerSize:], compressed)
	return out, nil
}

// Decompress reverses Compress. Length inconsistencies and decoder failures are
// reported as ErrCorrupt.
func Decompress(t Type, data []byte) ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
	if t == TypeNone {
		return data, nil
	}
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: block too small for header", ErrCorrupt)
	}

	uncompressedSize := binary.LittleEndian.Uint32(data[0:])
	compressedSize := binary.LittleEndian.Uint32(data[4:])
	body := data[headerSize:]

	if compressedSize == 0 {
		if uint64(len(body)) != uint64(uncompressedSize) {
			return nil, fmt.Errorf("%w: raw block has %d bytes, header says %d", ErrCorrupt, len(body), uncompressedSize)
		}
		return body, nil
	}
	if uint64(len(body)) != uint64(compressedSize) {
		return nil, fmt.Errorf("%w: compressed block has %d bytes, header says %d", ErrCorrupt, len(body), compressedSize)
	}

	var (
		out []byte
		err error
	)
	switch t {
	case TypeZstd:
		dec := getZstdDecoder()
		out, err = dec.DecodeAll(body, make([]byte, 0, uncompressedSize))
		putZstdDecoder(dec)
	case TypeLZ4:
		out = make([]byte, uncompressedSize)
		var n int
		n, err = lz4.UncompressBlock(body, out)
		out = out[:max(n, 0)]
	case TypeSnappy:
		var n int
		n, err = snappy.DecodedLen(body)
		if err == nil && n != int(uncompressedSize) {
			err = errors.New("decoded length mismatch")
		}
		if err == nil {
			out, err = snappy.Decode(make([]byte, n), body)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, t, err)
	}
	if uint32(len(out)) != uncompressedSize {
		return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
	}
	return out, nil
}
