package meta

import (
	"errors"
	"fmt"

	"github.com/hupe1980/blockidx/codec"
	"github.com/hupe1980/blockidx/internal/compress"
	"github.com/hupe1980/blockidx/internal/wire"
)

// envelopeHeaderSize is format version (8) + encoding (1) + compression (1) + payload
// length (8).
const envelopeHeaderSize = 18

var errUnknownEncoding = errors.New("unknown encoding")

// envelope is the decoded header plus the decompressed payload.
type envelope struct {
	formatVersion uint64
	codec         codec.Codec
	compression   compress.Type
	payload       []byte
}

// encodeEnvelope writes
//
//	[format_version u64 LE][encoding u8][compression u8][payload_len u64 LE][payload]
//
// with payload = compress(encode(v)).
func encodeEnvelope(version uint64, c codec.Codec, comp compress.Type, v any) ([]byte, error) {
	tag, ok := codec.TagOf(c)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownEncoding, c.Name())
	}
	encoded, err := c.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.Name(), err)
	}
	payload, err := compress.Compress(comp, encoded)
	if err != nil {
		return nil, err
	}

	w := wire.NewWriter(make([]byte, 0, envelopeHeaderSize+len(payload)))
	w.WriteUint64(version)
	w.WriteUint8(uint8(tag))
	w.WriteUint8(uint8(comp))
	w.WriteUint64(uint64(len(payload)))
	w.WriteRaw(payload)
	return w.Bytes(), w.Err()
}

// peekVersion returns the format version without validating the rest.
func peekVersion(data []byte) (uint64, error) {
	if len(data) < envelopeHeaderSize {
		return 0, fmt.Errorf("%d bytes is shorter than the header", len(data))
	}
	return wire.NewReader(data[:8]).ReadUint64(), nil
}

// decodeEnvelope parses the header, checks the declared length against the remaining
// bytes and decompresses the payload.
func decodeEnvelope(data []byte) (*envelope, error) {
	if len(data) < envelopeHeaderSize {
		return nil, fmt.Errorf("%d bytes is shorter than the header", len(data))
	}
	r := wire.NewReader(data)
	version := r.ReadUint64()
	encTag := codec.Tag(r.ReadUint8())
	comp := compress.Type(r.ReadUint8())
	length := r.ReadUint64()

	if remaining := uint64(r.Remaining()); length != remaining {
		return nil, fmt.Errorf("payload length %d does not match remaining %d bytes", length, remaining)
	}
	c, ok := codec.ByTag(encTag)
	if !ok {
		return nil, fmt.Errorf("%w: tag %d", errUnknownEncoding, encTag)
	}
	if !comp.Valid() {
		return nil, fmt.Errorf("%w: %d", compress.ErrUnknownType, comp)
	}

	payload, err := compress.Decompress(comp, r.ReadRaw(int(length)))
	if err != nil {
		return nil, err
	}
	return &envelope{
		formatVersion: version,
		codec:         c,
		compression:   comp,
		payload:       payload,
	}, nil
}

func (e *envelope) decode(v any) error {
	if err := e.codec.Unmarshal(e.payload, v); err != nil {
		return fmt.Errorf("decode %s: %w", e.codec.Name(), err)
	}
	return nil
}
