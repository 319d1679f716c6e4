// Package wire provides the little-endian append/consume buffer used by the filter and
// filter index binary layouts.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Buffer appends or consumes little-endian fields. The first failure is sticky: later
// calls become no-ops and Err reports it.
type Buffer struct {
	buf []byte
	pos int
	err error
}

// NewWriter returns a Buffer that appends to b.
func NewWriter(b []byte) *Buffer {
	return &Buffer{buf: b}
}

// NewReader returns a Buffer that consumes b from the start.
func NewReader(b []byte) *Buffer {
	return &Buffer{buf: b}
}

// Bytes returns the written bytes.
func (p *Buffer) Bytes() []byte { return p.buf }

// Err returns the first error.
func (p *Buffer) Err() error { return p.err }

// Remaining returns the number of unread bytes.
func (p *Buffer) Remaining() int { return len(p.buf) - p.pos }

// Offset returns the read position.
func (p *Buffer) Offset() int { return p.pos }

func (p *Buffer) WriteUint8(v uint8) {
	if p.err != nil {
		return
	}
	p.buf = append(p.buf, v)
}

func (p *Buffer) WriteUint32(v uint32) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
}

func (p *Buffer) WriteUint64(v uint64) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint64(p.buf, v)
}

// WriteString writes a u16 length prefixed string.
func (p *Buffer) WriteString(s string) {
	if p.err != nil {
		return
	}
	if len(s) > math.MaxUint16 {
		p.err = fmt.Errorf("string too long: %d", len(s))
		return
	}
	p.buf = binary.LittleEndian.AppendUint16(p.buf, uint16(len(s)))
	p.buf = append(p.buf, s...)
}

// WriteBytes writes a u32 length prefixed byte slice.
func (p *Buffer) WriteBytes(b []byte) {
	if p.err != nil {
		return
	}
	if uint64(len(b)) > math.MaxUint32 {
		p.err = fmt.Errorf("byte slice too long: %d", len(b))
		return
	}
	p.buf = binary.LittleEndian.AppendUint32(p.buf, uint32(len(b)))
	p.buf = append(p.buf, b...)
}

// WriteRaw appends b without a length prefix.
func (p *Buffer) WriteRaw(b []byte) {
	if p.err != nil {
		return
	}
	p.buf = append(p.buf, b...)
}

func (p *Buffer) need(n int) bool {
	if p.err != nil {
		return false
	}
	if n < 0 || p.pos+n > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return false
	}
	return true
}

func (p *Buffer) ReadUint8() uint8 {
	if !p.need(1) {
		return 0
	}
	v := p.buf[p.pos]
	p.pos++
	return v
}

func (p *Buffer) ReadUint32() uint32 {
	if !p.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(p.buf[p.pos:])
	p.pos += 4
	return v
}

func (p *Buffer) ReadUint64() uint64 {
	if !p.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(p.buf[p.pos:])
	p.pos += 8
	return v
}

func (p *Buffer) ReadString() string {
	if !p.need(2) {
		return ""
	}
	l := int(binary.LittleEndian.Uint16(p.buf[p.pos:]))
	p.pos += 2
	if !p.need(l) {
		return ""
	}
	s := string(p.buf[p.pos : p.pos+l])
	p.pos += l
	return s
}

// ReadBytes reads a u32 length prefixed byte slice. The result aliases the buffer.
func (p *Buffer) ReadBytes() []byte {
	l := p.ReadUint32()
	return p.ReadRaw(int(l))
}

// ReadRaw reads n bytes. The result aliases the buffer.
func (p *Buffer) ReadRaw(n int) []byte {
	if !p.need(n) {
		return nil
	}
	b := p.buf[p.pos : p.pos+n : p.pos+n]
	p.pos += n
	return b
}
