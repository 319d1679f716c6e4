package index

import (
	"fmt"

	"github.com/hupe1980/blockidx/internal/hash"
	"github.com/hupe1980/blockidx/internal/wire"
	"github.com/hupe1980/blockidx/types"
)

const (
	indexMagic = 0x58444942 // "BIDX"

	maxTypeDepth = 32
)

// Marshal serializes the index:
//
//	magic (4) | version (8) | hasher (string)
//	nfields (4) | fields... (name string, type)
//	ncols (4) | columns... (name string, sourceIndex u32, filter bytes u32-prefixed)
//	crc32c (4)
//
// Strings are u16 length prefixed. Types are encoded as kind u8, nullable u8,
// ninner u8 followed by the inner types. The checksum covers every preceding byte.
// Distinct counts are build-time statistics and are not persisted.
func (bf *BlockFilter) Marshal() ([]byte, error) {
	w := wire.NewWriter(make([]byte, 0, 64+bf.SizeBytes()))
	w.WriteUint32(indexMagic)
	w.WriteUint64(uint64(bf.Version))
	w.WriteString(bf.hasher)

	w.WriteUint32(uint32(bf.SourceSchema.NumFields()))
	for _, f := range bf.SourceSchema.Fields {
		w.WriteString(f.Name)
		writeType(w, f.Type)
	}

	w.WriteUint32(uint32(len(bf.columns)))
	for _, c := range bf.columns {
		w.WriteString(c.name)
		w.WriteUint32(uint32(c.sourceIndex))
		w.WriteBytes(c.data)
	}
	if err := w.Err(); err != nil {
		return nil, err
	}

	return hash.AppendChecksum(w.Bytes()), nil
}

func writeType(w *wire.Buffer, t types.DataType) {
	w.WriteUint8(uint8(t.Kind))
	if t.Nullable {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
	w.WriteUint8(uint8(len(t.Inner)))
	for _, in := range t.Inner {
		writeType(w, in)
	}
}

func readType(r *wire.Buffer, depth int) (types.DataType, error) {
	if depth > maxTypeDepth {
		return types.DataType{}, fmt.Errorf("type nesting exceeds %d", maxTypeDepth)
	}
	t := types.DataType{
		Kind:     types.Kind(r.ReadUint8()),
		Nullable: r.ReadUint8() == 1,
	}
	n := int(r.ReadUint8())
	if err := r.Err(); err != nil {
		return t, err
	}
	if t.Kind > types.KindVariant {
		return t, fmt.Errorf("unknown kind %d", t.Kind)
	}
	for i := 0; i < n; i++ {
		in, err := readType(r, depth+1)
		if err != nil {
			return t, err
		}
		t.Inner = append(t.Inner, in)
	}
	return t, nil
}

// Load reconstructs an index from bytes produced by Marshal. Filters are decoded lazily
// on first use; a corrupt filter surfaces as an error from Evaluate.
func Load(data []byte) (*BlockFilter, error) {
	if len(data) < 4+8+2+4+4+4 {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(data))
	}
	body, ok := hash.VerifyChecksum(data)
	if !ok {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	r := wire.NewReader(body)
	if magic := r.ReadUint32(); magic != indexMagic {
		return nil, fmt.Errorf("%w: invalid magic %x", ErrCorrupt, magic)
	}
	version := Version(r.ReadUint64())
	if version != VersionV2 && version != VersionV3 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, version)
	}
	hasher := r.ReadString()

	nfields := int(r.ReadUint32())
	if nfields > r.Remaining() {
		return nil, fmt.Errorf("%w: field count %d exceeds payload", ErrCorrupt, nfields)
	}
	fields := make([]types.Field, 0, nfields)
	for i := 0; i < nfields; i++ {
		name := r.ReadString()
		t, err := readType(r, 0)
		if err != nil {
			return nil, fmt.Errorf("%w: field %d: %v", ErrCorrupt, i, err)
		}
		fields = append(fields, types.NewField(name, t))
	}

	ncols := int(r.ReadUint32())
	if ncols > r.Remaining() {
		return nil, fmt.Errorf("%w: column count %d exceeds payload", ErrCorrupt, ncols)
	}
	cols := make([]*column, 0, ncols)
	seen := make(map[string]struct{}, ncols)
	for i := 0; i < ncols; i++ {
		c := &column{
			name:        r.ReadString(),
			sourceIndex: int(r.ReadUint32()),
		}
		c.data = append([]byte(nil), r.ReadBytes()...)
		if r.Err() != nil {
			break
		}
		if c.sourceIndex >= nfields || fields[c.sourceIndex].Name != c.name {
			return nil, fmt.Errorf("%w: column %q does not match source field %d", ErrCorrupt, c.name, c.sourceIndex)
		}
		if _, dup := seen[c.name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrCorrupt, c.name)
		}
		seen[c.name] = struct{}{}
		cols = append(cols, c)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, r.Remaining())
	}

	bf := &BlockFilter{
		SourceSchema:        types.NewSchema(fields...),
		Version:             version,
		ColumnDistinctCount: map[int]int{},
		hasher:              hasher,
	}
	bf.init(cols)
	return bf, nil
}

// Unmarshal is an alias for Load.
func Unmarshal(data []byte) (*BlockFilter, error) {
	return Load(data)
}
