package types

// Field is a named, typed column of a schema.
type Field struct {
	Name string   `json:"name" cbor:"1,keyasint"`
	Type DataType `json:"type" cbor:"2,keyasint"`
}

// NewField creates a field.
func NewField(name string, t DataType) Field {
	return Field{Name: name, Type: t}
}

// Schema is an ordered list of fields.
type Schema struct {
	Fields []Field `json:"fields" cbor:"1,keyasint"`
}

// NewSchema creates a schema from the given fields.
func NewSchema(fields ...Field) Schema {
	return Schema{Fields: fields}
}

// NumFields returns the number of fields.
func (s Schema) NumFields() int { return len(s.Fields) }

// Field returns the i-th field.
func (s Schema) Field(i int) Field { return s.Fields[i] }

// IndexOf returns the position of the field with the given name.
func (s Schema) IndexOf(name string) (int, bool) {
	for i, f := range s.Fields {
		if f.Name == name {
			return i, true
		}
	}
	return -1, false
}

// HasField reports whether the schema contains a field with the given name.
func (s Schema) HasField(name string) bool {
	_, ok := s.IndexOf(name)
	return ok
}

// FieldByName returns the field with the given name.
func (s Schema) FieldByName(name string) (Field, bool) {
	if i, ok := s.IndexOf(name); ok {
		return s.Fields[i], true
	}
	return Field{}, false
}

// Clone returns a deep copy of the schema.
func (s Schema) Clone() Schema {
	if s.Fields == nil {
		return Schema{}
	}
	out := make([]Field, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = Field{Name: f.Name, Type: cloneType(f.Type)}
	}
	return Schema{Fields: out}
}

// Equal reports whether two schemas have the same fields in the same order.
func (s Schema) Equal(o Schema) bool {
	if len(s.Fields) != len(o.Fields) {
		return false
	}
	for i := range s.Fields {
		if s.Fields[i].Name != o.Fields[i].Name || !s.Fields[i].Type.Equal(o.Fields[i].Type) {
			return false
		}
	}
	return true
}

func cloneType(t DataType) DataType {
	if len(t.Inner) == 0 {
		return t
	}
	inner := make([]DataType, len(t.Inner))
	for i, in := range t.Inner {
		inner[i] = cloneType(in)
	}
	t.Inner = inner
	return t
}
