package schema

// FieldOption customizes a field added through the Builder.
type FieldOption func(*Field)

// Array gives the field repeated storage with the given capacity.
func Array(capacity int) FieldOption {
	return func(f *Field) { f.Capacity = capacity }
}

// ReadLevel sets the minimum level required to read the field.
func ReadLevel(l Level) FieldOption {
	return func(f *Field) { f.ReadLevel = l }
}

// WriteLevel sets the minimum level required to write the field.
func WriteLevel(l Level) FieldOption {
	return func(f *Field) { f.WriteLevel = l }
}

// Persisted marks the field for persistent-only views. Fields are
// persisted by default; this undoes a Volatile.
func Persisted() FieldOption {
	return func(f *Field) { f.Persisted = true }
}

// Volatile excludes the field from persistent-only views.
func Volatile() FieldOption {
	return func(f *Field) { f.Persisted = false }
}

// AlwaysNotify forces the changed bit on every decode of the field.
func AlwaysNotify() FieldOption {
	return func(f *Field) { f.AlwaysNotify = true }
}

// Bounds attaches numeric min/max validation to the field.
func Bounds(min, max float64) FieldOption {
	return func(f *Field) {
		lo, hi := min, max
		f.Min, f.Max = &lo, &hi
	}
}

// Tag overrides the wire tag, which otherwise equals the field index.
func Tag(tag int) FieldOption {
	return func(f *Field) { f.Tag = tag }
}

// Builder assembles a RecordType field by field. The identifier field is
// added implicitly at index 0.
type Builder struct {
	name   string
	fields []Field
	err    error
}

// NewBuilder starts a record type named name.
func NewBuilder(name string) *Builder {
	return &Builder{
		name: name,
		fields: []Field{{
			Label:     IDFieldLabel,
			Type:      TypeUnsigned,
			Bits:      64,
			Persisted: true,
		}},
	}
}

func (b *Builder) add(f Field, opts []FieldOption) *Builder {
	f.Persisted = true
	for _, opt := range opts {
		opt(&f)
	}
	b.fields = append(b.fields, f)
	return b
}

// Bool adds a boolean field.
func (b *Builder) Bool(label string, opts ...FieldOption) *Builder {
	return b.add(Field{Label: label, Type: TypeBool, Bits: 8}, opts)
}

// Signed adds a signed integer field of the given bit width.
func (b *Builder) Signed(label string, bits int, opts ...FieldOption) *Builder {
	return b.add(Field{Label: label, Type: TypeSigned, Bits: bits}, opts)
}

// Unsigned adds an unsigned integer field of the given bit width.
func (b *Builder) Unsigned(label string, bits int, opts ...FieldOption) *Builder {
	return b.add(Field{Label: label, Type: TypeUnsigned, Bits: bits}, opts)
}

// Float adds a floating point field of 32 or 64 bits.
func (b *Builder) Float(label string, bits int, opts ...FieldOption) *Builder {
	return b.add(Field{Label: label, Type: TypeFloat, Bits: bits}, opts)
}

// Enum adds an enumerated field backed by em.
func (b *Builder) Enum(label string, em *EnumMap, opts ...FieldOption) *Builder {
	return b.add(Field{Label: label, Type: TypeEnum, Bits: 32, Enum: em}, opts)
}

// Bitmask adds a bitmask field backed by em; each entry names a bit.
func (b *Builder) Bitmask(label string, em *EnumMap, bits int, opts ...FieldOption) *Builder {
	return b.add(Field{Label: label, Type: TypeBitmask, Bits: bits, Enum: em}, opts)
}

// String adds a string field bounded to maxLen bytes (0 = unbounded).
func (b *Builder) String(label string, maxLen int, opts ...FieldOption) *Builder {
	return b.add(Field{Label: label, Type: TypeString, MaxLen: maxLen}, opts)
}

// Bytes adds a bytes field bounded to maxLen bytes (0 = unbounded).
func (b *Builder) Bytes(label string, maxLen int, opts ...FieldOption) *Builder {
	return b.add(Field{Label: label, Type: TypeBytes, MaxLen: maxLen}, opts)
}

// Object adds a nested object field of the given record type.
func (b *Builder) Object(label string, sub *RecordType, opts ...FieldOption) *Builder {
	return b.add(Field{Label: label, Type: TypeObject, Sub: sub}, opts)
}

// Build validates and returns the record type.
func (b *Builder) Build() (*RecordType, error) {
	if b.err != nil {
		return nil, b.err
	}
	return NewRecordType(b.name, b.fields)
}

// MustBuild is Build that panics on error, for package-level schemas.
func (b *Builder) MustBuild() *RecordType {
	rt, err := b.Build()
	if err != nil {
		panic(err)
	}
	return rt
}
