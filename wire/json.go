package wire

import (
	"math"
	"strconv"

	"github.com/stratahq/strata/object"
	"github.com/stratahq/strata/schema"
	"github.com/stratahq/strata/stream"
)

// jsonTransport is the canonical JSON dispatch table.
type jsonTransport struct{}

func (jsonTransport) Name() string { return "json" }

func (jsonTransport) PerElementTags() bool { return false }

func (jsonTransport) EncodeTag(w *stream.Writer, f *schema.Field) error {
	if err := w.WriteByte('"'); err != nil {
		return err
	}
	if err := w.WriteString(f.Label); err != nil {
		return err
	}
	return w.WriteString(`":`)
}

func (jsonTransport) EncodeNull(w *stream.Writer, f *schema.Field) error {
	return w.WriteString("null")
}

func (t jsonTransport) EncodeValue(w *stream.Writer, f *schema.Field, v object.Value) error {
	switch f.Type {
	case schema.TypeBool:
		if v.AsBool() {
			return w.WriteString("true")
		}
		return w.WriteString("false")

	case schema.TypeSigned:
		return w.WriteString(strconv.FormatInt(v.AsInt(), 10))

	case schema.TypeUnsigned:
		return w.WriteString(strconv.FormatUint(v.AsUint(), 10))

	case schema.TypeFloat:
		return w.WriteString(formatFloat(f, v.AsFloat()))

	case schema.TypeEnum:
		if f.Enum != nil {
			if name, ok := f.Enum.NameOf(v.AsInt()); ok {
				return writeJSONString(w, name)
			}
		}
		return w.WriteString(strconv.FormatInt(v.AsInt(), 10))

	case schema.TypeBitmask:
		return t.encodeBitmask(w, f, v.AsUint())

	case schema.TypeString:
		return writeJSONString(w, v.AsString())

	case schema.TypeBytes:
		if err := w.WriteByte('"'); err != nil {
			return err
		}
		if err := w.WriteBase64(v.AsBytes()); err != nil {
			return err
		}
		return w.WriteByte('"')
	}
	return w.Errorf("cannot encode %s field %s", f.Type, f.Label)
}

// encodeBitmask renders the set bits as an array of their names.
func (jsonTransport) encodeBitmask(w *stream.Writer, f *schema.Field, bits uint64) error {
	if f.Enum == nil {
		return w.Errorf("bitmask field %s has no enum map", f.Label)
	}
	if err := w.WriteByte('['); err != nil {
		return err
	}
	emitted := 0
	for _, e := range f.Enum.Entries() {
		if bits&(1<<uint(e.Value)) == 0 {
			continue
		}
		if emitted > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		emitted++
		if err := writeJSONString(w, e.Name); err != nil {
			return err
		}
	}
	return w.WriteByte(']')
}

func (jsonTransport) EncodeObject(w *stream.Writer, f *schema.Field, o *object.Object, enc EncodeFunc) error {
	return enc(w, o)
}

func (jsonTransport) BeginMessage(w *stream.Writer) error { return w.WriteByte('{') }
func (jsonTransport) EndMessage(w *stream.Writer) error   { return w.WriteByte('}') }

func (jsonTransport) BeginArray(w *stream.Writer, f *schema.Field) error { return w.WriteByte('[') }
func (jsonTransport) EndArray(w *stream.Writer) error                    { return w.WriteByte(']') }

func (jsonTransport) NextElement(w *stream.Writer, index int) error {
	if index > 0 {
		return w.WriteByte(',')
	}
	return nil
}

// EncodeExtra appends the stream's trailing (name, value) pair.
func (jsonTransport) EncodeExtra(w *stream.Writer, name, value string) error {
	if err := writeJSONString(w, name); err != nil {
		return err
	}
	if err := w.WriteByte(':'); err != nil {
		return err
	}
	return writeJSONString(w, value)
}

// formatFloat renders floats compactly: 32-bit values shortest-form, 64-bit
// integral values below 1e15 without a fraction, other magnitudes outside
// [1e-6, 1e9] in exponent form, everything else shortest-form.
func formatFloat(f *schema.Field, d float64) string {
	if f.Bits == 32 {
		return strconv.FormatFloat(d, 'g', -1, 32)
	}
	abs := math.Abs(d)
	switch {
	case math.Floor(d) == d && abs < 1e15:
		return strconv.FormatFloat(d, 'f', 0, 64)
	case abs != 0 && (abs < 1e-6 || abs > 1e9):
		return strconv.FormatFloat(d, 'e', -1, 64)
	default:
		return strconv.FormatFloat(d, 'g', -1, 64)
	}
}

// writeJSONString quotes s with the canonical escape set.
func writeJSONString(w *stream.Writer, s string) error {
	if err := w.WriteByte('"'); err != nil {
		return err
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			err := w.WriteString(`\\`)
			if err != nil {
				return err
			}
		case '"':
			err := w.WriteString(`\"`)
			if err != nil {
				return err
			}
		case '\n':
			err := w.WriteString(`\n`)
			if err != nil {
				return err
			}
		case '\r':
			err := w.WriteString(`\r`)
			if err != nil {
				return err
			}
		case '\t':
			err := w.WriteString(`\t`)
			if err != nil {
				return err
			}
		case '\b':
			err := w.WriteString(`\b`)
			if err != nil {
				return err
			}
		case '\f':
			err := w.WriteString(`\f`)
			if err != nil {
				return err
			}
		default:
			if err := w.WriteByte(c); err != nil {
				return err
			}
		}
	}
	return w.WriteByte('"')
}
