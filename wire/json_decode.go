package wire

import (
	"io"
	"strconv"
	"strings"

	"github.com/stratahq/strata/object"
	"github.com/stratahq/strata/schema"
	"github.com/stratahq/strata/stream"
)

const (
	maxLabelLength        = 128
	maxUnknownFieldLength = 4096
)

func skipWhitespace(r *stream.Reader) error {
	for {
		c, err := r.Peek()
		if err != nil {
			return err
		}
		switch c {
		case ' ', '\t', '\n', '\r':
			if _, err := r.ReadByte(); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func expectByte(r *stream.Reader, want byte) error {
	c, err := r.ReadByte()
	if err != nil {
		return r.Errorf("unexpected end of input, wanted %q", want)
	}
	if c != want {
		return r.Errorf("unexpected character %q, wanted %q", c, want)
	}
	return nil
}

// readLiteral consumes an exact keyword such as "null" or "true".
func readLiteral(r *stream.Reader, lit string) error {
	for i := 0; i < len(lit); i++ {
		c, err := r.ReadByte()
		if err != nil || c != lit[i] {
			return r.Errorf("invalid literal, wanted %q", lit)
		}
	}
	return nil
}

func (jsonTransport) BeginDecodeMessage(r *stream.Reader) error {
	if err := skipWhitespace(r); err != nil {
		return r.Fail(err)
	}
	return expectByte(r, '{')
}

func (jsonTransport) MessageEOF(r *stream.Reader) (bool, error) {
	if err := skipWhitespace(r); err != nil {
		return false, r.Errorf("unterminated object")
	}
	c, err := r.Peek()
	if err != nil {
		return false, r.Errorf("unterminated object")
	}
	if c == '}' {
		_, _ = r.ReadByte()
		return true, nil
	}
	return false, nil
}

func (jsonTransport) NextDecodeMember(r *stream.Reader, first bool) error {
	if first {
		return nil
	}
	if err := skipWhitespace(r); err != nil {
		return r.Fail(err)
	}
	return expectByte(r, ',')
}

func (t jsonTransport) DecodeTag(r *stream.Reader, rt *schema.RecordType) (int, WireType, error) {
	if err := skipWhitespace(r); err != nil {
		return 0, 0, r.Fail(err)
	}
	label, err := readQuotedString(r, maxLabelLength)
	if err != nil {
		return 0, 0, err
	}
	if err := skipWhitespace(r); err != nil {
		return 0, 0, r.Fail(err)
	}
	if err := expectByte(r, ':'); err != nil {
		return 0, 0, err
	}

	if f, ok := rt.FieldByLabel(label); ok {
		return f.Tag, 0, nil
	}

	// Unknown field: capture the raw value so the handler may consume it;
	// either way the body has been read past.
	raw, err := readRawValue(r, maxUnknownFieldLength)
	if err != nil {
		return 0, 0, err
	}
	if r.Unknown != nil {
		r.Unknown(label, raw)
	}
	return TagHandled, 0, nil
}

func (jsonTransport) SkipField(r *stream.Reader, wt WireType) error {
	_, err := readRawValue(r, maxUnknownFieldLength)
	return err
}

func (t jsonTransport) DecodeValue(r *stream.Reader, f *schema.Field, current object.Value) (object.Value, error) {
	if err := skipWhitespace(r); err != nil {
		return object.Null(), r.Errorf("missing value for %s", f.Label)
	}
	c, err := r.Peek()
	if err != nil {
		return object.Null(), r.Errorf("missing value for %s", f.Label)
	}

	if c == 'n' {
		if err := readLiteral(r, "null"); err != nil {
			return object.Null(), err
		}
		r.FieldNulled = true
		return object.Null(), nil
	}

	switch f.Type {
	case schema.TypeBool:
		if c == 't' {
			return object.Bool(true), readLiteral(r, "true")
		}
		if c == 'f' {
			return object.Bool(false), readLiteral(r, "false")
		}
		return object.Null(), r.Errorf("invalid boolean for %s", f.Label)

	case schema.TypeSigned:
		tok, err := readNumberToken(r)
		if err != nil {
			return object.Null(), err
		}
		n, perr := strconv.ParseInt(tok, 10, 64)
		if perr != nil {
			return object.Null(), r.Errorf("invalid integer %q for %s", tok, f.Label)
		}
		return object.Int(n), nil

	case schema.TypeUnsigned:
		tok, err := readNumberToken(r)
		if err != nil {
			return object.Null(), err
		}
		n, perr := strconv.ParseUint(tok, 10, 64)
		if perr != nil {
			return object.Null(), r.Errorf("invalid integer %q for %s", tok, f.Label)
		}
		return object.Uint(n), nil

	case schema.TypeFloat:
		tok, err := readNumberToken(r)
		if err != nil {
			return object.Null(), err
		}
		d, perr := strconv.ParseFloat(tok, 64)
		if perr != nil {
			return object.Null(), r.Errorf("invalid number %q for %s", tok, f.Label)
		}
		return object.Float(d), nil

	case schema.TypeEnum:
		return t.decodeEnum(r, f, c)

	case schema.TypeBitmask:
		return t.decodeBitmask(r, f, current, c)

	case schema.TypeString:
		s, err := readQuotedString(r, maxStringLen(f))
		if err != nil {
			return object.Null(), err
		}
		return object.String(s), nil

	case schema.TypeBytes:
		s, err := readQuotedString(r, 0)
		if err != nil {
			return object.Null(), err
		}
		b, derr := stream.DecodeBase64(s)
		if derr != nil {
			return object.Null(), r.Errorf("invalid base64 for %s", f.Label)
		}
		return object.Bytes(b), nil
	}

	return object.Null(), r.Errorf("cannot decode %s field %s", f.Type, f.Label)
}

func maxStringLen(f *schema.Field) int {
	if f.MaxLen > 0 {
		// leave overflow detection to range checking
		return f.MaxLen + 1
	}
	return 0
}

// decodeEnum accepts an in-map numeric value or an (optionally quoted)
// name, matched case-insensitively as a fallback.
func (jsonTransport) decodeEnum(r *stream.Reader, f *schema.Field, c byte) (object.Value, error) {
	if f.Enum == nil {
		return object.Null(), r.Errorf("enum field %s has no enum map", f.Label)
	}

	if c == '-' || (c >= '0' && c <= '9') {
		tok, err := readNumberToken(r)
		if err != nil {
			return object.Null(), err
		}
		n, perr := strconv.ParseInt(tok, 10, 64)
		if perr != nil || !f.Enum.Contains(n) {
			return object.Null(), r.Errorf("enum value %q not valid for %s", tok, f.Label)
		}
		return object.Int(n), nil
	}

	name, err := readRelaxedString(r, maxLabelLength)
	if err != nil {
		return object.Null(), err
	}
	if v, ok := f.Enum.Value(name); ok {
		return object.Int(v), nil
	}
	for _, e := range f.Enum.Entries() {
		if strings.EqualFold(e.Name, name) {
			return object.Int(e.Value), nil
		}
	}
	return object.Null(), r.Errorf("%q not in enum for %s", name, f.Label)
}

// decodeBitmask accepts a numeric value, an array of set names, or an
// object of booleans applied onto the current bits.
func (jsonTransport) decodeBitmask(r *stream.Reader, f *schema.Field, current object.Value, c byte) (object.Value, error) {
	if f.Enum == nil {
		return object.Null(), r.Errorf("bitmask field %s has no enum map", f.Label)
	}

	switch {
	case c == '-' || (c >= '0' && c <= '9'):
		tok, err := readNumberToken(r)
		if err != nil {
			return object.Null(), err
		}
		n, perr := strconv.ParseUint(tok, 10, 64)
		if perr != nil {
			return object.Null(), r.Errorf("invalid bitmask %q for %s", tok, f.Label)
		}
		return object.Uint(n), nil

	case c == '[':
		// array of set names replaces the mask
		if _, err := r.ReadByte(); err != nil {
			return object.Null(), r.Fail(err)
		}
		var bits uint64
		first := true
		for {
			if err := skipWhitespace(r); err != nil {
				return object.Null(), r.Errorf("unterminated bitmask for %s", f.Label)
			}
			nc, err := r.Peek()
			if err != nil {
				return object.Null(), r.Errorf("unterminated bitmask for %s", f.Label)
			}
			if nc == ']' {
				_, _ = r.ReadByte()
				return object.Uint(bits), nil
			}
			if !first {
				if err := expectByte(r, ','); err != nil {
					return object.Null(), err
				}
				if err := skipWhitespace(r); err != nil {
					return object.Null(), r.Fail(err)
				}
			}
			first = false
			name, err := readQuotedString(r, maxLabelLength)
			if err != nil {
				return object.Null(), err
			}
			bit, ok := f.Enum.Value(name)
			if !ok {
				return object.Null(), r.Errorf("%q not in bitmask for %s", name, f.Label)
			}
			bits |= 1 << uint(bit)
		}

	case c == '{':
		// object-of-booleans updates named bits on the current value
		if _, err := r.ReadByte(); err != nil {
			return object.Null(), r.Fail(err)
		}
		bits := current.AsUint()
		first := true
		for {
			if err := skipWhitespace(r); err != nil {
				return object.Null(), r.Errorf("unterminated bitmask for %s", f.Label)
			}
			nc, err := r.Peek()
			if err != nil {
				return object.Null(), r.Errorf("unterminated bitmask for %s", f.Label)
			}
			if nc == '}' {
				_, _ = r.ReadByte()
				return object.Uint(bits), nil
			}
			if !first {
				if err := expectByte(r, ','); err != nil {
					return object.Null(), err
				}
				if err := skipWhitespace(r); err != nil {
					return object.Null(), r.Fail(err)
				}
			}
			first = false
			name, err := readQuotedString(r, maxLabelLength)
			if err != nil {
				return object.Null(), err
			}
			if err := skipWhitespace(r); err != nil {
				return object.Null(), r.Fail(err)
			}
			if err := expectByte(r, ':'); err != nil {
				return object.Null(), err
			}
			if err := skipWhitespace(r); err != nil {
				return object.Null(), r.Fail(err)
			}
			bc, err := r.Peek()
			if err != nil {
				return object.Null(), r.Errorf("unterminated bitmask for %s", f.Label)
			}
			var on bool
			switch bc {
			case 't':
				if err := readLiteral(r, "true"); err != nil {
					return object.Null(), err
				}
				on = true
			case 'f':
				if err := readLiteral(r, "false"); err != nil {
					return object.Null(), err
				}
			default:
				return object.Null(), r.Errorf("invalid boolean in bitmask for %s", f.Label)
			}
			bit, ok := f.Enum.Value(name)
			if !ok {
				return object.Null(), r.Errorf("%q not in bitmask for %s", name, f.Label)
			}
			if on {
				bits |= 1 << uint(bit)
			} else {
				bits &^= 1 << uint(bit)
			}
		}
	}

	return object.Null(), r.Errorf("invalid bitmask for %s", f.Label)
}

func (jsonTransport) DecodeObject(r *stream.Reader, f *schema.Field, o *object.Object, dec DecodeFunc, init bool) error {
	if err := skipWhitespace(r); err != nil {
		return r.Errorf("missing object for %s", f.Label)
	}
	c, err := r.Peek()
	if err != nil {
		return r.Errorf("missing object for %s", f.Label)
	}
	if c == 'n' {
		if err := readLiteral(r, "null"); err != nil {
			return err
		}
		r.FieldNulled = true
		return nil
	}
	return dec(r, o, init)
}

func (jsonTransport) BeginDecodeArray(r *stream.Reader, f *schema.Field) error {
	if err := skipWhitespace(r); err != nil {
		return r.Errorf("missing array for %s", f.Label)
	}
	c, err := r.Peek()
	if err != nil {
		return r.Errorf("missing array for %s", f.Label)
	}
	if c == 'n' {
		if err := readLiteral(r, "null"); err != nil {
			return err
		}
		r.FieldNulled = true
		return nil
	}
	return expectByte(r, '[')
}

func (jsonTransport) ArrayEOF(r *stream.Reader) (bool, error) {
	if r.FieldNulled {
		return true, nil
	}
	if err := skipWhitespace(r); err != nil {
		return false, r.Errorf("unterminated array")
	}
	c, err := r.Peek()
	if err != nil {
		return false, r.Errorf("unterminated array")
	}
	if c == ']' {
		_, _ = r.ReadByte()
		return true, nil
	}
	return false, nil
}

func (jsonTransport) NextArrayElement(r *stream.Reader, first bool) error {
	if first {
		return nil
	}
	if err := skipWhitespace(r); err != nil {
		return r.Fail(err)
	}
	return expectByte(r, ',')
}

// readQuotedString reads a quoted string honoring the canonical escapes.
// maxLen of 0 means unbounded.
func readQuotedString(r *stream.Reader, maxLen int) (string, error) {
	if err := skipWhitespace(r); err != nil {
		return "", r.Errorf("missing string")
	}
	if err := expectByte(r, '"'); err != nil {
		return "", err
	}
	var sb strings.Builder
	for {
		c, err := r.ReadByte()
		if err != nil {
			return "", r.Errorf("unterminated string")
		}
		if c == '"' {
			return sb.String(), nil
		}
		if c == '\\' {
			e, err := r.ReadByte()
			if err != nil {
				return "", r.Errorf("unterminated string")
			}
			switch e {
			case '"', '\\', '/':
				sb.WriteByte(e)
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			case 'u':
				var code uint32
				for i := 0; i < 4; i++ {
					h, err := r.ReadByte()
					if err != nil {
						return "", r.Errorf("unterminated string")
					}
					d, ok := hexDigit(h)
					if !ok {
						return "", r.Errorf("invalid unicode escape")
					}
					code = code<<4 | uint32(d)
				}
				sb.WriteRune(rune(code))
			default:
				return "", r.Errorf("invalid escape \\%c", e)
			}
		} else {
			sb.WriteByte(c)
		}
		if maxLen > 0 && sb.Len() > maxLen {
			return "", r.Errorf("string overflow")
		}
	}
}

// readRelaxedString accepts a quoted string or a bare token ending at a
// JSON delimiter, for tolerant enum parsing.
func readRelaxedString(r *stream.Reader, maxLen int) (string, error) {
	c, err := r.Peek()
	if err != nil {
		return "", r.Errorf("missing value")
	}
	if c == '"' {
		return readQuotedString(r, maxLen)
	}
	var sb strings.Builder
	for {
		c, err := r.Peek()
		if err != nil {
			break
		}
		if c == ',' || c == '}' || c == ']' || c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			break
		}
		_, _ = r.ReadByte()
		sb.WriteByte(c)
		if maxLen > 0 && sb.Len() > maxLen {
			return "", r.Errorf("token overflow")
		}
	}
	if sb.Len() == 0 {
		return "", r.Errorf("missing value")
	}
	return sb.String(), nil
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func readNumberToken(r *stream.Reader) (string, error) {
	var sb strings.Builder
	for {
		c, err := r.Peek()
		if err != nil {
			if err == io.EOF && sb.Len() > 0 {
				break
			}
			return "", r.Errorf("missing number")
		}
		if (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E' {
			_, _ = r.ReadByte()
			sb.WriteByte(c)
			continue
		}
		break
	}
	if sb.Len() == 0 {
		return "", r.Errorf("missing number")
	}
	return sb.String(), nil
}

// readRawValue consumes one JSON value of any shape and returns its text,
// used for unknown-field capture and for skipping filtered fields.
func readRawValue(r *stream.Reader, maxLen int) (string, error) {
	if err := skipWhitespace(r); err != nil {
		return "", r.Errorf("missing value")
	}
	var sb strings.Builder
	depth := 0
	inString := false
	escaped := false
	for {
		c, err := r.Peek()
		if err != nil {
			if depth == 0 && !inString && sb.Len() > 0 {
				return sb.String(), nil
			}
			return "", r.Errorf("unterminated value")
		}

		if !inString && depth == 0 && sb.Len() > 0 {
			if c == ',' || c == '}' || c == ']' {
				return sb.String(), nil
			}
		}

		_, _ = r.ReadByte()
		sb.WriteByte(c)
		if maxLen > 0 && sb.Len() > maxLen {
			return "", r.Errorf("value overflow")
		}

		switch {
		case escaped:
			escaped = false
		case inString:
			if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
				if depth == 0 {
					return sb.String(), nil
				}
			}
		case c == '"':
			inString = true
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
			if depth == 0 {
				return sb.String(), nil
			}
		}
	}
}
