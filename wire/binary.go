package wire

import (
	"io"
	"math"

	"github.com/stratahq/strata/object"
	"github.com/stratahq/strata/schema"
	"github.com/stratahq/strata/stream"
)

// binaryTransport is the length-delimited binary dispatch table. Fields are
// emitted as (tag<<3 | wire-type) varints followed by a varint, a
// length-delimited body, or a fixed-width little-endian value. Signed
// fields use zigzag varints; nested messages are length-prefixed; repeated
// fields carry one tag per element.
type binaryTransport struct{}

func (binaryTransport) Name() string { return "binary" }

func (binaryTransport) PerElementTags() bool { return true }

// wireTypeOf maps a semantic type to its binary wire type.
func wireTypeOf(f *schema.Field) WireType {
	switch f.Type {
	case schema.TypeFloat:
		if f.Bits == 32 {
			return WireFixed32
		}
		return WireFixed64
	case schema.TypeString, schema.TypeBytes, schema.TypeObject:
		return WireBytes
	default:
		return WireVarint
	}
}

func writeUvarint(w *stream.Writer, v uint64) error {
	var buf [10]byte
	n := 0
	for v >= 0x80 {
		buf[n] = byte(v) | 0x80
		v >>= 7
		n++
	}
	buf[n] = byte(v)
	_, err := w.Write(buf[:n+1])
	return err
}

func readUvarint(r *stream.Reader) (uint64, error) {
	var v uint64
	var shift uint
	for i := 0; i < 10; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7F) << shift
		if b < 0x80 {
			return v, nil
		}
		shift += 7
	}
	return 0, r.Errorf("varint overflow")
}

// zigzag folds signed values into unsigned varint space.
func zigzag(v int64) uint64 { return uint64(v<<1) ^ uint64(v>>63) }

func unzigzag(v uint64) int64 { return int64(v>>1) ^ -int64(v&1) }

func writeFixed32(w *stream.Writer, v uint32) error {
	_, err := w.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
	return err
}

func writeFixed64(w *stream.Writer, v uint64) error {
	_, err := w.Write([]byte{
		byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
		byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56),
	})
	return err
}

func readFixed32(r *stream.Reader) (uint32, error) {
	var b [4]byte
	if err := r.ReadFull(b[:]); err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

func readFixed64(r *stream.Reader) (uint64, error) {
	var b [8]byte
	if err := r.ReadFull(b[:]); err != nil {
		return 0, err
	}
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56, nil
}

func (binaryTransport) EncodeTag(w *stream.Writer, f *schema.Field) error {
	return writeUvarint(w, uint64(f.Tag)<<3|uint64(wireTypeOf(f)))
}

// EncodeNull keeps the stream shaped for a cleared field: zero varints and
// empty delimited bodies.
func (binaryTransport) EncodeNull(w *stream.Writer, f *schema.Field) error {
	switch wireTypeOf(f) {
	case WireFixed32:
		return writeFixed32(w, 0)
	case WireFixed64:
		return writeFixed64(w, 0)
	case WireBytes:
		return writeUvarint(w, 0)
	default:
		return writeUvarint(w, 0)
	}
}

func (binaryTransport) EncodeValue(w *stream.Writer, f *schema.Field, v object.Value) error {
	switch f.Type {
	case schema.TypeBool:
		var n uint64
		if v.AsBool() {
			n = 1
		}
		return writeUvarint(w, n)
	case schema.TypeSigned:
		return writeUvarint(w, zigzag(v.AsInt()))
	case schema.TypeUnsigned, schema.TypeEnum, schema.TypeBitmask:
		return writeUvarint(w, v.AsUint())
	case schema.TypeFloat:
		if f.Bits == 32 {
			return writeFixed32(w, math.Float32bits(float32(v.AsFloat())))
		}
		return writeFixed64(w, math.Float64bits(v.AsFloat()))
	case schema.TypeString:
		s := v.AsString()
		if err := writeUvarint(w, uint64(len(s))); err != nil {
			return err
		}
		return w.WriteString(s)
	case schema.TypeBytes:
		b := v.AsBytes()
		if err := writeUvarint(w, uint64(len(b))); err != nil {
			return err
		}
		_, err := w.Write(b)
		return err
	}
	return w.Errorf("cannot encode %s field %s", f.Type, f.Label)
}

// EncodeObject length-prefixes a nested message: the body is first sized
// against a counting stream, then written and verified against that size.
func (binaryTransport) EncodeObject(w *stream.Writer, f *schema.Field, o *object.Object, enc EncodeFunc) error {
	sizer := stream.NewSizer()
	sizer.Access = w.Access
	if err := enc(sizer, o); err != nil {
		return w.Errorf("sizing %s: %v", f.Label, err)
	}
	size := sizer.Count()

	if err := writeUvarint(w, uint64(size)); err != nil {
		return err
	}
	before := w.Count()
	if err := enc(w, o); err != nil {
		return err
	}
	if w.Count()-before != size {
		return w.Errorf("submessage %s size mismatch: sized %d wrote %d", f.Label, size, w.Count()-before)
	}
	return nil
}

func (binaryTransport) BeginMessage(w *stream.Writer) error { return nil }
func (binaryTransport) EndMessage(w *stream.Writer) error   { return nil }

func (binaryTransport) BeginArray(w *stream.Writer, f *schema.Field) error { return nil }
func (binaryTransport) EndArray(w *stream.Writer) error                    { return nil }
func (binaryTransport) NextElement(w *stream.Writer, index int) error      { return nil }

func (binaryTransport) BeginDecodeMessage(r *stream.Reader) error { return nil }

func (binaryTransport) MessageEOF(r *stream.Reader) (bool, error) {
	if r.Remaining() == 0 {
		return true, nil
	}
	if _, err := r.Peek(); err != nil {
		if err == io.EOF {
			return true, nil
		}
		return false, r.Fail(err)
	}
	return false, nil
}

func (binaryTransport) NextDecodeMember(r *stream.Reader, first bool) error { return nil }

func (binaryTransport) DecodeTag(r *stream.Reader, rt *schema.RecordType) (int, WireType, error) {
	key, err := readUvarint(r)
	if err != nil {
		return 0, 0, r.Errorf("bad field key")
	}
	return int(key >> 3), WireType(key & 7), nil
}

func (binaryTransport) SkipField(r *stream.Reader, wt WireType) error {
	switch wt {
	case WireVarint:
		_, err := readUvarint(r)
		return err
	case WireFixed32:
		return r.Skip(4)
	case WireFixed64:
		return r.Skip(8)
	case WireBytes:
		n, err := readUvarint(r)
		if err != nil {
			return err
		}
		return r.Skip(int(n))
	}
	return r.Errorf("unknown wire type %d", wt)
}

func (binaryTransport) DecodeValue(r *stream.Reader, f *schema.Field, current object.Value) (object.Value, error) {
	switch f.Type {
	case schema.TypeBool:
		n, err := readUvarint(r)
		if err != nil {
			return object.Null(), r.Errorf("bad boolean for %s", f.Label)
		}
		return object.Bool(n != 0), nil
	case schema.TypeSigned:
		n, err := readUvarint(r)
		if err != nil {
			return object.Null(), r.Errorf("bad varint for %s", f.Label)
		}
		return object.Int(unzigzag(n)), nil
	case schema.TypeUnsigned, schema.TypeEnum, schema.TypeBitmask:
		n, err := readUvarint(r)
		if err != nil {
			return object.Null(), r.Errorf("bad varint for %s", f.Label)
		}
		if f.Type == schema.TypeEnum {
			return object.Int(int64(n)), nil
		}
		return object.Uint(n), nil
	case schema.TypeFloat:
		if f.Bits == 32 {
			n, err := readFixed32(r)
			if err != nil {
				return object.Null(), r.Errorf("bad fixed32 for %s", f.Label)
			}
			return object.Float(float64(math.Float32frombits(n))), nil
		}
		n, err := readFixed64(r)
		if err != nil {
			return object.Null(), r.Errorf("bad fixed64 for %s", f.Label)
		}
		return object.Float(math.Float64frombits(n)), nil
	case schema.TypeString:
		b, err := readDelimited(r)
		if err != nil {
			return object.Null(), r.Errorf("bad string for %s", f.Label)
		}
		return object.String(string(b)), nil
	case schema.TypeBytes:
		b, err := readDelimited(r)
		if err != nil {
			return object.Null(), r.Errorf("bad bytes for %s", f.Label)
		}
		return object.Bytes(b), nil
	}
	return object.Null(), r.Errorf("cannot decode %s field %s", f.Type, f.Label)
}

func readDelimited(r *stream.Reader) ([]byte, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if err := r.ReadFull(b); err != nil {
		return nil, err
	}
	return b, nil
}

// DecodeObject opens the length-delimited region of a nested message and
// rejoins the byte accounting on close.
func (binaryTransport) DecodeObject(r *stream.Reader, f *schema.Field, o *object.Object, dec DecodeFunc, init bool) error {
	n, err := readUvarint(r)
	if err != nil {
		return r.Errorf("bad submessage length for %s", f.Label)
	}
	if err := r.PushLimit(int(n)); err != nil {
		return err
	}
	if err := dec(r, o, init); err != nil {
		return err
	}
	return r.PopLimit()
}

func (binaryTransport) BeginDecodeArray(r *stream.Reader, f *schema.Field) error { return nil }
func (binaryTransport) ArrayEOF(r *stream.Reader) (bool, error)                  { return true, nil }
func (binaryTransport) NextArrayElement(r *stream.Reader, first bool) error      { return nil }
