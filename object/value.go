// Package object implements in-place typed records: instances of a record
// type holding field storage, per-field touched/changed bits, parent links
// for nested objects, and the mutation surface used by the codecs and the
// REST engine.
//
// All mutations funnel through a single change-accounting path: the touched
// bit tracks presence, the changed bit is set when a value actually differs
// or a field transitions presence, and changes bubble up to the enclosing
// object so a root-level change hook can schedule notifications.
package object

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"

	"github.com/stratahq/strata/schema"
)

// Kind discriminates the variants of a Value.
type Kind int

// Value variants.
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindBytes
	KindObject
)

// Value is the tagged variant used to move field values between objects and
// codecs. The zero Value is null.
type Value struct {
	kind Kind
	num  uint64
	str  string
	raw  []byte
	obj  *Object
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(v bool) Value {
	var n uint64
	if v {
		n = 1
	}
	return Value{kind: KindBool, num: n}
}

// Int wraps a signed integer.
func Int(v int64) Value { return Value{kind: KindInt, num: uint64(v)} }

// Uint wraps an unsigned integer.
func Uint(v uint64) Value { return Value{kind: KindUint, num: v} }

// Float wraps a floating point number.
func Float(v float64) Value { return Value{kind: KindFloat, num: math.Float64bits(v)} }

// String wraps a string.
func String(v string) Value { return Value{kind: KindString, str: v} }

// Bytes wraps a byte slice. The slice is not copied.
func Bytes(v []byte) Value { return Value{kind: KindBytes, raw: v} }

// Obj wraps a nested object.
func Obj(o *Object) Value { return Value{kind: KindObject, obj: o} }

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean content.
func (v Value) AsBool() bool { return v.num != 0 }

// AsInt returns the signed integer content, converting numeric kinds.
func (v Value) AsInt() int64 {
	if v.kind == KindFloat {
		return int64(math.Float64frombits(v.num))
	}
	return int64(v.num)
}

// AsUint returns the unsigned integer content, converting numeric kinds.
func (v Value) AsUint() uint64 {
	if v.kind == KindFloat {
		return uint64(math.Float64frombits(v.num))
	}
	return v.num
}

// AsFloat returns the floating point content, converting numeric kinds.
func (v Value) AsFloat() float64 {
	switch v.kind {
	case KindFloat:
		return math.Float64frombits(v.num)
	case KindInt:
		return float64(int64(v.num))
	default:
		return float64(v.num)
	}
}

// AsString returns the string content.
func (v Value) AsString() string { return v.str }

// AsBytes returns the bytes content.
func (v Value) AsBytes() []byte { return v.raw }

// AsObject returns the nested object content.
func (v Value) AsObject() *Object { return v.obj }

// truncate clamps raw numeric bits to the field's storage width, keeping the
// canonical in-memory form: sign-extended for signed fields, zero-extended
// otherwise.
func truncate(f *schema.Field, bits uint64) uint64 {
	if f.Bits >= 64 || f.Bits == 0 {
		return bits
	}
	shift := uint(64 - f.Bits)
	if f.Type == schema.TypeSigned {
		return uint64(int64(bits<<shift) >> shift)
	}
	return bits << shift >> shift
}

// canonical converts v to the canonical numeric bit pattern for field f.
func canonical(f *schema.Field, v Value) uint64 {
	switch f.Type {
	case schema.TypeBool:
		if v.num != 0 {
			return 1
		}
		return 0
	case schema.TypeFloat:
		if f.Bits == 32 {
			return uint64(math.Float32bits(float32(v.AsFloat())))
		}
		return math.Float64bits(v.AsFloat())
	default:
		return truncate(f, v.num)
	}
}

// CheckRange verifies that a numeric value fits the field's width and its
// optional min/max bounds. Overflow is a typed error so decoders can map it
// to a 400.
func CheckRange(f *schema.Field, v Value) error {
	switch f.Type {
	case schema.TypeSigned:
		n := v.AsInt()
		if f.Bits < 64 {
			limit := int64(1) << uint(f.Bits-1)
			if n < -limit || n >= limit {
				return fmt.Errorf("%w: %s value %d exceeds %d bits", ErrOverflow, f.Label, n, f.Bits)
			}
		}
		return f.CheckBounds(float64(n))
	case schema.TypeUnsigned, schema.TypeEnum, schema.TypeBitmask:
		n := v.AsUint()
		if v.kind == KindInt && int64(n) < 0 {
			return fmt.Errorf("%w: %s negative value", ErrOverflow, f.Label)
		}
		if f.Bits < 64 && n >= 1<<uint(f.Bits) {
			return fmt.Errorf("%w: %s value %d exceeds %d bits", ErrOverflow, f.Label, n, f.Bits)
		}
		return f.CheckBounds(float64(n))
	case schema.TypeFloat:
		return f.CheckBounds(v.AsFloat())
	case schema.TypeString:
		if f.MaxLen > 0 && len(v.str) > f.MaxLen {
			return fmt.Errorf("%w: %s string length %d exceeds %d", ErrOverflow, f.Label, len(v.str), f.MaxLen)
		}
	case schema.TypeBytes:
		if f.MaxLen > 0 && len(v.raw) > f.MaxLen {
			return fmt.Errorf("%w: %s bytes length %d exceeds %d", ErrOverflow, f.Label, len(v.raw), f.MaxLen)
		}
	}
	return nil
}

// Format renders a stored value as the string form used by keyed path
// lookups (*key=value) and search completion.
func Format(f *schema.Field, v Value) string {
	switch f.Type {
	case schema.TypeBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case schema.TypeSigned:
		return strconv.FormatInt(v.AsInt(), 10)
	case schema.TypeUnsigned, schema.TypeBitmask:
		return strconv.FormatUint(v.AsUint(), 10)
	case schema.TypeEnum:
		if f.Enum != nil {
			if name, ok := f.Enum.NameOf(v.AsInt()); ok {
				return name
			}
		}
		return strconv.FormatInt(v.AsInt(), 10)
	case schema.TypeFloat:
		return strconv.FormatFloat(v.AsFloat(), 'g', -1, 64)
	case schema.TypeString:
		return v.str
	case schema.TypeBytes:
		return base64.StdEncoding.EncodeToString(v.raw)
	}
	return ""
}
