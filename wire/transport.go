// Package wire implements the streaming codecs: a canonical JSON transport
// and a length-delimited binary transport, both driven by the same schema
// and the same encode/decode drivers.
//
// A Transport is the dispatch table of one wire format. The drivers walk an
// object's record type, consult the touched/changed mask and the stream's
// access filter, and call transport methods for tags, scalar values,
// message and array contexts, and nested objects. Switching formats is
// swapping the transport.
package wire

import (
	"errors"

	"github.com/stratahq/strata/object"
	"github.com/stratahq/strata/schema"
	"github.com/stratahq/strata/stream"
)

// Sentinel errors for programmatic error handling.
// Use errors.Is() to check for these error types.
var (
	// ErrDecode indicates malformed input for the active transport.
	ErrDecode = errors.New("decode error")

	// ErrEncode indicates the object could not be rendered.
	ErrEncode = errors.New("encode error")
)

// WireType is the binary transport's field encoding discriminator.
type WireType int

// Binary wire types, protobuf-compatible.
const (
	WireVarint  WireType = 0
	WireFixed64 WireType = 1
	WireBytes   WireType = 2
	WireFixed32 WireType = 5
)

// Special tags returned by DecodeTag.
const (
	// TagUnknown marks a field not present in the schema; the driver skips
	// its body via SkipField.
	TagUnknown = -1

	// TagHandled marks a field already consumed by the transport (for
	// example handed to the unknown-field callback).
	TagHandled = -2
)

// EncodeFunc encodes a whole object; transports receive it to recurse into
// nested messages under their own framing.
type EncodeFunc func(*stream.Writer, *object.Object) error

// DecodeFunc decodes a whole object; the init flag resets the target to
// defaults first.
type DecodeFunc func(*stream.Reader, *object.Object, bool) error

// Transport is the per-format dispatch table shared by the encode and
// decode drivers.
type Transport interface {
	// Name identifies the format ("json", "binary").
	Name() string

	// EncodeTag emits the field tag or label.
	EncodeTag(w *stream.Writer, f *schema.Field) error

	// EncodeNull emits an explicit null for a cleared field.
	EncodeNull(w *stream.Writer, f *schema.Field) error

	// EncodeValue emits one scalar value.
	EncodeValue(w *stream.Writer, f *schema.Field, v object.Value) error

	// EncodeObject frames one nested object, delegating its body to enc.
	EncodeObject(w *stream.Writer, f *schema.Field, o *object.Object, enc EncodeFunc) error

	// BeginMessage and EndMessage frame an object body.
	BeginMessage(w *stream.Writer) error
	EndMessage(w *stream.Writer) error

	// BeginArray, EndArray and NextElement frame repeated fields on
	// formats that pack them.
	BeginArray(w *stream.Writer, f *schema.Field) error
	EndArray(w *stream.Writer) error

	// NextElement separates members and elements; index is 0 for the
	// first.
	NextElement(w *stream.Writer, index int) error

	// PerElementTags reports whether repeated fields carry one tag per
	// element instead of a packed context.
	PerElementTags() bool

	// BeginDecodeMessage opens an object body on the input.
	BeginDecodeMessage(r *stream.Reader) error

	// MessageEOF reports (and consumes) the end of the object body.
	MessageEOF(r *stream.Reader) (bool, error)

	// NextDecodeMember advances between members; first is true before the
	// first member.
	NextDecodeMember(r *stream.Reader, first bool) error

	// DecodeTag reads the next field tag or label, resolving it against
	// rt. It may return TagUnknown or TagHandled.
	DecodeTag(r *stream.Reader, rt *schema.RecordType) (tag int, wt WireType, err error)

	// SkipField discards the body of an unknown field.
	SkipField(r *stream.Reader, wt WireType) error

	// DecodeValue reads one scalar value for f. current supplies the
	// present stored value for read-modify forms (bitmask objects).
	// A null in the input sets r.FieldNulled and returns a null value.
	DecodeValue(r *stream.Reader, f *schema.Field, current object.Value) (object.Value, error)

	// DecodeObject unframes one nested object, delegating to dec.
	DecodeObject(r *stream.Reader, f *schema.Field, o *object.Object, dec DecodeFunc, init bool) error

	// BeginDecodeArray, ArrayEOF and NextArrayElement frame packed
	// repeated fields on the input.
	BeginDecodeArray(r *stream.Reader, f *schema.Field) error
	ArrayEOF(r *stream.Reader) (bool, error)
	NextArrayElement(r *stream.Reader, first bool) error
}

// JSON returns the canonical JSON transport.
func JSON() Transport { return jsonTransport{} }

// Binary returns the length-delimited binary transport.
func Binary() Transport { return binaryTransport{} }
