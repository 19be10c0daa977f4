// Package stream provides the pull-style byte streams the codecs run over.
//
// Readers and writers carry the cross-cutting state the codec drivers and
// the REST engine share: a sticky error with a human message, access
// filters injected per object, decoder signal flags (field changed, field
// nulled), byte accounting with nestable limits for length-delimited
// regions, and formatted/base64 output helpers. A sizing writer counts
// bytes without writing, which is how the binary transport computes length
// prefixes.
package stream

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/stratahq/strata/mask"
	"github.com/stratahq/strata/object"
)

// ErrStream is the sentinel wrapped by all stream errors.
var ErrStream = errors.New("stream error")

// AccessFunc supplies the field filter to apply for one object. The codec
// drivers re-invoke it per (nested) object.
type AccessFunc func(*object.Object) mask.Filter

// UnknownFieldFunc receives unknown decoded fields. Returning true consumes
// the field; returning false lets the decoder skip it.
type UnknownFieldFunc func(name, value string) bool

const readerBufSize = 512

// Reader is a pull-style input stream with a small internal buffer,
// single-byte lookahead, and nestable byte limits.
type Reader struct {
	src io.Reader
	buf []byte
	r   int
	w   int

	err  error
	read int
	// limits holds remaining byte counts of enclosing delimited regions,
	// innermost last. -1 means unlimited.
	limits []int

	// Access is the write-access filter injected by the REST layer.
	Access AccessFunc

	// Unknown handles unknown fields during decode.
	Unknown UnknownFieldFunc

	// FieldChanged and FieldNulled are decoder signals: the last decoded
	// field produced a different value, or was explicitly null.
	FieldChanged bool
	FieldNulled  bool
}

// NewReader wraps an io.Reader.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src, buf: make([]byte, readerBufSize), limits: []int{-1}}
}

// FromBytes builds a Reader over a byte slice.
func FromBytes(b []byte) *Reader {
	r := NewReader(nil)
	r.buf = b
	r.w = len(b)
	return r
}

// Err returns the sticky error, if any.
func (r *Reader) Err() error { return r.err }

// Message returns the human-readable error message, or "".
func (r *Reader) Message() string {
	if r.err == nil {
		return ""
	}
	return r.err.Error()
}

// Errorf records a sticky stream error. The first error wins; subsequent
// calls return the original.
func (r *Reader) Errorf(format string, args ...any) error {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s", ErrStream, fmt.Sprintf(format, args...))
	}
	return r.err
}

// Fail records err as the sticky error.
func (r *Reader) Fail(err error) error {
	if r.err == nil {
		r.err = err
	}
	return r.err
}

// BytesRead returns the total bytes consumed.
func (r *Reader) BytesRead() int { return r.read }

func (r *Reader) fill() error {
	if r.r < r.w {
		return nil
	}
	if r.src == nil {
		return io.EOF
	}
	r.r, r.w = 0, 0
	n, err := r.src.Read(r.buf)
	if n > 0 {
		r.w = n
		return nil
	}
	if err == nil {
		err = io.EOF
	}
	return err
}

func (r *Reader) innermost() int { return r.limits[len(r.limits)-1] }

// ReadByte consumes one byte, honoring the innermost limit.
func (r *Reader) ReadByte() (byte, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.innermost() == 0 {
		return 0, io.EOF
	}
	if err := r.fill(); err != nil {
		return 0, err
	}
	b := r.buf[r.r]
	r.r++
	r.read++
	if n := len(r.limits) - 1; r.limits[n] > 0 {
		r.limits[n]--
	}
	return b, nil
}

// Peek returns the next byte without consuming it.
func (r *Reader) Peek() (byte, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.innermost() == 0 {
		return 0, io.EOF
	}
	if err := r.fill(); err != nil {
		return 0, err
	}
	return r.buf[r.r], nil
}

// Remaining returns the bytes left in the innermost delimited region, or -1
// when unlimited.
func (r *Reader) Remaining() int { return r.innermost() }

// PushLimit opens a delimited region of n bytes. The enclosing region's
// count is reduced up front, so closing rejoins the byte accounting.
func (r *Reader) PushLimit(n int) error {
	if n < 0 {
		return r.Errorf("negative region length %d", n)
	}
	if outer := r.innermost(); outer >= 0 {
		if n > outer {
			return r.Errorf("region length %d exceeds enclosing %d", n, outer)
		}
		r.limits[len(r.limits)-1] = outer - n
	}
	r.limits = append(r.limits, n)
	return nil
}

// PopLimit closes the innermost delimited region, draining any unread
// bytes so the parent resumes at the region boundary.
func (r *Reader) PopLimit() error {
	if len(r.limits) <= 1 {
		return r.Errorf("no open region")
	}
	for r.innermost() > 0 {
		if _, err := r.ReadByte(); err != nil {
			return r.Fail(err)
		}
	}
	r.limits = r.limits[:len(r.limits)-1]
	return nil
}

// Skip discards n bytes.
func (r *Reader) Skip(n int) error {
	for i := 0; i < n; i++ {
		if _, err := r.ReadByte(); err != nil {
			return err
		}
	}
	return nil
}

// ReadFull fills p completely or fails.
func (r *Reader) ReadFull(p []byte) error {
	for i := range p {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		p[i] = b
	}
	return nil
}

// Writer is an output stream with byte accounting and a sticky error. A
// Writer with no destination is a sizing stream: it counts bytes without
// writing them.
type Writer struct {
	dst io.Writer
	n   int
	err error

	// Access is the read-access filter injected by the REST layer.
	Access AccessFunc

	// SuppressFirstTag elides the next field tag, used when encoding a
	// single field value without its label.
	SuppressFirstTag bool

	// ExtraField optionally appends one trailing (name, value) pair to the
	// outermost encoded object.
	ExtraField func() (name, value string, ok bool)
}

// NewWriter wraps an io.Writer.
func NewWriter(dst io.Writer) *Writer { return &Writer{dst: dst} }

// NewSizer returns a sizing stream that only counts bytes.
func NewSizer() *Writer { return &Writer{} }

// Count returns the total bytes written (or counted).
func (w *Writer) Count() int { return w.n }

// Err returns the sticky error, if any.
func (w *Writer) Err() error { return w.err }

// Message returns the human-readable error message, or "".
func (w *Writer) Message() string {
	if w.err == nil {
		return ""
	}
	return w.err.Error()
}

// Errorf records a sticky stream error. The first error wins.
func (w *Writer) Errorf(format string, args ...any) error {
	if w.err == nil {
		w.err = fmt.Errorf("%w: %s", ErrStream, fmt.Sprintf(format, args...))
	}
	return w.err
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	if w.dst != nil {
		n, err := w.dst.Write(p)
		w.n += n
		if err != nil {
			w.err = fmt.Errorf("%w: %v", ErrStream, err)
			return n, w.err
		}
		return n, nil
	}
	w.n += len(p)
	return len(p), nil
}

// WriteByte writes a single byte.
func (w *Writer) WriteByte(b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

// WriteString writes a string.
func (w *Writer) WriteString(s string) error {
	_, err := w.Write([]byte(s))
	return err
}

// Printf writes formatted output.
func (w *Writer) Printf(format string, args ...any) error {
	return w.WriteString(fmt.Sprintf(format, args...))
}

// WriteBase64 writes p encoded as standard base64 with padding.
func (w *Writer) WriteBase64(p []byte) error {
	return w.WriteString(base64.StdEncoding.EncodeToString(p))
}

// DecodeBase64 decodes standard (padded) base64 content.
func DecodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
