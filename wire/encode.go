package wire

import (
	"github.com/stratahq/strata/mask"
	"github.com/stratahq/strata/object"
	"github.com/stratahq/strata/schema"
	"github.com/stratahq/strata/stream"
)

// extraFieldWriter is implemented by transports that can append the
// stream's extra (name, value) pair to the outermost object.
type extraFieldWriter interface {
	EncodeExtra(w *stream.Writer, name, value string) error
}

// Encode renders a whole object through the transport, honoring the
// stream's read-access filter: fields whose mask bit is unset are elided,
// present fields are emitted, and fields marked changed-but-absent emit an
// explicit null.
func Encode(w *stream.Writer, t Transport, o *object.Object) error {
	e := encoder{t: t}
	return e.message(w, o)
}

// EncodeField renders one field of an object, tag included unless the
// stream suppresses it.
func EncodeField(w *stream.Writer, t Transport, o *object.Object, i int) error {
	e := encoder{t: t}
	f := o.Type().Field(i)
	if f == nil {
		return w.Errorf("no field %d", i)
	}
	return e.field(w, o, f)
}

// EncodeElement renders a single element of an array field without its tag.
func EncodeElement(w *stream.Writer, t Transport, o *object.Object, i, idx int) error {
	e := encoder{t: t}
	f := o.Type().Field(i)
	if f == nil || !f.IsArray() {
		return w.Errorf("no array field %d", i)
	}
	if idx < 0 || idx >= o.Count(i) {
		return w.Errorf("index %d out of range for %s", idx, f.Label)
	}
	if f.IsObject() {
		return e.t.EncodeObject(w, f, o.SubObjectAt(i, idx), e.message)
	}
	v, _ := o.At(i, idx)
	return e.t.EncodeValue(w, f, v)
}

type encoder struct {
	t Transport
}

func (e encoder) message(w *stream.Writer, o *object.Object) error {
	var filter mask.Filter
	if w.Access != nil {
		filter = w.Access(o)
	} else {
		filter = mask.All(o.Type().FieldCount())
	}

	if err := e.t.BeginMessage(w); err != nil {
		return err
	}

	emitted := 0
	for i := range o.Type().Fields() {
		f := o.Type().Field(i)
		if !e.shouldEncode(o, filter, i) {
			continue
		}
		if err := e.t.NextElement(w, emitted); err != nil {
			return err
		}
		emitted++

		if o.Touched(i) {
			if err := e.field(w, o, f); err != nil {
				return err
			}
		} else {
			if err := e.nullField(w, f); err != nil {
				return err
			}
		}
	}

	if w.ExtraField != nil && o.IsTopLevel() {
		if xw, ok := e.t.(extraFieldWriter); ok {
			if name, value, ok := w.ExtraField(); ok {
				if err := e.t.NextElement(w, emitted); err != nil {
					return err
				}
				if err := xw.EncodeExtra(w, name, value); err != nil {
					return err
				}
			}
		}
	}

	return e.t.EndMessage(w)
}

// shouldEncode applies the emission rule: a field goes out when it is
// present, or when it is changed-but-absent (as a null), and in either case
// only when the access filter admits it.
func (e encoder) shouldEncode(o *object.Object, filter mask.Filter, i int) bool {
	if !o.Touched(i) && !o.Changed(i) {
		return false
	}
	return filter.Touched(i)
}

func (e encoder) emitTag(w *stream.Writer, f *schema.Field) error {
	if w.SuppressFirstTag {
		w.SuppressFirstTag = false
		return nil
	}
	return e.t.EncodeTag(w, f)
}

func (e encoder) nullField(w *stream.Writer, f *schema.Field) error {
	if err := e.emitTag(w, f); err != nil {
		return err
	}
	return e.t.EncodeNull(w, f)
}

func (e encoder) field(w *stream.Writer, o *object.Object, f *schema.Field) error {
	if f.IsArray() {
		return e.array(w, o, f)
	}
	if err := e.emitTag(w, f); err != nil {
		return err
	}
	if f.IsObject() {
		return e.t.EncodeObject(w, f, o.SubObject(f.Index), e.message)
	}
	v, _ := o.Get(f.Index)
	return e.t.EncodeValue(w, f, v)
}

func (e encoder) array(w *stream.Writer, o *object.Object, f *schema.Field) error {
	count := o.Count(f.Index)
	if count > f.Capacity {
		return w.Errorf("array %s[%d] overflow", f.Label, count)
	}

	if e.t.PerElementTags() {
		// Each element carries its own tag.
		for idx := 0; idx < count; idx++ {
			if f.IsObject() && !o.SubObjectAt(f.Index, idx).HasID() {
				continue
			}
			if err := e.emitTag(w, f); err != nil {
				return err
			}
			if err := e.element(w, o, f, idx); err != nil {
				return err
			}
		}
		return nil
	}

	if err := e.emitTag(w, f); err != nil {
		return err
	}
	if err := e.t.BeginArray(w, f); err != nil {
		return err
	}
	emitted := 0
	for idx := 0; idx < count; idx++ {
		// elements without an identifier are skipped
		if f.IsObject() && !o.SubObjectAt(f.Index, idx).HasID() {
			continue
		}
		if err := e.t.NextElement(w, emitted); err != nil {
			return err
		}
		emitted++
		if err := e.element(w, o, f, idx); err != nil {
			return err
		}
	}
	return e.t.EndArray(w)
}

func (e encoder) element(w *stream.Writer, o *object.Object, f *schema.Field, idx int) error {
	if f.IsObject() {
		return e.t.EncodeObject(w, f, o.SubObjectAt(f.Index, idx), e.message)
	}
	v, _ := o.At(f.Index, idx)
	return e.t.EncodeValue(w, f, v)
}
