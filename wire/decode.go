package wire

import (
	"github.com/stratahq/strata/mask"
	"github.com/stratahq/strata/object"
	"github.com/stratahq/strata/schema"
	"github.com/stratahq/strata/stream"
)

// Decode reads a whole object, resetting it to defaults first.
func Decode(r *stream.Reader, t Transport, o *object.Object) error {
	d := decoder{t: t}
	return d.message(r, o, true)
}

// DecodeNoInit reads a whole object over its existing state: fields present
// in the input are assigned, absent fields are retained. This is the merge
// decode behind PATCH.
func DecodeNoInit(r *stream.Reader, t Transport, o *object.Object) error {
	d := decoder{t: t}
	return d.message(r, o, false)
}

// DecodeField reads one field body (scalar, whole array, or nested object)
// with full mask bookkeeping, as PATCH on a field or array target does.
func DecodeField(r *stream.Reader, t Transport, o *object.Object, i int) error {
	d := decoder{t: t}
	f := o.Type().Field(i)
	if f == nil {
		return r.Errorf("no field %d", i)
	}
	return d.field(r, o, f)
}

// DecodeElement reads a single element of an array field at idx. A null
// input removes the element.
func DecodeElement(r *stream.Reader, t Transport, o *object.Object, i, idx int) error {
	d := decoder{t: t}
	f := o.Type().Field(i)
	if f == nil || !f.IsArray() {
		return r.Errorf("no array field %d", i)
	}
	if idx < 0 || idx >= o.Count(i) {
		return r.Errorf("index %d out of range for %s", idx, f.Label)
	}

	r.FieldNulled = false
	if f.IsObject() {
		sub := o.SubObjectAt(i, idx)
		if err := d.t.DecodeObject(r, f, sub, d.message, false); err != nil {
			return err
		}
		if r.FieldNulled {
			r.FieldNulled = false
			return o.RemoveAt(i, idx)
		}
		sub.EnsureID()
		return nil
	}

	cur, _ := o.At(i, idx)
	v, err := d.t.DecodeValue(r, f, cur)
	if err != nil {
		return err
	}
	if r.FieldNulled {
		r.FieldNulled = false
		return o.RemoveAt(i, idx)
	}
	changed, err := o.SetAt(i, idx, v)
	if err != nil {
		return r.Fail(err)
	}
	if changed || f.AlwaysNotify {
		r.FieldChanged = true
		o.MarkChanged(i, true)
	}
	return nil
}

type decoder struct {
	t Transport
}

func (d decoder) message(r *stream.Reader, o *object.Object, init bool) error {
	if init {
		o.ResetToDefaults()
	}

	var filter mask.Filter
	filtered := false
	if r.Access != nil {
		filter = r.Access(o)
		filtered = true
	}

	if err := d.t.BeginDecodeMessage(r); err != nil {
		return err
	}

	first := true
	for {
		eof, err := d.t.MessageEOF(r)
		if err != nil {
			return err
		}
		if eof {
			break
		}
		if err := d.t.NextDecodeMember(r, first); err != nil {
			return err
		}
		first = false

		tag, wt, err := d.t.DecodeTag(r, o.Type())
		if err != nil {
			return err
		}
		if tag == TagHandled {
			continue
		}
		if tag == TagUnknown {
			if err := d.t.SkipField(r, wt); err != nil {
				return err
			}
			continue
		}

		f, ok := o.Type().FieldByTag(tag)
		if !ok || (filtered && !filter.Touched(f.Index)) {
			if err := d.t.SkipField(r, wt); err != nil {
				return err
			}
			continue
		}

		if err := d.field(r, o, f); err != nil {
			return err
		}
	}

	return r.Err()
}

// field decodes one field body and performs the mask bookkeeping: null
// clears presence (marking changed when it was present), anything else
// marks presence, and the changed bit follows actual value difference, a
// presence transition, or the field's always-notify flag.
func (d decoder) field(r *stream.Reader, o *object.Object, f *schema.Field) error {
	r.FieldNulled = false
	wasTouched := o.Touched(f.Index)

	var changed bool
	var err error
	switch {
	case f.IsArray():
		changed, err = d.array(r, o, f)
	case f.IsObject():
		err = d.subObject(r, o, f)
		changed = o.Changed(f.Index)
	default:
		changed, err = d.scalar(r, o, f)
	}
	if err != nil {
		return err
	}

	if f.AlwaysNotify {
		changed = true
	}

	if r.FieldNulled {
		r.FieldNulled = false
		if err := o.Clear(f.Index); err != nil {
			return r.Fail(err)
		}
		return nil
	}

	o.Touch(f.Index)
	if changed || !wasTouched {
		r.FieldChanged = true
		o.MarkChanged(f.Index, true)
	}
	return nil
}

func (d decoder) scalar(r *stream.Reader, o *object.Object, f *schema.Field) (bool, error) {
	cur, _ := o.Get(f.Index)
	v, err := d.t.DecodeValue(r, f, cur)
	if err != nil {
		return false, err
	}
	if r.FieldNulled {
		return false, nil
	}
	changed, err := o.Apply(f.Index, v)
	if err != nil {
		return false, r.Fail(err)
	}
	return changed, nil
}

func (d decoder) subObject(r *stream.Reader, o *object.Object, f *schema.Field) error {
	sub := o.SubObject(f.Index)
	return d.t.DecodeObject(r, f, sub, d.message, false)
}

func (d decoder) array(r *stream.Reader, o *object.Object, f *schema.Field) (bool, error) {
	if d.t.PerElementTags() {
		return d.appendElement(r, o, f)
	}
	return d.packedArray(r, o, f)
}

// appendElement handles formats where each repeated element arrives under
// its own tag: one element is appended per occurrence.
func (d decoder) appendElement(r *stream.Reader, o *object.Object, f *schema.Field) (bool, error) {
	idx, err := o.GrowArray(f.Index)
	if err != nil {
		return false, r.Fail(err)
	}

	if f.IsObject() {
		sub := o.SubObjectAt(f.Index, idx)
		if err := d.t.DecodeObject(r, f, sub, d.message, true); err != nil {
			_ = o.RemoveAt(f.Index, idx)
			return false, err
		}
		sub.EnsureID()
		return true, nil
	}

	v, err := d.t.DecodeValue(r, f, object.Null())
	if err != nil || r.FieldNulled {
		_ = o.RemoveAt(f.Index, idx)
		r.FieldNulled = false
		return false, err
	}
	if _, err := o.SetAt(f.Index, idx, v); err != nil {
		_ = o.RemoveAt(f.Index, idx)
		return false, r.Fail(err)
	}
	return true, nil
}

// packedArray replaces the array contents from a bracketed sequence.
// Elements decode into their existing slots so unchanged values do not
// raise the changed bit; a failed element does not take a slot.
func (d decoder) packedArray(r *stream.Reader, o *object.Object, f *schema.Field) (bool, error) {
	if err := d.t.BeginDecodeArray(r, f); err != nil {
		return false, err
	}
	if r.FieldNulled {
		// the whole array was null
		return false, nil
	}

	oldCount := o.Count(f.Index)
	changed := false
	n := 0
	first := true
	for {
		eof, err := d.t.ArrayEOF(r)
		if err != nil {
			return false, err
		}
		if eof {
			break
		}
		if err := d.t.NextArrayElement(r, first); err != nil {
			return false, err
		}
		first = false

		grown := false
		if n >= oldCount {
			if _, err := o.GrowArray(f.Index); err != nil {
				return false, r.Fail(err)
			}
			grown = true
		}

		r.FieldNulled = false
		elemChanged, err := d.decodeInto(r, o, f, n)
		if err != nil {
			if grown {
				_ = o.RemoveAt(f.Index, n)
			}
			return false, err
		}
		if r.FieldNulled {
			// null elements do not take a slot
			r.FieldNulled = false
			_ = o.RemoveAt(f.Index, n)
			if !grown {
				oldCount--
			}
			changed = true
			continue
		}
		changed = changed || elemChanged || grown
		n++
	}

	// drop leftover elements from the previous contents
	for o.Count(f.Index) > n {
		_ = o.RemoveAt(f.Index, n)
		changed = true
	}

	return changed, nil
}

func (d decoder) decodeInto(r *stream.Reader, o *object.Object, f *schema.Field, idx int) (bool, error) {
	if f.IsObject() {
		sub := o.SubObjectAt(f.Index, idx)
		if err := d.t.DecodeObject(r, f, sub, d.message, true); err != nil {
			return false, err
		}
		sub.EnsureID()
		return sub.AnyChanged(), nil
	}

	cur, _ := o.At(f.Index, idx)
	v, err := d.t.DecodeValue(r, f, cur)
	if err != nil {
		return false, err
	}
	if r.FieldNulled {
		return false, nil
	}
	elemChanged, err := o.SetAt(f.Index, idx, v)
	if err != nil {
		return false, r.Fail(err)
	}
	return elemChanged, nil
}
