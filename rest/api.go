package rest

import (
	"io"

	"github.com/stratahq/strata/access"
	"github.com/stratahq/strata/object"
	"github.com/stratahq/strata/schema"
	"github.com/stratahq/strata/stream"
	"github.com/stratahq/strata/wire"
)

// Get locates path and encodes the target through the transport, honoring
// the read-access filter derived from acc.
func Get(t wire.Transport, root *object.Object, path string, w *stream.Writer, acc access.Access) Result {
	b := Browse(root, path, acc.Level, PermRead)
	if !b.IsValid() {
		return Fail(b.status, b.status.Description())
	}
	w.Access = acc.ReadFilter

	switch b.kind {
	case targetObject:
		if err := wire.Encode(w, t, b.obj); err != nil {
			return Fail(StatusInternal, w.Message())
		}
		return OK()

	case targetArray:
		if !b.obj.Touched(b.fieldIndex) {
			return Fail(StatusNotFound, "field is not set")
		}
		w.SuppressFirstTag = true
		if err := wire.EncodeField(w, t, b.obj, b.fieldIndex); err != nil {
			return Fail(StatusInternal, w.Message())
		}
		return OK()

	case targetField:
		if !b.obj.Touched(b.fieldIndex) {
			return Fail(StatusNotFound, "field is not set")
		}
		if b.arrayIndex >= 0 {
			if err := wire.EncodeElement(w, t, b.obj, b.fieldIndex, b.arrayIndex); err != nil {
				return Fail(StatusInternal, w.Message())
			}
			return OK()
		}
		w.SuppressFirstTag = true
		if err := wire.EncodeField(w, t, b.obj, b.fieldIndex); err != nil {
			return Fail(StatusInternal, w.Message())
		}
		return OK()
	}
	return Fail(StatusInternal, "invalid browser state")
}

// Post creates inside an array target: scalar arrays gain an appended
// element, sub-object arrays gain a new object with a generated id. The
// created id (or index) is returned in the result.
func Post(t wire.Transport, root *object.Object, path string, r *stream.Reader, acc access.Access) Result {
	b := Browse(root, path, acc.Level, PermWrite)
	if !b.IsValid() {
		return Fail(b.status, b.status.Description())
	}
	if b.kind != targetArray {
		// creation only makes sense inside an array
		return Fail(StatusMethodNotAllowed, StatusMethodNotAllowed.Description())
	}
	r.Access = acc.WriteFilter

	f := b.obj.Type().Field(b.fieldIndex)
	if f.IsObject() {
		wasChanged := b.obj.Changed(b.fieldIndex)
		sub, err := b.obj.AddSubObject(b.fieldIndex, object.AutoID)
		if err != nil {
			return Fail(StatusBadRequest, err.Error())
		}
		if err := wire.DecodeNoInit(r, t, sub); err != nil {
			// decoding went wrong: remove the new object again
			b.obj.RemoveSubObject(b.fieldIndex, sub.ID())
			if !wasChanged {
				b.obj.MarkChanged(b.fieldIndex, false)
			}
			return Fail(StatusBadRequest, r.Message())
		}
		return Created(sub.ID())
	}

	idx, err := b.obj.GrowArray(b.fieldIndex)
	if err != nil {
		return Fail(StatusBadRequest, err.Error())
	}
	if err := wire.DecodeElement(r, t, b.obj, b.fieldIndex, idx); err != nil {
		_ = b.obj.RemoveAt(b.fieldIndex, idx)
		return Fail(StatusBadRequest, r.Message())
	}
	return Created(uint64(idx))
}

// Patch merges the body into the target: fields present in the body are
// assigned, absent fields retain their values, nulls clear. An identifier
// the object already holds is reinstated after the merge, so the body
// cannot change it.
func Patch(t wire.Transport, root *object.Object, path string, r *stream.Reader, acc access.Access) Result {
	b := Browse(root, path, acc.Level, PermWrite)
	if !b.IsValid() {
		return Fail(b.status, b.status.Description())
	}
	r.Access = acc.WriteFilter

	switch b.kind {
	case targetObject:
		return patchObject(t, b.obj, r)
	case targetArray:
		if err := wire.DecodeField(r, t, b.obj, b.fieldIndex); err != nil {
			return Fail(StatusBadRequest, r.Message())
		}
		return OK()
	case targetField:
		return patchField(t, &b, r)
	}
	return Fail(StatusInternal, "invalid browser state")
}

func patchObject(t wire.Transport, o *object.Object, r *stream.Reader) Result {
	id := o.ID()
	hadID := o.HasID()

	if err := wire.DecodeNoInit(r, t, o); err != nil {
		return Fail(StatusBadRequest, r.Message())
	}

	// reinstate the identifier, it is not patchable
	if hadID {
		o.SetID(id)
		o.MarkChanged(schema.IDFieldIndex, false)
	}

	// a nested object that now holds values is present in its parent
	if p := o.Parent(); p != nil && o.Mask().AnyTouched() {
		if f := p.Type().Field(o.ChildIndex()); f != nil && !f.IsArray() {
			p.Touch(o.ChildIndex())
		}
	}
	return OK()
}

func patchField(t wire.Transport, b *Browser, r *stream.Reader) Result {
	if b.arrayIndex >= 0 {
		if err := wire.DecodeElement(r, t, b.obj, b.fieldIndex, b.arrayIndex); err != nil {
			return Fail(StatusBadRequest, r.Message())
		}
		return OK()
	}
	if err := wire.DecodeField(r, t, b.obj, b.fieldIndex); err != nil {
		return Fail(StatusBadRequest, r.Message())
	}
	return OK()
}

// Put replaces the target: objects are cleared to their identifier first,
// arrays and fields are cleared, then the body is merged as a PATCH.
func Put(t wire.Transport, root *object.Object, path string, r *stream.Reader, acc access.Access) Result {
	b := Browse(root, path, acc.Level, PermWrite)
	if !b.IsValid() {
		return Fail(b.status, b.status.Description())
	}
	r.Access = acc.WriteFilter

	switch b.kind {
	case targetObject:
		b.obj.ClearAllExceptID()
		return patchObject(t, b.obj, r)
	case targetArray:
		if err := b.obj.ClearArray(b.fieldIndex); err != nil {
			return Fail(StatusInternal, err.Error())
		}
		if err := wire.DecodeField(r, t, b.obj, b.fieldIndex); err != nil {
			return Fail(StatusBadRequest, r.Message())
		}
		return OK()
	case targetField:
		if b.arrayIndex < 0 {
			_ = b.obj.Clear(b.fieldIndex)
		}
		return patchField(t, &b, r)
	}
	return Fail(StatusInternal, "invalid browser state")
}

// Delete removes the target: array elements are removed, arrays and fields
// are cleared, nested objects are cleared out of their parent slot. Roots
// cannot be deleted through this engine.
func Delete(root *object.Object, path string, acc access.Access) Result {
	b := Browse(root, path, acc.Level, PermWrite)
	if !b.IsValid() {
		return Fail(b.status, b.status.Description())
	}

	switch b.kind {
	case targetObject:
		return deleteObject(b.obj)
	case targetArray:
		if err := b.obj.ClearArray(b.fieldIndex); err != nil {
			return Fail(StatusInternal, err.Error())
		}
		b.obj.MarkChanged(b.fieldIndex, true)
		return OK()
	case targetField:
		return deleteField(&b)
	}
	return Fail(StatusInternal, "invalid browser state")
}

func deleteObject(o *object.Object) Result {
	if o.IsTopLevel() {
		// the root object belongs to its owner
		return Fail(StatusForbidden, "cannot delete root object")
	}

	parent := o.Parent()
	i := o.ChildIndex()
	f := parent.Type().Field(i)

	if f.IsArray() {
		if !parent.RemoveSubObject(i, o.ID()) {
			return Fail(StatusNotFound, StatusNotFound.Description())
		}
		return OK()
	}

	o.ClearTouchMarkers()
	parent.MarkTouched(i, false)
	parent.MarkChanged(i, true)
	return OK()
}

func deleteField(b *Browser) Result {
	if b.arrayIndex >= 0 {
		if err := b.obj.RemoveAt(b.fieldIndex, b.arrayIndex); err != nil {
			return Fail(StatusNotFound, StatusNotFound.Description())
		}
		return OK()
	}
	if !b.obj.Touched(b.fieldIndex) {
		return Fail(StatusNotFound, StatusNotFound.Description())
	}
	if err := b.obj.Clear(b.fieldIndex); err != nil {
		return Fail(StatusInternal, err.Error())
	}
	return OK()
}

// GetJSON is Get over the JSON transport writing to out.
func GetJSON(root *object.Object, path string, out io.Writer, acc access.Access) Result {
	return Get(wire.JSON(), root, path, stream.NewWriter(out), acc)
}

// PostJSON is Post over the JSON transport reading from body.
func PostJSON(root *object.Object, path string, body io.Reader, acc access.Access) Result {
	return Post(wire.JSON(), root, path, stream.NewReader(body), acc)
}

// PatchJSON is Patch over the JSON transport reading from body.
func PatchJSON(root *object.Object, path string, body io.Reader, acc access.Access) Result {
	return Patch(wire.JSON(), root, path, stream.NewReader(body), acc)
}

// PutJSON is Put over the JSON transport reading from body.
func PutJSON(root *object.Object, path string, body io.Reader, acc access.Access) Result {
	return Put(wire.JSON(), root, path, stream.NewReader(body), acc)
}
