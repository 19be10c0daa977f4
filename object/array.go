package object

import (
	"fmt"

	"github.com/stratahq/strata/schema"
)

func (o *Object) arrayField(i int) (*schema.Field, error) {
	f, err := o.field(i)
	if err != nil {
		return nil, err
	}
	if !f.IsArray() {
		return nil, fmt.Errorf("%w: %s is not an array", ErrBadField, f.Label)
	}
	return f, nil
}

// Count returns the element count of array field i, or 0 for scalars.
func (o *Object) Count(i int) int {
	f := o.rt.Field(i)
	if f == nil || !f.IsArray() {
		return 0
	}
	s := &o.slots[i]
	switch f.Type {
	case schema.TypeString:
		return len(s.strs)
	case schema.TypeBytes:
		return len(s.raws)
	case schema.TypeObject:
		return len(s.subs)
	default:
		return len(s.nums)
	}
}

// At returns the element of array field i at idx.
func (o *Object) At(i, idx int) (Value, bool) {
	f := o.rt.Field(i)
	if f == nil || !f.IsArray() || idx < 0 || idx >= o.Count(i) {
		return Null(), false
	}
	s := &o.slots[i]
	switch f.Type {
	case schema.TypeString:
		return String(s.strs[idx]), true
	case schema.TypeBytes:
		return Bytes(s.raws[idx]), true
	case schema.TypeObject:
		return Obj(s.subs[idx]), true
	default:
		return o.numValue(f, s.nums[idx]), true
	}
}

// SetAt assigns the element of array field i at idx through the change
// accounting path, reporting whether the stored value differed.
func (o *Object) SetAt(i, idx int, v Value) (bool, error) {
	f, err := o.arrayField(i)
	if err != nil {
		return false, err
	}
	if idx < 0 || idx >= o.Count(i) {
		return false, fmt.Errorf("%w: %s[%d]", ErrBadIndex, f.Label, idx)
	}
	if f.IsObject() {
		return false, fmt.Errorf("%w: %s holds objects", ErrBadField, f.Label)
	}
	if err := CheckRange(f, v); err != nil {
		return false, err
	}

	s := &o.slots[i]
	var differs bool
	switch f.Type {
	case schema.TypeString:
		differs = s.strs[idx] != v.AsString()
		s.strs[idx] = v.AsString()
	case schema.TypeBytes:
		b := append([]byte(nil), v.AsBytes()...)
		differs = !bytesEqual(s.raws[idx], b)
		s.raws[idx] = b
	default:
		bits := canonical(f, v)
		differs = s.nums[idx] != bits
		s.nums[idx] = bits
	}
	o.markTouched(i, true)
	if differs {
		o.noteChange(i)
	}
	return differs, nil
}

// Insert places a scalar element at idx, shifting successors. idx equal to
// the count appends.
func (o *Object) Insert(i, idx int, v Value) error {
	f, err := o.arrayField(i)
	if err != nil {
		return err
	}
	if f.IsObject() {
		return fmt.Errorf("%w: %s holds objects", ErrBadField, f.Label)
	}
	count := o.Count(i)
	if idx < 0 || idx > count {
		return fmt.Errorf("%w: %s[%d]", ErrBadIndex, f.Label, idx)
	}
	if count >= f.Capacity {
		return fmt.Errorf("%w: array %s[%d]", ErrOverflow, f.Label, count)
	}
	if err := CheckRange(f, v); err != nil {
		return err
	}

	s := &o.slots[i]
	switch f.Type {
	case schema.TypeString:
		s.strs = append(s.strs, "")
		copy(s.strs[idx+1:], s.strs[idx:])
		s.strs[idx] = v.AsString()
	case schema.TypeBytes:
		s.raws = append(s.raws, nil)
		copy(s.raws[idx+1:], s.raws[idx:])
		s.raws[idx] = append([]byte(nil), v.AsBytes()...)
	default:
		s.nums = append(s.nums, 0)
		copy(s.nums[idx+1:], s.nums[idx:])
		s.nums[idx] = canonical(f, v)
	}
	o.markTouched(i, true)
	o.noteChange(i)
	return nil
}

// Append adds a scalar element at the end of array field i.
func (o *Object) Append(i int, v Value) error {
	return o.Insert(i, o.Count(i), v)
}

// InsertString inserts into a string array.
func (o *Object) InsertString(i, idx int, v string) error { return o.Insert(i, idx, String(v)) }

// InsertBytes inserts into a bytes array.
func (o *Object) InsertBytes(i, idx int, v []byte) error { return o.Insert(i, idx, Bytes(v)) }

// RemoveAt deletes the element of array field i at idx, shifting successors
// down. Works for scalar and object arrays alike.
func (o *Object) RemoveAt(i, idx int) error {
	f, err := o.arrayField(i)
	if err != nil {
		return err
	}
	count := o.Count(i)
	if idx < 0 || idx >= count {
		return fmt.Errorf("%w: %s[%d]", ErrBadIndex, f.Label, idx)
	}

	s := &o.slots[i]
	switch f.Type {
	case schema.TypeString:
		s.strs = append(s.strs[:idx], s.strs[idx+1:]...)
	case schema.TypeBytes:
		s.raws = append(s.raws[:idx], s.raws[idx+1:]...)
	case schema.TypeObject:
		s.subs = append(s.subs[:idx], s.subs[idx+1:]...)
	default:
		s.nums = append(s.nums[:idx], s.nums[idx+1:]...)
	}
	if o.Count(i) == 0 {
		o.markTouched(i, false)
	}
	o.noteChange(i)
	return nil
}

// ClearArray drops every element of array field i. The touched bit falls
// and the changed bit is set when anything was present.
func (o *Object) ClearArray(i int) error {
	f, err := o.arrayField(i)
	if err != nil {
		return err
	}
	had := o.Count(i) > 0 || o.mask.Touched(i)
	o.resetSlot(f)
	o.markTouched(i, false)
	if had {
		o.noteChange(i)
	}
	return nil
}

// AddSubObject appends a sub-object element to object array field i. Pass
// AutoID to have an identifier generated. The new element's id is marked
// present and the array field marked changed.
func (o *Object) AddSubObject(i int, id uint64) (*Object, error) {
	f, err := o.arrayField(i)
	if err != nil {
		return nil, err
	}
	if !f.IsObject() {
		return nil, fmt.Errorf("%w: %s does not hold objects", ErrBadField, f.Label)
	}
	count := o.Count(i)
	if count >= f.Capacity {
		return nil, fmt.Errorf("%w: array %s[%d]", ErrOverflow, f.Label, count)
	}
	if id == AutoID {
		id = o.Root().generateID()
	}
	if existing, _ := o.FindSubObject(i, id); existing != nil {
		return nil, fmt.Errorf("%w: %s id %d exists", ErrBadIndex, f.Label, id)
	}

	sub := newObject(f.Sub)
	sub.parent = o
	sub.childIndex = i
	sub.slots[schema.IDFieldIndex].num = id
	sub.markTouched(schema.IDFieldIndex, true)
	sub.mask.SetChanged(schema.IDFieldIndex, true)

	o.slots[i].subs = append(o.slots[i].subs, sub)
	o.markTouched(i, true)
	o.noteChange(i)
	return sub, nil
}

// GrowArray appends one zero element to array field i, returning its index.
// Object arrays gain a fresh element with no identifier; decoders assign or
// generate one after filling it.
func (o *Object) GrowArray(i int) (int, error) {
	f, err := o.arrayField(i)
	if err != nil {
		return 0, err
	}
	count := o.Count(i)
	if count >= f.Capacity {
		return 0, fmt.Errorf("%w: array %s[%d]", ErrOverflow, f.Label, count)
	}
	s := &o.slots[i]
	switch f.Type {
	case schema.TypeString:
		s.strs = append(s.strs, "")
	case schema.TypeBytes:
		s.raws = append(s.raws, nil)
	case schema.TypeObject:
		sub := newObject(f.Sub)
		sub.parent = o
		sub.childIndex = i
		s.subs = append(s.subs, sub)
	default:
		s.nums = append(s.nums, 0)
	}
	o.markTouched(i, true)
	o.noteChange(i)
	return count, nil
}

// SubObjectAt returns the element of object array field i at idx.
func (o *Object) SubObjectAt(i, idx int) *Object {
	f := o.rt.Field(i)
	if f == nil || !f.IsArray() || !f.IsObject() || idx < 0 || idx >= len(o.slots[i].subs) {
		return nil
	}
	return o.slots[i].subs[idx]
}

// FindSubObject locates an element of object array field i by id, returning
// the element and its index, or (nil, -1).
func (o *Object) FindSubObject(i int, id uint64) (*Object, int) {
	f := o.rt.Field(i)
	if f == nil || !f.IsArray() || !f.IsObject() {
		return nil, -1
	}
	for idx, sub := range o.slots[i].subs {
		if sub.ID() == id && sub.HasID() {
			return sub, idx
		}
	}
	return nil, -1
}

// RemoveSubObject deletes the element of object array field i with the
// given id. It reports whether an element was removed.
func (o *Object) RemoveSubObject(i int, id uint64) bool {
	_, idx := o.FindSubObject(i, id)
	if idx < 0 {
		return false
	}
	return o.RemoveAt(i, idx) == nil
}
