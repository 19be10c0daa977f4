package object

import (
	"errors"
	"fmt"
	"math"

	"github.com/stratahq/strata/mask"
	"github.com/stratahq/strata/schema"
)

// Sentinel errors for programmatic error handling.
// Use errors.Is() to check for these error types.
var (
	// ErrOverflow indicates a value does not fit the field's width, bounds,
	// or an array's capacity.
	ErrOverflow = errors.New("overflow")

	// ErrBadField indicates a field index or type mismatch.
	ErrBadField = errors.New("bad field")

	// ErrBadIndex indicates an array index out of range.
	ErrBadIndex = errors.New("bad index")

	// ErrNotFound indicates a sub-object id lookup failed.
	ErrNotFound = errors.New("not found")
)

// ChangeHook is invoked on the root object after any mutation that flips a
// changed bit anywhere in its graph. Hooks must be fast and must not mutate
// the object.
type ChangeHook func()

// slot is the storage variant behind one field. Scalars use the first
// group; arrays use the slice group with the count implied by slice length.
type slot struct {
	num uint64
	str string
	raw []byte
	sub *Object

	nums []uint64
	strs []string
	raws [][]byte
	subs []*Object
}

// Object is an in-place instance of a record type.
type Object struct {
	rt         *schema.RecordType
	parent     *Object
	childIndex int
	mask       mask.Filter
	slots      []slot

	// root-only state
	gen  IDGenerator
	hook ChangeHook
}

// New creates a root object of the given record type. Nested scalar object
// fields are created with their parent; all fields start untouched.
func New(rt *schema.RecordType) *Object {
	o := newObject(rt)
	return o
}

func newObject(rt *schema.RecordType) *Object {
	o := &Object{
		rt:         rt,
		childIndex: -1,
		mask:       mask.New(rt.FieldCount()),
		slots:      make([]slot, rt.FieldCount()),
	}
	for i := range rt.Fields() {
		f := rt.Field(i)
		if f.IsObject() && !f.IsArray() {
			sub := newObject(f.Sub)
			sub.parent = o
			sub.childIndex = i
			o.slots[i].sub = sub
		}
	}
	return o
}

// Type returns the object's record type.
func (o *Object) Type() *schema.RecordType { return o.rt }

// Parent returns the enclosing object, or nil for a root.
func (o *Object) Parent() *Object { return o.parent }

// ChildIndex returns the field index this object occupies in its parent,
// or -1 for a root.
func (o *Object) ChildIndex() int { return o.childIndex }

// IsTopLevel reports whether the object has no parent.
func (o *Object) IsTopLevel() bool { return o.parent == nil }

// Root returns the top of the enclosing object graph.
func (o *Object) Root() *Object {
	r := o
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// SetChangeHook registers the root change hook. Only meaningful on roots.
func (o *Object) SetChangeHook(hook ChangeHook) { o.Root().hook = hook }

// ID returns the object identifier (field 0).
func (o *Object) ID() uint64 { return o.slots[schema.IDFieldIndex].num }

// SetID assigns the identifier and marks it present.
func (o *Object) SetID(id uint64) {
	o.slots[schema.IDFieldIndex].num = id
	o.markTouched(schema.IDFieldIndex, true)
}

// HasID reports whether the identifier field is present.
func (o *Object) HasID() bool { return o.mask.Touched(schema.IDFieldIndex) }

// Touched reports presence of field i.
func (o *Object) Touched(i int) bool { return o.mask.Touched(i) }

// Changed reports the changed bit of field i.
func (o *Object) Changed(i int) bool { return o.mask.Changed(i) }

// AnyChanged reports whether any field carries a changed bit.
func (o *Object) AnyChanged() bool { return o.mask.AnyChanged() }

// Mask returns a snapshot of the object's filter mask.
func (o *Object) Mask() mask.Filter { return o.mask.Clone() }

// markTouched flips the touched bit without change accounting.
func (o *Object) markTouched(i int, on bool) { o.mask.SetTouched(i, on) }

// MarkChanged sets or clears the changed bit of field i directly, bubbling
// up through enclosing objects when set.
func (o *Object) MarkChanged(i int, on bool) {
	o.mask.SetChanged(i, on)
	if on {
		o.bubble()
	}
}

// MarkTouched sets or clears the touched bit of field i directly.
func (o *Object) MarkTouched(i int, on bool) { o.mask.SetTouched(i, on) }

// noteChange records a modification of field i: the changed bit is set here
// and on every enclosing field up to the root, whose hook then fires.
func (o *Object) noteChange(i int) {
	o.mask.SetChanged(i, true)
	o.bubble()
}

// bubble marks the enclosing chain changed and fires the root hook.
func (o *Object) bubble() {
	p, idx := o.parent, o.childIndex
	for p != nil {
		p.mask.SetChanged(idx, true)
		idx = p.childIndex
		p = p.parent
	}
	if root := o.Root(); root.hook != nil {
		root.hook()
	}
}

func (o *Object) field(i int) (*schema.Field, error) {
	f := o.rt.Field(i)
	if f == nil {
		return nil, fmt.Errorf("%w: index %d in %s", ErrBadField, i, o.rt.Name())
	}
	return f, nil
}

// Get returns the scalar value of field i and whether it is present.
// Array and nested-object fields return their value forms (object values
// reference the live sub-object).
func (o *Object) Get(i int) (Value, bool) {
	f := o.rt.Field(i)
	if f == nil {
		return Null(), false
	}
	touched := o.mask.Touched(i)
	if f.IsArray() {
		return Null(), touched
	}
	s := &o.slots[i]
	switch f.Type {
	case schema.TypeString:
		return String(s.str), touched
	case schema.TypeBytes:
		return Bytes(s.raw), touched
	case schema.TypeObject:
		return Obj(s.sub), touched
	default:
		return o.numValue(f, s.num), touched
	}
}

func (o *Object) numValue(f *schema.Field, bits uint64) Value {
	switch f.Type {
	case schema.TypeBool:
		return Bool(bits != 0)
	case schema.TypeSigned:
		return Int(int64(bits))
	case schema.TypeFloat:
		if f.Bits == 32 {
			return Float(float64(math.Float32frombits(uint32(bits))))
		}
		return Float(math.Float64frombits(bits))
	default:
		return Uint(bits)
	}
}

// Apply assigns a non-null scalar value to field i through the change
// accounting path. It reports whether the stored value actually changed.
func (o *Object) Apply(i int, v Value) (bool, error) {
	f, err := o.field(i)
	if err != nil {
		return false, err
	}
	if f.IsArray() {
		return false, fmt.Errorf("%w: %s is an array", ErrBadField, f.Label)
	}
	if f.IsObject() {
		return false, fmt.Errorf("%w: %s is an object", ErrBadField, f.Label)
	}
	if err := CheckRange(f, v); err != nil {
		return false, err
	}

	s := &o.slots[i]
	wasTouched := o.mask.Touched(i)
	var differs bool
	switch f.Type {
	case schema.TypeString:
		differs = s.str != v.AsString()
		s.str = v.AsString()
	case schema.TypeBytes:
		b := append([]byte(nil), v.AsBytes()...)
		differs = !bytesEqual(s.raw, b)
		s.raw = b
	default:
		bits := canonical(f, v)
		differs = s.num != bits
		s.num = bits
	}

	o.markTouched(i, true)
	if differs || !wasTouched {
		o.noteChange(i)
		return true, nil
	}
	return false, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SetBool assigns a boolean scalar.
func (o *Object) SetBool(i int, v bool) error { _, err := o.Apply(i, Bool(v)); return err }

// SetInt assigns a signed scalar.
func (o *Object) SetInt(i int, v int64) error { _, err := o.Apply(i, Int(v)); return err }

// SetUint assigns an unsigned scalar.
func (o *Object) SetUint(i int, v uint64) error { _, err := o.Apply(i, Uint(v)); return err }

// SetFloat assigns a float scalar.
func (o *Object) SetFloat(i int, v float64) error { _, err := o.Apply(i, Float(v)); return err }

// SetString assigns a string field.
func (o *Object) SetString(i int, v string) error { _, err := o.Apply(i, String(v)); return err }

// SetBytes assigns a bytes field.
func (o *Object) SetBytes(i int, v []byte) error { _, err := o.Apply(i, Bytes(v)); return err }

// GetBool reads a boolean scalar; absent fields read as false.
func (o *Object) GetBool(i int) bool { v, _ := o.Get(i); return v.AsBool() }

// GetInt reads a signed scalar; absent fields read as zero.
func (o *Object) GetInt(i int) int64 { v, _ := o.Get(i); return v.AsInt() }

// GetUint reads an unsigned scalar; absent fields read as zero.
func (o *Object) GetUint(i int) uint64 { v, _ := o.Get(i); return v.AsUint() }

// GetFloat reads a float scalar; absent fields read as zero.
func (o *Object) GetFloat(i int) float64 { v, _ := o.Get(i); return v.AsFloat() }

// GetString reads a string field; absent fields read as "".
func (o *Object) GetString(i int) string { v, _ := o.Get(i); return v.AsString() }

// GetBytes reads a bytes field; absent fields read as nil.
func (o *Object) GetBytes(i int) []byte { v, _ := o.Get(i); return v.AsBytes() }

// SubObject returns the nested object behind a scalar object field.
func (o *Object) SubObject(i int) *Object {
	f := o.rt.Field(i)
	if f == nil || !f.IsObject() || f.IsArray() {
		return nil
	}
	return o.slots[i].sub
}

// Touch marks field i present without modifying its value. The changed bit
// is set only on a presence transition.
func (o *Object) Touch(i int) {
	if !o.mask.Touched(i) {
		o.markTouched(i, true)
		o.noteChange(i)
	}
}

// Clear empties field i: storage is zeroed and the touched bit drops.
// Clearing a present field marks it changed.
func (o *Object) Clear(i int) error {
	f, err := o.field(i)
	if err != nil {
		return err
	}
	wasTouched := o.mask.Touched(i)
	o.resetSlot(f)
	o.markTouched(i, false)
	if wasTouched {
		o.noteChange(i)
	}
	return nil
}

func (o *Object) resetSlot(f *schema.Field) {
	s := &o.slots[f.Index]
	if f.IsArray() {
		s.nums, s.strs, s.raws, s.subs = nil, nil, nil, nil
		return
	}
	switch f.Type {
	case schema.TypeString:
		s.str = ""
	case schema.TypeBytes:
		s.raw = nil
	case schema.TypeObject:
		s.sub.clearAll(false)
	default:
		s.num = 0
	}
}

// ClearAll empties every field including the identifier.
func (o *Object) ClearAll() {
	o.clearAll(true)
}

// ResetToDefaults zeroes storage and presence without change accounting.
// Decoders call it before an initializing decode.
func (o *Object) ResetToDefaults() {
	for i := range o.rt.Fields() {
		o.resetSlot(o.rt.Field(i))
	}
	o.mask.ClearTouched()
}

// EnsureID generates and assigns an identifier when none is present.
func (o *Object) EnsureID() {
	if !o.HasID() {
		o.SetID(o.Root().generateID())
		o.mask.SetChanged(schema.IDFieldIndex, true)
	}
}

func (o *Object) clearAll(note bool) {
	cleared := false
	for i := range o.rt.Fields() {
		wasTouched := o.mask.Touched(i)
		o.resetSlot(o.rt.Field(i))
		if note && wasTouched {
			o.mask.SetChanged(i, true)
			cleared = true
		}
	}
	o.mask.ClearTouched()
	if cleared {
		o.bubble()
	}
}

// ClearAllExceptID empties every field but preserves the identifier value
// and its presence, leaving the identifier unmarked as changed.
func (o *Object) ClearAllExceptID() {
	id := o.ID()
	hadID := o.HasID()
	o.ClearAll()
	if hadID {
		o.slots[schema.IDFieldIndex].num = id
		o.markTouched(schema.IDFieldIndex, true)
		o.mask.SetChanged(schema.IDFieldIndex, false)
	}
}

// ClearTouchMarkers drops every touched bit in the object graph without
// modifying storage or changed bits.
func (o *Object) ClearTouchMarkers() {
	o.mask.ClearTouched()
	o.eachSub(func(sub *Object) { sub.ClearTouchMarkers() })
}

// ClearChangeMarkers drops every changed bit in the object graph. Call
// after a successful publish cycle.
func (o *Object) ClearChangeMarkers() {
	o.mask.ClearChanged()
	o.eachSub(func(sub *Object) { sub.ClearChangeMarkers() })
}

// eachSub visits all nested objects, scalar and array elements alike.
func (o *Object) eachSub(fn func(*Object)) {
	for i := range o.rt.Fields() {
		f := o.rt.Field(i)
		if !f.IsObject() {
			continue
		}
		if f.IsArray() {
			for _, sub := range o.slots[i].subs {
				fn(sub)
			}
		} else if o.slots[i].sub != nil {
			fn(o.slots[i].sub)
		}
	}
}

// ChangeMask returns a snapshot filter of what changed since the markers
// were last cleared.
func (o *Object) ChangeMask() mask.Filter {
	m := o.mask.Clone()
	m.ClearTouched()
	return m
}

// SetFlag sets or clears a named bit of a bitmask field.
func (o *Object) SetFlag(i int, name string, on bool) error {
	f, err := o.field(i)
	if err != nil {
		return err
	}
	if f.Type != schema.TypeBitmask || f.Enum == nil {
		return fmt.Errorf("%w: %s is not a bitmask", ErrBadField, f.Label)
	}
	bit, ok := f.Enum.Value(name)
	if !ok {
		return fmt.Errorf("%w: %s has no flag %q", ErrBadField, f.Label, name)
	}
	return o.SetBit(i, int(bit), on)
}

// Flag reads a named bit of a bitmask field.
func (o *Object) Flag(i int, name string) bool {
	f := o.rt.Field(i)
	if f == nil || f.Type != schema.TypeBitmask || f.Enum == nil {
		return false
	}
	bit, ok := f.Enum.Value(name)
	if !ok {
		return false
	}
	return o.slots[i].num&(1<<uint(bit)) != 0
}

// SetBit sets or clears one bit position of a bitmask field.
func (o *Object) SetBit(i int, bit int, on bool) error {
	f, err := o.field(i)
	if err != nil {
		return err
	}
	if f.Type != schema.TypeBitmask {
		return fmt.Errorf("%w: %s is not a bitmask", ErrBadField, f.Label)
	}
	if bit < 0 || bit >= f.Bits {
		return fmt.Errorf("%w: bit %d of %s", ErrBadIndex, bit, f.Label)
	}
	v := o.slots[i].num
	if on {
		v |= 1 << uint(bit)
	} else {
		v &^= 1 << uint(bit)
	}
	_, err = o.Apply(i, Uint(v))
	return err
}
