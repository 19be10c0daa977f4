package object

import (
	"fmt"
	"strings"

	"github.com/stratahq/strata/mask"
	"github.com/stratahq/strata/schema"
)

// Clone returns a deep, detached copy of the object: same values, same
// touched and changed bits, no parent, no hook.
func (o *Object) Clone() *Object {
	c := newObject(o.rt)
	c.copyFrom(o)
	return c
}

// copyFrom makes c a bit-exact copy of o's storage and mask.
func (c *Object) copyFrom(o *Object) {
	c.mask = o.mask.Clone()
	for i := range o.rt.Fields() {
		f := o.rt.Field(i)
		src, dst := &o.slots[i], &c.slots[i]
		if f.IsArray() {
			switch f.Type {
			case schema.TypeString:
				dst.strs = append([]string(nil), src.strs...)
			case schema.TypeBytes:
				dst.raws = nil
				for _, b := range src.raws {
					dst.raws = append(dst.raws, append([]byte(nil), b...))
				}
			case schema.TypeObject:
				dst.subs = nil
				for _, sub := range src.subs {
					elem := newObject(f.Sub)
					elem.copyFrom(sub)
					elem.parent = c
					elem.childIndex = i
					dst.subs = append(dst.subs, elem)
				}
			default:
				dst.nums = append([]uint64(nil), src.nums...)
			}
			continue
		}
		switch f.Type {
		case schema.TypeString:
			dst.str = src.str
		case schema.TypeBytes:
			dst.raw = append([]byte(nil), src.raw...)
		case schema.TypeObject:
			dst.sub.copyFrom(src.sub)
		default:
			dst.num = src.num
		}
	}
}

// Overwrite makes o a bit-exact copy of other, masks included, without
// change accounting. Parent linkage and hooks are preserved.
func (o *Object) Overwrite(other *Object) error {
	if o.rt != other.rt {
		return fmt.Errorf("%w: overwrite across record types", ErrBadField)
	}
	o.copyFrom(other)
	return nil
}

// TransferFrom moves other's storage and mask into o, leaving other empty.
// Parent linkage and hooks of o are preserved; nested objects are
// reparented.
func (o *Object) TransferFrom(other *Object) error {
	if o.rt != other.rt {
		return fmt.Errorf("%w: transfer across record types", ErrBadField)
	}
	o.mask = other.mask
	o.slots = other.slots
	for i := range o.slots {
		if sub := o.slots[i].sub; sub != nil {
			sub.parent = o
		}
		for _, sub := range o.slots[i].subs {
			sub.parent = o
		}
	}
	other.clearAllStorage()
	return nil
}

func (o *Object) clearAllStorage() {
	o.slots = make([]slot, o.rt.FieldCount())
	o.mask = mask.New(o.rt.FieldCount())
	for i := range o.rt.Fields() {
		f := o.rt.Field(i)
		if f.IsObject() && !f.IsArray() {
			sub := newObject(f.Sub)
			sub.parent = o
			sub.childIndex = i
			o.slots[i].sub = sub
		}
	}
}

// Patch merges other into o: every field present in other is assigned,
// every field marked changed-but-absent in other is cleared, and all other
// fields retain their prior values.
func (o *Object) Patch(other *Object) error {
	if o.rt != other.rt {
		return fmt.Errorf("%w: patch across record types", ErrBadField)
	}
	for i := range o.rt.Fields() {
		f := o.rt.Field(i)
		switch {
		case other.mask.Touched(i):
			if err := o.assignField(f, other); err != nil {
				return err
			}
		case other.mask.Changed(i):
			if err := o.Clear(i); err != nil {
				return err
			}
		}
	}
	return nil
}

// Put overwrites present fields from other while keeping o's identifier:
// everything except the id is cleared first, then other is merged.
func (o *Object) Put(other *Object) error {
	if o.rt != other.rt {
		return fmt.Errorf("%w: put across record types", ErrBadField)
	}
	o.ClearAllExceptID()
	for i := range o.rt.Fields() {
		if i == schema.IDFieldIndex {
			continue
		}
		if other.mask.Touched(i) {
			if err := o.assignField(o.rt.Field(i), other); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Object) assignField(f *schema.Field, other *Object) error {
	i := f.Index
	if f.IsArray() {
		return o.replaceArray(f, other)
	}
	if f.IsObject() {
		sub := o.slots[i].sub
		if err := sub.Patch(other.slots[i].sub); err != nil {
			return err
		}
		o.Touch(i)
		return nil
	}
	v, _ := other.Get(i)
	_, err := o.Apply(i, v)
	return err
}

// replaceArray swaps in other's elements for array field f with change
// detection against the prior contents.
func (o *Object) replaceArray(f *schema.Field, other *Object) error {
	i := f.Index
	differs := o.Count(i) != other.Count(i)

	src, dst := &other.slots[i], &o.slots[i]
	switch f.Type {
	case schema.TypeString:
		if !differs {
			for n := range src.strs {
				if dst.strs[n] != src.strs[n] {
					differs = true
					break
				}
			}
		}
		dst.strs = append([]string(nil), src.strs...)
	case schema.TypeBytes:
		if !differs {
			for n := range src.raws {
				if !bytesEqual(dst.raws[n], src.raws[n]) {
					differs = true
					break
				}
			}
		}
		dst.raws = nil
		for _, b := range src.raws {
			dst.raws = append(dst.raws, append([]byte(nil), b...))
		}
	case schema.TypeObject:
		if !differs {
			for n := range src.subs {
				if !dst.subs[n].Equal(src.subs[n]) {
					differs = true
					break
				}
			}
		}
		dst.subs = nil
		for _, sub := range src.subs {
			elem := newObject(f.Sub)
			elem.copyFrom(sub)
			elem.parent = o
			elem.childIndex = i
			if !elem.HasID() {
				elem.SetID(o.Root().generateID())
			}
			dst.subs = append(dst.subs, elem)
		}
	default:
		if !differs {
			for n := range src.nums {
				if dst.nums[n] != src.nums[n] {
					differs = true
					break
				}
			}
		}
		dst.nums = append([]uint64(nil), src.nums...)
	}

	o.markTouched(i, other.mask.Touched(i))
	if differs {
		o.noteChange(i)
	}
	return nil
}

// Equal reports whether two objects hold the same present fields with the
// same values. Changed bits are ignored.
func (o *Object) Equal(other *Object) bool {
	return o.Compare(other) == 0
}

// Compare orders two objects deterministically: by record type name, then
// identifier, then field presence and values in index order.
func (o *Object) Compare(other *Object) int {
	if o == other {
		return 0
	}
	if o == nil || other == nil {
		if o == nil {
			return -1
		}
		return 1
	}
	if c := strings.Compare(o.rt.Name(), other.rt.Name()); c != 0 {
		return c
	}
	for i := range o.rt.Fields() {
		f := o.rt.Field(i)
		at, bt := o.mask.Touched(i), other.mask.Touched(i)
		if at != bt {
			if bt {
				return -1
			}
			return 1
		}
		if !at {
			continue
		}
		if c := o.compareField(f, other); c != 0 {
			return c
		}
	}
	return 0
}

func (o *Object) compareField(f *schema.Field, other *Object) int {
	i := f.Index
	if f.IsArray() {
		ac, bc := o.Count(i), other.Count(i)
		if ac != bc {
			if ac < bc {
				return -1
			}
			return 1
		}
		for n := 0; n < ac; n++ {
			if f.IsObject() {
				if c := o.slots[i].subs[n].Compare(other.slots[i].subs[n]); c != 0 {
					return c
				}
				continue
			}
			av, _ := o.At(i, n)
			bv, _ := other.At(i, n)
			if c := compareValues(f, av, bv); c != 0 {
				return c
			}
		}
		return 0
	}
	if f.IsObject() {
		return o.slots[i].sub.Compare(other.slots[i].sub)
	}
	av, _ := o.Get(i)
	bv, _ := other.Get(i)
	return compareValues(f, av, bv)
}

func compareValues(f *schema.Field, a, b Value) int {
	switch f.Type {
	case schema.TypeString:
		return strings.Compare(a.AsString(), b.AsString())
	case schema.TypeBytes:
		ab, bb := a.AsBytes(), b.AsBytes()
		if len(ab) != len(bb) {
			if len(ab) < len(bb) {
				return -1
			}
			return 1
		}
		for i := range ab {
			if ab[i] != bb[i] {
				if ab[i] < bb[i] {
					return -1
				}
				return 1
			}
		}
		return 0
	case schema.TypeSigned:
		ai, bi := a.AsInt(), b.AsInt()
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	case schema.TypeFloat:
		af, bf := a.AsFloat(), b.AsFloat()
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	default:
		au, bu := a.AsUint(), b.AsUint()
		switch {
		case au < bu:
			return -1
		case au > bu:
			return 1
		}
		return 0
	}
}
