// Package mask implements the two-bit-per-field filters that track field
// presence and modification on objects.
//
// Every object carries a Filter of the same shape as its record type: the
// even bit of each pair marks a field as "touched" (present), the odd bit
// marks it as "changed" since the markers were last cleared. The same Filter
// type doubles as a first-class value for access control, change
// subscriptions, and persistence selection; set algebra (And, Or, Overlaps)
// composes them.
package mask

const bitsPerField = 2

// Filter is a bit vector holding a touched and a changed bit per field.
// The zero value is an empty filter over zero fields; use New to size one
// for a record type.
type Filter struct {
	words []uint64
	n     int
}

// New returns an empty filter sized for fieldCount fields.
func New(fieldCount int) Filter {
	words := (fieldCount*bitsPerField + 63) / 64
	return Filter{words: make([]uint64, words), n: fieldCount}
}

// FieldCount returns the number of fields this filter covers.
func (f Filter) FieldCount() int { return f.n }

// Clone returns an independent copy of f.
func (f Filter) Clone() Filter {
	c := Filter{words: make([]uint64, len(f.words)), n: f.n}
	copy(c.words, f.words)
	return c
}

func (f Filter) bit(pos int) bool {
	if pos < 0 || pos >= f.n*bitsPerField {
		return false
	}
	return f.words[pos/64]&(1<<(uint(pos)%64)) != 0
}

func (f *Filter) setBit(pos int, on bool) {
	if pos < 0 || pos >= f.n*bitsPerField {
		return
	}
	if on {
		f.words[pos/64] |= 1 << (uint(pos) % 64)
	} else {
		f.words[pos/64] &^= 1 << (uint(pos) % 64)
	}
}

// Touched reports whether field i is marked present.
func (f Filter) Touched(i int) bool { return f.bit(i * bitsPerField) }

// Changed reports whether field i is marked modified.
func (f Filter) Changed(i int) bool { return f.bit(i*bitsPerField + 1) }

// SetTouched sets or clears the touched bit for field i.
func (f *Filter) SetTouched(i int, on bool) { f.setBit(i*bitsPerField, on) }

// SetChanged sets or clears the changed bit for field i.
func (f *Filter) SetChanged(i int, on bool) { f.setBit(i*bitsPerField+1, on) }

// SetField sets both bits for field i, marking it as present and of
// interest. Subscription and access filters are built this way.
func (f *Filter) SetField(i int) {
	f.SetTouched(i, true)
	f.SetChanged(i, true)
}

// Has reports whether either bit of field i is set.
func (f Filter) Has(i int) bool { return f.Touched(i) || f.Changed(i) }

const (
	allTouched = 0x5555555555555555
	allChanged = 0xAAAAAAAAAAAAAAAA
)

// tailMask masks off bits beyond the filter's field count in the last word.
func (f Filter) tailMask(w int) uint64 {
	used := f.n*bitsPerField - w*64
	if used >= 64 {
		return ^uint64(0)
	}
	return (1 << uint(used)) - 1
}

// Fill sets every bit in the filter.
func (f *Filter) Fill() {
	for w := range f.words {
		f.words[w] = f.tailMask(w)
	}
}

// FillTouched sets every touched bit.
func (f *Filter) FillTouched() {
	for w := range f.words {
		f.words[w] |= allTouched & f.tailMask(w)
	}
}

// FillChanged sets every changed bit. A filter filled this way matches any
// change, which is how match-on-any-change subscriptions are expressed.
func (f *Filter) FillChanged() {
	for w := range f.words {
		f.words[w] |= allChanged & f.tailMask(w)
	}
}

// Clear resets every bit.
func (f *Filter) Clear() {
	for w := range f.words {
		f.words[w] = 0
	}
}

// ClearTouched clears every touched bit, leaving changed bits intact.
func (f *Filter) ClearTouched() {
	for w := range f.words {
		f.words[w] &^= allTouched
	}
}

// ClearChanged clears every changed bit, leaving touched bits intact.
func (f *Filter) ClearChanged() {
	for w := range f.words {
		f.words[w] &^= allChanged
	}
}

// IsEmpty reports whether no bit is set.
func (f Filter) IsEmpty() bool {
	for _, w := range f.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// AnyTouched reports whether any touched bit is set.
func (f Filter) AnyTouched() bool {
	for _, w := range f.words {
		if w&allTouched != 0 {
			return true
		}
	}
	return false
}

// AnyChanged reports whether any changed bit is set.
func (f Filter) AnyChanged() bool {
	for _, w := range f.words {
		if w&allChanged != 0 {
			return true
		}
	}
	return false
}

// And intersects f with other in place.
func (f *Filter) And(other Filter) {
	for w := range f.words {
		if w < len(other.words) {
			f.words[w] &= other.words[w]
		} else {
			f.words[w] = 0
		}
	}
}

// Or unions other into f in place.
func (f *Filter) Or(other Filter) {
	for w := range f.words {
		if w < len(other.words) {
			f.words[w] |= other.words[w]
		}
	}
}

// Overlaps reports whether f and other share any set bit.
func (f Filter) Overlaps(other Filter) bool {
	n := len(f.words)
	if len(other.words) < n {
		n = len(other.words)
	}
	for w := 0; w < n; w++ {
		if f.words[w]&other.words[w] != 0 {
			return true
		}
	}
	return false
}

// ChangedFields returns the indices of all fields with a changed bit set.
func (f Filter) ChangedFields() []int {
	var out []int
	for i := 0; i < f.n; i++ {
		if f.Changed(i) {
			out = append(out, i)
		}
	}
	return out
}

// TouchedFields returns the indices of all fields with a touched bit set.
func (f Filter) TouchedFields() []int {
	var out []int
	for i := 0; i < f.n; i++ {
		if f.Touched(i) {
			out = append(out, i)
		}
	}
	return out
}

// ForFields returns a filter with both bits set for each given field index.
func ForFields(fieldCount int, indices ...int) Filter {
	f := New(fieldCount)
	for _, i := range indices {
		f.SetField(i)
	}
	return f
}

// All returns a completely filled filter for fieldCount fields.
func All(fieldCount int) Filter {
	f := New(fieldCount)
	f.Fill()
	return f
}

// AnyChange returns a filter matching any change on fieldCount fields.
func AnyChange(fieldCount int) Filter {
	f := New(fieldCount)
	f.FillChanged()
	return f
}
