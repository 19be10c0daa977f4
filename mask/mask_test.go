package mask

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTouchedAndChangedAreIndependent(t *testing.T) {
	f := New(5)
	f.SetTouched(2, true)
	assert.True(t, f.Touched(2))
	assert.False(t, f.Changed(2))

	f.SetChanged(2, true)
	assert.True(t, f.Changed(2))

	f.SetTouched(2, false)
	assert.False(t, f.Touched(2))
	assert.True(t, f.Changed(2))
}

func TestOutOfRangeIsIgnored(t *testing.T) {
	f := New(3)
	f.SetTouched(7, true)
	f.SetChanged(-1, true)
	assert.True(t, f.IsEmpty())
	assert.False(t, f.Touched(7))
}

func TestFillAndClearGroups(t *testing.T) {
	f := New(40) // spans more than one word
	f.Fill()
	for i := 0; i < 40; i++ {
		assert.True(t, f.Touched(i))
		assert.True(t, f.Changed(i))
	}

	f.ClearChanged()
	assert.True(t, f.AnyTouched())
	assert.False(t, f.AnyChanged())

	f.ClearTouched()
	assert.True(t, f.IsEmpty())

	f.FillChanged()
	assert.False(t, f.AnyTouched())
	assert.True(t, f.AnyChanged())
}

func TestSetAlgebra(t *testing.T) {
	a := ForFields(8, 1, 3)
	b := ForFields(8, 3, 5)

	i := a.Clone()
	i.And(b)
	assert.True(t, i.Touched(3))
	assert.False(t, i.Touched(1))
	assert.False(t, i.Touched(5))

	u := a.Clone()
	u.Or(b)
	for _, idx := range []int{1, 3, 5} {
		assert.True(t, u.Touched(idx))
	}

	assert.True(t, a.Overlaps(b))
	assert.False(t, ForFields(8, 0).Overlaps(ForFields(8, 7)))
}

func TestAnyChangeMatchesChangedBits(t *testing.T) {
	object := New(6)
	object.SetChanged(4, true)

	assert.True(t, AnyChange(6).Overlaps(object))
	assert.False(t, ForFields(6, 2).Overlaps(object))
	assert.True(t, ForFields(6, 4).Overlaps(object))
}

func TestChangedFields(t *testing.T) {
	f := New(6)
	f.SetChanged(1, true)
	f.SetChanged(4, true)
	assert.Equal(t, []int{1, 4}, f.ChangedFields())
	assert.Empty(t, f.TouchedFields())
}

func TestCloneIsIndependent(t *testing.T) {
	a := New(4)
	a.SetField(1)
	b := a.Clone()
	b.SetField(2)
	assert.False(t, a.Touched(2))
	assert.True(t, b.Touched(1))
}
