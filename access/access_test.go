package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratahq/strata/mask"
	"github.com/stratahq/strata/object"
	"github.com/stratahq/strata/schema"
)

func guardedType(t *testing.T) *schema.RecordType {
	t.Helper()
	return schema.NewBuilder("Guarded").
		String("open", 16).
		String("cloudy", 16, schema.ReadLevel(schema.LevelCloud)).
		String("secret", 16, schema.ReadLevel(schema.LevelAdmin), schema.WriteLevel(schema.LevelRoot)).
		String("scratch", 16, schema.Volatile()).
		MustBuild()
}

func fieldIndex(t *testing.T, rt *schema.RecordType, label string) int {
	t.Helper()
	f, ok := rt.FieldByLabel(label)
	require.True(t, ok)
	return f.Index
}

func TestReadFilterByLevel(t *testing.T) {
	rt := guardedType(t)
	o := object.New(rt)

	pub := Access{Level: schema.LevelPublic}.ReadFilter(o)
	assert.True(t, pub.Touched(fieldIndex(t, rt, "open")))
	assert.False(t, pub.Touched(fieldIndex(t, rt, "cloudy")))
	assert.False(t, pub.Touched(fieldIndex(t, rt, "secret")))

	admin := Access{Level: schema.LevelAdmin}.ReadFilter(o)
	assert.True(t, admin.Touched(fieldIndex(t, rt, "secret")))
}

func TestWriteFilterByLevel(t *testing.T) {
	rt := guardedType(t)
	o := object.New(rt)

	admin := Access{Level: schema.LevelAdmin}.WriteFilter(o)
	assert.True(t, admin.Touched(fieldIndex(t, rt, "open")))
	assert.False(t, admin.Touched(fieldIndex(t, rt, "secret")), "write level root required")

	root := Access{Level: schema.LevelRoot}.WriteFilter(o)
	assert.True(t, root.Touched(fieldIndex(t, rt, "secret")))
}

func TestDeltasOnlyNarrowsToChangedFields(t *testing.T) {
	rt := guardedType(t)
	o := object.New(rt)
	open := fieldIndex(t, rt, "open")
	cloudy := fieldIndex(t, rt, "cloudy")
	require.NoError(t, o.SetString(open, "a"))
	require.NoError(t, o.SetString(cloudy, "b"))
	o.ClearChangeMarkers()
	require.NoError(t, o.SetString(open, "changed"))

	f := Access{Level: schema.LevelRoot, DeltasOnly: true}.ReadFilter(o)
	assert.True(t, f.Touched(open))
	assert.False(t, f.Touched(cloudy))
	assert.True(t, f.Touched(schema.IDFieldIndex), "the identifier always reads")
}

func TestPersistentOnlyNarrowsToPersistedFields(t *testing.T) {
	rt := guardedType(t)
	o := object.New(rt)
	scratch := fieldIndex(t, rt, "scratch")
	open := fieldIndex(t, rt, "open")

	f := Access{Level: schema.LevelRoot, PersistentOnly: true}.ReadFilter(o)
	assert.False(t, f.Touched(scratch))
	assert.True(t, f.Touched(open))

	w := Access{Level: schema.LevelRoot, PersistentOnly: true}.WriteFilter(o)
	assert.False(t, w.Touched(scratch))
	assert.True(t, w.Touched(open))
}

func TestRootFieldFilterAppliesToTopLevelOnly(t *testing.T) {
	rt := guardedType(t)
	o := object.New(rt)
	open := fieldIndex(t, rt, "open")
	cloudy := fieldIndex(t, rt, "cloudy")

	restrict := mask.ForFields(rt.FieldCount(), open)
	acc := Access{Level: schema.LevelRoot, RootFieldFilter: &restrict}

	f := acc.ReadFilter(o)
	assert.True(t, f.Touched(open))
	assert.False(t, f.Touched(cloudy))
}
