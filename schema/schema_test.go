package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderAddsIdentifier(t *testing.T) {
	rt := NewBuilder("Thing").
		String("name", 16).
		MustBuild()

	require.Equal(t, 2, rt.FieldCount())
	id := rt.Field(IDFieldIndex)
	assert.Equal(t, IDFieldLabel, id.Label)
	assert.Equal(t, TypeUnsigned, id.Type)
	assert.Equal(t, 64, id.Bits)

	f, ok := rt.FieldByLabel("name")
	require.True(t, ok)
	assert.Equal(t, 1, f.Index)
	assert.Equal(t, 1, f.Tag)
	assert.Equal(t, 16, f.MaxLen)
}

func TestBuilderOptions(t *testing.T) {
	rt := NewBuilder("Thing").
		Signed("level", 16,
			Array(8), ReadLevel(LevelCloud), WriteLevel(LevelAdmin),
			Persisted(), AlwaysNotify(), Bounds(-10, 10), Tag(5)).
		MustBuild()

	f, _ := rt.FieldByLabel("level")
	assert.Equal(t, 8, f.Capacity)
	assert.True(t, f.IsArray())
	assert.Equal(t, LevelCloud, f.ReadLevel)
	assert.Equal(t, LevelAdmin, f.WriteLevel)
	assert.True(t, f.Persisted)
	assert.True(t, f.AlwaysNotify)
	assert.Equal(t, 5, f.Tag)
	require.NotNil(t, f.Min)
	assert.Equal(t, -10.0, *f.Min)

	byTag, ok := rt.FieldByTag(5)
	require.True(t, ok)
	assert.Equal(t, f, byTag)
}

func TestDuplicateLabelRejected(t *testing.T) {
	_, err := NewBuilder("Thing").
		Bool("x").
		Bool("x").
		Build()
	assert.ErrorIs(t, err, ErrDuplicateField)
}

func TestDottedLabelLookup(t *testing.T) {
	rt := NewBuilder("Thing").
		Signed("a_b", 32).
		MustBuild()
	f, ok := rt.FieldByLabel("a.b")
	require.True(t, ok)
	assert.Equal(t, "a_b", f.Label)
}

func TestPermissionChecks(t *testing.T) {
	f := Field{ReadLevel: LevelCloud, WriteLevel: LevelRoot}
	assert.False(t, f.Readable(LevelPublic))
	assert.True(t, f.Readable(LevelCloud))
	assert.True(t, f.Readable(LevelRoot))
	assert.False(t, f.Writable(LevelAdmin))
	assert.True(t, f.Writable(LevelRoot))
}

func TestEnumMapLookups(t *testing.T) {
	em, err := NewEnumMap("mode", []EnumEntry{
		{Name: "off", Value: 0, Description: "powered down"},
		{Name: "on", Value: 1},
		{Name: "auto", Value: 5},
	})
	require.NoError(t, err)

	v, ok := em.Value("auto")
	require.True(t, ok)
	assert.Equal(t, int64(5), v)

	name, ok := em.NameOf(1)
	require.True(t, ok)
	assert.Equal(t, "on", name)

	assert.True(t, em.Contains(0))
	assert.False(t, em.Contains(2))
	assert.Equal(t, "powered down", em.Describe(0))

	_, ok = em.Value("missing")
	assert.False(t, ok)
}

func TestEnumFieldRequiresMap(t *testing.T) {
	_, err := NewRecordType("Bad", []Field{
		{Label: IDFieldLabel, Type: TypeUnsigned, Bits: 64},
		{Label: "mode", Type: TypeEnum, Bits: 32},
	})
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestRecordTypeRequiresIdentifier(t *testing.T) {
	_, err := NewRecordType("Bad", []Field{
		{Label: "name", Type: TypeString},
	})
	assert.ErrorIs(t, err, ErrInvalidType)
}

type testGeo struct {
	Lat float64 `strata:"lat"`
	Lon float64 `strata:"lon"`
}

type testDevice struct {
	ID     uint64
	Name   string  `strata:"name" strata.len:"32"`
	Secret string  `strata:"secret" strata.read:"admin" strata.write:"root"`
	Signal int16    `strata:"signal" strata.bounds:"-120..0"`
	Ports  []uint16 `strata:"ports" strata.cap:"8"`
	Token  []byte   `strata:"token"`
	Skip   string   `strata:"-"`
	Loc    testGeo  `strata:"location" strata.notify:"always"`
}

func TestDeriveFromStruct(t *testing.T) {
	rt, err := Of[testDevice]()
	require.NoError(t, err)

	assert.Equal(t, "testDevice", rt.Name())

	name, ok := rt.FieldByLabel("name")
	require.True(t, ok)
	assert.Equal(t, TypeString, name.Type)
	assert.Equal(t, 32, name.MaxLen)

	secret, ok := rt.FieldByLabel("secret")
	require.True(t, ok)
	assert.Equal(t, LevelAdmin, secret.ReadLevel)
	assert.Equal(t, LevelRoot, secret.WriteLevel)

	signal, ok := rt.FieldByLabel("signal")
	require.True(t, ok)
	assert.Equal(t, TypeSigned, signal.Type)
	assert.Equal(t, 16, signal.Bits)
	require.NotNil(t, signal.Min)
	assert.Equal(t, -120.0, *signal.Min)

	ports, ok := rt.FieldByLabel("ports")
	require.True(t, ok)
	assert.Equal(t, TypeUnsigned, ports.Type)
	assert.Equal(t, 16, ports.Bits)
	assert.Equal(t, 8, ports.Capacity)

	token, ok := rt.FieldByLabel("token")
	require.True(t, ok)
	assert.Equal(t, TypeBytes, token.Type)
	assert.False(t, token.IsArray())

	_, ok = rt.FieldByLabel("skip")
	assert.False(t, ok)

	loc, ok := rt.FieldByLabel("location")
	require.True(t, ok)
	require.Equal(t, TypeObject, loc.Type)
	assert.True(t, loc.AlwaysNotify)
	_, ok = loc.Sub.FieldByLabel("lat")
	assert.True(t, ok)
}

func TestDeriveIsCached(t *testing.T) {
	a, err := Of[testDevice]()
	require.NoError(t, err)
	b, err := Of[testDevice]()
	require.NoError(t, err)
	assert.Same(t, a, b)
}

const deviceYAML = `
name: Device
fields:
  - label: name
    type: string
    max_len: 32
  - label: mode
    type: enum
    values:
      - {name: off, value: 0}
      - {name: on, value: 1}
  - label: signal
    type: signed
    bits: 16
    min: -120
    max: 0
    read: cloud
    write: admin
  - label: samples
    type: signed
    bits: 16
    capacity: 64
  - label: location
    type: object
    object:
      name: GeoPos
      fields:
        - label: lat
          type: float
        - label: lon
          type: float
`

func TestLoadYAML(t *testing.T) {
	rt, err := Load([]byte(deviceYAML))
	require.NoError(t, err)
	assert.Equal(t, "Device", rt.Name())

	mode, ok := rt.FieldByLabel("mode")
	require.True(t, ok)
	require.Equal(t, TypeEnum, mode.Type)
	v, ok := mode.Enum.Value("on")
	require.True(t, ok)
	assert.Equal(t, int64(1), v)

	signal, _ := rt.FieldByLabel("signal")
	assert.Equal(t, LevelCloud, signal.ReadLevel)
	assert.Equal(t, LevelAdmin, signal.WriteLevel)
	require.NotNil(t, signal.Max)
	assert.Equal(t, 0.0, *signal.Max)

	samples, _ := rt.FieldByLabel("samples")
	assert.Equal(t, 64, samples.Capacity)

	loc, _ := rt.FieldByLabel("location")
	require.Equal(t, TypeObject, loc.Type)
	assert.Equal(t, "GeoPos", loc.Sub.Name())
}

func TestLoadBadYAML(t *testing.T) {
	_, err := Load([]byte(`{not yaml`))
	assert.Error(t, err)

	_, err = Load([]byte("name: X\nfields:\n  - label: f\n    type: wibble\n"))
	assert.ErrorIs(t, err, ErrInvalidField)
}
