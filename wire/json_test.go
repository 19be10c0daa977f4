package wire

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratahq/strata/mask"
	"github.com/stratahq/strata/object"
	"github.com/stratahq/strata/schema"
	"github.com/stratahq/strata/stream"
)

var colorMap = schema.MustEnumMap("color", []schema.EnumEntry{
	{Name: "Red", Value: 0},
	{Name: "Green", Value: 1},
	{Name: "Blue", Value: 2},
})

var flagMap = schema.MustEnumMap("flags", []schema.EnumEntry{
	{Name: "ready", Value: 0},
	{Name: "armed", Value: 1},
	{Name: "failed", Value: 4},
})

func codecType(t *testing.T) *schema.RecordType {
	t.Helper()
	inner := schema.NewBuilder("Inner").
		String("name", 32).
		Signed("value", 32).
		MustBuild()
	return schema.NewBuilder("Codec").
		Bool("flag").
		Signed("small", 8).
		Signed("wide", 64).
		Unsigned("count", 32).
		Float("ratio", 64).
		Float("ratio32", 32).
		Enum("color", colorMap).
		Bitmask("flags", flagMap, 8).
		String("label", 32).
		Bytes("payload", 64).
		Object("inner", inner).
		Signed("nums", 16, schema.Array(8)).
		String("tags", 16, schema.Array(4)).
		Object("items", inner, schema.Array(4)).
		MustBuild()
}

func field(t *testing.T, rt *schema.RecordType, label string) int {
	t.Helper()
	f, ok := rt.FieldByLabel(label)
	require.True(t, ok, "field %s", label)
	return f.Index
}

func encodeJSON(t *testing.T, o *object.Object) string {
	t.Helper()
	var buf bytes.Buffer
	w := stream.NewWriter(&buf)
	require.NoError(t, Encode(w, JSON(), o))
	return buf.String()
}

func decodeJSON(t *testing.T, o *object.Object, body string) error {
	t.Helper()
	return DecodeNoInit(stream.NewReader(strings.NewReader(body)), JSON(), o)
}

func TestEncodeScalars(t *testing.T) {
	rt := codecType(t)
	o := object.New(rt)

	require.NoError(t, o.SetBool(field(t, rt, "flag"), true))
	require.NoError(t, o.SetInt(field(t, rt, "small"), -5))
	require.NoError(t, o.SetUint(field(t, rt, "count"), 7))
	require.NoError(t, o.SetString(field(t, rt, "label"), "hi"))

	body := encodeJSON(t, o)
	assert.Equal(t, `{"flag":true,"small":-5,"count":7,"label":"hi"}`, body)
}

func TestEncodeFloatFormats(t *testing.T) {
	rt := codecType(t)

	cases := []struct {
		value float64
		want  string
	}{
		{123.0, "123"},
		{0.5, "0.5"},
		{-2.25, "-2.25"},
	}
	for _, tc := range cases {
		o := object.New(rt)
		require.NoError(t, o.SetFloat(field(t, rt, "ratio"), tc.value))
		assert.Equal(t, `{"ratio":`+tc.want+`}`, encodeJSON(t, o))
	}

	// magnitudes outside the plain band go exponential
	o := object.New(rt)
	require.NoError(t, o.SetFloat(field(t, rt, "ratio"), 0.0000001234))
	assert.Contains(t, encodeJSON(t, o), "e-")
}

func TestEncodeEnumAndBitmask(t *testing.T) {
	rt := codecType(t)
	o := object.New(rt)

	require.NoError(t, o.SetInt(field(t, rt, "color"), 2))
	require.NoError(t, o.SetFlag(field(t, rt, "flags"), "ready", true))
	require.NoError(t, o.SetFlag(field(t, rt, "flags"), "failed", true))

	body := encodeJSON(t, o)
	assert.Equal(t, `{"color":"Blue","flags":["ready","failed"]}`, body)
}

func TestEncodeBytesBase64(t *testing.T) {
	rt := codecType(t)
	o := object.New(rt)
	require.NoError(t, o.SetBytes(field(t, rt, "payload"), []byte{0xDE, 0xAD, 0xBE}))
	assert.Equal(t, `{"payload":"3q2+"}`, encodeJSON(t, o))
}

func TestEncodeStringEscapes(t *testing.T) {
	rt := codecType(t)
	o := object.New(rt)
	require.NoError(t, o.SetString(field(t, rt, "label"), "a\"b\\c\nd"))
	assert.Equal(t, `{"label":"a\"b\\c\nd"}`, encodeJSON(t, o))
}

func TestEncodeChangedButClearedEmitsNull(t *testing.T) {
	rt := codecType(t)
	o := object.New(rt)
	i := field(t, rt, "label")
	require.NoError(t, o.SetString(i, "x"))
	o.ClearChangeMarkers()
	require.NoError(t, o.Clear(i))

	assert.Equal(t, `{"label":null}`, encodeJSON(t, o))
}

func TestDecodeScalars(t *testing.T) {
	rt := codecType(t)
	o := object.New(rt)

	require.NoError(t, decodeJSON(t, o,
		`{"flag":true,"small":-3,"wide":1234567890123,"count":9,"ratio":0.25,"label":"yo"}`))

	assert.True(t, o.GetBool(field(t, rt, "flag")))
	assert.Equal(t, int64(-3), o.GetInt(field(t, rt, "small")))
	assert.Equal(t, int64(1234567890123), o.GetInt(field(t, rt, "wide")))
	assert.Equal(t, uint64(9), o.GetUint(field(t, rt, "count")))
	assert.Equal(t, 0.25, o.GetFloat(field(t, rt, "ratio")))
	assert.Equal(t, "yo", o.GetString(field(t, rt, "label")))
}

func TestDecodeToleratesWhitespaceAndDottedLabels(t *testing.T) {
	rt := schema.NewBuilder("Dotty").
		Signed("a_b", 32).
		MustBuild()
	o := object.New(rt)

	require.NoError(t, decodeJSON(t, o, "  \n\t { \"a.b\" : 5 } "))
	f, _ := rt.FieldByLabel("a_b")
	assert.Equal(t, int64(5), o.GetInt(f.Index))
}

func TestDecodeEnumForms(t *testing.T) {
	rt := codecType(t)
	i := field(t, rt, "color")

	o := object.New(rt)
	require.NoError(t, decodeJSON(t, o, `{"color":"Green"}`))
	assert.Equal(t, int64(1), o.GetInt(i))

	o = object.New(rt)
	require.NoError(t, decodeJSON(t, o, `{"color":2}`))
	assert.Equal(t, int64(2), o.GetInt(i))

	// relaxed: case-insensitive name match
	o = object.New(rt)
	require.NoError(t, decodeJSON(t, o, `{"color":"blue"}`))
	assert.Equal(t, int64(2), o.GetInt(i))

	o = object.New(rt)
	assert.Error(t, decodeJSON(t, o, `{"color":"Purple"}`))

	o = object.New(rt)
	assert.Error(t, decodeJSON(t, o, `{"color":9}`))
}

func TestDecodeBitmaskObjectOfBooleans(t *testing.T) {
	rt := codecType(t)
	i := field(t, rt, "flags")
	o := object.New(rt)
	require.NoError(t, o.SetFlag(i, "armed", true))

	require.NoError(t, decodeJSON(t, o, `{"flags":{"ready":true,"armed":false}}`))
	assert.True(t, o.Flag(i, "ready"))
	assert.False(t, o.Flag(i, "armed"))
}

func TestDecodeIntegerOverflow(t *testing.T) {
	rt := codecType(t)
	o := object.New(rt)
	err := decodeJSON(t, o, `{"small":300}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, object.ErrOverflow)
}

func TestDecodeUnknownFieldSkippedOrHandled(t *testing.T) {
	rt := codecType(t)
	o := object.New(rt)

	// unknown fields are skipped silently by default
	require.NoError(t, decodeJSON(t, o, `{"mystery":{"deep":[1,2]},"label":"kept"}`))
	assert.Equal(t, "kept", o.GetString(field(t, rt, "label")))

	// a handler sees name and raw value
	o = object.New(rt)
	r := stream.NewReader(strings.NewReader(`{"mystery":42,"label":"kept"}`))
	var gotName, gotValue string
	r.Unknown = func(name, value string) bool {
		gotName, gotValue = name, value
		return true
	}
	require.NoError(t, DecodeNoInit(r, JSON(), o))
	assert.Equal(t, "mystery", gotName)
	assert.Equal(t, "42", gotValue)
}

func TestDecodeNullClearsField(t *testing.T) {
	rt := codecType(t)
	i := field(t, rt, "label")
	o := object.New(rt)
	require.NoError(t, o.SetString(i, "x"))
	o.ClearChangeMarkers()

	require.NoError(t, decodeJSON(t, o, `{"label":null}`))
	assert.False(t, o.Touched(i))
	assert.True(t, o.Changed(i))
}

func TestDecodeArrays(t *testing.T) {
	rt := codecType(t)
	o := object.New(rt)

	require.NoError(t, decodeJSON(t, o, `{"nums":[1,2,3],"tags":["a","b"]}`))
	nums := field(t, rt, "nums")
	tags := field(t, rt, "tags")
	assert.Equal(t, 3, o.Count(nums))
	assert.Equal(t, 2, o.Count(tags))
	v, _ := o.At(nums, 2)
	assert.Equal(t, int64(3), v.AsInt())

	// replacement shrinks
	require.NoError(t, decodeJSON(t, o, `{"nums":[9]}`))
	assert.Equal(t, 1, o.Count(nums))
}

func TestDecodeArrayOverflow(t *testing.T) {
	rt := codecType(t)
	o := object.New(rt)
	err := decodeJSON(t, o, `{"tags":["a","b","c","d","e"]}`)
	require.Error(t, err)
}

func TestDecodeSubObjectArrayGeneratesIDs(t *testing.T) {
	rt := codecType(t)
	o := object.New(rt)
	items := field(t, rt, "items")

	require.NoError(t, decodeJSON(t, o, `{"items":[{"name":"a"},{"id":77,"name":"b"}]}`))
	require.Equal(t, 2, o.Count(items))
	assert.NotZero(t, o.SubObjectAt(items, 0).ID())
	assert.Equal(t, uint64(77), o.SubObjectAt(items, 1).ID())
}

func TestJSONRoundtrip(t *testing.T) {
	rt := codecType(t)
	o := object.New(rt)

	require.NoError(t, decodeJSON(t, o,
		`{"flag":true,"small":-3,"count":9,"ratio":0.25,"color":"Green",`+
			`"flags":["ready"],"label":"yo","payload":"3q2+",`+
			`"inner":{"name":"n","value":4},"nums":[1,2],"tags":["t"]}`))
	o.ClearChangeMarkers()

	body := encodeJSON(t, o)
	back := object.New(rt)
	require.NoError(t, decodeJSON(t, back, body))

	assert.True(t, o.Equal(back), "roundtrip mismatch:\n%s\n%s", body, encodeJSON(t, back))
}

func TestEncodeHonorsAccessFilter(t *testing.T) {
	rt := codecType(t)
	o := object.New(rt)
	require.NoError(t, o.SetString(field(t, rt, "label"), "x"))
	require.NoError(t, o.SetBool(field(t, rt, "flag"), true))

	var buf bytes.Buffer
	w := stream.NewWriter(&buf)
	w.Access = func(obj *object.Object) mask.Filter {
		return mask.ForFields(rt.FieldCount(), field(t, rt, "label"))
	}
	require.NoError(t, Encode(w, JSON(), o))
	assert.Equal(t, `{"label":"x"}`, buf.String())
}

func TestDecodeHonorsAccessFilter(t *testing.T) {
	rt := codecType(t)
	o := object.New(rt)

	r := stream.NewReader(strings.NewReader(`{"flag":true,"label":"x"}`))
	r.Access = func(obj *object.Object) mask.Filter {
		return mask.ForFields(rt.FieldCount(), field(t, rt, "label"))
	}
	require.NoError(t, DecodeNoInit(r, JSON(), o))
	assert.False(t, o.Touched(field(t, rt, "flag")))
	assert.Equal(t, "x", o.GetString(field(t, rt, "label")))
}

func TestEncodeExtraField(t *testing.T) {
	rt := codecType(t)
	o := object.New(rt)
	require.NoError(t, o.SetBool(field(t, rt, "flag"), true))

	var buf bytes.Buffer
	w := stream.NewWriter(&buf)
	w.ExtraField = func() (string, string, bool) { return "etag", "abc", true }
	require.NoError(t, Encode(w, JSON(), o))
	assert.Equal(t, `{"flag":true,"etag":"abc"}`, buf.String())
}

func TestSizerCountsWithoutWriting(t *testing.T) {
	rt := codecType(t)
	o := object.New(rt)
	require.NoError(t, o.SetString(field(t, rt, "label"), "x"))

	sizer := stream.NewSizer()
	require.NoError(t, Encode(sizer, JSON(), o))
	assert.Equal(t, len(`{"label":"x"}`), sizer.Count())
}
