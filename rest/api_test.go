package rest

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratahq/strata/access"
	"github.com/stratahq/strata/object"
	"github.com/stratahq/strata/schema"
)

// subMessageType mirrors the nested shape used throughout the verb tests.
func subMessageType(t *testing.T) *schema.RecordType {
	t.Helper()
	return schema.NewBuilder("SubMessage").
		String("substuff1", 32).
		Signed("substuff2", 32).
		Bool("substuff3").
		MustBuild()
}

// testMessageType has one field of every interesting shape with
// submsg_type as a nested scalar object.
func testMessageType(t *testing.T) *schema.RecordType {
	t.Helper()
	return schema.NewBuilder("TestMessage").
		Signed("int8_type", 8, schema.Array(4)).
		Signed("int16_type", 16).
		Bool("bool_type").
		String("string_type", 32).
		Object("submsg_type", subMessageType(t)).
		MustBuild()
}

// arrayMessageType has submsg_type as an array of sub-objects.
func arrayMessageType(t *testing.T) *schema.RecordType {
	t.Helper()
	return schema.NewBuilder("ArrayMessage").
		Object("submsg_type", subMessageType(t), schema.Array(8)).
		MustBuild()
}

func getPath(t *testing.T, root *object.Object, path string) (string, Result) {
	t.Helper()
	var buf bytes.Buffer
	res := GetJSON(root, path, &buf, access.Root)
	return buf.String(), res
}

func mustGet(t *testing.T, root *object.Object, path string) string {
	t.Helper()
	body, res := getPath(t, root, path)
	require.True(t, res.IsOK(), "GET %s: %s", path, res.Error())
	return body
}

func TestPatchNested(t *testing.T) {
	root := object.New(testMessageType(t))

	res := PutJSON(root, "", strings.NewReader(
		`{"submsg_type":{"substuff1":"Hello","substuff2":32,"substuff3":true}}`), access.Root)
	require.True(t, res.IsOK(), res.Error())
	root.ClearChangeMarkers()

	res = PatchJSON(root, "/submsg_type", strings.NewReader(`{ "substuff2": 55 }`), access.Root)
	require.Equal(t, StatusOK, res.Status, res.Error())
	root.ClearChangeMarkers()

	body := mustGet(t, root, "")
	assert.Equal(t, `{"submsg_type":{"substuff1":"Hello","substuff2":55,"substuff3":true}}`, body)
}

func TestPatchNullClears(t *testing.T) {
	root := object.New(testMessageType(t))
	res := PutJSON(root, "", strings.NewReader(
		`{"submsg_type":{"substuff1":"Hello","substuff2":55,"substuff3":true}}`), access.Root)
	require.True(t, res.IsOK(), res.Error())
	root.ClearChangeMarkers()

	res = PatchJSON(root, "/submsg_type/substuff2", strings.NewReader(`null`), access.Root)
	require.Equal(t, StatusOK, res.Status, res.Error())
	root.ClearChangeMarkers()

	body := mustGet(t, root, "")
	assert.Equal(t, `{"submsg_type":{"substuff1":"Hello","substuff3":true}}`, body)
}

func TestPutReplaces(t *testing.T) {
	root := object.New(testMessageType(t))
	res := PutJSON(root, "", strings.NewReader(
		`{"int16_type":123,"bool_type":true,"string_type":"Hello"}`), access.Root)
	require.True(t, res.IsOK(), res.Error())
	root.ClearChangeMarkers()

	res = PutJSON(root, "", strings.NewReader(
		`{"bool_type":false,"string_type":"World"}`), access.Root)
	require.Equal(t, StatusOK, res.Status, res.Error())
	root.ClearChangeMarkers()

	body := mustGet(t, root, "")
	assert.Equal(t, `{"bool_type":false,"string_type":"World"}`, body)
}

func TestPutIsIdempotent(t *testing.T) {
	root := object.New(testMessageType(t))
	body := `{"int16_type":9,"string_type":"same"}`

	res := PutJSON(root, "", strings.NewReader(body), access.Root)
	require.True(t, res.IsOK())
	first := object.New(root.Type())
	require.NoError(t, first.Overwrite(root))

	res = PutJSON(root, "", strings.NewReader(body), access.Root)
	require.True(t, res.IsOK())

	assert.True(t, root.Equal(first))
}

func TestDeleteArrayElementByIndex(t *testing.T) {
	root := object.New(testMessageType(t))
	res := PatchJSON(root, "/int8_type", strings.NewReader(`[1,2,3,4]`), access.Root)
	require.True(t, res.IsOK(), res.Error())

	res = Delete(root, "/int8_type/0", access.Root)
	require.Equal(t, StatusOK, res.Status)

	assert.Equal(t, 3, root.Count(0+1)) // int8_type is field 1
	body := mustGet(t, root, "/int8_type")
	assert.Equal(t, `[2,3,4]`, body)
}

func TestDeleteSubObjectByID(t *testing.T) {
	root := object.New(arrayMessageType(t))
	field, ok := root.Type().FieldByLabel("submsg_type")
	require.True(t, ok)

	for _, id := range []uint64{10, 20, 30} {
		_, err := root.AddSubObject(field.Index, id)
		require.NoError(t, err)
	}

	res := Delete(root, "/submsg_type/20", access.Root)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 2, root.Count(field.Index))
	gone, _ := root.FindSubObject(field.Index, 20)
	assert.Nil(t, gone)

	res = Delete(root, "/submsg_type/1", access.Root)
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestKeyedSearch(t *testing.T) {
	root := object.New(arrayMessageType(t))
	field, ok := root.Type().FieldByLabel("submsg_type")
	require.True(t, ok)

	want := map[uint64]struct {
		name  string
		value int64
	}{
		10: {"Hello", 32},
		20: {"World!", 55},
	}
	for id, init := range want {
		sub, err := root.AddSubObject(field.Index, id)
		require.NoError(t, err)
		s1, _ := sub.Type().FieldByLabel("substuff1")
		s2, _ := sub.Type().FieldByLabel("substuff2")
		require.NoError(t, sub.SetString(s1.Index, init.name))
		require.NoError(t, sub.SetInt(s2.Index, init.value))
	}

	body := mustGet(t, root, "/submsg_type/*substuff1=World!/substuff2")
	assert.Equal(t, "55", body)

	_, res := getPath(t, root, "/submsg_type/*substuff1=Nobody/substuff2")
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestGetUnsetFieldIs404(t *testing.T) {
	root := object.New(testMessageType(t))
	_, res := getPath(t, root, "/string_type")
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestUnknownPathIs404(t *testing.T) {
	root := object.New(testMessageType(t))
	_, res := getPath(t, root, "/no_such_field")
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestPostOnScalarFieldIs405(t *testing.T) {
	root := object.New(testMessageType(t))
	res := PostJSON(root, "/string_type", strings.NewReader(`"x"`), access.Root)
	assert.Equal(t, StatusMethodNotAllowed, res.Status)
}

func TestPostAppendsScalarElement(t *testing.T) {
	root := object.New(testMessageType(t))
	res := PatchJSON(root, "/int8_type", strings.NewReader(`[5]`), access.Root)
	require.True(t, res.IsOK(), res.Error())

	res = PostJSON(root, "/int8_type", strings.NewReader(`7`), access.Root)
	require.Equal(t, StatusCreated, res.Status)
	assert.Equal(t, uint64(1), res.CreatedID)

	body := mustGet(t, root, "/int8_type")
	assert.Equal(t, `[5,7]`, body)
}

func TestPostSubObjectGeneratesID(t *testing.T) {
	root := object.New(arrayMessageType(t))
	res := PostJSON(root, "/submsg_type", strings.NewReader(`{"substuff1":"new"}`), access.Root)
	require.Equal(t, StatusCreated, res.Status)
	require.NotZero(t, res.CreatedID)

	field, _ := root.Type().FieldByLabel("submsg_type")
	sub, _ := root.FindSubObject(field.Index, res.CreatedID)
	require.NotNil(t, sub)
	s1, _ := sub.Type().FieldByLabel("substuff1")
	assert.Equal(t, "new", sub.GetString(s1.Index))
}

func TestPostBadBodyRollsBack(t *testing.T) {
	root := object.New(arrayMessageType(t))
	field, _ := root.Type().FieldByLabel("submsg_type")

	res := PostJSON(root, "/submsg_type", strings.NewReader(`{"substuff2":"not a number"}`), access.Root)
	require.Equal(t, StatusBadRequest, res.Status)
	assert.Equal(t, 0, root.Count(field.Index))
	assert.NotEmpty(t, res.Message)
}

func TestBadBodyIs400(t *testing.T) {
	root := object.New(testMessageType(t))
	res := PatchJSON(root, "", strings.NewReader(`{"int16_type":`), access.Root)
	assert.Equal(t, StatusBadRequest, res.Status)
	assert.NotEmpty(t, res.Message)
}

func TestIntegerOverflowIs400(t *testing.T) {
	root := object.New(testMessageType(t))
	res := PatchJSON(root, "", strings.NewReader(`{"int16_type":70000}`), access.Root)
	assert.Equal(t, StatusBadRequest, res.Status)
}

func TestReadAccessFilter(t *testing.T) {
	rt := schema.NewBuilder("Guarded").
		String("open", 16).
		String("secret", 16, schema.ReadLevel(schema.LevelAdmin)).
		MustBuild()
	root := object.New(rt)

	res := PutJSON(root, "", strings.NewReader(`{"open":"a","secret":"b"}`), access.Root)
	require.True(t, res.IsOK())
	root.ClearChangeMarkers()

	var buf bytes.Buffer
	res = GetJSON(root, "", &buf, access.Public)
	require.True(t, res.IsOK())
	assert.Equal(t, `{"open":"a"}`, buf.String())

	buf.Reset()
	res = GetJSON(root, "", &buf, access.Admin)
	require.True(t, res.IsOK())
	assert.Equal(t, `{"open":"a","secret":"b"}`, buf.String())
}

func TestWriteAccessFilterDropsSilently(t *testing.T) {
	rt := schema.NewBuilder("Guarded").
		String("open", 16).
		String("locked", 16, schema.WriteLevel(schema.LevelAdmin)).
		MustBuild()
	root := object.New(rt)

	res := PutJSON(root, "", strings.NewReader(`{"open":"a","locked":"original"}`), access.Admin)
	require.True(t, res.IsOK())
	root.ClearChangeMarkers()

	res = PatchJSON(root, "", strings.NewReader(`{"open":"b","locked":"forged"}`), access.Public)
	require.True(t, res.IsOK(), res.Error())

	lf, _ := rt.FieldByLabel("locked")
	of, _ := rt.FieldByLabel("open")
	assert.Equal(t, "original", root.GetString(lf.Index))
	assert.Equal(t, "b", root.GetString(of.Index))
}

func TestForbiddenFieldStepIs403(t *testing.T) {
	rt := schema.NewBuilder("Guarded").
		String("secret", 16, schema.ReadLevel(schema.LevelAdmin)).
		MustBuild()
	root := object.New(rt)
	f, _ := rt.FieldByLabel("secret")
	require.NoError(t, root.SetString(f.Index, "x"))

	var buf bytes.Buffer
	res := GetJSON(root, "/secret", &buf, access.Public)
	assert.Equal(t, StatusForbidden, res.Status)
}

func TestChangeBitsFollowValueDifference(t *testing.T) {
	root := object.New(testMessageType(t))
	res := PutJSON(root, "", strings.NewReader(`{"int16_type":5}`), access.Root)
	require.True(t, res.IsOK())
	root.ClearChangeMarkers()

	res = PatchJSON(root, "", strings.NewReader(`{"int16_type":5}`), access.Root)
	require.True(t, res.IsOK())
	assert.False(t, root.AnyChanged(), "identical patch must not raise changed bits")

	res = PatchJSON(root, "", strings.NewReader(`{"int16_type":6}`), access.Root)
	require.True(t, res.IsOK())
	f, _ := root.Type().FieldByLabel("int16_type")
	assert.True(t, root.Changed(f.Index))
	b, _ := root.Type().FieldByLabel("bool_type")
	assert.False(t, root.Changed(b.Index))
}

func TestDeleteArrayMarksChanged(t *testing.T) {
	root := object.New(testMessageType(t))
	res := PatchJSON(root, "/int8_type", strings.NewReader(`[1,2]`), access.Root)
	require.True(t, res.IsOK())
	root.ClearChangeMarkers()

	res = Delete(root, "/int8_type", access.Root)
	require.True(t, res.IsOK())

	f, _ := root.Type().FieldByLabel("int8_type")
	assert.False(t, root.Touched(f.Index))
	assert.True(t, root.Changed(f.Index))
	assert.Equal(t, 0, root.Count(f.Index))
}

func TestTrailingSlashTolerated(t *testing.T) {
	root := object.New(testMessageType(t))
	res := PutJSON(root, "", strings.NewReader(`{"string_type":"x"}`), access.Root)
	require.True(t, res.IsOK())
	root.ClearChangeMarkers()

	body := mustGet(t, root, "/string_type/")
	assert.Equal(t, `"x"`, body)
}

func TestSearchCompletions(t *testing.T) {
	root := object.New(testMessageType(t))
	paths := Search(root, "/su", schema.LevelRoot, 10)
	assert.Equal(t, []string{"/submsg_type"}, paths)

	paths = Search(root, "/s", schema.LevelRoot, 10)
	assert.ElementsMatch(t, []string{"/string_type", "/submsg_type"}, paths)
}
