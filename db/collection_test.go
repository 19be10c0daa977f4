package db

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratahq/strata/access"
	"github.com/stratahq/strata/mask"
	"github.com/stratahq/strata/object"
	"github.com/stratahq/strata/pubsub"
	"github.com/stratahq/strata/schema"
)

func userType(t *testing.T) *schema.RecordType {
	t.Helper()
	return schema.NewBuilder("User").
		String("name", 32).
		Signed("age", 16).
		MustBuild()
}

func newUsers(t *testing.T) *Collection {
	t.Helper()
	return NewCollection("users", userType(t), Options{})
}

func collGet(t *testing.T, c *Collection, path string) string {
	t.Helper()
	var buf bytes.Buffer
	res := c.RestGet(path, &buf, access.Root)
	require.True(t, res.IsOK(), "GET %s: %s", path, res.Error())
	return buf.String()
}

func TestCollectionPostCreatesWithID(t *testing.T) {
	c := newUsers(t)
	res := c.RestPost("", strings.NewReader(`{"name":"ada"}`), access.Root)
	require.Equal(t, 201, int(res.Status))
	require.NotZero(t, res.CreatedID)
	assert.Equal(t, 1, c.Count())

	body := collGet(t, c, fmt.Sprintf("/%d/name", res.CreatedID))
	assert.Equal(t, `"ada"`, body)
}

func TestCollectionPostIgnoresBodyID(t *testing.T) {
	c := newUsers(t)
	res := c.RestPost("", strings.NewReader(`{"id":12345,"name":"ada"}`), access.Root)
	require.Equal(t, 201, int(res.Status))
	assert.NotEqual(t, uint64(12345), res.CreatedID)
	assert.False(t, c.ContainsID(12345))
}

func TestCollectionGetAllKeyedByID(t *testing.T) {
	c := newUsers(t)
	gen := uint64(100)
	object.SetDefaultIDGenerator(func() uint64 { gen++; return gen })
	defer object.SetDefaultIDGenerator(nil)

	require.Equal(t, 201, int(c.RestPost("", strings.NewReader(`{"name":"a"}`), access.Root).Status))
	require.Equal(t, 201, int(c.RestPost("", strings.NewReader(`{"name":"b"}`), access.Root).Status))

	body := collGet(t, c, "")
	assert.Equal(t, `{"101":{"id":101,"name":"a"},"102":{"id":102,"name":"b"}}`, body)
}

func TestCollectionPatchAndDeleteElement(t *testing.T) {
	c := newUsers(t)
	res := c.RestPost("", strings.NewReader(`{"name":"ada","age":30}`), access.Root)
	require.True(t, res.IsOK())
	id := res.CreatedID

	res = c.RestPatch(fmt.Sprintf("/%d", id), strings.NewReader(`{"age":31}`), access.Root)
	require.True(t, res.IsOK(), res.Error())
	u, ok := c.Find(id)
	require.True(t, ok)
	age, _ := c.Type().FieldByLabel("age")
	name, _ := c.Type().FieldByLabel("name")
	assert.Equal(t, int64(31), u.GetInt(age.Index))
	assert.Equal(t, "ada", u.GetString(name.Index))

	res = c.RestDelete(fmt.Sprintf("/%d", id), access.Root)
	require.True(t, res.IsOK())
	assert.Equal(t, 0, c.Count())

	res = c.RestDelete(fmt.Sprintf("/%d", id), access.Root)
	assert.Equal(t, 404, int(res.Status))
}

func TestCollectionKeyedLookup(t *testing.T) {
	c := newUsers(t)
	require.True(t, c.RestPost("", strings.NewReader(`{"name":"ada","age":30}`), access.Root).IsOK())
	require.True(t, c.RestPost("", strings.NewReader(`{"name":"bob","age":40}`), access.Root).IsOK())

	body := collGet(t, c, "/*name=bob/age")
	assert.Equal(t, "40", body)

	var buf bytes.Buffer
	res := c.RestGet("/*name=eve/age", &buf, access.Root)
	assert.Equal(t, 404, int(res.Status))
}

func TestCollectionPutCreatesMissingElement(t *testing.T) {
	c := newUsers(t)
	res := c.RestPut("/77", strings.NewReader(`{"name":"restored"}`), access.Root)
	require.True(t, res.IsOK(), res.Error())
	require.True(t, c.ContainsID(77))

	u, _ := c.Find(77)
	name, _ := c.Type().FieldByLabel("name")
	assert.Equal(t, "restored", u.GetString(name.Index))
	assert.Equal(t, uint64(77), u.ID())
}

func TestCollectionEditCommitsThroughValidators(t *testing.T) {
	c := newUsers(t)
	age, _ := c.Type().FieldByLabel("age")
	sub := c.ValidateWith(func(proposed *pubsub.Notification, old func() *object.Object) error {
		if proposed.Object.GetInt(age.Index) > 150 {
			return errors.New("implausible age")
		}
		return nil
	})
	defer sub.Close()

	id, res := c.Create(func(o *object.Object) error { return o.SetInt(age.Index, 30) })
	require.True(t, res.IsOK(), res.Error())

	res = c.Edit(id, func(o *object.Object) error { return o.SetInt(age.Index, 200) })
	assert.Equal(t, 400, int(res.Status))
	assert.Equal(t, "implausible age", res.Message)

	u, _ := c.Find(id)
	assert.Equal(t, int64(30), u.GetInt(age.Index))
}

func TestCollectionCreateValidatorBlocksNewElements(t *testing.T) {
	c := newUsers(t)
	sub := c.ValidateWith(func(proposed *pubsub.Notification, old func() *object.Object) error {
		if proposed.IsNew {
			return errors.New("closed for registration")
		}
		return nil
	})
	defer sub.Close()

	res := c.RestPost("", strings.NewReader(`{"name":"x"}`), access.Root)
	assert.Equal(t, 400, int(res.Status))
	assert.Equal(t, 0, c.Count())
}

func TestCollectionEvents(t *testing.T) {
	c := newUsers(t)
	var added, deleted, changed []uint64

	s1 := c.OnAdded(func(n *pubsub.Notification) { added = append(added, n.ID()) }, pubsub.Immediate())
	defer s1.Close()
	s2 := c.OnDeleted(func(n *pubsub.Notification) { deleted = append(deleted, n.ID()) }, pubsub.Immediate())
	defer s2.Close()
	s3 := c.OnChange(func(n *pubsub.Notification) { changed = append(changed, n.ID()) }, pubsub.Immediate())
	defer s3.Close()

	res := c.RestPost("", strings.NewReader(`{"name":"a"}`), access.Root)
	require.True(t, res.IsOK())
	id := res.CreatedID

	require.True(t, c.RestPatch(fmt.Sprintf("/%d", id), strings.NewReader(`{"age":1}`), access.Root).IsOK())
	require.True(t, c.RestDelete(fmt.Sprintf("/%d", id), access.Root).IsOK())

	assert.Equal(t, []uint64{id}, added)
	assert.Equal(t, []uint64{id}, deleted)
	assert.Equal(t, []uint64{id, id, id}, changed)
}

func TestCollectionSubscriptionToElementField(t *testing.T) {
	c := newUsers(t)
	res := c.RestPost("", strings.NewReader(`{"name":"a","age":1}`), access.Root)
	require.True(t, res.IsOK())
	id := res.CreatedID

	calls := 0
	sub, err := c.OnChangeToPath(fmt.Sprintf("/%d/age", id), func(*pubsub.Notification) { calls++ }, mask.Filter{}, pubsub.Immediate())
	require.NoError(t, err)
	defer sub.Close()

	require.True(t, c.RestPatch(fmt.Sprintf("/%d", id), strings.NewReader(`{"name":"b"}`), access.Root).IsOK())
	assert.Equal(t, 0, calls)

	require.True(t, c.RestPatch(fmt.Sprintf("/%d", id), strings.NewReader(`{"age":2}`), access.Root).IsOK())
	assert.Equal(t, 1, calls)
}

func TestCollectionCapacity(t *testing.T) {
	c := NewCollection("bounded", userType(t), Options{Capacity: 1})
	require.True(t, c.RestPost("", strings.NewReader(`{}`), access.Root).IsOK())
	res := c.RestPost("", strings.NewReader(`{}`), access.Root)
	assert.Equal(t, 400, int(res.Status))
}

func TestCollectionIterationAscending(t *testing.T) {
	c := newUsers(t)
	for _, id := range []uint64{30, 10, 20} {
		require.True(t, c.RestPut(fmt.Sprintf("/%d", id), strings.NewReader(`{}`), access.Root).IsOK())
	}
	assert.Equal(t, []uint64{10, 20, 30}, c.IDs())

	var seen []uint64
	c.Each(func(o *object.Object) bool {
		seen = append(seen, o.ID())
		return true
	})
	assert.Equal(t, []uint64{10, 20, 30}, seen)
}

func TestCollectionSearchPaths(t *testing.T) {
	c := newUsers(t)
	require.True(t, c.RestPut("/11", strings.NewReader(`{}`), access.Root).IsOK())
	require.True(t, c.RestPut("/12", strings.NewReader(`{}`), access.Root).IsOK())
	require.True(t, c.RestPut("/20", strings.NewReader(`{}`), access.Root).IsOK())

	assert.ElementsMatch(t, []string{"/11", "/12"}, c.SearchPaths("1", 10, schema.LevelRoot))
}
