package rest

import (
	"strconv"
	"strings"

	"github.com/stratahq/strata/object"
	"github.com/stratahq/strata/schema"
)

// Permission selects which access check the browser applies while stepping
// into fields.
type Permission int

// Browser permissions.
const (
	PermRead Permission = iota
	PermWrite
)

// maxPathToken bounds the length of a single path token.
const maxPathToken = 128

type targetKind int

const (
	targetInvalid targetKind = iota
	targetObject
	targetArray
	targetField
)

// Browser is the discriminated traversal state used to walk an object graph
// along a slash-delimited path. It lands on an object, an array field, or a
// field (optionally a single array element), or becomes invalid with the
// REST status explaining why.
type Browser struct {
	kind       targetKind
	obj        *object.Object
	fieldIndex int
	arrayIndex int // element index when the field was reached through one
	status     Status
	level      schema.Level

	// remaining holds the unconsumed path suffix after the browser went
	// invalid, for search and completion.
	remaining string
}

// NextToken splits the first path token off a slash-delimited path,
// tolerating leading and trailing slashes.
func NextToken(path string) (token, rest string) {
	path = strings.TrimLeft(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i], strings.TrimLeft(path[i:], "/")
	}
	return path, ""
}

// Browse walks root along path, applying the permission check for the
// user's level at every object step. An empty path targets the root.
func Browse(root *object.Object, path string, level schema.Level, perm Permission) Browser {
	b := Browser{kind: targetObject, obj: root, arrayIndex: -1, status: StatusOK, level: level}
	if root == nil {
		return Browser{kind: targetInvalid, status: StatusNotFound}
	}

	rest := path
	for {
		var token string
		token, rest = NextToken(rest)
		if token == "" {
			return b
		}
		if len(token) > maxPathToken {
			return b.invalid(StatusBadRequest, rest)
		}
		if !b.step(token, perm) {
			b.remaining = rest
			return b
		}
	}
}

func (b *Browser) invalid(status Status, remaining string) Browser {
	b.kind = targetInvalid
	b.status = status
	b.remaining = remaining
	return *b
}

// IsValid reports whether the browser still points at a target.
func (b *Browser) IsValid() bool { return b.kind != targetInvalid }

// Status returns the REST status, OK while valid.
func (b *Browser) Status() Status { return b.status }

// Remaining returns the unconsumed suffix after the walk stopped.
func (b *Browser) Remaining() string { return b.remaining }

// Object returns the target object when the browser landed on one.
func (b *Browser) Object() *object.Object {
	if b.kind != targetObject {
		return nil
	}
	return b.obj
}

// step consumes one token, transitioning between states.
func (b *Browser) step(token string, perm Permission) bool {
	switch b.kind {
	case targetObject:
		return b.intoObject(token, perm)
	case targetArray:
		return b.intoArray(token)
	case targetField:
		// a field is a leaf, there is nowhere further to go
		b.kind = targetInvalid
		b.status = StatusNotFound
		return false
	default:
		return false
	}
}

func (b *Browser) intoObject(token string, perm Permission) bool {
	f, ok := b.obj.Type().FieldByLabel(token)
	if !ok {
		b.kind = targetInvalid
		b.status = StatusNotFound
		return false
	}
	if perm == PermRead && !f.Readable(b.level) {
		b.kind = targetInvalid
		b.status = StatusForbidden
		return false
	}
	if perm == PermWrite && !f.Writable(b.level) {
		b.kind = targetInvalid
		b.status = StatusForbidden
		return false
	}

	switch {
	case f.IsArray():
		b.kind = targetArray
		b.fieldIndex = f.Index
	case f.IsObject():
		b.kind = targetObject
		b.obj = b.obj.SubObject(f.Index)
	default:
		b.kind = targetField
		b.fieldIndex = f.Index
		b.arrayIndex = -1
	}
	return true
}

func (b *Browser) intoArray(token string) bool {
	if strings.HasPrefix(token, "*") {
		return b.searchArray(token[1:])
	}

	n, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		b.kind = targetInvalid
		b.status = StatusBadRequest
		return false
	}

	f := b.obj.Type().Field(b.fieldIndex)
	if f.IsObject() {
		// sub-object arrays address elements by id
		sub, _ := b.obj.FindSubObject(b.fieldIndex, uint64(n))
		if sub == nil {
			b.kind = targetInvalid
			b.status = StatusNotFound
			return false
		}
		b.kind = targetObject
		b.obj = sub
		return true
	}

	// scalar arrays address elements by index
	if n < 0 || int(n) >= b.obj.Count(b.fieldIndex) {
		b.kind = targetInvalid
		b.status = StatusNotFound
		return false
	}
	b.kind = targetField
	b.arrayIndex = int(n)
	return true
}

// searchArray resolves a "*key=value" token by linear search among the
// sub-objects for one whose key field renders equal to value.
func (b *Browser) searchArray(expr string) bool {
	f := b.obj.Type().Field(b.fieldIndex)
	if !f.IsObject() {
		b.kind = targetInvalid
		b.status = StatusBadRequest
		return false
	}
	key, want, found := strings.Cut(expr, "=")
	if !found || key == "" || want == "" {
		b.kind = targetInvalid
		b.status = StatusBadRequest
		return false
	}
	keyField, ok := f.Sub.FieldByLabel(key)
	if !ok {
		b.kind = targetInvalid
		b.status = StatusNotFound
		return false
	}

	for idx := 0; idx < b.obj.Count(b.fieldIndex); idx++ {
		sub := b.obj.SubObjectAt(b.fieldIndex, idx)
		if !sub.HasID() || !sub.Touched(keyField.Index) {
			continue
		}
		v, _ := sub.Get(keyField.Index)
		if object.Format(keyField, v) == want {
			b.kind = targetObject
			b.obj = sub
			return true
		}
	}

	b.kind = targetInvalid
	b.status = StatusNotFound
	return false
}
