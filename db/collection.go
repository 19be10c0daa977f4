package db

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/google/btree"
	"github.com/stratahq/strata/access"
	"github.com/stratahq/strata/mask"
	"github.com/stratahq/strata/object"
	"github.com/stratahq/strata/pubsub"
	"github.com/stratahq/strata/rest"
	"github.com/stratahq/strata/schema"
	"github.com/stratahq/strata/stream"
	"github.com/stratahq/strata/wire"
	"go.uber.org/zap"
)

const collectionBTreeDegree = 8

// Collection is an ordered, id-keyed container of homogeneous objects with
// REST access on /id[/path], per-element transactional edits, validation,
// and change publication.
type Collection struct {
	name     string
	rt       *schema.RecordType
	level    schema.Level
	log      *zap.Logger
	queue    *pubsub.Queue
	notifier *notifier
	capacity int

	mu   sync.Mutex
	tree *btree.BTreeG[*object.Object]
}

// NewCollection creates an empty collection of the given element type.
func NewCollection(name string, rt *schema.RecordType, opts Options) *Collection {
	opts = opts.withDefaults()
	return &Collection{
		name:     name,
		rt:       rt,
		level:    opts.AccessLevel,
		log:      opts.Logger,
		queue:    opts.DefaultQueue,
		notifier: newNotifier(name, opts.Logger),
		capacity: opts.Capacity,
		tree: btree.NewG(collectionBTreeDegree, func(a, b *object.Object) bool {
			return a.ID() < b.ID()
		}),
	}
}

// Name returns the mount name.
func (c *Collection) Name() string { return c.name }

// AccessLevel returns the level required to reach the collection.
func (c *Collection) AccessLevel() schema.Level { return c.level }

// Schemas lists the element record type.
func (c *Collection) Schemas() []*schema.RecordType { return []*schema.RecordType{c.rt} }

// Type returns the element record type.
func (c *Collection) Type() *schema.RecordType { return c.rt }

// Count returns the number of elements.
func (c *Collection) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tree.Len()
}

// ContainsID reports whether an element with the given id exists.
func (c *Collection) ContainsID(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.lookup(id)
	return ok
}

// IDs returns every element id in ascending order.
func (c *Collection) IDs() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint64, 0, c.tree.Len())
	c.tree.Ascend(func(o *object.Object) bool {
		out = append(out, o.ID())
		return true
	})
	return out
}

// Find returns a detached snapshot of the element with the given id.
func (c *Collection) Find(id uint64) (*object.Object, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.lookup(id)
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// Each visits a snapshot of every element in ascending id order; fn
// returning false stops the walk.
func (c *Collection) Each(fn func(*object.Object) bool) {
	for _, snap := range c.snapshots() {
		if !fn(snap) {
			return
		}
	}
}

func (c *Collection) snapshots() []*object.Object {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*object.Object, 0, c.tree.Len())
	c.tree.Ascend(func(o *object.Object) bool {
		out = append(out, o.Clone())
		return true
	})
	return out
}

// lookup finds the live element; callers hold the lock.
func (c *Collection) lookup(id uint64) (*object.Object, bool) {
	probe := object.New(c.rt)
	probe.SetID(id)
	return c.tree.Get(probe)
}

// containsLocked is ContainsID for callers already holding the lock, such
// as validators running inside a commit.
func (c *Collection) containsLocked(id uint64) bool {
	_, ok := c.lookup(id)
	return ok
}

// eachLocked visits live elements without locking or cloning, for
// validators running inside a commit. Callbacks must not mutate.
func (c *Collection) eachLocked(fn func(*object.Object) bool) {
	c.tree.Ascend(fn)
}

// Create adds a fresh element, letting fn populate it before the
// validators run. The new element's id is generated unless fn assigns one.
func (c *Collection) Create(fn func(*object.Object) error) (uint64, rest.Result) {
	c.mu.Lock()
	id, res, note := c.createLocked(object.AutoID, func(scratch *object.Object) rest.Result {
		if fn == nil {
			return rest.OK()
		}
		if err := fn(scratch); err != nil {
			return rest.Fail(rest.StatusBadRequest, err.Error())
		}
		return rest.OK()
	})
	c.mu.Unlock()
	c.publish(note)
	return id, res
}

// createLocked builds, validates, and inserts a fresh element, returning
// the notification for the caller to publish once the lock drops.
func (c *Collection) createLocked(id uint64, op func(*object.Object) rest.Result) (uint64, rest.Result, *pubsub.Notification) {
	if c.capacity > 0 && c.tree.Len() >= c.capacity {
		return 0, rest.Failf(rest.StatusBadRequest, "collection %s is full", c.name), nil
	}

	scratch := object.New(c.rt)
	scratch.EnsureID()
	if id != object.AutoID {
		scratch.SetID(id)
	}
	if _, exists := c.lookup(scratch.ID()); exists {
		return 0, rest.Failf(rest.StatusConflict, "id %d exists in %s", scratch.ID(), c.name), nil
	}

	if res := op(scratch); !res.IsOK() {
		return 0, res, nil
	}

	proposed := &pubsub.Notification{Object: scratch, Changes: scratch.ChangeMask(), IsNew: true}
	if err := c.notifier.validate(proposed, func() *object.Object { return nil }); err != nil {
		emitValidationFailed(c.name, err)
		return 0, rest.Fail(rest.StatusBadRequest, err.Error()), nil
	}

	c.tree.ReplaceOrInsert(scratch)
	note := c.makeNote(scratch, true, false)
	return scratch.ID(), rest.Created(scratch.ID()), note
}

// Delete removes the element with the given id, publishing a deletion
// notification carrying its final state.
func (c *Collection) Delete(id uint64) bool {
	c.mu.Lock()
	ok, note := c.deleteLocked(id)
	c.mu.Unlock()
	c.publish(note)
	return ok
}

func (c *Collection) deleteLocked(id uint64) (bool, *pubsub.Notification) {
	live, ok := c.lookup(id)
	if !ok {
		return false, nil
	}
	c.tree.Delete(live)
	live.MarkChanged(schema.IDFieldIndex, true)
	return true, c.makeNote(live, false, true)
}

// Edit runs fn against a scratch copy of the element and commits through
// the validators, publishing the accumulated change mask.
func (c *Collection) Edit(id uint64, fn func(*object.Object) error) rest.Result {
	c.mu.Lock()
	res, note := c.editLocked(id, func(scratch *object.Object) rest.Result {
		if err := fn(scratch); err != nil {
			return rest.Fail(rest.StatusBadRequest, err.Error())
		}
		return rest.OK()
	})
	c.mu.Unlock()
	c.publish(note)
	return res
}

func (c *Collection) editLocked(id uint64, op func(*object.Object) rest.Result) (rest.Result, *pubsub.Notification) {
	live, ok := c.lookup(id)
	if !ok {
		return rest.Fail(rest.StatusNotFound, rest.StatusNotFound.Description()), nil
	}

	scratch := live.Clone()
	if res := op(scratch); !res.IsOK() {
		return res, nil
	}
	if !scratch.AnyChanged() {
		return rest.OK(), nil
	}

	proposed := &pubsub.Notification{Object: scratch, Changes: scratch.ChangeMask()}
	if err := c.notifier.validate(proposed, func() *object.Object { return live }); err != nil {
		emitValidationFailed(c.name, err)
		return rest.Fail(rest.StatusBadRequest, err.Error()), nil
	}

	if err := live.TransferFrom(scratch); err != nil {
		return rest.Fail(rest.StatusInternal, err.Error()), nil
	}
	return rest.OK(), c.makeNote(live, false, false)
}

// makeNote snapshots the change state of live and clears its markers.
func (c *Collection) makeNote(live *object.Object, isNew, isDeleted bool) *pubsub.Notification {
	changes := live.ChangeMask()
	if !changes.AnyChanged() && !isNew && !isDeleted {
		return nil
	}
	n := &pubsub.Notification{
		Object:    live.Clone(),
		Changes:   changes,
		IsNew:     isNew,
		IsDeleted: isDeleted,
	}
	live.ClearChangeMarkers()
	return n
}

// publish fans a pending notification out after the lock has dropped.
func (c *Collection) publish(note *pubsub.Notification) {
	if note != nil {
		c.notifier.publish(note)
	}
}

func (c *Collection) allowed(acc access.Access) bool { return acc.Level >= c.level }

// resolveID parses the first path token as an element id or a *key=value
// search expression.
func (c *Collection) resolveID(token string) (uint64, bool) {
	if strings.HasPrefix(token, "*") {
		key, want, found := strings.Cut(token[1:], "=")
		if !found || key == "" || want == "" {
			return 0, false
		}
		keyField, ok := c.rt.FieldByLabel(key)
		if !ok {
			return 0, false
		}
		var id uint64
		hit := false
		c.tree.Ascend(func(o *object.Object) bool {
			if !o.Touched(keyField.Index) {
				return true
			}
			v, _ := o.Get(keyField.Index)
			if object.Format(keyField, v) == want {
				id, hit = o.ID(), true
				return false
			}
			return true
		})
		return id, hit
	}
	n, err := strconv.ParseUint(token, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// RestGet encodes one element (or deeper path), or the whole collection as
// an id-keyed JSON object for the root path.
func (c *Collection) RestGet(path string, out io.Writer, acc access.Access) rest.Result {
	if !c.allowed(acc) {
		return rest.Fail(rest.StatusForbidden, rest.StatusForbidden.Description())
	}
	token, sub := rest.NextToken(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	if token == "" {
		return c.getAllLocked(out, acc)
	}

	id, ok := c.resolveID(token)
	if !ok {
		return rest.Fail(rest.StatusNotFound, rest.StatusNotFound.Description())
	}
	live, found := c.lookup(id)
	if !found {
		return rest.Fail(rest.StatusNotFound, rest.StatusNotFound.Description())
	}
	res := rest.Get(wire.JSON(), live, sub, stream.NewWriter(out), acc)
	emitRequest(c.name, "GET", path, res)
	return res
}

// getAllLocked renders `{"<id>": {...}, ...}` in ascending id order.
func (c *Collection) getAllLocked(out io.Writer, acc access.Access) rest.Result {
	w := stream.NewWriter(out)
	if err := w.WriteByte('{'); err != nil {
		return rest.Fail(rest.StatusInternal, w.Message())
	}
	first := true
	var failed rest.Result
	c.tree.Ascend(func(o *object.Object) bool {
		if !first {
			if w.WriteByte(',') != nil {
				failed = rest.Fail(rest.StatusInternal, w.Message())
				return false
			}
		}
		first = false
		if w.Printf("%q:", strconv.FormatUint(o.ID(), 10)) != nil {
			failed = rest.Fail(rest.StatusInternal, w.Message())
			return false
		}
		if res := rest.Get(wire.JSON(), o, "", w, acc); !res.IsOK() {
			failed = res
			return false
		}
		return true
	})
	if failed.Status != 0 {
		return failed
	}
	if err := w.WriteByte('}'); err != nil {
		return rest.Fail(rest.StatusInternal, w.Message())
	}
	return rest.OK()
}

// RestPost creates a new element from body at the collection root, or
// routes deeper paths into the addressed element.
func (c *Collection) RestPost(path string, body io.Reader, acc access.Access) rest.Result {
	if !c.allowed(acc) {
		return rest.Fail(rest.StatusForbidden, rest.StatusForbidden.Description())
	}
	token, sub := rest.NextToken(path)

	c.mu.Lock()

	if token == "" {
		_, res, note := c.createLocked(object.AutoID, func(scratch *object.Object) rest.Result {
			return c.decodeInto(scratch, body, acc)
		})
		c.mu.Unlock()
		c.publish(note)
		emitRequest(c.name, "POST", path, res)
		return res
	}

	id, ok := c.resolveID(token)
	if !ok {
		c.mu.Unlock()
		return rest.Fail(rest.StatusNotFound, rest.StatusNotFound.Description())
	}
	res, note := c.editLocked(id, func(scratch *object.Object) rest.Result {
		return rest.Post(wire.JSON(), scratch, sub, stream.NewReader(body), acc)
	})
	c.mu.Unlock()
	c.publish(note)
	emitRequest(c.name, "POST", path, res)
	return res
}

func (c *Collection) decodeInto(scratch *object.Object, body io.Reader, acc access.Access) rest.Result {
	r := stream.NewReader(body)
	r.Access = acc.WriteFilter
	id := scratch.ID()
	if err := wire.DecodeNoInit(r, wire.JSON(), scratch); err != nil {
		return rest.Fail(rest.StatusBadRequest, r.Message())
	}
	// the generated identifier wins over any id in the body
	scratch.SetID(id)
	return rest.OK()
}

// RestPatch merges body into the addressed element.
func (c *Collection) RestPatch(path string, body io.Reader, acc access.Access) rest.Result {
	return c.restWrite("PATCH", path, acc, func(scratch *object.Object, sub string) rest.Result {
		return rest.Patch(wire.JSON(), scratch, sub, stream.NewReader(body), acc)
	})
}

// RestPut replaces the addressed element, creating it when the id names a
// vacant slot, which is how persisted state is restored.
func (c *Collection) RestPut(path string, body io.Reader, acc access.Access) rest.Result {
	if !c.allowed(acc) {
		return rest.Fail(rest.StatusForbidden, rest.StatusForbidden.Description())
	}
	token, sub := rest.NextToken(path)
	if token == "" {
		return rest.Fail(rest.StatusMethodNotAllowed, rest.StatusMethodNotAllowed.Description())
	}

	c.mu.Lock()

	id, ok := c.resolveID(token)
	if !ok {
		c.mu.Unlock()
		return rest.Fail(rest.StatusNotFound, rest.StatusNotFound.Description())
	}

	if _, exists := c.lookup(id); !exists && sub == "" {
		_, res, note := c.createLocked(id, func(scratch *object.Object) rest.Result {
			return rest.Put(wire.JSON(), scratch, "", stream.NewReader(body), acc)
		})
		c.mu.Unlock()
		c.publish(note)
		emitRequest(c.name, "PUT", path, res)
		if res.Status == rest.StatusCreated {
			res = rest.OK()
		}
		return res
	}

	res, note := c.editLocked(id, func(scratch *object.Object) rest.Result {
		return rest.Put(wire.JSON(), scratch, sub, stream.NewReader(body), acc)
	})
	c.mu.Unlock()
	c.publish(note)
	emitRequest(c.name, "PUT", path, res)
	return res
}

func (c *Collection) restWrite(verb, path string, acc access.Access, op func(*object.Object, string) rest.Result) rest.Result {
	if !c.allowed(acc) {
		return rest.Fail(rest.StatusForbidden, rest.StatusForbidden.Description())
	}
	token, sub := rest.NextToken(path)
	if token == "" {
		return rest.Fail(rest.StatusMethodNotAllowed, rest.StatusMethodNotAllowed.Description())
	}

	c.mu.Lock()

	id, ok := c.resolveID(token)
	if !ok {
		c.mu.Unlock()
		return rest.Fail(rest.StatusNotFound, rest.StatusNotFound.Description())
	}
	res, note := c.editLocked(id, func(scratch *object.Object) rest.Result {
		return op(scratch, sub)
	})
	c.mu.Unlock()
	c.publish(note)
	emitRequest(c.name, verb, path, res)
	return res
}

// RestDelete removes the addressed element, or clears deeper targets
// inside it.
func (c *Collection) RestDelete(path string, acc access.Access) rest.Result {
	if !c.allowed(acc) {
		return rest.Fail(rest.StatusForbidden, rest.StatusForbidden.Description())
	}
	token, sub := rest.NextToken(path)
	if token == "" {
		return rest.Fail(rest.StatusMethodNotAllowed, rest.StatusMethodNotAllowed.Description())
	}

	c.mu.Lock()

	id, ok := c.resolveID(token)
	if !ok {
		c.mu.Unlock()
		return rest.Fail(rest.StatusNotFound, rest.StatusNotFound.Description())
	}

	if sub == "" {
		ok, note := c.deleteLocked(id)
		c.mu.Unlock()
		if !ok {
			return rest.Fail(rest.StatusNotFound, rest.StatusNotFound.Description())
		}
		c.publish(note)
		res := rest.OK()
		emitRequest(c.name, "DELETE", path, res)
		return res
	}

	res, note := c.editLocked(id, func(scratch *object.Object) rest.Result {
		return rest.Delete(scratch, sub, acc)
	})
	c.mu.Unlock()
	c.publish(note)
	emitRequest(c.name, "DELETE", path, res)
	return res
}

// ValidateWith registers a validator run on every element commit.
func (c *Collection) ValidateWith(fn pubsub.Validator) *pubsub.Subscription {
	return c.notifier.addValidator(fn)
}

// OnChangeToPath subscribes to element commits. An empty path matches
// every element; a leading id token narrows to that element; a following
// field token narrows the filter to that field.
func (c *Collection) OnChangeToPath(path string, cb pubsub.Subscriber, filter mask.Filter, q *pubsub.Queue) (*pubsub.Subscription, error) {
	if q == nil {
		q = c.queue
	}
	token, sub := rest.NextToken(path)

	if filter.IsEmpty() {
		filter = mask.AnyChange(c.rt.FieldCount())
	}

	if token != "" {
		id, err := strconv.ParseUint(token, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s/%s", ErrNoSuchPath, c.name, token)
		}
		if fieldToken, _ := rest.NextToken(sub); fieldToken != "" {
			f, ok := c.rt.FieldByLabel(fieldToken)
			if !ok {
				return nil, fmt.Errorf("%w: %s/%s/%s", ErrNoSuchPath, c.name, token, fieldToken)
			}
			filter = mask.ForFields(c.rt.FieldCount(), f.Index)
		}
		inner := cb
		cb = func(n *pubsub.Notification) {
			if n.ID() == id {
				inner(n)
			}
		}
	}

	return c.notifier.addSubscriber(cb, filter, q), nil
}

// OnAdded subscribes to element creation.
func (c *Collection) OnAdded(cb pubsub.Subscriber, q *pubsub.Queue) *pubsub.Subscription {
	sub, _ := c.OnChangeToPath("", func(n *pubsub.Notification) {
		if n.IsNew {
			cb(n)
		}
	}, mask.Filter{}, q)
	return sub
}

// OnDeleted subscribes to element deletion.
func (c *Collection) OnDeleted(cb pubsub.Subscriber, q *pubsub.Queue) *pubsub.Subscription {
	sub, _ := c.OnChangeToPath("", func(n *pubsub.Notification) {
		if n.IsDeleted {
			cb(n)
		}
	}, mask.Filter{}, q)
	return sub
}

// OnChange subscribes to every element commit.
func (c *Collection) OnChange(cb pubsub.Subscriber, q *pubsub.Queue) *pubsub.Subscription {
	sub, _ := c.OnChangeToPath("", cb, mask.Filter{}, q)
	return sub
}

// SubscriberCount totals registered subscribers.
func (c *Collection) SubscriberCount() int { return c.notifier.subscriberCount() }

// ClearAllDataAndSubscribers removes every element, subscriber, and
// validator.
func (c *Collection) ClearAllDataAndSubscribers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifier.clear()
	c.tree.Clear(false)
}

// SearchPaths enumerates completions: element ids at the collection root,
// deeper completions inside the addressed element.
func (c *Collection) SearchPaths(prefix string, max int, level schema.Level) []string {
	token, sub := rest.NextToken(prefix)
	hasDeeper := sub != "" || strings.Contains(strings.Trim(prefix, "/"), "/")

	c.mu.Lock()
	defer c.mu.Unlock()

	if !hasDeeper {
		var out []string
		c.tree.Ascend(func(o *object.Object) bool {
			idStr := strconv.FormatUint(o.ID(), 10)
			if strings.HasPrefix(idStr, token) {
				out = append(out, "/"+idStr)
			}
			return max <= 0 || len(out) < max
		})
		return out
	}

	id, ok := c.resolveID(token)
	if !ok {
		return nil
	}
	live, found := c.lookup(id)
	if !found {
		return nil
	}
	var out []string
	for _, p := range rest.Search(live, sub, level, max) {
		out = append(out, "/"+token+p)
	}
	return out
}
