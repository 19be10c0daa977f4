package db

import (
	"errors"
	"fmt"
	"io"
	"sync"

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

// ErrNoSuchPath indicates a subscription path did not resolve.
var ErrNoSuchPath = errors.New("no such path")

// Resource is a permanent single-object entry: one root object guarded by
// one lock, with validators, subscribers, and transactional edits.
type Resource struct {
	name     string
	level    schema.Level
	log      *zap.Logger
	queue    *pubsub.Queue
	notifier *notifier

	mu  sync.Mutex
	obj *object.Object
}

// NewResource creates a resource holding a fresh object of the given type
// with a generated identifier.
func NewResource(name string, rt *schema.RecordType, opts Options) *Resource {
	opts = opts.withDefaults()
	r := &Resource{
		name:     name,
		level:    opts.AccessLevel,
		log:      opts.Logger,
		queue:    opts.DefaultQueue,
		notifier: newNotifier(name, opts.Logger),
	}
	r.obj = object.New(rt)
	r.obj.EnsureID()
	r.obj.ClearChangeMarkers()
	return r
}

// Name returns the mount name.
func (r *Resource) Name() string { return r.name }

// AccessLevel returns the level required to reach the resource.
func (r *Resource) AccessLevel() schema.Level { return r.level }

// Schemas lists the resource's record type.
func (r *Resource) Schemas() []*schema.RecordType { return []*schema.RecordType{r.obj.Type()} }

// Type returns the resource's record type.
func (r *Resource) Type() *schema.RecordType { return r.obj.Type() }

// ID returns the root object's identifier.
func (r *Resource) ID() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.obj.ID()
}

// Snapshot returns a detached copy of the current state.
func (r *Resource) Snapshot() *object.Object {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.obj.Clone()
}

func (r *Resource) allowed(acc access.Access) bool { return acc.Level >= r.level }

// RestGet encodes the target at path.
func (r *Resource) RestGet(path string, out io.Writer, acc access.Access) rest.Result {
	if !r.allowed(acc) {
		return rest.Fail(rest.StatusForbidden, rest.StatusForbidden.Description())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	res := rest.Get(wire.JSON(), r.obj, path, stream.NewWriter(out), acc)
	emitRequest(r.name, "GET", path, res)
	return res
}

// RestPost creates inside an array at path. The edit happens on a scratch
// copy and commits through the validators.
func (r *Resource) RestPost(path string, body io.Reader, acc access.Access) rest.Result {
	return r.write("POST", path, acc, func(scratch *object.Object) rest.Result {
		return rest.Post(wire.JSON(), scratch, path, stream.NewReader(body), acc)
	})
}

// RestPatch merges body into the target at path.
func (r *Resource) RestPatch(path string, body io.Reader, acc access.Access) rest.Result {
	return r.write("PATCH", path, acc, func(scratch *object.Object) rest.Result {
		return rest.Patch(wire.JSON(), scratch, path, stream.NewReader(body), acc)
	})
}

// RestPut replaces the target at path with body.
func (r *Resource) RestPut(path string, body io.Reader, acc access.Access) rest.Result {
	return r.write("PUT", path, acc, func(scratch *object.Object) rest.Result {
		return rest.Put(wire.JSON(), scratch, path, stream.NewReader(body), acc)
	})
}

// RestDelete clears the target at path.
func (r *Resource) RestDelete(path string, acc access.Access) rest.Result {
	return r.write("DELETE", path, acc, func(scratch *object.Object) rest.Result {
		if path == "" || path == "/" {
			// deleting the resource clears it; the object itself stays
			scratch.ClearAllExceptID()
			return rest.OK()
		}
		return rest.Delete(scratch, path, acc)
	})
}

// write runs op against a scratch copy under the lock and commits on
// success: a failing op or a vetoing validator leaves the live object
// untouched. The notification fans out after the lock drops so immediate
// subscribers may reach other entries.
func (r *Resource) write(verb, path string, acc access.Access, op func(*object.Object) rest.Result) rest.Result {
	if !r.allowed(acc) {
		return rest.Fail(rest.StatusForbidden, rest.StatusForbidden.Description())
	}
	r.mu.Lock()
	scratch := r.obj.Clone()
	res := op(scratch)
	var note *pubsub.Notification
	if res.IsOK() {
		res, note = r.commitLocked(scratch)
	}
	r.mu.Unlock()

	if note != nil {
		r.notifier.publish(note)
	}
	emitRequest(r.name, verb, path, res)
	if !res.IsOK() {
		r.log.Debug("rest request failed",
			zap.String("resource", r.name),
			zap.String("verb", verb),
			zap.String("path", path),
			zap.Int("status", int(res.Status)),
			zap.String("message", res.Message))
	}
	return res
}

// commitLocked validates the scratch state and installs it, returning the
// notification for the caller to publish once the lock drops.
func (r *Resource) commitLocked(scratch *object.Object) (rest.Result, *pubsub.Notification) {
	if !scratch.AnyChanged() {
		return rest.OK(), nil
	}

	proposed := &pubsub.Notification{Object: scratch, Changes: scratch.ChangeMask()}
	live := r.obj
	if err := r.notifier.validate(proposed, func() *object.Object { return live }); err != nil {
		emitValidationFailed(r.name, err)
		return rest.Fail(rest.StatusBadRequest, err.Error()), nil
	}

	if err := r.obj.TransferFrom(scratch); err != nil {
		return rest.Fail(rest.StatusInternal, err.Error()), nil
	}

	n := &pubsub.Notification{
		Object:  r.obj.Clone(),
		Changes: r.obj.ChangeMask(),
	}
	r.obj.ClearChangeMarkers()
	return rest.OK(), n
}

// ValidateWith registers a validator run on every commit, in registration
// order. Close the returned handle to remove it.
func (r *Resource) ValidateWith(fn pubsub.Validator) *pubsub.Subscription {
	return r.notifier.addValidator(fn)
}

// OnChangeToPath subscribes to commits whose change mask overlaps the
// filter. A non-empty path narrows the filter to the top-level field the
// path enters.
func (r *Resource) OnChangeToPath(path string, cb pubsub.Subscriber, filter mask.Filter, q *pubsub.Queue) (*pubsub.Subscription, error) {
	if q == nil {
		q = r.queue
	}
	f, err := r.pathFilter(path, filter)
	if err != nil {
		return nil, err
	}
	return r.notifier.addSubscriber(cb, f, q), nil
}

// OnChange subscribes to any commit of the resource.
func (r *Resource) OnChange(cb pubsub.Subscriber, q *pubsub.Queue) *pubsub.Subscription {
	sub, _ := r.OnChangeToPath("", cb, mask.AnyChange(r.obj.Type().FieldCount()), q)
	return sub
}

// pathFilter narrows a subscription filter to the field a path enters.
func (r *Resource) pathFilter(path string, filter mask.Filter) (mask.Filter, error) {
	token, _ := rest.NextToken(path)
	if token == "" {
		if filter.IsEmpty() {
			return mask.AnyChange(r.obj.Type().FieldCount()), nil
		}
		return filter, nil
	}
	f, ok := r.obj.Type().FieldByLabel(token)
	if !ok {
		return filter, fmt.Errorf("%w: %s/%s", ErrNoSuchPath, r.name, token)
	}
	nf := mask.ForFields(r.obj.Type().FieldCount(), f.Index)
	return nf, nil
}

// SubscriberCount totals registered subscribers.
func (r *Resource) SubscriberCount() int { return r.notifier.subscriberCount() }

// ClearAllDataAndSubscribers resets the object and drops every subscriber
// and validator.
func (r *Resource) ClearAllDataAndSubscribers() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifier.clear()
	r.obj.ClearAllExceptID()
	r.obj.ClearChangeMarkers()
}

// Restore replays a persisted body into the resource as a root-level PUT.
func (r *Resource) Restore(body io.Reader) rest.Result {
	return r.RestPut("", body, access.Root)
}

// SearchPaths enumerates completions under the resource.
func (r *Resource) SearchPaths(prefix string, max int, level schema.Level) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return rest.Search(r.obj, prefix, level, max)
}
