package db

import (
	"io"

	"github.com/stratahq/strata/access"
	"github.com/stratahq/strata/object"
	"github.com/stratahq/strata/rest"
	"github.com/stratahq/strata/stream"
	"github.com/stratahq/strata/wire"
)

// Txn is a scoped edit of a resource: the root lock is held for its
// lifetime, edits target a scratch copy, and Commit atomically installs
// the result after the validators pass. Abort drops the scratch without
// touching the live object.
//
// A Txn must end in exactly one Commit or Abort; both release the lock.
type Txn struct {
	r       *Resource
	scratch *object.Object
	done    bool
}

// Begin opens a transaction, acquiring the resource lock.
func (r *Resource) Begin() *Txn {
	r.mu.Lock()
	return &Txn{r: r, scratch: r.obj.Clone()}
}

// WithLock runs fn inside a transaction and commits when fn succeeds,
// aborting otherwise.
func (r *Resource) WithLock(fn func(*object.Object) error) rest.Result {
	tx := r.Begin()
	if err := fn(tx.Object()); err != nil {
		tx.Abort()
		return rest.Fail(rest.StatusBadRequest, err.Error())
	}
	return tx.Commit()
}

// Object exposes the mutable scratch state.
func (t *Txn) Object() *object.Object { return t.scratch }

// Get encodes the scratch state at path, seeing uncommitted edits.
func (t *Txn) Get(path string, out io.Writer, acc access.Access) rest.Result {
	return rest.Get(wire.JSON(), t.scratch, path, stream.NewWriter(out), acc)
}

// Patch merges body into the scratch state at path.
func (t *Txn) Patch(path string, body io.Reader, acc access.Access) rest.Result {
	return rest.Patch(wire.JSON(), t.scratch, path, stream.NewReader(body), acc)
}

// Put replaces the scratch target at path with body.
func (t *Txn) Put(path string, body io.Reader, acc access.Access) rest.Result {
	return rest.Put(wire.JSON(), t.scratch, path, stream.NewReader(body), acc)
}

// Post creates inside an array of the scratch state.
func (t *Txn) Post(path string, body io.Reader, acc access.Access) rest.Result {
	return rest.Post(wire.JSON(), t.scratch, path, stream.NewReader(body), acc)
}

// Delete removes the scratch target at path.
func (t *Txn) Delete(path string, acc access.Access) rest.Result {
	return rest.Delete(t.scratch, path, acc)
}

// Commit validates and installs the scratch state, publishes one
// notification carrying the accumulated change mask, clears the change
// markers, and releases the lock. A validator veto aborts with 400 and the
// live object byte-for-byte untouched.
func (t *Txn) Commit() rest.Result {
	if t.done {
		return rest.Fail(rest.StatusInternal, "transaction already finished")
	}
	t.done = true
	res, note := t.r.commitLocked(t.scratch)
	t.r.mu.Unlock()
	if note != nil {
		t.r.notifier.publish(note)
	}
	emitCommit(t.r.name, res)
	return res
}

// Abort drops the scratch and releases the lock.
func (t *Txn) Abort() {
	if t.done {
		return
	}
	t.done = true
	t.r.mu.Unlock()
}
