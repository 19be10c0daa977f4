package pubsub

import (
	"github.com/stratahq/strata/mask"
	"github.com/stratahq/strata/object"
)

// Notification describes one committed change, delivered to subscribers
// whose filter overlaps the change mask. The carried object is a snapshot
// taken at publish time, safe to read from any goroutine.
type Notification struct {
	// Object is the post-commit snapshot.
	Object *object.Object

	// Changes is the accumulated change mask of the commit.
	Changes mask.Filter

	// IsNew marks the first notification of a freshly created resource.
	IsNew bool

	// IsDeleted marks the final notification of a deleted resource.
	IsDeleted bool
}

// ID returns the identifier of the changed object.
func (n *Notification) ID() uint64 {
	if n.Object == nil {
		return 0
	}
	return n.Object.ID()
}

// Changed reports whether field i is in the change mask.
func (n *Notification) Changed(i int) bool { return n.Changes.Changed(i) }

// Subscriber receives notifications.
type Subscriber func(*Notification)

// Validator inspects a proposed commit. The notification carries the
// proposed state; old returns the pre-commit state. Returning an error
// vetoes the commit and surfaces the message with a 400.
type Validator func(proposed *Notification, old func() *object.Object) error
