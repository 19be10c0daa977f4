package db

import (
	"io"

	"github.com/stratahq/strata/access"
	"github.com/stratahq/strata/mask"
	"github.com/stratahq/strata/pubsub"
	"github.com/stratahq/strata/rest"
	"github.com/stratahq/strata/schema"
)

// Entry is anything a database root can mount: a resource, a collection,
// or a nested database. The REST surface speaks JSON.
type Entry interface {
	// Name is the path token the entry mounts under.
	Name() string

	// AccessLevel is the level required to reach the entry at all.
	AccessLevel() schema.Level

	// RestGet encodes the target at path into out.
	RestGet(path string, out io.Writer, acc access.Access) rest.Result

	// RestPost creates inside the target at path from body.
	RestPost(path string, body io.Reader, acc access.Access) rest.Result

	// RestPatch merges body into the target at path.
	RestPatch(path string, body io.Reader, acc access.Access) rest.Result

	// RestPut replaces the target at path with body.
	RestPut(path string, body io.Reader, acc access.Access) rest.Result

	// RestDelete removes the target at path.
	RestDelete(path string, acc access.Access) rest.Result

	// OnChangeToPath subscribes to commits touching path, filtered by the
	// field mask, delivered on q.
	OnChangeToPath(path string, cb pubsub.Subscriber, filter mask.Filter, q *pubsub.Queue) (*pubsub.Subscription, error)

	// SubscriberCount totals registered subscribers.
	SubscriberCount() int

	// ClearAllDataAndSubscribers resets the entry.
	ClearAllDataAndSubscribers()

	// Schemas lists the record types the entry exposes.
	Schemas() []*schema.RecordType

	// SearchPaths enumerates path completions under the entry.
	SearchPaths(prefix string, max int, level schema.Level) []string
}
