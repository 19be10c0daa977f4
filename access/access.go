// Package access defines the access-control object carried into every REST
// verb and the per-field filters derived from it.
//
// An Access combines a user level with optional view modes: a root field
// filter restricting top-level visibility, a deltas-only mode that reads
// only changed fields, and a persistent-only mode that narrows reads and
// writes to fields marked persisted. The codec drivers consult the filters
// this package builds, re-evaluated per object so nested objects honor the
// same modes.
package access

import (
	"github.com/stratahq/strata/mask"
	"github.com/stratahq/strata/object"
	"github.com/stratahq/strata/schema"
)

// Access is the access-control configuration for a REST operation.
type Access struct {
	// Level is the caller's access level.
	Level schema.Level

	// RootFieldFilter, when non-nil, restricts which top-level fields are
	// visible and writable.
	RootFieldFilter *mask.Filter

	// DeltasOnly restricts reads to fields marked changed.
	DeltasOnly bool

	// PersistentOnly restricts reads and writes to fields marked persisted.
	PersistentOnly bool
}

// Public is the unprivileged default access.
var Public = Access{Level: schema.LevelPublic}

// Admin is a convenience access at the admin level.
var Admin = Access{Level: schema.LevelAdmin}

// Root is a convenience access at the root level.
var Root = Access{Level: schema.LevelRoot}

// ReadFilter builds the encode-side field filter for one object. Fields the
// level may not read are excluded; deltas-only intersects with the object's
// changed fields; persistent-only keeps only persisted fields. The root
// field filter applies to top-level objects only.
func (a Access) ReadFilter(o *object.Object) mask.Filter {
	rt := o.Type()
	f := mask.New(rt.FieldCount())
	for i := range rt.Fields() {
		fd := rt.Field(i)
		if !fd.Readable(a.Level) {
			continue
		}
		if a.PersistentOnly && !fd.Persisted {
			continue
		}
		if a.DeltasOnly && !o.Changed(i) && i != schema.IDFieldIndex {
			continue
		}
		f.SetField(i)
	}
	a.applyRootFilter(o, &f)
	return f
}

// WriteFilter builds the decode-side field filter for one object. Fields
// the level may not write are excluded so decoders skip them silently.
func (a Access) WriteFilter(o *object.Object) mask.Filter {
	rt := o.Type()
	f := mask.New(rt.FieldCount())
	for i := range rt.Fields() {
		fd := rt.Field(i)
		if !fd.Writable(a.Level) {
			continue
		}
		if a.PersistentOnly && !fd.Persisted {
			continue
		}
		f.SetField(i)
	}
	a.applyRootFilter(o, &f)
	return f
}

func (a Access) applyRootFilter(o *object.Object, f *mask.Filter) {
	if a.RootFieldFilter != nil && o.IsTopLevel() {
		f.And(*a.RootFieldFilter)
	}
}

// CanRead reports whether the level may read the given field.
func (a Access) CanRead(fd *schema.Field) bool { return fd.Readable(a.Level) }

// CanWrite reports whether the level may write the given field.
func (a Access) CanWrite(fd *schema.Field) bool { return fd.Writable(a.Level) }
