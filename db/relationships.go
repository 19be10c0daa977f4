package db

import (
	"fmt"

	"github.com/stratahq/strata/object"
	"github.com/stratahq/strata/pubsub"
)

// Relationships ties collections together: mirrored deletes, cascading
// deletes, and enforced id references with optional duplicate rejection
// and automatic scrubbing of stale references.

// DeleteTogether mirrors deletes across two collections: removing an id
// from either removes the same id from the other.
func DeleteTogether(a, b *Collection) *pubsub.Group {
	g := &pubsub.Group{}
	g.Add(a.OnDeleted(func(n *pubsub.Notification) { b.Delete(n.ID()) }, pubsub.Immediate()))
	g.Add(b.OnDeleted(func(n *pubsub.Notification) { a.Delete(n.ID()) }, pubsub.Immediate()))
	return g
}

// CascadeDelete deletes every dependent whose reference field points at a
// target that was just deleted.
func CascadeDelete(target *Collection, dependents *Collection, fieldIndex int) *pubsub.Subscription {
	return target.OnDeleted(func(n *pubsub.Notification) {
		deadID := n.ID()
		var doomed []uint64
		dependents.Each(func(o *object.Object) bool {
			if referencesID(o, fieldIndex, deadID) {
				doomed = append(doomed, o.ID())
			}
			return true
		})
		for _, id := range doomed {
			dependents.Delete(id)
		}
	}, pubsub.Immediate())
}

// ReferenceOptions tunes EnforceReference.
type ReferenceOptions struct {
	// AllowDuplicateTargets permits two referencing objects to point at
	// the same target.
	AllowDuplicateTargets bool
}

// EnforceReference keeps the reference field of every object in source
// pointing at live ids in target: writes referencing a missing id are
// vetoed with 400, duplicate references are optionally vetoed, and
// deleting a target scrubs every stale reference from source.
func EnforceReference(source *Collection, fieldIndex int, target *Collection, opts ReferenceOptions) *pubsub.Group {
	g := &pubsub.Group{}

	// the validator runs with the source collection's lock held, so source
	// traversal and same-collection target checks use the unlocked forms
	contains := func(id uint64) bool {
		if target == source {
			return target.containsLocked(id)
		}
		return target.ContainsID(id)
	}

	g.Add(source.ValidateWith(func(proposed *pubsub.Notification, old func() *object.Object) error {
		if proposed.IsDeleted || !proposed.Changed(fieldIndex) {
			return nil
		}

		f := source.Type().Field(fieldIndex)
		seen := make(map[uint64]bool)
		for _, id := range referenceValues(proposed.Object, fieldIndex) {
			if !contains(id) {
				return fmt.Errorf("'%s/%d/%s' refers to id %d which is not in collection '%s'",
					source.Name(), proposed.ID(), f.Label, id, target.Name())
			}
			if seen[id] {
				return fmt.Errorf("'%s/%d/%s' has duplicate entry %d",
					source.Name(), proposed.ID(), f.Label, id)
			}
			seen[id] = true
		}

		if opts.AllowDuplicateTargets {
			return nil
		}

		var clash error
		source.eachLocked(func(other *object.Object) bool {
			if other.ID() == proposed.ID() {
				return true
			}
			for _, id := range referenceValues(other, fieldIndex) {
				if seen[id] {
					clash = fmt.Errorf("'%s/%d/%s' and '%s/%d/%s' reference the same id %d",
						source.Name(), proposed.ID(), f.Label,
						source.Name(), other.ID(), f.Label, id)
					return false
				}
			}
			return true
		})
		return clash
	}))

	g.Add(target.OnDeleted(func(n *pubsub.Notification) {
		scrubReferences(source, fieldIndex, n.ID())
	}, pubsub.Immediate()))

	return g
}

// referenceValues collects the id values held by a reference field,
// scalar or repeated.
func referenceValues(o *object.Object, fieldIndex int) []uint64 {
	f := o.Type().Field(fieldIndex)
	if f == nil {
		return nil
	}
	if f.IsArray() {
		out := make([]uint64, 0, o.Count(fieldIndex))
		for idx := 0; idx < o.Count(fieldIndex); idx++ {
			v, _ := o.At(fieldIndex, idx)
			out = append(out, v.AsUint())
		}
		return out
	}
	if !o.Touched(fieldIndex) {
		return nil
	}
	v, _ := o.Get(fieldIndex)
	return []uint64{v.AsUint()}
}

func referencesID(o *object.Object, fieldIndex int, id uint64) bool {
	for _, ref := range referenceValues(o, fieldIndex) {
		if ref == id {
			return true
		}
	}
	return false
}

// scrubReferences clears every occurrence of deadID from the reference
// field across the collection.
func scrubReferences(c *Collection, fieldIndex int, deadID uint64) {
	var dirty []uint64
	c.Each(func(o *object.Object) bool {
		if referencesID(o, fieldIndex, deadID) {
			dirty = append(dirty, o.ID())
		}
		return true
	})

	for _, id := range dirty {
		c.Edit(id, func(o *object.Object) error {
			f := o.Type().Field(fieldIndex)
			if f.IsArray() {
				for idx := 0; idx < o.Count(fieldIndex); idx++ {
					v, _ := o.At(fieldIndex, idx)
					if v.AsUint() == deadID {
						if err := o.RemoveAt(fieldIndex, idx); err != nil {
							return err
						}
						idx--
					}
				}
				return nil
			}
			if o.Touched(fieldIndex) {
				if v, _ := o.Get(fieldIndex); v.AsUint() == deadID {
					return o.Clear(fieldIndex)
				}
			}
			return nil
		})
	}
}
