package db

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/stratahq/strata/access"
	"github.com/stratahq/strata/mask"
	"github.com/stratahq/strata/pubsub"
)

// PersistentStore is the contract a persistence adapter implements: one
// body per sub-object path. The database writes each body as the JSON of
// that sub-object in persistent-only mode and restores by recursive PUT.
// Adapters (filesystem, kv store) live outside the core.
type PersistentStore interface {
	// Write stores the body for a path.
	Write(path string, body []byte) error

	// Read returns the body stored for a path.
	Read(path string) ([]byte, error)

	// Delete removes the body for a path.
	Delete(path string) error

	// List enumerates every stored path.
	List() ([]string, error)
}

// persistAccess is the view persisted state is read and written with.
var persistAccess = access.Access{Level: access.Root.Level, PersistentOnly: true}

// Persist subscribes the store to every entry of the database: each commit
// rewrites the changed sub-object's body, each collection deletion removes
// it. Callbacks are delivered on q; close the returned group to stop.
func Persist(d *Database, store PersistentStore, q *pubsub.Queue) (*pubsub.Group, error) {
	g := &pubsub.Group{}
	if err := persistEntries(d, "", store, q, g); err != nil {
		g.Close()
		return nil, err
	}
	return g, nil
}

func persistEntries(d *Database, prefix string, store PersistentStore, q *pubsub.Queue, g *pubsub.Group) error {
	for _, name := range d.EntryNames() {
		entry, _ := d.Entry(name)
		base := prefix + "/" + name

		switch e := entry.(type) {
		case *Resource:
			sub, err := e.OnChangeToPath("", func(n *pubsub.Notification) {
				var buf bytes.Buffer
				if res := e.RestGet("", &buf, persistAccess); res.IsOK() {
					_ = store.Write(base, buf.Bytes())
				}
			}, mask.Filter{}, q)
			if err != nil {
				return err
			}
			g.Add(sub)

		case *Collection:
			g.Add(e.OnChange(func(n *pubsub.Notification) {
				path := base + "/" + strconv.FormatUint(n.ID(), 10)
				if n.IsDeleted {
					_ = store.Delete(path)
					return
				}
				var buf bytes.Buffer
				if res := e.RestGet("/"+strconv.FormatUint(n.ID(), 10), &buf, persistAccess); res.IsOK() {
					_ = store.Write(path, buf.Bytes())
				}
			}, q))

		case *Database:
			if err := persistEntries(e, base, store, q, g); err != nil {
				return err
			}
		}
	}
	return nil
}

// Restore replays every stored body into the database as a root-level PUT
// in path order, recreating collection elements under their persisted ids.
func Restore(d *Database, store PersistentStore) error {
	paths, err := store.List()
	if err != nil {
		return err
	}
	sort.Strings(paths)

	for _, path := range paths {
		body, err := store.Read(path)
		if err != nil {
			return fmt.Errorf("restore %s: %w", path, err)
		}
		if res := d.RestPut(path, bytes.NewReader(body), persistAccess); !res.IsOK() {
			return fmt.Errorf("restore %s: %s", path, res.Error())
		}
	}
	return nil
}

// MemoryStore is an in-memory PersistentStore for tests and snapshots.
type MemoryStore struct {
	bodies map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bodies: make(map[string][]byte)}
}

// Write stores the body for a path.
func (m *MemoryStore) Write(path string, body []byte) error {
	m.bodies[path] = append([]byte(nil), body...)
	return nil
}

// Read returns the body stored for a path.
func (m *MemoryStore) Read(path string) ([]byte, error) {
	body, ok := m.bodies[path]
	if !ok {
		return nil, fmt.Errorf("no body for %s", path)
	}
	return body, nil
}

// Delete removes the body for a path.
func (m *MemoryStore) Delete(path string) error {
	delete(m.bodies, path)
	return nil
}

// List enumerates every stored path.
func (m *MemoryStore) List() ([]string, error) {
	paths := make([]string, 0, len(m.bodies))
	for path := range m.bodies {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}
