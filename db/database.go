package db

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/stratahq/strata/access"
	"github.com/stratahq/strata/mask"
	"github.com/stratahq/strata/pubsub"
	"github.com/stratahq/strata/rest"
	"github.com/stratahq/strata/schema"
	"github.com/stratahq/strata/stream"
	"go.uber.org/zap"
)

// Sentinel errors for database assembly.
var (
	// ErrDuplicateEntry indicates two entries share a mount name.
	ErrDuplicateEntry = errors.New("duplicate entry")

	// ErrBadEntryName indicates an entry name is not a single path token.
	ErrBadEntryName = errors.New("bad entry name")
)

// Database mounts named entries and routes REST verbs by consuming the
// first path token. Databases nest: a Database is itself an Entry.
type Database struct {
	name           string
	level          schema.Level
	allowGlobalGet bool
	log            *zap.Logger

	mu      sync.Mutex
	entries map[string]Entry
}

// NewDatabase creates an empty database root.
func NewDatabase(name string, opts Options) *Database {
	opts = opts.withDefaults()
	return &Database{
		name:           name,
		level:          opts.AccessLevel,
		allowGlobalGet: opts.AllowGlobalGet,
		log:            opts.Logger,
		entries:        make(map[string]Entry),
	}
}

// Install mounts an entry under its name.
func (d *Database) Install(e Entry) error {
	name := e.Name()
	if name == "" {
		return fmt.Errorf("%w: empty", ErrBadEntryName)
	}
	if tok, rest := rest.NextToken(name); tok != name || rest != "" {
		return fmt.Errorf("%w: %q", ErrBadEntryName, name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.entries[name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateEntry, name)
	}
	d.entries[name] = e
	return nil
}

// Name returns the mount name; empty for an unnamed root.
func (d *Database) Name() string { return d.name }

// AccessLevel returns the level required to reach the database.
func (d *Database) AccessLevel() schema.Level { return d.level }

// Entry returns the mounted entry with the given name.
func (d *Database) Entry(name string) (Entry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[name]
	return e, ok
}

// EntryNames lists mounted entries in lexical order.
func (d *Database) EntryNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sortedNamesLocked()
}

func (d *Database) sortedNamesLocked() []string {
	names := make([]string, 0, len(d.entries))
	for name := range d.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// route resolves the first path token to an entry the level may reach.
func (d *Database) route(path string, level schema.Level) (Entry, string, bool) {
	token, sub := rest.NextToken(path)
	if token == "" {
		return nil, "", false
	}
	d.mu.Lock()
	e, ok := d.entries[token]
	d.mu.Unlock()
	if !ok || level < e.AccessLevel() {
		return nil, "", false
	}
	return e, sub, true
}

func isRootPath(path string) bool {
	token, _ := rest.NextToken(path)
	return token == ""
}

// Schemas lists every record type mounted anywhere under the root.
func (d *Database) Schemas() []*schema.RecordType {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*schema.RecordType
	seen := make(map[*schema.RecordType]bool)
	for _, name := range d.sortedNamesLocked() {
		for _, rt := range d.entries[name].Schemas() {
			if !seen[rt] {
				seen[rt] = true
				out = append(out, rt)
			}
		}
	}
	return out
}

// RestGet routes a GET, or composes every readable entry as one JSON
// object for the root path when global GET is enabled.
func (d *Database) RestGet(path string, out io.Writer, acc access.Access) rest.Result {
	if isRootPath(path) {
		if !d.allowGlobalGet {
			return rest.Fail(rest.StatusMethodNotAllowed, rest.StatusMethodNotAllowed.Description())
		}
		return d.getAll(out, acc)
	}
	e, sub, ok := d.route(path, acc.Level)
	if !ok {
		return rest.Fail(rest.StatusNotFound, rest.StatusNotFound.Description())
	}
	return e.RestGet(sub, out, acc)
}

func (d *Database) getAll(out io.Writer, acc access.Access) rest.Result {
	w := stream.NewWriter(out)
	if err := w.WriteByte('{'); err != nil {
		return rest.Fail(rest.StatusInternal, w.Message())
	}
	first := true
	d.mu.Lock()
	names := d.sortedNamesLocked()
	entries := make([]Entry, len(names))
	for i, name := range names {
		entries[i] = d.entries[name]
	}
	d.mu.Unlock()

	for i, e := range entries {
		if e.AccessLevel() > acc.Level {
			continue
		}
		if !first {
			if err := w.WriteByte(','); err != nil {
				return rest.Fail(rest.StatusInternal, w.Message())
			}
		}
		first = false
		if err := w.Printf("%q:", names[i]); err != nil {
			return rest.Fail(rest.StatusInternal, w.Message())
		}
		if res := e.RestGet("", w, acc); !res.IsOK() {
			return res
		}
	}
	if err := w.WriteByte('}'); err != nil {
		return rest.Fail(rest.StatusInternal, w.Message())
	}
	return rest.OK()
}

// RestPost routes a POST; write verbs on the bare root are refused.
func (d *Database) RestPost(path string, body io.Reader, acc access.Access) rest.Result {
	if isRootPath(path) {
		return rest.Fail(rest.StatusMethodNotAllowed, rest.StatusMethodNotAllowed.Description())
	}
	e, sub, ok := d.route(path, acc.Level)
	if !ok {
		return rest.Fail(rest.StatusNotFound, rest.StatusNotFound.Description())
	}
	return e.RestPost(sub, body, acc)
}

// RestPatch routes a PATCH.
func (d *Database) RestPatch(path string, body io.Reader, acc access.Access) rest.Result {
	if isRootPath(path) {
		return rest.Fail(rest.StatusMethodNotAllowed, rest.StatusMethodNotAllowed.Description())
	}
	e, sub, ok := d.route(path, acc.Level)
	if !ok {
		return rest.Fail(rest.StatusNotFound, rest.StatusNotFound.Description())
	}
	return e.RestPatch(sub, body, acc)
}

// RestPut routes a PUT.
func (d *Database) RestPut(path string, body io.Reader, acc access.Access) rest.Result {
	if isRootPath(path) {
		return rest.Fail(rest.StatusMethodNotAllowed, rest.StatusMethodNotAllowed.Description())
	}
	e, sub, ok := d.route(path, acc.Level)
	if !ok {
		return rest.Fail(rest.StatusNotFound, rest.StatusNotFound.Description())
	}
	return e.RestPut(sub, body, acc)
}

// RestDelete routes a DELETE.
func (d *Database) RestDelete(path string, acc access.Access) rest.Result {
	if isRootPath(path) {
		return rest.Fail(rest.StatusMethodNotAllowed, rest.StatusMethodNotAllowed.Description())
	}
	e, sub, ok := d.route(path, acc.Level)
	if !ok {
		return rest.Fail(rest.StatusNotFound, rest.StatusNotFound.Description())
	}
	return e.RestDelete(sub, acc)
}

// OnChangeToPath routes a subscription to the entry the path enters.
func (d *Database) OnChangeToPath(path string, cb pubsub.Subscriber, filter mask.Filter, q *pubsub.Queue) (*pubsub.Subscription, error) {
	e, sub, ok := d.route(path, schema.LevelRoot)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchPath, path)
	}
	return e.OnChangeToPath(sub, cb, filter, q)
}

// SubscriberCount totals subscribers across every entry.
func (d *Database) SubscriberCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	count := 0
	for _, e := range d.entries {
		count += e.SubscriberCount()
	}
	return count
}

// ClearAllDataAndSubscribers resets every entry.
func (d *Database) ClearAllDataAndSubscribers() {
	d.mu.Lock()
	entries := make([]Entry, 0, len(d.entries))
	for _, e := range d.entries {
		entries = append(entries, e)
	}
	d.mu.Unlock()
	for _, e := range entries {
		e.ClearAllDataAndSubscribers()
	}
}

// SearchPaths enumerates completions: entry names at the root, entry
// completions below.
func (d *Database) SearchPaths(prefix string, max int, level schema.Level) []string {
	token, sub := rest.NextToken(prefix)
	deeper := sub != "" || pathHasSlashAfterToken(prefix, token)

	if !deeper {
		var out []string
		for _, name := range d.EntryNames() {
			if e, _ := d.Entry(name); e != nil && e.AccessLevel() > level {
				continue
			}
			if len(token) <= len(name) && name[:len(token)] == token {
				out = append(out, "/"+name)
				if max > 0 && len(out) >= max {
					return out
				}
			}
		}
		return out
	}

	e, rest2, ok := d.route(prefix, level)
	if !ok {
		return nil
	}
	var out []string
	for _, p := range e.SearchPaths(rest2, max, level) {
		out = append(out, "/"+token+p)
	}
	return out
}

func pathHasSlashAfterToken(path, token string) bool {
	trimmed := path
	for len(trimmed) > 0 && trimmed[0] == '/' {
		trimmed = trimmed[1:]
	}
	return len(trimmed) > len(token) && trimmed[len(token)] == '/'
}
