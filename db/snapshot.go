package db

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
)

// Snapshot exports the whole database as a single msgpack document keyed
// by sub-object path, each body the persistent-only JSON of that object.
func (d *Database) Snapshot() ([]byte, error) {
	bodies := make(map[string][]byte)
	if err := collectBodies(d, "", bodies); err != nil {
		return nil, err
	}
	return msgpack.Marshal(bodies)
}

// RestoreSnapshot replays a Snapshot document, recursively PUTting every
// body to its path in path order.
func (d *Database) RestoreSnapshot(data []byte) error {
	var bodies map[string][]byte
	if err := msgpack.Unmarshal(data, &bodies); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	paths := make([]string, 0, len(bodies))
	for path := range bodies {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if res := d.RestPut(path, bytes.NewReader(bodies[path]), persistAccess); !res.IsOK() {
			return fmt.Errorf("snapshot restore %s: %s", path, res.Error())
		}
	}
	return nil
}

func collectBodies(d *Database, prefix string, out map[string][]byte) error {
	for _, name := range d.EntryNames() {
		entry, _ := d.Entry(name)
		base := prefix + "/" + name

		switch e := entry.(type) {
		case *Resource:
			var buf bytes.Buffer
			if res := e.RestGet("", &buf, persistAccess); !res.IsOK() {
				return fmt.Errorf("snapshot %s: %s", base, res.Error())
			}
			out[base] = append([]byte(nil), buf.Bytes()...)

		case *Collection:
			for _, id := range e.IDs() {
				var buf bytes.Buffer
				idStr := strconv.FormatUint(id, 10)
				if res := e.RestGet("/"+idStr, &buf, persistAccess); !res.IsOK() {
					return fmt.Errorf("snapshot %s/%s: %s", base, idStr, res.Error())
				}
				out[base+"/"+idStr] = append([]byte(nil), buf.Bytes()...)
			}

		case *Database:
			if err := collectBodies(e, base, out); err != nil {
				return err
			}
		}
	}
	return nil
}
