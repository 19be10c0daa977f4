package schema

import (
	"reflect"
	"sync"
)

// derived holds the record types built from Go struct types.
// These are built once via reflection and cached for reuse.
var (
	derived   = make(map[reflect.Type]*RecordType)
	derivedMu sync.RWMutex
)

// ResetDerivedCache clears the derived record-type cache.
// This is primarily useful for test isolation.
func ResetDerivedCache() {
	derivedMu.Lock()
	defer derivedMu.Unlock()
	derived = make(map[reflect.Type]*RecordType)
}
