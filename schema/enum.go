package schema

import "fmt"

// EnumEntry is one (name, value, description) triple of an enum map.
// Bitmask fields reuse the map with each value naming a bit position.
type EnumEntry struct {
	Name        string
	Value       int64
	Description string
}

// EnumMap is an ordered, immutable set of enum entries with lookups in both
// directions.
type EnumMap struct {
	name    string
	entries []EnumEntry
	byName  map[string]int
	byValue map[int64]int
}

// NewEnumMap assembles an enum map from entries, preserving their order.
func NewEnumMap(name string, entries []EnumEntry) (*EnumMap, error) {
	em := &EnumMap{
		name:    name,
		entries: make([]EnumEntry, len(entries)),
		byName:  make(map[string]int, len(entries)),
		byValue: make(map[int64]int, len(entries)),
	}
	copy(em.entries, entries)
	for i, e := range em.entries {
		if e.Name == "" {
			return nil, fmt.Errorf("%w: enum %s entry %d has no name", ErrInvalidField, name, i)
		}
		if _, dup := em.byName[e.Name]; dup {
			return nil, fmt.Errorf("%w: enum %s name %q", ErrDuplicateField, name, e.Name)
		}
		em.byName[e.Name] = i
		if _, dup := em.byValue[e.Value]; !dup {
			em.byValue[e.Value] = i
		}
	}
	return em, nil
}

// MustEnumMap is NewEnumMap that panics on error, for package-level tables.
func MustEnumMap(name string, entries []EnumEntry) *EnumMap {
	em, err := NewEnumMap(name, entries)
	if err != nil {
		panic(err)
	}
	return em
}

// Name returns the map's name.
func (em *EnumMap) Name() string { return em.name }

// Entries returns the ordered entries.
func (em *EnumMap) Entries() []EnumEntry { return em.entries }

// Value resolves a name to its value.
func (em *EnumMap) Value(name string) (int64, bool) {
	i, ok := em.byName[name]
	if !ok {
		return 0, false
	}
	return em.entries[i].Value, true
}

// NameOf resolves a value to its first matching name.
func (em *EnumMap) NameOf(value int64) (string, bool) {
	i, ok := em.byValue[value]
	if !ok {
		return "", false
	}
	return em.entries[i].Name, true
}

// Contains reports whether value appears in the map.
func (em *EnumMap) Contains(value int64) bool {
	_, ok := em.byValue[value]
	return ok
}

// Describe returns the description attached to value, if any.
func (em *EnumMap) Describe(value int64) string {
	if i, ok := em.byValue[value]; ok {
		return em.entries[i].Description
	}
	return ""
}
