package rest

import (
	"strconv"
	"strings"

	"github.com/stratahq/strata/object"
	"github.com/stratahq/strata/schema"
)

// Search enumerates path completions under root for a partial path prefix,
// truncated to max entries. The last token of the prefix is treated as
// partial; candidates come from the browser state at that position: field
// labels inside objects, ids or indices inside arrays, and enum value
// names at enum leaves.
func Search(root *object.Object, prefix string, level schema.Level, max int) []string {
	base, partial := splitPrefix(prefix)

	b := Browse(root, base, level, PermRead)
	if !b.IsValid() {
		return nil
	}

	var out []string
	add := func(candidate string) bool {
		if !strings.HasPrefix(candidate, partial) {
			return true
		}
		path := base
		if path != "" {
			path = "/" + strings.Trim(path, "/")
		}
		out = append(out, path+"/"+candidate)
		return max <= 0 || len(out) < max
	}

	switch b.kind {
	case targetObject:
		for i := range b.obj.Type().Fields() {
			f := b.obj.Type().Field(i)
			if i == schema.IDFieldIndex || !f.Readable(level) {
				continue
			}
			if !add(f.Label) {
				return out
			}
		}

	case targetArray:
		f := b.obj.Type().Field(b.fieldIndex)
		if f.IsObject() {
			for idx := 0; idx < b.obj.Count(b.fieldIndex); idx++ {
				sub := b.obj.SubObjectAt(b.fieldIndex, idx)
				if !sub.HasID() {
					continue
				}
				if !add(strconv.FormatUint(sub.ID(), 10)) {
					return out
				}
			}
		} else {
			for idx := 0; idx < b.obj.Count(b.fieldIndex); idx++ {
				if !add(strconv.Itoa(idx)) {
					return out
				}
			}
		}

	case targetField:
		f := b.obj.Type().Field(b.fieldIndex)
		if f.Type == schema.TypeEnum && f.Enum != nil {
			for _, e := range f.Enum.Entries() {
				if !add(e.Name) {
					return out
				}
			}
		}
	}

	return out
}

// splitPrefix separates a search prefix into the complete base path and the
// trailing partial token.
func splitPrefix(prefix string) (base, partial string) {
	trimmed := strings.TrimLeft(prefix, "/")
	if trimmed == "" {
		return "", ""
	}
	if strings.HasSuffix(trimmed, "/") {
		return strings.TrimRight(trimmed, "/"), ""
	}
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
		return trimmed[:i], trimmed[i+1:]
	}
	return "", trimmed
}
