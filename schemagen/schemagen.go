// Package schemagen emits JSON Schema documents for record types, honoring
// read access: fields a level may not read are absent from the emitted
// schema. The output feeds API documentation generators; serving it is out
// of scope here.
package schemagen

import (
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stratahq/strata/db"
	"github.com/stratahq/strata/schema"
)

// ForRecordType renders the schema of one record type as seen by the given
// access level.
func ForRecordType(rt *schema.RecordType, level schema.Level) *jsonschema.Schema {
	s := &jsonschema.Schema{
		Title:                rt.Name(),
		Type:                 "object",
		Properties:           make(map[string]*jsonschema.Schema),
		AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
	}
	for i := range rt.Fields() {
		f := rt.Field(i)
		if !f.Readable(level) {
			continue
		}
		s.Properties[f.Label] = forField(f, level)
	}
	return s
}

func forField(f *schema.Field, level schema.Level) *jsonschema.Schema {
	elem := forElement(f, level)
	if f.IsArray() {
		return &jsonschema.Schema{Type: "array", Items: elem}
	}
	return elem
}

func forElement(f *schema.Field, level schema.Level) *jsonschema.Schema {
	switch f.Type {
	case schema.TypeBool:
		return &jsonschema.Schema{Type: "boolean"}

	case schema.TypeSigned, schema.TypeUnsigned:
		return &jsonschema.Schema{Type: "integer"}

	case schema.TypeFloat:
		return &jsonschema.Schema{Type: "number"}

	case schema.TypeEnum:
		names := make([]any, 0, len(f.Enum.Entries()))
		for _, e := range f.Enum.Entries() {
			names = append(names, e.Name)
		}
		return &jsonschema.Schema{Type: "string", Enum: names}

	case schema.TypeBitmask:
		names := make([]any, 0, len(f.Enum.Entries()))
		for _, e := range f.Enum.Entries() {
			names = append(names, e.Name)
		}
		return &jsonschema.Schema{
			Type:  "array",
			Items: &jsonschema.Schema{Type: "string", Enum: names},
		}

	case schema.TypeString:
		return &jsonschema.Schema{Type: "string"}

	case schema.TypeBytes:
		return &jsonschema.Schema{Type: "string", Description: "base64-encoded bytes"}

	case schema.TypeObject:
		return ForRecordType(f.Sub, level)
	}
	return &jsonschema.Schema{}
}

// ForDatabase renders a schema per record type mounted under the root,
// keyed by type name.
func ForDatabase(d *db.Database, level schema.Level) map[string]*jsonschema.Schema {
	out := make(map[string]*jsonschema.Schema)
	for _, rt := range d.Schemas() {
		collectTypes(rt, level, out)
	}
	return out
}

// collectTypes walks nested record types so every reachable shape gets its
// own entry.
func collectTypes(rt *schema.RecordType, level schema.Level, out map[string]*jsonschema.Schema) {
	if _, done := out[rt.Name()]; done {
		return
	}
	out[rt.Name()] = ForRecordType(rt, level)
	for i := range rt.Fields() {
		f := rt.Field(i)
		if f.IsObject() && f.Readable(level) {
			collectTypes(f.Sub, level, out)
		}
	}
}
