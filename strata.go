// Package strata is a schema-driven, in-memory, hierarchical object
// database with a uniform REST-style access layer.
//
// Given a set of record types — typed, named, permissioned fields declared
// through a builder, derived from Go structs, or loaded from YAML — strata
// provides typed in-place objects that track per-field "touched" and
// "changed" bits, streaming JSON and binary codecs driven by the same
// schema, URL-like path addressing down to single array elements, and REST
// verbs with access control, validation, and change publication.
//
// # Packages
//
//   - schema: record types, fields, enum maps, derivation and loading
//   - mask: touched/changed bit filters and their set algebra
//   - object: in-place typed records and the mutation surface
//   - stream: pull streams shared by the codecs
//   - wire: the JSON and binary transports and codec drivers
//   - rest: path browsing and verb semantics
//   - access: access levels and per-field filters
//   - pubsub: notify queues, subscriptions, notifications
//   - db: resources, collections, database roots, transactions,
//     relationships, persistence hooks
//   - schemagen: JSON Schema emission for record types
//
// # A Small Database
//
//	sensor := schema.NewBuilder("Sensor").
//	    String("name", 32).
//	    Float("reading", 64).
//	    Unsigned("station", 64).
//	    MustBuild()
//
//	sensors := db.NewCollection("sensors", sensor, db.Options{})
//	root := db.NewDatabase("", db.Options{AllowGlobalGet: true})
//	root.Install(sensors)
//
//	res := root.RestPost("/sensors", strings.NewReader(`{"name":"s1"}`), access.Admin)
//	root.RestPatch(fmt.Sprintf("/sensors/%d/reading", res.CreatedID),
//	    strings.NewReader("21.5"), access.Admin)
//
// Every successful write flips the changed bits of the fields it altered
// and publishes one notification per commit to the subscribers whose
// filters overlap the change mask.
package strata
