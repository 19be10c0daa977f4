// Package db assembles the database layer: single-object resources,
// id-keyed collections, a path-routing database root, validator-gated
// transactions, change publication, relationship enforcement, and
// persistence hooks.
package db

import (
	"github.com/stratahq/strata/pubsub"
	"github.com/stratahq/strata/schema"
	"go.uber.org/zap"
)

// Options configures resources, collections, and database roots.
type Options struct {
	// Logger receives structured operational logs. Defaults to a no-op
	// logger.
	Logger *zap.Logger

	// AccessLevel is the level required to read and update the entry.
	AccessLevel schema.Level

	// DefaultQueue receives subscriber callbacks when a subscription does
	// not name one. Defaults to the immediate queue.
	DefaultQueue *pubsub.Queue

	// Capacity bounds a collection's element count; 0 is unlimited.
	Capacity int

	// AllowGlobalGet permits GET of a database root composing every
	// readable entry.
	AllowGlobalGet bool
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.DefaultQueue == nil {
		o.DefaultQueue = pubsub.Immediate()
	}
	return o
}
