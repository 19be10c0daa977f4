package db

import (
	"context"
	"strconv"

	"github.com/stratahq/strata/pubsub"
	"github.com/stratahq/strata/rest"
	"github.com/zoobzio/capitan"
)

// Signals for database events.
var (
	SignalRequest          = capitan.NewSignal("strata.rest.request", "REST request completed")
	SignalCommit           = capitan.NewSignal("strata.txn.commit", "Transaction commit finished")
	SignalPublish          = capitan.NewSignal("strata.notify.publish", "Change notification published")
	SignalValidationFailed = capitan.NewSignal("strata.validate.failed", "Validator vetoed a commit")
	SignalQueueOverflow    = capitan.NewSignal("strata.notify.overflow", "Notify queue rejected a callback")
)

// Keys for typed event data.
var (
	KeyEntry   = capitan.NewStringKey("entry")
	KeyVerb    = capitan.NewStringKey("verb")
	KeyPath    = capitan.NewStringKey("path")
	KeyStatus  = capitan.NewIntKey("status")
	KeyMessage = capitan.NewStringKey("message")
	KeyID      = capitan.NewStringKey("id")
	KeyQueue   = capitan.NewStringKey("queue")
	KeyIsNew   = capitan.NewStringKey("is_new")
	KeyError   = capitan.NewErrorKey("error")
)

// emitRequest emits an event when a REST request completes.
func emitRequest(entry, verb, path string, res rest.Result) {
	ctx := context.Background()
	fields := []capitan.Field{
		KeyEntry.Field(entry),
		KeyVerb.Field(verb),
		KeyPath.Field(path),
		KeyStatus.Field(int(res.Status)),
	}
	if res.IsOK() {
		capitan.Emit(ctx, SignalRequest, fields...)
	} else {
		fields = append(fields, KeyMessage.Field(res.Message))
		capitan.Error(ctx, SignalRequest, fields...)
	}
}

// emitCommit emits an event when a transaction finishes.
func emitCommit(entry string, res rest.Result) {
	ctx := context.Background()
	fields := []capitan.Field{
		KeyEntry.Field(entry),
		KeyStatus.Field(int(res.Status)),
	}
	if res.IsOK() {
		capitan.Emit(ctx, SignalCommit, fields...)
	} else {
		fields = append(fields, KeyMessage.Field(res.Message))
		capitan.Error(ctx, SignalCommit, fields...)
	}
}

// emitPublish emits an event when a notification fans out.
func emitPublish(entry string, n *pubsub.Notification) {
	isNew := "false"
	if n.IsNew {
		isNew = "true"
	}
	capitan.Emit(context.Background(), SignalPublish,
		KeyEntry.Field(entry),
		KeyID.Field(strconv.FormatUint(n.ID(), 10)),
		KeyIsNew.Field(isNew),
	)
}

// emitValidationFailed emits an event when a validator vetoes a commit.
func emitValidationFailed(entry string, err error) {
	capitan.Error(context.Background(), SignalValidationFailed,
		KeyEntry.Field(entry),
		KeyError.Field(err),
	)
}

// emitQueueOverflow emits an event when a queue rejects a notification.
func emitQueueOverflow(entry, queue string) {
	capitan.Error(context.Background(), SignalQueueOverflow,
		KeyEntry.Field(entry),
		KeyQueue.Field(queue),
	)
}
