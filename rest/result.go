// Package rest implements the verb layer: locating a target by path through
// the browser, applying GET/POST/PATCH/PUT/DELETE with the merge semantics
// of each, and mapping failures onto a small REST status code set.
package rest

import "fmt"

// Status is a REST status code.
type Status int

// The recognized status codes.
const (
	StatusOK               Status = 200
	StatusCreated          Status = 201
	StatusNoContent        Status = 204
	StatusBadRequest       Status = 400
	StatusUnauthorized     Status = 401
	StatusForbidden        Status = 403
	StatusNotFound         Status = 404
	StatusMethodNotAllowed Status = 405
	StatusConflict         Status = 409
	StatusInternal         Status = 500
)

// OK reports whether the status is 2xx.
func (s Status) OK() bool { return s >= 200 && s < 300 }

// Description returns the standard reason phrase.
func (s Status) Description() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusCreated:
		return "Created"
	case StatusNoContent:
		return "No Content"
	case StatusBadRequest:
		return "Bad Request"
	case StatusUnauthorized:
		return "Unauthorized"
	case StatusForbidden:
		return "Forbidden"
	case StatusNotFound:
		return "Not Found"
	case StatusMethodNotAllowed:
		return "Method Not Allowed"
	case StatusConflict:
		return "Conflict"
	case StatusInternal:
		return "Internal Server Error"
	}
	return fmt.Sprintf("Status %d", int(s))
}

// Result is the outcome of one REST operation: a status code, a short
// human message on failure, and the created identifier for POST.
type Result struct {
	Status    Status
	Message   string
	CreatedID uint64
}

// IsOK reports whether the operation succeeded.
func (r Result) IsOK() bool { return r.Status.OK() }

// Error renders the result as an error string; empty when successful.
func (r Result) Error() string {
	if r.IsOK() {
		return ""
	}
	if r.Message != "" {
		return fmt.Sprintf("%d %s: %s", int(r.Status), r.Status.Description(), r.Message)
	}
	return fmt.Sprintf("%d %s", int(r.Status), r.Status.Description())
}

// OK is the plain success result.
func OK() Result { return Result{Status: StatusOK} }

// Created is the success result of a POST, carrying the new id.
func Created(id uint64) Result { return Result{Status: StatusCreated, CreatedID: id} }

// Fail builds a failure result.
func Fail(s Status, msg string) Result { return Result{Status: s, Message: msg} }

// Failf builds a failure result with a formatted message.
func Failf(s Status, format string, args ...any) Result {
	return Result{Status: s, Message: fmt.Sprintf(format, args...)}
}
