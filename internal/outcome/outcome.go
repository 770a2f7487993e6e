// Package outcome models the result of a call to an unreliable collaborator
// (calendar, AI inference) as an explicit variant instead of an error path.
package outcome

import "errors"

// Status classifies how a collaborator call ended.
type Status string

const (
	StatusOK          Status = "ok"
	StatusUnavailable Status = "unavailable"
	StatusFailed      Status = "failed"
)

// Result carries a value together with the call status. Reason is set for
// unavailable and failed results.
type Result[T any] struct {
	Value  T
	Status Status
	Reason error
}

// OK wraps a successful value.
func OK[T any](v T) Result[T] {
	return Result[T]{Value: v, Status: StatusOK}
}

// Unavailable reports a collaborator that could not be reached or is not configured.
func Unavailable[T any](reason error) Result[T] {
	if reason == nil {
		reason = errors.New("service unavailable")
	}
	return Result[T]{Status: StatusUnavailable, Reason: reason}
}

// Failed reports a collaborator that answered but rejected the call or answered garbage.
func Failed[T any](reason error) Result[T] {
	if reason == nil {
		reason = errors.New("call failed")
	}
	return Result[T]{Status: StatusFailed, Reason: reason}
}

// Ok reports whether the call succeeded.
func (r Result[T]) Ok() bool {
	return r.Status == StatusOK
}

// Err returns the reason for a non-ok result, or nil.
func (r Result[T]) Err() error {
	if r.Status == StatusOK {
		return nil
	}
	return r.Reason
}
