package errors

import (
	"fmt"
	"net/http"
)

/*
Kind partitions the task errors a caller can observe.  DeliveryFailure and
StreamFailure never surface on a mutating call: the former is recorded by
the notification dispatcher only, the latter reaches SSE subscribers as a
terminal error event.
*/
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_transition"
	KindInvalidState      Kind = "invalid_state"
	KindDeliveryFailure   Kind = "delivery_failure"
	KindStreamFailure     Kind = "stream_failure"
)

/*
TaskError is the structured error returned by the task lifecycle operations.
*/
type TaskError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

/*
Error implements the error interface for TaskError.
*/
func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

/*
HTTPStatus maps the error kind onto the response status used by the HTTP
surface.
*/
func (e *TaskError) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidTransition, KindInvalidState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Convenience errors for the lifecycle taxonomy.
var (
	ErrTaskNotFound      = &TaskError{Kind: KindNotFound, Message: "task not found"}
	ErrMessageNotFound   = &TaskError{Kind: KindNotFound, Message: "message not found"}
	ErrInvalidTransition = &TaskError{Kind: KindInvalidTransition, Message: "illegal status transition"}
	ErrTerminalTask      = &TaskError{Kind: KindInvalidState, Message: "task is in a terminal state"}
	ErrNotStreamable     = &TaskError{Kind: KindInvalidState, Message: "task has no pending work to stream"}
	ErrDeliveryFailure   = &TaskError{Kind: KindDeliveryFailure, Message: "webhook delivery failed"}
	ErrStreamFailure     = &TaskError{Kind: KindStreamFailure, Message: "generation failed mid-stream"}
)

// WithMessagef creates a *copy* of a TaskError with a formatted message.
// It does not modify the original error variable.
func (e *TaskError) WithMessagef(format string, args ...any) *TaskError {
	newErr := *e
	newErr.Message = fmt.Sprintf(format, args...)
	return &newErr
}

// WithData creates a *copy* of a TaskError carrying event-specific detail.
func (e *TaskError) WithData(data any) *TaskError {
	newErr := *e
	newErr.Data = data
	return &newErr
}
