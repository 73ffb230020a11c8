package engine

import (
	"errors"
	"fmt"
	"log/slog"
)

// HandlerError reports a failure while handling one event.
// The Run loop logs it and continues with the next event.
type HandlerError struct {
	// Route names the handler ("update", "reset", ...).
	Route string
	// EventID identifies the failing event.
	EventID string
	Err     error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("handle %s event %s: %v", e.Route, e.EventID, e.Err)
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// IsHandlerError checks if err is a HandlerError.
func IsHandlerError(err error) bool {
	var he *HandlerError
	return errors.As(err, &he)
}

// logEventError logs a handler failure with the event's identifying fields.
func logEventError(ev Event, err error) {
	slog.Error("event handling failed", append(ev.logAttrs(), "error", err)...)
}
