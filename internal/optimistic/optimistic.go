// Package optimistic runs user-triggered mutations as reversible commands:
// the local edit is applied first, the remote write follows, and a failed
// write undoes exactly what was applied.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Command is one mutation. Apply edits local state and returns its undo; it
// may be nil for writes with no local preview. Remote performs the write.
type Command struct {
	Action string
	Apply  func() (undo func())
	Remote func(ctx context.Context) error
}

// Error is a failed remote write, phrased for the user.
type Error struct {
	Action string
	Err    error
}

func (e *Error) Error() string { return fmt.Sprintf("Failed to %s: %v", e.Action, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// ValidationError is an input or permission problem caught before any
// remote call. Field names the offending input when there is one; Err is
// the module's sentinel, if any.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string { return e.Message }
func (e *ValidationError) Unwrap() error { return e.Err }

// Reject wraps a sentinel error as a ValidationError.
func Reject(err error) error {
	return &ValidationError{Message: err.Error(), Err: err}
}

// Invalid returns a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Invalidf formats a ValidationError without a field.
func Invalidf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Mutator executes commands. Mutations are not serialized; two in flight
// resolve in whatever order the store answers.
type Mutator struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Mutator {
	return &Mutator{logger: logger}
}

// Do applies cmd locally, performs the remote write and undoes the local edit
// if the write fails. Validation errors are returned as is; other failures
// come back as *Error.
func (m *Mutator) Do(ctx context.Context, cmd Command) error {
	var undo func()
	if cmd.Apply != nil {
		undo = cmd.Apply()
	}
	if cmd.Remote == nil {
		return nil
	}
	err := cmd.Remote(ctx)
	if err == nil {
		return nil
	}
	if undo != nil {
		undo()
	}
	if IsValidation(err) {
		return err
	}
	m.logger.Warn("mutation failed", "action", cmd.Action, "error", err)
	return &Error{Action: cmd.Action, Err: err}
}
