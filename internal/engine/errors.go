package engine

import (
	"fmt"
	"strings"

	"boardline/internal/storage"
)

// NotFoundError reports that a referenced entity does not exist. It unwraps
// to storage.ErrNotFound so errors.Is works across layers.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return storage.ErrNotFound }

func notFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// InvalidTransitionError reports a status change the board's workflow does
// not permit.
type InvalidTransitionError struct {
	From      string
	Attempted string
	Allowed   []string
}

func (e *InvalidTransitionError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("invalid transition from %q to %q: %q is terminal", e.From, e.Attempted, e.From)
	}
	return fmt.Sprintf("invalid transition from %q to %q (allowed: %s)", e.From, e.Attempted, strings.Join(e.Allowed, ", "))
}

// ValidationError reports malformed input rejected before any write.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
