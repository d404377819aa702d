package store

import (
	"fmt"

	"github.com/google/uuid"
)

// NotFoundError indicates the resource was not found (or is not owned by the caller).
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ValidationError indicates a client-side validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// ConflictError indicates a uniqueness/conflict violation.
type ConflictError struct {
	Message string
	Code    string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// SessionClosedError is returned when a turn is appended to a completed session.
type SessionClosedError struct {
	SessionID uuid.UUID
}

func (e *SessionClosedError) Error() string {
	return fmt.Sprintf("session %s is completed and accepts no new turns", e.SessionID)
}
