package triage

import (
	"errors"
	"fmt"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/advisor"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrForbidden = errors.New("forbidden")

	// ErrAdvisorUnavailable is the advisor's own sentinel so callers can
	// match it without importing the advisor package.
	ErrAdvisorUnavailable = advisor.ErrUnavailable
)

// ValidationError reports a rejected input field. Nothing has been written
// when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError is returned when the patient's state does not allow the
// operation: a stale expectedVersion, a reused idempotency key, or a
// terminal patient.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Reason }

func (e *ConflictError) Unwrap() error { return ErrConflict }
