package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for simple conditions without extra context.
// A budget or version owned by another tenant is reported as not found.
var (
	ErrBudgetNotFound  = errors.New("budget not found")
	ErrVersionNotFound = errors.New("budget version not found")
	ErrForbidden       = errors.New("operation not permitted")
)

// FieldError describes a problem with one input field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError is returned when input or a business guard is rejected.
type ValidationError struct {
	Message string
	Fields  []FieldError
}

// NewValidationError creates a ValidationError without field details.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

// TransitionError is returned when an action is not valid from the current status.
type TransitionError struct {
	Action  Action
	Current Status
}

func (e *TransitionError) Error() string {
	if e.Action.Target() == e.Current {
		return fmt.Sprintf("budget is already %s", e.Current)
	}
	return fmt.Sprintf("action %q is not valid from status %q", e.Action, e.Current)
}

// ConflictError is returned when the budget changed since it was read.
type ConflictError struct {
	Code string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("budget %s was modified concurrently", e.Code)
}

// CodeConflictError is returned when a budget code is already taken in the tenant.
type CodeConflictError struct {
	Code string
}

func (e *CodeConflictError) Error() string {
	return fmt.Sprintf("budget code %q is already in use", e.Code)
}
