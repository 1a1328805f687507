package domain_test

import (
	"testing"

	"github.com/neomorfeo/budgetiq/internal/domain"
)

func TestCodeConflictError_Error(t *testing.T) {
	err := &domain.CodeConflictError{Code: "ORC2026100001"}
	want := `budget code "ORC2026100001" is already in use`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestTransitionError_Error(t *testing.T) {
	err := &domain.TransitionError{
		Action:  domain.ActionApprove,
		Current: domain.StatusRejected,
	}
	want := `action "approve" is not valid from status "rejected"`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestTransitionError_AlreadyInTarget(t *testing.T) {
	err := &domain.TransitionError{
		Action:  domain.ActionApprove,
		Current: domain.StatusApproved,
	}
	want := "budget is already approved"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestValidationError_WithFields(t *testing.T) {
	err := &domain.ValidationError{
		Message: "invalid budget",
		Fields: []domain.FieldError{
			{Field: "customer_id", Message: "is required"},
			{Field: "services[0].items[0].quantity", Message: "must be greater than 0"},
		},
	}
	want := "invalid budget (customer_id: is required; services[0].items[0].quantity: must be greater than 0)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
