package app

import (
	"errors"

	"github.com/neomorfeo/budgetiq/internal/domain"
)

// Category is the machine-readable class of a failed operation.
type Category string

const (
	CategoryValidation Category = "VALIDATION_ERROR"
	CategoryNotFound   Category = "NOT_FOUND"
	CategoryForbidden  Category = "FORBIDDEN"
	CategoryConflict   Category = "CONFLICT"
	CategoryInternal   Category = "INTERNAL"
)

// internalMessage replaces the message of unexpected failures so that
// persistence details never reach the caller.
const internalMessage = "internal error"

// Result is the uniform outcome of every BudgetService operation.
// Data is nil on failure; Category is empty on success.
type Result[T any] struct {
	Success  bool
	Data     *T
	Message  string
	Category Category
	Fields   []domain.FieldError
	// Err is the underlying error, for callers that need errors.Is/As.
	Err error
}

func succeed[T any](data T, message string) Result[T] {
	return Result[T]{Success: true, Data: &data, Message: message}
}

func failWith[T any](err error) Result[T] {
	r := Result[T]{Category: Categorize(err), Message: err.Error(), Err: err}
	if r.Category == CategoryInternal {
		r.Message = internalMessage
	}
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		r.Message = vErr.Message
		r.Fields = vErr.Fields
	}
	return r
}

// Categorize maps an error returned by the domain or an adapter to its
// result category.
func Categorize(err error) Category {
	var (
		validation   *domain.ValidationError
		transition   *domain.TransitionError
		conflict     *domain.ConflictError
		codeConflict *domain.CodeConflictError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation), errors.As(err, &transition):
		return CategoryValidation
	case errors.Is(err, domain.ErrBudgetNotFound), errors.Is(err, domain.ErrVersionNotFound):
		return CategoryNotFound
	case errors.Is(err, domain.ErrForbidden):
		return CategoryForbidden
	case errors.As(err, &conflict), errors.As(err, &codeConflict):
		return CategoryConflict
	default:
		return CategoryInternal
	}
}
