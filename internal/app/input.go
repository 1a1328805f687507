package app

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/neomorfeo/budgetiq/internal/domain"
)

// BudgetInput is the full payload for creating or updating a budget.
type BudgetInput struct {
	CustomerID         string          `json:"customer_id" validate:"required,max=64"`
	Description        string          `json:"description" validate:"max=2000"`
	DueDate            *time.Time      `json:"due_date"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage" validate:"decimal_gte=0,decimal_lte=100"`
	// Services nil keeps the current tree on update; an empty slice clears it.
	Services []ServiceInput `json:"services" validate:"omitempty,dive"`
	// Revision, when set on update, must match the stored revision.
	Revision *int `json:"revision"`
}

// ServiceInput describes one service. An empty ID creates a new service.
type ServiceInput struct {
	ID          string      `json:"id"`
	CategoryID  string      `json:"category_id" validate:"max=64"`
	Description string      `json:"description" validate:"required,max=500"`
	Items       []ItemInput `json:"items" validate:"dive"`
}

// ItemInput describes one line item. An empty ID creates a new item.
type ItemInput struct {
	ID                 string          `json:"id"`
	ProductID          string          `json:"product_id" validate:"max=64"`
	Description        string          `json:"description" validate:"required,max=500"`
	LongDescription    string          `json:"long_description" validate:"max=5000"`
	Quantity           decimal.Decimal `json:"quantity" validate:"decimal_gt=0"`
	Unit               string          `json:"unit" validate:"required,max=20"`
	UnitPrice          decimal.Decimal `json:"unit_price" validate:"decimal_gte=0"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage" validate:"decimal_gte=0,decimal_lte=100"`
	TaxPercentage      decimal.Decimal `json:"tax_percentage" validate:"decimal_gte=0,decimal_lte=100"`
}

func newInputValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Decimals reach the validator as their exact string form and are
	// compared with the decimal_* tags, never through float64.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})
	for tag, ok := range decimalChecks {
		_ = v.RegisterValidation(tag, decimalValidation(ok))
	}

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	return v
}

// decimalChecks maps each decimal_* tag to the accepted results of
// value.Cmp(param).
var decimalChecks = map[string]func(cmp int) bool{
	"decimal_gt":  func(cmp int) bool { return cmp > 0 },
	"decimal_gte": func(cmp int) bool { return cmp >= 0 },
	"decimal_lte": func(cmp int) bool { return cmp <= 0 },
}

func decimalValidation(ok func(cmp int) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		value, err := decimal.NewFromString(fl.Field().String())
		if err != nil {
			return false
		}
		bound, err := decimal.NewFromString(fl.Param())
		if err != nil {
			return false
		}
		return ok(value.Cmp(bound))
	}
}

// validateInput runs the struct tags of in and reports every failing field.
func (s *BudgetService) validateInput(in BudgetInput) error {
	err := s.inputs.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating input: %w", err)
	}

	fields := make([]domain.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, domain.FieldError{
			Field:   fieldPath(fe.Namespace()),
			Message: fieldMessage(fe),
		})
	}
	return &domain.ValidationError{Message: "invalid budget", Fields: fields}
}

// fieldPath drops the struct name from a validator namespace, turning
// "BudgetInput.services[0].items[1].quantity" into "services[0].items[1].quantity".
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "decimal_gt":
		return "must be greater than " + fe.Param()
	case "decimal_gte":
		return "must be at least " + fe.Param()
	case "decimal_lte":
		return "must be at most " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}

// applyScalars copies the scalar fields of in onto b.
func applyScalars(b *domain.Budget, in BudgetInput) {
	b.CustomerID = in.CustomerID
	b.Description = in.Description
	b.DiscountPercentage = in.DiscountPercentage
	b.DueDate = nil
	if in.DueDate != nil {
		due := in.DueDate.UTC()
		due = time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
		b.DueDate = &due
	}
}
