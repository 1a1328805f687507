package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Actor identifies who issues a command and on behalf of which tenant.
// It is supplied by the caller on every operation, never resolved here.
type Actor struct {
	TenantID string
	UserID   string
}

// Budget is the aggregate root: a quote made of services and their items.
type Budget struct {
	ID                 string
	TenantID           string
	Code               string
	CustomerID         string
	Status             Status
	Description        string
	DueDate            *time.Time
	DiscountPercentage decimal.Decimal

	// Cached totals, recomputed on every save.
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal

	// Revision increases on every committed write; zero means never persisted.
	Revision int

	Services  []Service
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Service is a labeled group of line items within a budget.
type Service struct {
	ID          string
	TenantID    string
	BudgetID    string
	CategoryID  string
	Description string
	Total       decimal.Decimal
	Items       []ServiceItem
}

// ServiceItem is a single priced line.
type ServiceItem struct {
	ID                 string
	TenantID           string
	ServiceID          string
	ProductID          string
	Description        string
	LongDescription    string
	Quantity           decimal.Decimal
	Unit               string
	UnitPrice          decimal.Decimal
	DiscountPercentage decimal.Decimal
	TaxPercentage      decimal.Decimal
	Total              decimal.Decimal
}

// FullBudget is a budget together with its version history.
type FullBudget struct {
	Budget   Budget
	Versions []BudgetVersion
}

// NewBudget creates a budget in the initial draft state.
func NewBudget(id, tenantID, code, customerID string, now time.Time) Budget {
	now = now.UTC()
	return Budget{
		ID:                 id,
		TenantID:           tenantID,
		Code:               code,
		CustomerID:         customerID,
		Status:             StatusDraft,
		DiscountPercentage: decimal.Zero,
		Subtotal:           decimal.Zero,
		DiscountAmount:     decimal.Zero,
		Total:              decimal.Zero,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// HasItems reports whether at least one service carries at least one item.
func (b Budget) HasItems() bool {
	for _, s := range b.Services {
		if len(s.Items) > 0 {
			return true
		}
	}
	return false
}

// ItemCount returns the number of items across all services.
func (b Budget) ItemCount() int {
	n := 0
	for _, s := range b.Services {
		n += len(s.Items)
	}
	return n
}

// IsPastDue reports whether the due date lies before the day of now.
func (b Budget) IsPastDue(now time.Time) bool {
	if b.DueDate == nil {
		return false
	}
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return b.DueDate.UTC().Before(today)
}

// CloneServices returns a deep copy of the service tree.
func CloneServices(in []Service) []Service {
	if in == nil {
		return nil
	}
	out := make([]Service, len(in))
	for i, s := range in {
		out[i] = s
		if s.Items != nil {
			out[i].Items = make([]ServiceItem, len(s.Items))
			copy(out[i].Items, s.Items)
		}
	}
	return out
}

// Adopt rewrites tenant and parent references of the service tree so that it
// belongs to b.
func (b *Budget) Adopt() {
	for i := range b.Services {
		s := &b.Services[i]
		s.TenantID = b.TenantID
		s.BudgetID = b.ID
		for j := range s.Items {
			s.Items[j].TenantID = b.TenantID
			s.Items[j].ServiceID = s.ID
		}
	}
}
