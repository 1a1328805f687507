package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BudgetVersion is an immutable snapshot of a budget taken on a committed
// mutation. Sequence numbers are strictly increasing per budget.
type BudgetVersion struct {
	ID        string
	TenantID  string
	BudgetID  string
	Sequence  int
	Note      string
	Snapshot  Snapshot
	AuthorID  string
	CreatedAt time.Time
}

// Snapshot is the by-value copy of an aggregate stored in a version.
type Snapshot struct {
	Code               string            `json:"code"`
	CustomerID         string            `json:"customer_id"`
	Status             Status            `json:"status"`
	Description        string            `json:"description"`
	DueDate            *time.Time        `json:"due_date,omitempty"`
	DiscountPercentage decimal.Decimal   `json:"discount_percentage"`
	Subtotal           decimal.Decimal   `json:"subtotal"`
	DiscountAmount     decimal.Decimal   `json:"discount_amount"`
	Total              decimal.Decimal   `json:"total"`
	Services           []ServiceSnapshot `json:"services"`
}

// ServiceSnapshot is the by-value copy of a service.
type ServiceSnapshot struct {
	ID          string          `json:"id"`
	CategoryID  string          `json:"category_id"`
	Description string          `json:"description"`
	Total       decimal.Decimal `json:"total"`
	Items       []ItemSnapshot  `json:"items"`
}

// ItemSnapshot is the by-value copy of a service item.
type ItemSnapshot struct {
	ID                 string          `json:"id"`
	ProductID          string          `json:"product_id,omitempty"`
	Description        string          `json:"description"`
	LongDescription    string          `json:"long_description,omitempty"`
	Quantity           decimal.Decimal `json:"quantity"`
	Unit               string          `json:"unit"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	TaxPercentage      decimal.Decimal `json:"tax_percentage"`
	Total              decimal.Decimal `json:"total"`
}

// TakeSnapshot copies the current state of b.
func TakeSnapshot(b Budget) Snapshot {
	snap := Snapshot{
		Code:               b.Code,
		CustomerID:         b.CustomerID,
		Status:             b.Status,
		Description:        b.Description,
		DiscountPercentage: b.DiscountPercentage,
		Subtotal:           b.Subtotal,
		DiscountAmount:     b.DiscountAmount,
		Total:              b.Total,
		Services:           make([]ServiceSnapshot, 0, len(b.Services)),
	}
	if b.DueDate != nil {
		due := *b.DueDate
		snap.DueDate = &due
	}
	for _, s := range b.Services {
		ss := ServiceSnapshot{
			ID:          s.ID,
			CategoryID:  s.CategoryID,
			Description: s.Description,
			Total:       s.Total,
			Items:       make([]ItemSnapshot, 0, len(s.Items)),
		}
		for _, it := range s.Items {
			ss.Items = append(ss.Items, ItemSnapshot{
				ID:                 it.ID,
				ProductID:          it.ProductID,
				Description:        it.Description,
				LongDescription:    it.LongDescription,
				Quantity:           it.Quantity,
				Unit:               it.Unit,
				UnitPrice:          it.UnitPrice,
				DiscountPercentage: it.DiscountPercentage,
				TaxPercentage:      it.TaxPercentage,
				Total:              it.Total,
			})
		}
		snap.Services = append(snap.Services, ss)
	}
	return snap
}

// ApplyTo overwrites the content of b with the snapshot: customer,
// description, due date, global discount and the whole service tree.
// Status and code are left alone; totals are recomputed.
func (s Snapshot) ApplyTo(b *Budget) {
	b.CustomerID = s.CustomerID
	b.Description = s.Description
	b.DiscountPercentage = s.DiscountPercentage
	b.DueDate = nil
	if s.DueDate != nil {
		due := *s.DueDate
		b.DueDate = &due
	}

	b.Services = make([]Service, 0, len(s.Services))
	for _, ss := range s.Services {
		svc := Service{
			ID:          ss.ID,
			CategoryID:  ss.CategoryID,
			Description: ss.Description,
			Items:       make([]ServiceItem, 0, len(ss.Items)),
		}
		for _, it := range ss.Items {
			svc.Items = append(svc.Items, ServiceItem{
				ID:                 it.ID,
				ProductID:          it.ProductID,
				Description:        it.Description,
				LongDescription:    it.LongDescription,
				Quantity:           it.Quantity,
				Unit:               it.Unit,
				UnitPrice:          it.UnitPrice,
				DiscountPercentage: it.DiscountPercentage,
				TaxPercentage:      it.TaxPercentage,
			})
		}
		b.Services = append(b.Services, svc)
	}
	b.Adopt()
	Recalculate(b)
}
