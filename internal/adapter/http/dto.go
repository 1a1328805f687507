package http

import (
	"fmt"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shopspring/decimal"

	"github.com/neomorfeo/budgetiq/internal/app"
	"github.com/neomorfeo/budgetiq/internal/domain"
)

const (
	timestampFormat = "2006-01-02T15:04:05Z"
	dateFormat      = "2006-01-02"
)

// ActorHeaders identify the caller. An authentication proxy in front of the
// service is expected to set them.
type ActorHeaders struct {
	TenantID string `header:"X-Tenant-ID" doc:"Tenant on whose behalf the request is made"`
	UserID   string `header:"X-User-ID" doc:"Authenticated user"`
}

func (h ActorHeaders) actor() domain.Actor {
	return domain.Actor{TenantID: h.TenantID, UserID: h.UserID}
}

// --- Responses ---

// ItemResponse is the API representation of a service item. Amounts are
// decimal strings.
type ItemResponse struct {
	ID                 string `json:"id"`
	ProductID          string `json:"product_id,omitempty"`
	Description        string `json:"description"`
	LongDescription    string `json:"long_description,omitempty"`
	Quantity           string `json:"quantity"`
	Unit               string `json:"unit"`
	UnitPrice          string `json:"unit_price"`
	DiscountPercentage string `json:"discount_percentage"`
	TaxPercentage      string `json:"tax_percentage"`
	Total              string `json:"total"`
}

// ServiceResponse is the API representation of a service.
type ServiceResponse struct {
	ID          string         `json:"id"`
	CategoryID  string         `json:"category_id,omitempty"`
	Description string         `json:"description"`
	Total       string         `json:"total"`
	Items       []ItemResponse `json:"items"`
}

// BudgetResponse is the API representation of a budget.
type BudgetResponse struct {
	ID                 string            `json:"id" doc:"Unique identifier"`
	Code               string            `json:"code" doc:"Tenant-unique code, e.g. ORC2026100001"`
	CustomerID         string            `json:"customer_id"`
	Status             string            `json:"status" doc:"Lifecycle state"`
	Description        string            `json:"description"`
	DueDate            string            `json:"due_date,omitempty" doc:"Due date (YYYY-MM-DD)"`
	DiscountPercentage string            `json:"discount_percentage"`
	Subtotal           string            `json:"subtotal"`
	DiscountAmount     string            `json:"discount_amount"`
	Total              string            `json:"total"`
	Revision           int               `json:"revision" doc:"Optimistic locking token for updates"`
	Services           []ServiceResponse `json:"services"`
	CreatedAt          string            `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
	UpdatedAt          string            `json:"updated_at" doc:"Last update timestamp (ISO 8601)"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(domain.DisplayPlaces)
}

func toBudgetResponse(b domain.Budget) BudgetResponse {
	resp := BudgetResponse{
		ID:                 b.ID,
		Code:               b.Code,
		CustomerID:         b.CustomerID,
		Status:             string(b.Status),
		Description:        b.Description,
		DiscountPercentage: b.DiscountPercentage.String(),
		Subtotal:           money(b.Subtotal),
		DiscountAmount:     money(b.DiscountAmount),
		Total:              money(b.Total),
		Revision:           b.Revision,
		Services:           make([]ServiceResponse, 0, len(b.Services)),
		CreatedAt:          b.CreatedAt.UTC().Format(timestampFormat),
		UpdatedAt:          b.UpdatedAt.UTC().Format(timestampFormat),
	}
	if b.DueDate != nil {
		resp.DueDate = b.DueDate.Format(dateFormat)
	}
	for _, s := range b.Services {
		sr := ServiceResponse{
			ID:          s.ID,
			CategoryID:  s.CategoryID,
			Description: s.Description,
			Total:       money(s.Total),
			Items:       make([]ItemResponse, 0, len(s.Items)),
		}
		for _, it := range s.Items {
			sr.Items = append(sr.Items, ItemResponse{
				ID:                 it.ID,
				ProductID:          it.ProductID,
				Description:        it.Description,
				LongDescription:    it.LongDescription,
				Quantity:           it.Quantity.String(),
				Unit:               it.Unit,
				UnitPrice:          it.UnitPrice.String(),
				DiscountPercentage: it.DiscountPercentage.String(),
				TaxPercentage:      it.TaxPercentage.String(),
				Total:              money(it.Total),
			})
		}
		resp.Services = append(resp.Services, sr)
	}
	return resp
}

// VersionResponse summarizes a stored version.
type VersionResponse struct {
	ID        string `json:"id"`
	Sequence  int    `json:"sequence"`
	Note      string `json:"note"`
	AuthorID  string `json:"author_id"`
	Status    string `json:"status" doc:"Budget status at capture time"`
	Total     string `json:"total" doc:"Budget total at capture time"`
	CreatedAt string `json:"created_at"`
}

func toVersionResponse(v domain.BudgetVersion) VersionResponse {
	return VersionResponse{
		ID:        v.ID,
		Sequence:  v.Sequence,
		Note:      v.Note,
		AuthorID:  v.AuthorID,
		Status:    string(v.Snapshot.Status),
		Total:     money(v.Snapshot.Total),
		CreatedAt: v.CreatedAt.UTC().Format(timestampFormat),
	}
}

// HistoryResponse is one action history entry.
type HistoryResponse struct {
	Action    string `json:"action"`
	OldStatus string `json:"old_status,omitempty"`
	NewStatus string `json:"new_status,omitempty"`
	ActorID   string `json:"actor_id"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toHistoryResponse(e domain.ActionEntry) HistoryResponse {
	return HistoryResponse{
		Action:    string(e.Action),
		OldStatus: string(e.OldStatus),
		NewStatus: string(e.NewStatus),
		ActorID:   e.ActorID,
		Note:      e.Note,
		CreatedAt: e.CreatedAt.UTC().Format(timestampFormat),
	}
}

// BulkResponse reports a best-effort batch.
type BulkResponse struct {
	Succeeded []string          `json:"succeeded"`
	Failed    []BulkFailureBody `json:"failed"`
}

// BulkFailureBody describes one budget of a batch that was not changed.
type BulkFailureBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
}

func toBulkResponse(o app.BulkOutcome) BulkResponse {
	resp := BulkResponse{
		Succeeded: o.Succeeded,
		Failed:    make([]BulkFailureBody, 0, len(o.Failed)),
	}
	for _, f := range o.Failed {
		resp.Failed = append(resp.Failed, BulkFailureBody{Code: f.Code, Message: f.Message, Category: string(f.Category)})
	}
	return resp
}

// --- Requests ---

// ItemBody is one line item in a create or update payload.
type ItemBody struct {
	ID                 string `json:"id,omitempty" doc:"Existing item to keep; omit to add a new one"`
	ProductID          string `json:"product_id,omitempty"`
	Description        string `json:"description"`
	LongDescription    string `json:"long_description,omitempty"`
	Quantity           string `json:"quantity" doc:"Decimal string" example:"2"`
	Unit               string `json:"unit" example:"h"`
	UnitPrice          string `json:"unit_price" doc:"Decimal string" example:"50.00"`
	DiscountPercentage string `json:"discount_percentage,omitempty" doc:"Decimal string, 0-100"`
	TaxPercentage      string `json:"tax_percentage,omitempty" doc:"Decimal string, 0-100"`
}

// ServiceBody is one service in a create or update payload.
type ServiceBody struct {
	ID          string     `json:"id,omitempty" doc:"Existing service to keep; omit to add a new one"`
	CategoryID  string     `json:"category_id,omitempty"`
	Description string     `json:"description"`
	Items       []ItemBody `json:"items,omitempty"`
}

// BudgetBody is the full create or update payload.
type BudgetBody struct {
	CustomerID         string        `json:"customer_id"`
	Description        string        `json:"description,omitempty"`
	DueDate            string        `json:"due_date,omitempty" doc:"YYYY-MM-DD"`
	DiscountPercentage string        `json:"discount_percentage,omitempty" doc:"Decimal string, 0-100"`
	Services           []ServiceBody `json:"services,omitempty" doc:"Omit on update to keep the current services"`
	Revision           *int          `json:"revision,omitempty" doc:"Revision the update is based on"`
}

// decimalParser collects conversion failures as huma error details.
type decimalParser struct {
	details []error
}

func (p *decimalParser) parse(location, value string) decimal.Decimal {
	if value == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		p.details = append(p.details, &huma.ErrorDetail{
			Location: location,
			Message:  "must be a decimal number",
			Value:    value,
		})
		return decimal.Zero
	}
	return d
}

// toInput converts the payload. Numeric validation happens in the service;
// only values that cannot be parsed at all are rejected here.
func (b BudgetBody) toInput() (app.BudgetInput, []error) {
	var p decimalParser
	in := app.BudgetInput{
		CustomerID:         b.CustomerID,
		Description:        b.Description,
		DiscountPercentage: p.parse("body.discount_percentage", b.DiscountPercentage),
		Revision:           b.Revision,
	}
	if b.DueDate != "" {
		due, err := time.Parse(dateFormat, b.DueDate)
		if err != nil {
			p.details = append(p.details, &huma.ErrorDetail{
				Location: "body.due_date",
				Message:  "must be a date (YYYY-MM-DD)",
				Value:    b.DueDate,
			})
		} else {
			in.DueDate = &due
		}
	}
	if b.Services != nil {
		in.Services = make([]app.ServiceInput, 0, len(b.Services))
	}
	for i, s := range b.Services {
		si := app.ServiceInput{
			ID:          s.ID,
			CategoryID:  s.CategoryID,
			Description: s.Description,
			Items:       make([]app.ItemInput, 0, len(s.Items)),
		}
		for j, it := range s.Items {
			loc := fmt.Sprintf("body.services[%d].items[%d].", i, j)
			si.Items = append(si.Items, app.ItemInput{
				ID:                 it.ID,
				ProductID:          it.ProductID,
				Description:        it.Description,
				LongDescription:    it.LongDescription,
				Quantity:           p.parse(loc+"quantity", it.Quantity),
				Unit:               it.Unit,
				UnitPrice:          p.parse(loc+"unit_price", it.UnitPrice),
				DiscountPercentage: p.parse(loc+"discount_percentage", it.DiscountPercentage),
				TaxPercentage:      p.parse(loc+"tax_percentage", it.TaxPercentage),
			})
		}
		in.Services = append(in.Services, si)
	}
	return in, p.details
}
