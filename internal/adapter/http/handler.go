package http

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/budgetiq/internal/app"
	"github.com/neomorfeo/budgetiq/internal/domain"
)

// --- Inputs and outputs ---

type BudgetOutput struct {
	Body BudgetResponse
}

type CreateBudgetInput struct {
	ActorHeaders
	Body BudgetBody
}

type CodeInput struct {
	ActorHeaders
	Code string `path:"code" doc:"Budget code"`
}

type UpdateBudgetInput struct {
	ActorHeaders
	Code string `path:"code" doc:"Budget code"`
	Body BudgetBody
}

type ListBudgetsInput struct {
	ActorHeaders
	Status    string `query:"status" required:"false" doc:"Filter by status"`
	DueBefore string `query:"due_before" required:"false" doc:"Only budgets due before this date (YYYY-MM-DD)"`
	Limit     int    `query:"limit" required:"false" default:"50" minimum:"1" maximum:"200" doc:"Max results"`
	Offset    int    `query:"offset" required:"false" default:"0" minimum:"0" doc:"Pagination offset"`
}

type ListBudgetsOutput struct {
	Body []BudgetResponse
}

type ChangeStatusInput struct {
	ActorHeaders
	Code string `path:"code" doc:"Budget code"`
	Body struct {
		Status         string `json:"status" enum:"pending,approved,rejected,cancelled,finalized,completed,expired" doc:"Target status"`
		Comment        string `json:"comment,omitempty" maxLength:"2000"`
		ExpectedStatus string `json:"expected_status,omitempty" doc:"Fail unless the budget is still in this status"`
	}
}

type BulkStatusInput struct {
	ActorHeaders
	Body struct {
		Codes   []string `json:"codes" minItems:"1" maxItems:"100"`
		Status  string   `json:"status" enum:"pending,approved,rejected,cancelled,finalized,completed,expired"`
		Comment string   `json:"comment,omitempty" maxLength:"2000"`
	}
}

type BulkOutput struct {
	Body BulkResponse
}

type VersionsOutput struct {
	Body []VersionResponse
}

type RestoreInput struct {
	ActorHeaders
	Code      string `path:"code" doc:"Budget code"`
	VersionID string `path:"versionID" doc:"Version to restore"`
}

type HistoryOutput struct {
	Body []HistoryResponse
}

type DocumentOutput struct {
	Body struct {
		Path        string `json:"path"`
		ContentType string `json:"content_type"`
	}
}

// Register adds all budget API routes to the Huma API.
func Register(api huma.API, svc *app.BudgetService) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-budget",
		Method:        http.MethodPost,
		Path:          "/api/v1/budgets",
		Summary:       "Create a draft budget",
		Tags:          []string{"Budgets"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateBudgetInput) (*BudgetOutput, error) {
		in, details := input.Body.toInput()
		if len(details) > 0 {
			return nil, huma.Error422UnprocessableEntity("invalid budget", details...)
		}
		return budgetOutput(svc.Create(ctx, input.actor(), in))
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-budgets",
		Method:      http.MethodGet,
		Path:        "/api/v1/budgets",
		Summary:     "List budgets",
		Tags:        []string{"Budgets"},
	}, func(ctx context.Context, input *ListBudgetsInput) (*ListBudgetsOutput, error) {
		filter := domain.ListFilter{Limit: input.Limit, Offset: input.Offset}
		if input.Status != "" {
			s := domain.Status(input.Status)
			filter.Status = &s
		}
		if input.DueBefore != "" {
			due, err := time.Parse(dateFormat, input.DueBefore)
			if err != nil {
				return nil, huma.Error422UnprocessableEntity("invalid filter", &huma.ErrorDetail{
					Location: "query.due_before",
					Message:  "must be a date (YYYY-MM-DD)",
					Value:    input.DueBefore,
				})
			}
			filter.DueBefore = &due
		}

		r := svc.List(ctx, input.actor(), filter)
		if !r.Success {
			return nil, failure(r.Category, r.Message, r.Fields, "query.")
		}
		resp := make([]BudgetResponse, len(*r.Data))
		for i, b := range *r.Data {
			resp[i] = toBudgetResponse(b)
		}
		return &ListBudgetsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-budget",
		Method:      http.MethodGet,
		Path:        "/api/v1/budgets/{code}",
		Summary:     "Get a budget by code",
		Tags:        []string{"Budgets"},
	}, func(ctx context.Context, input *CodeInput) (*BudgetOutput, error) {
		return budgetOutput(svc.Get(ctx, input.actor(), input.Code))
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-budget",
		Method:      http.MethodPut,
		Path:        "/api/v1/budgets/{code}",
		Summary:     "Replace the content of an editable budget",
		Tags:        []string{"Budgets"},
	}, func(ctx context.Context, input *UpdateBudgetInput) (*BudgetOutput, error) {
		in, details := input.Body.toInput()
		if len(details) > 0 {
			return nil, huma.Error422UnprocessableEntity("invalid budget", details...)
		}
		return budgetOutput(svc.Update(ctx, input.actor(), input.Code, in))
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-budget",
		Method:        http.MethodDelete,
		Path:          "/api/v1/budgets/{code}",
		Summary:       "Delete a budget",
		Tags:          []string{"Budgets"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *CodeInput) (*struct{}, error) {
		r := svc.Delete(ctx, input.actor(), input.Code)
		if !r.Success {
			return nil, failure(r.Category, r.Message, r.Fields, "body.")
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-budget-status",
		Method:      http.MethodPost,
		Path:        "/api/v1/budgets/{code}/status",
		Summary:     "Move a budget to another status",
		Tags:        []string{"Budgets"},
	}, func(ctx context.Context, input *ChangeStatusInput) (*BudgetOutput, error) {
		req := app.StatusChange{
			Code:    input.Code,
			Target:  domain.Status(input.Body.Status),
			Comment: input.Body.Comment,
		}
		if input.Body.ExpectedStatus != "" {
			expected := domain.Status(input.Body.ExpectedStatus)
			req.ExpectedStatus = &expected
		}
		return budgetOutput(svc.ChangeStatus(ctx, input.actor(), req))
	})

	huma.Register(api, huma.Operation{
		OperationID: "bulk-change-budget-status",
		Method:      http.MethodPost,
		Path:        "/api/v1/budgets/status",
		Summary:     "Move several budgets to another status",
		Description: "Each budget is changed in its own transaction; failures are reported per code.",
		Tags:        []string{"Budgets"},
	}, func(ctx context.Context, input *BulkStatusInput) (*BulkOutput, error) {
		r := svc.BulkUpdateStatus(ctx, input.actor(), input.Body.Codes, domain.Status(input.Body.Status), input.Body.Comment)
		if !r.Success {
			return nil, failure(r.Category, r.Message, r.Fields, "body.")
		}
		return &BulkOutput{Body: toBulkResponse(*r.Data)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "expire-overdue-budgets",
		Method:      http.MethodPost,
		Path:        "/api/v1/budgets/expire-overdue",
		Summary:     "Expire pending budgets past their due date",
		Tags:        []string{"Budgets"},
	}, func(ctx context.Context, input *struct{ ActorHeaders }) (*BulkOutput, error) {
		r := svc.ExpireOverdue(ctx, input.actor())
		if !r.Success {
			return nil, failure(r.Category, r.Message, r.Fields, "body.")
		}
		return &BulkOutput{Body: toBulkResponse(*r.Data)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "duplicate-budget",
		Method:        http.MethodPost,
		Path:          "/api/v1/budgets/{code}/duplicate",
		Summary:       "Copy a budget into a new draft",
		Tags:          []string{"Budgets"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CodeInput) (*BudgetOutput, error) {
		return budgetOutput(svc.Duplicate(ctx, input.actor(), input.Code))
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-budget-versions",
		Method:      http.MethodGet,
		Path:        "/api/v1/budgets/{code}/versions",
		Summary:     "List the versions of a budget",
		Tags:        []string{"Versions"},
	}, func(ctx context.Context, input *CodeInput) (*VersionsOutput, error) {
		r := svc.ListVersions(ctx, input.actor(), input.Code)
		if !r.Success {
			return nil, failure(r.Category, r.Message, r.Fields, "body.")
		}
		resp := make([]VersionResponse, len(*r.Data))
		for i, v := range *r.Data {
			resp[i] = toVersionResponse(v)
		}
		return &VersionsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-budget-version",
		Method:      http.MethodPost,
		Path:        "/api/v1/budgets/{code}/versions/{versionID}/restore",
		Summary:     "Restore the content of a previous version",
		Tags:        []string{"Versions"},
	}, func(ctx context.Context, input *RestoreInput) (*BudgetOutput, error) {
		return budgetOutput(svc.RestoreVersion(ctx, input.actor(), input.Code, input.VersionID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "budget-history",
		Method:      http.MethodGet,
		Path:        "/api/v1/budgets/{code}/history",
		Summary:     "List the action history of a budget",
		Tags:        []string{"Budgets"},
	}, func(ctx context.Context, input *CodeInput) (*HistoryOutput, error) {
		r := svc.History(ctx, input.actor(), input.Code)
		if !r.Success {
			return nil, failure(r.Category, r.Message, r.Fields, "body.")
		}
		resp := make([]HistoryResponse, len(*r.Data))
		for i, e := range *r.Data {
			resp[i] = toHistoryResponse(e)
		}
		return &HistoryOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "render-budget-document",
		Method:      http.MethodPost,
		Path:        "/api/v1/budgets/{code}/document",
		Summary:     "Render a budget document",
		Tags:        []string{"Budgets"},
	}, func(ctx context.Context, input *CodeInput) (*DocumentOutput, error) {
		r := svc.RenderDocument(ctx, input.actor(), input.Code)
		if !r.Success {
			return nil, failure(r.Category, r.Message, r.Fields, "body.")
		}
		out := &DocumentOutput{}
		out.Body.Path = r.Data.Path
		out.Body.ContentType = r.Data.ContentType
		return out, nil
	})
}

func budgetOutput(r app.Result[domain.Budget]) (*BudgetOutput, error) {
	if !r.Success {
		return nil, failure(r.Category, r.Message, r.Fields, "body.")
	}
	return &BudgetOutput{Body: toBudgetResponse(*r.Data)}, nil
}

// actorHeaders maps actor field names to the headers that carry them.
var actorHeaders = map[string]string{
	"tenant_id": "header.X-Tenant-ID",
	"user_id":   "header.X-User-ID",
}

// failure translates a failed result to a Huma HTTP error. Field details
// are located under prefix unless they name the actor.
func failure(category app.Category, message string, fields []domain.FieldError, prefix string) error {
	switch category {
	case app.CategoryValidation:
		details := make([]error, 0, len(fields))
		for _, f := range fields {
			loc, ok := actorHeaders[f.Field]
			if !ok {
				loc = prefix + f.Field
			}
			details = append(details, &huma.ErrorDetail{Location: loc, Message: f.Message})
		}
		return huma.Error422UnprocessableEntity(message, details...)
	case app.CategoryNotFound:
		return huma.Error404NotFound(message)
	case app.CategoryForbidden:
		return huma.Error403Forbidden(message)
	case app.CategoryConflict:
		return huma.Error409Conflict(message)
	default:
		return huma.Error500InternalServerError("internal server error")
	}
}
