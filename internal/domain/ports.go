package domain

import (
	"context"
	"time"
)

// Store runs a unit of work inside one database transaction. The transaction
// commits when fn returns nil and rolls back on any error.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx exposes the repositories bound to one transaction.
type Tx interface {
	Budgets() BudgetRepository
	Versions() VersionRepository
	History() HistoryRepository
}

// BudgetRepository persists budget aggregates. Every method filters by tenant.
type BudgetRepository interface {
	Load(ctx context.Context, tenantID, code string) (Budget, error)
	LoadFull(ctx context.Context, tenantID, code string) (FullBudget, error)
	List(ctx context.Context, tenantID string, filter ListFilter) ([]Budget, error)
	LastCode(ctx context.Context, tenantID, prefix string) (string, error)
	Save(ctx context.Context, budget *Budget) error
	Delete(ctx context.Context, tenantID, code string) error
}

// VersionRepository stores immutable snapshots.
type VersionRepository interface {
	Append(ctx context.Context, version *BudgetVersion) error
	Get(ctx context.Context, tenantID, versionID string) (BudgetVersion, error)
	List(ctx context.Context, tenantID, budgetID string) ([]BudgetVersion, error)
}

// HistoryRepository stores the append-only action history.
type HistoryRepository interface {
	Append(ctx context.Context, entry *ActionEntry) error
	List(ctx context.Context, tenantID, budgetID string) ([]ActionEntry, error)
}

// ListFilter holds optional criteria for listing budgets.
type ListFilter struct {
	Status    *Status
	DueBefore *time.Time
	Limit     int
	Offset    int
}

// TransitionValidator checks an action against the state machine and the
// budget guards, returning the destination status.
type TransitionValidator interface {
	Apply(ctx context.Context, budget Budget, action Action, now time.Time) (Status, error)
}

// EventPublisher emits lifecycle events after a transaction commits.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Notifier delivers a templated message. Delivery is fire-and-forget.
type Notifier interface {
	Send(ctx context.Context, templateKey string, recipients []string, data map[string]any) error
}

// Document is a handle to a rendered budget.
type Document struct {
	Path        string
	ContentType string
}

// Renderer turns a committed aggregate into a document.
type Renderer interface {
	Render(ctx context.Context, budget FullBudget) (Document, error)
}

// Operation names what an actor is trying to do, for authorization.
type Operation string

const (
	OpCreate       Operation = "create"
	OpRead         Operation = "read"
	OpUpdate       Operation = "update"
	OpChangeStatus Operation = "change_status"
	OpDuplicate    Operation = "duplicate"
	OpDelete       Operation = "delete"
	OpRestore      Operation = "restore"
	OpRender       Operation = "render"
)

// Authorizer decides whether an actor may perform an operation. It returns
// ErrForbidden (possibly wrapped) to deny.
type Authorizer interface {
	Authorize(ctx context.Context, actor Actor, op Operation) error
}
