package river

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/budgetiq/internal/domain"
)

// Compile-time check: Publisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*Publisher)(nil)

// BudgetEventArgs carries a lifecycle event through the job queue. River
// stores it as JSON; it holds everything the worker needs so that the
// worker never reads the budget tables.
type BudgetEventArgs struct {
	Event          string    `json:"event"`
	TenantID       string    `json:"tenant_id"`
	BudgetID       string    `json:"budget_id"`
	Code           string    `json:"code"`
	CustomerID     string    `json:"customer_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	ActorID        string    `json:"actor_id"`
	Note           string    `json:"note,omitempty"`
	Total          string    `json:"total"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (BudgetEventArgs) Kind() string { return "budget.event" }

// InsertOpts bounds redelivery of a failing notification.
func (BudgetEventArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 5}
}

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.EventPublisher by enqueuing River jobs.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish enqueues a lifecycle event as an async job.
func (p *Publisher) Publish(ctx context.Context, event domain.Event) error {
	_, err := p.client.Insert(ctx, argsFromEvent(event), nil)
	if err != nil {
		return fmt.Errorf("enqueuing %s job: %w", event.Kind, err)
	}
	return nil
}

func argsFromEvent(e domain.Event) BudgetEventArgs {
	return BudgetEventArgs{
		Event:          string(e.Kind),
		TenantID:       e.TenantID,
		BudgetID:       e.BudgetID,
		Code:           e.Code,
		CustomerID:     e.CustomerID,
		Status:         string(e.Status),
		PreviousStatus: string(e.PreviousStatus),
		ActorID:        e.ActorID,
		Note:           e.Note,
		Total:          e.Total,
		OccurredAt:     e.OccurredAt,
	}
}
