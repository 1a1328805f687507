package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/neomorfeo/budgetiq/internal/domain"
)

// Compile-time check: HistoryRepository implements domain.HistoryRepository.
var _ domain.HistoryRepository = (*HistoryRepository)(nil)

// HistoryRepository appends and reads the budget action history.
type HistoryRepository struct {
	q querier
}

func (r *HistoryRepository) Append(ctx context.Context, e *domain.ActionEntry) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO budget_action_history (id, tenant_id, budget_id, actor_id, action, old_status, new_status, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TenantID, e.BudgetID, e.ActorID, string(e.Action),
		string(e.OldStatus), string(e.NewStatus), e.Note,
		e.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting history entry: %w", err)
	}
	return nil
}

// List returns the history of a budget, oldest first.
func (r *HistoryRepository) List(ctx context.Context, tenantID, budgetID string) ([]domain.ActionEntry, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, tenant_id, budget_id, actor_id, action, old_status, new_status, note, created_at
		 FROM budget_action_history WHERE tenant_id = ? AND budget_id = ?
		 ORDER BY created_at, rowid`,
		tenantID, budgetID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	var entries []domain.ActionEntry
	for rows.Next() {
		var e domain.ActionEntry
		var action, oldStatus, newStatus, createdAt string
		if err := rows.Scan(&e.ID, &e.TenantID, &e.BudgetID, &e.ActorID, &action,
			&oldStatus, &newStatus, &e.Note, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning history entry: %w", err)
		}
		e.Action = domain.HistoryAction(action)
		e.OldStatus = domain.Status(oldStatus)
		e.NewStatus = domain.Status(newStatus)
		if e.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at of history entry %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
