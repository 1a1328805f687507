package app

import (
	"context"
	"fmt"

	"github.com/neomorfeo/budgetiq/internal/domain"
)

// RestoreVersion copies the content of a stored version into the live
// budget. It is a forward edit: a new version documents the restore and the
// restored one is left untouched. Status and code are not restored.
func (s *BudgetService) RestoreVersion(ctx context.Context, actor domain.Actor, code, versionID string) Result[domain.Budget] {
	if err := s.begin(ctx, actor, domain.OpRestore); err != nil {
		return fail[domain.Budget](ctx, s, domain.OpRestore, err)
	}

	now := s.now().UTC()
	var (
		b    domain.Budget
		note string
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		if b, err = tx.Budgets().Load(ctx, actor.TenantID, code); err != nil {
			return err
		}
		v, err := tx.Versions().Get(ctx, actor.TenantID, versionID)
		if err != nil {
			return err
		}
		if v.BudgetID != b.ID {
			return &domain.ValidationError{
				Message: "version belongs to another budget",
				Fields:  []domain.FieldError{{Field: "version_id", Message: "does not belong to this budget"}},
			}
		}
		if !b.CanBeEdited() {
			return domain.NewValidationError("budget cannot be restored while %s", b.Status)
		}

		v.Snapshot.ApplyTo(&b)
		b.UpdatedAt = now
		if err := tx.Budgets().Save(ctx, &b); err != nil {
			return err
		}

		note = fmt.Sprintf("restored version %d", v.Sequence)
		if err := s.capture(ctx, tx, b, actor, note, now); err != nil {
			return err
		}
		return s.record(ctx, tx, b, actor, domain.HistoryRestored, b.Status, b.Status, note, now)
	})
	if err != nil {
		return fail[domain.Budget](ctx, s, domain.OpRestore, err)
	}

	event := domain.NewEvent(domain.EventRestored, b, actor.UserID, now)
	event.Note = note
	s.publish(ctx, event)
	return succeed(b, "budget "+note)
}

// ListVersions returns the versions of a budget, oldest first.
func (s *BudgetService) ListVersions(ctx context.Context, actor domain.Actor, code string) Result[[]domain.BudgetVersion] {
	if err := s.begin(ctx, actor, domain.OpRead); err != nil {
		return fail[[]domain.BudgetVersion](ctx, s, domain.OpRead, err)
	}

	var versions []domain.BudgetVersion
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		b, err := tx.Budgets().Load(ctx, actor.TenantID, code)
		if err != nil {
			return err
		}
		versions, err = tx.Versions().List(ctx, actor.TenantID, b.ID)
		return err
	})
	if err != nil {
		return fail[[]domain.BudgetVersion](ctx, s, domain.OpRead, err)
	}
	if versions == nil {
		versions = []domain.BudgetVersion{}
	}
	return succeed(versions, "")
}

// History returns the action history of a budget, oldest first.
func (s *BudgetService) History(ctx context.Context, actor domain.Actor, code string) Result[[]domain.ActionEntry] {
	if err := s.begin(ctx, actor, domain.OpRead); err != nil {
		return fail[[]domain.ActionEntry](ctx, s, domain.OpRead, err)
	}

	var entries []domain.ActionEntry
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		b, err := tx.Budgets().Load(ctx, actor.TenantID, code)
		if err != nil {
			return err
		}
		entries, err = tx.History().List(ctx, actor.TenantID, b.ID)
		return err
	})
	if err != nil {
		return fail[[]domain.ActionEntry](ctx, s, domain.OpRead, err)
	}
	if entries == nil {
		entries = []domain.ActionEntry{}
	}
	return succeed(entries, "")
}
