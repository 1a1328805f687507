package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/neomorfeo/budgetiq/internal/domain"
)

// StatusChange requests moving a budget to Target.
type StatusChange struct {
	Code    string
	Target  domain.Status
	Comment string
	// ExpectedStatus, when set, must match the stored status at commit time.
	// It protects a caller acting on a stale view of the budget.
	ExpectedStatus *domain.Status
}

// BulkFailure describes why one budget of a batch was not changed.
type BulkFailure struct {
	Code     string
	Message  string
	Category Category
}

// BulkOutcome reports a best-effort batch: each budget commits or fails on
// its own.
type BulkOutcome struct {
	Succeeded []string
	Failed    []BulkFailure
}

// ChangeStatus applies the action that leads to the requested status.
func (s *BudgetService) ChangeStatus(ctx context.Context, actor domain.Actor, req StatusChange) Result[domain.Budget] {
	if err := s.begin(ctx, actor, domain.OpChangeStatus); err != nil {
		return fail[domain.Budget](ctx, s, domain.OpChangeStatus, err)
	}
	action, err := actionFor(req.Target)
	if err != nil {
		return fail[domain.Budget](ctx, s, domain.OpChangeStatus, err)
	}

	b, err := s.applyAction(ctx, actor, req.Code, action, req.Comment, req.ExpectedStatus)
	if err != nil {
		return fail[domain.Budget](ctx, s, domain.OpChangeStatus, err)
	}
	return succeed(b, "budget is "+string(b.Status))
}

// Send submits a draft budget to the customer.
func (s *BudgetService) Send(ctx context.Context, actor domain.Actor, code, comment string) Result[domain.Budget] {
	return s.ChangeStatus(ctx, actor, StatusChange{Code: code, Target: domain.StatusPending, Comment: comment})
}

// Approve accepts a pending budget.
func (s *BudgetService) Approve(ctx context.Context, actor domain.Actor, code, comment string) Result[domain.Budget] {
	return s.ChangeStatus(ctx, actor, StatusChange{Code: code, Target: domain.StatusApproved, Comment: comment})
}

// Reject declines a pending budget.
func (s *BudgetService) Reject(ctx context.Context, actor domain.Actor, code, comment string) Result[domain.Budget] {
	return s.ChangeStatus(ctx, actor, StatusChange{Code: code, Target: domain.StatusRejected, Comment: comment})
}

// Cancel withdraws a budget that has not been finalized.
func (s *BudgetService) Cancel(ctx context.Context, actor domain.Actor, code, comment string) Result[domain.Budget] {
	return s.ChangeStatus(ctx, actor, StatusChange{Code: code, Target: domain.StatusCancelled, Comment: comment})
}

// BulkUpdateStatus moves every listed budget to target. Each code is
// processed in its own transaction; failures are collected, not fatal.
func (s *BudgetService) BulkUpdateStatus(ctx context.Context, actor domain.Actor, codes []string, target domain.Status, comment string) Result[BulkOutcome] {
	if err := s.begin(ctx, actor, domain.OpChangeStatus); err != nil {
		return fail[BulkOutcome](ctx, s, domain.OpChangeStatus, err)
	}
	if len(codes) == 0 {
		return fail[BulkOutcome](ctx, s, domain.OpChangeStatus, &domain.ValidationError{
			Message: "no budgets selected",
			Fields:  []domain.FieldError{{Field: "codes", Message: "is required"}},
		})
	}
	if _, err := actionFor(target); err != nil {
		return fail[BulkOutcome](ctx, s, domain.OpChangeStatus, err)
	}

	out := BulkOutcome{Succeeded: []string{}, Failed: []BulkFailure{}}
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		if seen[code] {
			continue
		}
		seen[code] = true

		r := s.ChangeStatus(ctx, actor, StatusChange{Code: code, Target: target, Comment: comment})
		if r.Success {
			out.Succeeded = append(out.Succeeded, code)
			continue
		}
		out.Failed = append(out.Failed, BulkFailure{Code: code, Message: r.Message, Category: r.Category})
	}

	return succeed(out, fmt.Sprintf("%d of %d budgets updated", len(out.Succeeded), len(seen)))
}

// ExpireOverdue expires every pending budget of the tenant whose due date
// has passed. Intended to be triggered by an external scheduler.
func (s *BudgetService) ExpireOverdue(ctx context.Context, actor domain.Actor) Result[BulkOutcome] {
	if err := s.begin(ctx, actor, domain.OpChangeStatus); err != nil {
		return fail[BulkOutcome](ctx, s, domain.OpChangeStatus, err)
	}

	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	pending := domain.StatusPending

	var overdue []domain.Budget
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		overdue, err = tx.Budgets().List(ctx, actor.TenantID, domain.ListFilter{Status: &pending, DueBefore: &today})
		return err
	})
	if err != nil {
		return fail[BulkOutcome](ctx, s, domain.OpChangeStatus, err)
	}

	out := BulkOutcome{Succeeded: []string{}, Failed: []BulkFailure{}}
	for _, b := range overdue {
		if _, err := s.applyAction(ctx, actor, b.Code, domain.ActionExpire, "", &pending); err != nil {
			r := fail[domain.Budget](ctx, s, domain.OpChangeStatus, err)
			out.Failed = append(out.Failed, BulkFailure{Code: b.Code, Message: r.Message, Category: r.Category})
			continue
		}
		out.Succeeded = append(out.Succeeded, b.Code)
	}

	return succeed(out, fmt.Sprintf("%d budgets expired", len(out.Succeeded)))
}

func actionFor(target domain.Status) (domain.Action, error) {
	action, ok := domain.ActionFor(target)
	if !ok {
		return "", &domain.ValidationError{
			Message: fmt.Sprintf("budgets cannot be moved to status %q", target),
			Fields:  []domain.FieldError{{Field: "status", Message: "is not a reachable status"}},
		}
	}
	return action, nil
}

// applyAction runs one transition in its own transaction. The guard is
// evaluated against the row read inside that transaction, and the revision
// check in Save rejects a concurrent writer that committed in between.
func (s *BudgetService) applyAction(ctx context.Context, actor domain.Actor, code string, action domain.Action, comment string, expected *domain.Status) (domain.Budget, error) {
	now := s.now().UTC()
	var (
		b    domain.Budget
		from domain.Status
		noop bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		if b, err = tx.Budgets().Load(ctx, actor.TenantID, code); err != nil {
			return err
		}
		from = b.Status
		if expected != nil && b.Status != *expected {
			return domain.NewValidationError("budget is %s, expected %s", b.Status, *expected)
		}
		if action.IsNoOp(b.Status) {
			noop = true
			return nil
		}

		to, err := s.validator.Apply(ctx, b, action, now)
		if err != nil {
			return err
		}
		b.Status = to
		b.UpdatedAt = now
		if err := tx.Budgets().Save(ctx, &b); err != nil {
			return err
		}

		note := comment
		if note == "" {
			note = string(action.HistoryLabel())
		}
		if err := s.capture(ctx, tx, b, actor, note, now); err != nil {
			return err
		}
		return s.record(ctx, tx, b, actor, action.HistoryLabel(), from, to, comment, now)
	})
	if err != nil {
		return domain.Budget{}, err
	}

	if noop {
		// Re-sending a pending budget notifies the customer again.
		if b.Status == domain.StatusPending {
			s.publishStatusChange(ctx, b, from, actor, comment, now)
		}
		return b, nil
	}

	s.log(ctx).Info("budget status changed",
		zap.String("tenant_id", b.TenantID),
		zap.String("code", b.Code),
		zap.String("action", string(action)),
		zap.String("from", string(from)),
		zap.String("to", string(b.Status)),
	)
	s.publishStatusChange(ctx, b, from, actor, comment, now)
	return b, nil
}

func (s *BudgetService) publishStatusChange(ctx context.Context, b domain.Budget, from domain.Status, actor domain.Actor, comment string, at time.Time) {
	event := domain.NewEvent(domain.EventStatusChanged, b, actor.UserID, at)
	event.PreviousStatus = from
	event.Note = comment
	s.publish(ctx, event)
}
