package river

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/neomorfeo/budgetiq/internal/domain"
	"github.com/neomorfeo/budgetiq/internal/logger"
)

// statusTemplates names the notification sent when a budget enters a status.
var statusTemplates = map[domain.Status]string{
	domain.StatusPending:   "budget_sent",
	domain.StatusApproved:  "budget_approved",
	domain.StatusRejected:  "budget_rejected",
	domain.StatusCancelled: "budget_cancelled",
	domain.StatusFinalized: "budget_finalized",
	domain.StatusCompleted: "budget_completed",
	domain.StatusExpired:   "budget_expired",
}

// TemplateFor returns the notification template for an event, or "" when
// the event notifies nobody.
func TemplateFor(args BudgetEventArgs) string {
	switch domain.EventKind(args.Event) {
	case domain.EventCreated:
		return "budget_created"
	case domain.EventUpdated:
		return "budget_updated"
	case domain.EventRestored:
		return "budget_restored"
	case domain.EventDeleted:
		return "budget_deleted"
	case domain.EventStatusChanged:
		return statusTemplates[domain.Status(args.Status)]
	}
	return ""
}

// EventWorker turns budget events into notifications.
type EventWorker struct {
	river.WorkerDefaults[BudgetEventArgs]

	notifier domain.Notifier
	logger   *zap.Logger
}

// NewEventWorker creates a worker delivering through notifier.
func NewEventWorker(notifier domain.Notifier, log *zap.Logger) *EventWorker {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventWorker{notifier: notifier, logger: log}
}

// Work processes a single event job. A failed delivery is returned so that
// River retries it.
func (w *EventWorker) Work(ctx context.Context, job *river.Job[BudgetEventArgs]) error {
	args := job.Args
	log := logger.FromContextOr(ctx, w.logger).With(
		zap.String("event", args.Event),
		zap.String("tenant_id", args.TenantID),
		zap.String("code", args.Code),
		zap.Int64("job_id", job.ID),
		zap.Int("attempt", job.Attempt),
	)

	template := TemplateFor(args)
	if template == "" {
		log.Debug("event has no notification")
		return nil
	}

	data := map[string]any{
		"tenant_id":       args.TenantID,
		"budget_id":       args.BudgetID,
		"code":            args.Code,
		"status":          args.Status,
		"previous_status": args.PreviousStatus,
		"total":           args.Total,
		"note":            args.Note,
		"actor_id":        args.ActorID,
		"occurred_at":     args.OccurredAt,
	}
	if err := w.notifier.Send(ctx, template, []string{args.CustomerID}, data); err != nil {
		log.Warn("notification failed", zap.String("template", template), zap.Error(err))
		return fmt.Errorf("sending %s: %w", template, err)
	}

	log.Info("processed budget event", zap.String("template", template))
	return nil
}
