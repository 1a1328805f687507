package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/budgetiq/internal/domain"
)

const tracerName = "github.com/neomorfeo/budgetiq/internal/adapter/otel"

// TracingStore wraps a domain.Store with OpenTelemetry tracing. The
// transaction gets a span and every repository call inside it a child span.
type TracingStore struct {
	next   domain.Store
	tracer trace.Tracer
}

// Compile-time check: TracingStore implements domain.Store.
var _ domain.Store = (*TracingStore)(nil)

// NewTracingStore creates a tracing decorator around the given store.
func NewTracingStore(next domain.Store) *TracingStore {
	return &TracingStore{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (s *TracingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	ctx, span := s.tracer.Start(ctx, "Store.WithinTx")
	defer span.End()

	err := s.next.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return fn(ctx, &tracingTx{next: tx, tracer: s.tracer})
	})
	end(span, err)
	return err
}

// end records err on span, if any.
func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

type tracingTx struct {
	next   domain.Tx
	tracer trace.Tracer
}

func (t *tracingTx) Budgets() domain.BudgetRepository {
	return &tracingBudgets{next: t.next.Budgets(), tracer: t.tracer}
}

func (t *tracingTx) Versions() domain.VersionRepository {
	return &tracingVersions{next: t.next.Versions(), tracer: t.tracer}
}

func (t *tracingTx) History() domain.HistoryRepository {
	return &tracingHistory{next: t.next.History(), tracer: t.tracer}
}

type tracingBudgets struct {
	next   domain.BudgetRepository
	tracer trace.Tracer
}

func (r *tracingBudgets) Load(ctx context.Context, tenantID, code string) (domain.Budget, error) {
	ctx, span := r.tracer.Start(ctx, "BudgetRepository.Load",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("budget.code", code),
		),
	)
	defer span.End()

	b, err := r.next.Load(ctx, tenantID, code)
	end(span, err)
	return b, err
}

func (r *tracingBudgets) LoadFull(ctx context.Context, tenantID, code string) (domain.FullBudget, error) {
	ctx, span := r.tracer.Start(ctx, "BudgetRepository.LoadFull",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("budget.code", code),
		),
	)
	defer span.End()

	full, err := r.next.LoadFull(ctx, tenantID, code)
	if err == nil {
		span.SetAttributes(attribute.Int("budget.versions", len(full.Versions)))
	}
	end(span, err)
	return full, err
}

func (r *tracingBudgets) List(ctx context.Context, tenantID string, filter domain.ListFilter) ([]domain.Budget, error) {
	ctx, span := r.tracer.Start(ctx, "BudgetRepository.List",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.Int("filter.limit", filter.Limit),
			attribute.Int("filter.offset", filter.Offset),
		),
	)
	defer span.End()

	if filter.Status != nil {
		span.SetAttributes(attribute.String("filter.status", string(*filter.Status)))
	}

	budgets, err := r.next.List(ctx, tenantID, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(budgets)))
	}
	end(span, err)
	return budgets, err
}

func (r *tracingBudgets) LastCode(ctx context.Context, tenantID, prefix string) (string, error) {
	ctx, span := r.tracer.Start(ctx, "BudgetRepository.LastCode",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("code.prefix", prefix),
		),
	)
	defer span.End()

	code, err := r.next.LastCode(ctx, tenantID, prefix)
	end(span, err)
	return code, err
}

func (r *tracingBudgets) Save(ctx context.Context, b *domain.Budget) error {
	ctx, span := r.tracer.Start(ctx, "BudgetRepository.Save",
		trace.WithAttributes(
			attribute.String("tenant.id", b.TenantID),
			attribute.String("budget.code", b.Code),
			attribute.String("budget.status", string(b.Status)),
			attribute.Int("budget.items", b.ItemCount()),
		),
	)
	defer span.End()

	err := r.next.Save(ctx, b)
	if err == nil {
		span.SetAttributes(attribute.Int("budget.revision", b.Revision))
	}
	end(span, err)
	return err
}

func (r *tracingBudgets) Delete(ctx context.Context, tenantID, code string) error {
	ctx, span := r.tracer.Start(ctx, "BudgetRepository.Delete",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("budget.code", code),
		),
	)
	defer span.End()

	err := r.next.Delete(ctx, tenantID, code)
	end(span, err)
	return err
}

type tracingVersions struct {
	next   domain.VersionRepository
	tracer trace.Tracer
}

func (r *tracingVersions) Append(ctx context.Context, v *domain.BudgetVersion) error {
	ctx, span := r.tracer.Start(ctx, "VersionRepository.Append",
		trace.WithAttributes(
			attribute.String("tenant.id", v.TenantID),
			attribute.String("budget.id", v.BudgetID),
		),
	)
	defer span.End()

	err := r.next.Append(ctx, v)
	if err == nil {
		span.SetAttributes(attribute.Int("version.sequence", v.Sequence))
	}
	end(span, err)
	return err
}

func (r *tracingVersions) Get(ctx context.Context, tenantID, versionID string) (domain.BudgetVersion, error) {
	ctx, span := r.tracer.Start(ctx, "VersionRepository.Get",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("version.id", versionID),
		),
	)
	defer span.End()

	v, err := r.next.Get(ctx, tenantID, versionID)
	end(span, err)
	return v, err
}

func (r *tracingVersions) List(ctx context.Context, tenantID, budgetID string) ([]domain.BudgetVersion, error) {
	ctx, span := r.tracer.Start(ctx, "VersionRepository.List",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("budget.id", budgetID),
		),
	)
	defer span.End()

	versions, err := r.next.List(ctx, tenantID, budgetID)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(versions)))
	}
	end(span, err)
	return versions, err
}

type tracingHistory struct {
	next   domain.HistoryRepository
	tracer trace.Tracer
}

func (r *tracingHistory) Append(ctx context.Context, e *domain.ActionEntry) error {
	ctx, span := r.tracer.Start(ctx, "HistoryRepository.Append",
		trace.WithAttributes(
			attribute.String("tenant.id", e.TenantID),
			attribute.String("budget.id", e.BudgetID),
			attribute.String("history.action", string(e.Action)),
		),
	)
	defer span.End()

	err := r.next.Append(ctx, e)
	end(span, err)
	return err
}

func (r *tracingHistory) List(ctx context.Context, tenantID, budgetID string) ([]domain.ActionEntry, error) {
	ctx, span := r.tracer.Start(ctx, "HistoryRepository.List",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("budget.id", budgetID),
		),
	)
	defer span.End()

	entries, err := r.next.List(ctx, tenantID, budgetID)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(entries)))
	}
	end(span, err)
	return entries, err
}
