package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/budgetiq/internal/domain"
)

// TracingPublisher wraps a domain.EventPublisher with a span per event and
// a counter of published events by kind and outcome.
type TracingPublisher struct {
	next      domain.EventPublisher
	tracer    trace.Tracer
	published metric.Int64Counter
}

// Compile-time check: TracingPublisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*TracingPublisher)(nil)

// NewTracingPublisher creates a tracing decorator around the given publisher.
func NewTracingPublisher(next domain.EventPublisher) (*TracingPublisher, error) {
	counter, err := otel.Meter(tracerName).Int64Counter("budget.events.published",
		metric.WithDescription("Budget lifecycle events handed to the publisher."),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}
	return &TracingPublisher{
		next:      next,
		tracer:    otel.Tracer(tracerName),
		published: counter,
	}, nil
}

func (p *TracingPublisher) Publish(ctx context.Context, event domain.Event) error {
	ctx, span := p.tracer.Start(ctx, "EventPublisher.Publish",
		trace.WithAttributes(
			attribute.String("event.type", string(event.Kind)),
			attribute.String("tenant.id", event.TenantID),
			attribute.String("budget.code", event.Code),
			attribute.String("budget.status", string(event.Status)),
		),
	)
	defer span.End()

	err := p.next.Publish(ctx, event)
	end(span, err)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.published.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event.type", string(event.Kind)),
		attribute.String("outcome", outcome),
	))
	return err
}
