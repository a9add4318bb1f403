package jobs

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/boibabu/api/internal/services"
)

const eventMetricNamespace = "github.com/boibabu/api/internal/platform/jobs"

// InstrumentedOrderEventPublisher counts order events by type and resulting status, then forwards
// them to next when one is configured. Without next it only records metrics.
type InstrumentedOrderEventPublisher struct {
	next     services.OrderEventPublisher
	events   metric.Int64Counter
	failures metric.Int64Counter
}

var _ services.OrderEventPublisher = (*InstrumentedOrderEventPublisher)(nil)

// NewInstrumentedOrderEventPublisher registers the counters on meter, or the global meter provider
// when meter is nil.
func NewInstrumentedOrderEventPublisher(next services.OrderEventPublisher, meter metric.Meter) (*InstrumentedOrderEventPublisher, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(eventMetricNamespace)
	}
	events, err := meter.Int64Counter("boibabu.orders.events",
		metric.WithDescription("Order lifecycle events emitted by the order service"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("boibabu.orders.events.publish_failures",
		metric.WithDescription("Order events that could not be handed to the event bus"))
	if err != nil {
		return nil, err
	}
	return &InstrumentedOrderEventPublisher{next: next, events: events, failures: failures}, nil
}

func (p *InstrumentedOrderEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	attrs := metric.WithAttributes(
		attribute.String("event.type", event.Type),
		attribute.String("order.status", event.CurrentStatus),
	)
	p.events.Add(ctx, 1, attrs)
	if p.next == nil {
		return nil
	}
	if err := p.next.PublishOrderEvent(ctx, event); err != nil {
		p.failures.Add(ctx, 1, attrs)
		return err
	}
	return nil
}
