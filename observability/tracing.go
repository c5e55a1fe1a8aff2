package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/stocklane/dispatch"

// Tracer provides OpenTelemetry tracing for delivery attempts.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new dispatch tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartDeliverySpan starts a new span for a delivery attempt.
func (t *Tracer) StartDeliverySpan(ctx context.Context, deliveryID, messageID, webhookID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "dispatch.delivery",
		trace.WithAttributes(
			attribute.String("dispatch.delivery_id", deliveryID),
			attribute.String("dispatch.message_id", messageID),
			attribute.String("dispatch.webhook_id", webhookID),
		),
	)
}

// EndDeliverySpan ends a delivery span with result attributes.
func (t *Tracer) EndDeliverySpan(span trace.Span, statusCode, latencyMs int, err string) {
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Int("dispatch.latency_ms", latencyMs),
	)
	if err != "" {
		span.SetAttributes(attribute.String("dispatch.error", err))
	}
	span.End()
}
