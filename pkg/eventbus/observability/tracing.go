package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer uses the global OTel tracer provider.
var tracer = otel.Tracer("eventbus")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartDeliverySpan starts a span covering one delivery: the veto gate
	// and every ordinary handler.
	StartDeliverySpan(ctx context.Context, busID, deliveryID, eventType string) (context.Context, trace.Span)

	// StartHandlerSpan starts a span for one handler invocation. It should be
	// a child of the delivery span.
	StartHandlerSpan(ctx context.Context, handler string, canVeto bool) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartDeliverySpan starts a span for a delivery.
func (m *otelSpanManager) StartDeliverySpan(ctx context.Context, busID, deliveryID, eventType string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "eventbus.deliver",
		trace.WithAttributes(
			attribute.String("bus.id", busID),
			attribute.String("delivery.id", deliveryID),
			attribute.String("event.type", eventType),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartHandlerSpan starts a span for a handler invocation.
func (m *otelSpanManager) StartHandlerSpan(ctx context.Context, handler string, canVeto bool) (context.Context, trace.Span) {
	return tracer.Start(ctx, "eventbus.handler",
		trace.WithAttributes(
			attribute.String("handler", handler),
			attribute.Bool("handler.can_veto", canVeto),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
