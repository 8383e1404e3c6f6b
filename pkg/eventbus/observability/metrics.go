package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records event bus metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordDelivery records an event queued for delivery to handlers.
	RecordDelivery(ctx context.Context, eventType string, handlers int)

	// RecordHandler records one handler invocation with its duration and error status.
	RecordHandler(ctx context.Context, handler string, duration time.Duration, err error)

	// RecordVeto records a veto accepted from a veto-capable handler.
	RecordVeto(ctx context.Context, eventType, handler string)

	// RecordDeadEvent records an event that matched no handlers.
	RecordDeadEvent(ctx context.Context, eventType string)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	deliveries      metric.Int64Counter
	handlerCalls    metric.Int64Counter
	handlerLatency  metric.Float64Histogram
	handlerFailures metric.Int64Counter
	vetoes          metric.Int64Counter
	deadEvents      metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics lazily initializes the shared OTel instruments.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("eventbus")

	deliveries, err := meter.Int64Counter("eventbus.deliveries",
		metric.WithDescription("Number of events queued for delivery"),
	)
	if err != nil {
		return nil, err
	}

	handlerCalls, err := meter.Int64Counter("eventbus.handler.invocations",
		metric.WithDescription("Number of handler invocations"),
	)
	if err != nil {
		return nil, err
	}

	handlerLatency, err := meter.Float64Histogram("eventbus.handler.latency_ms",
		metric.WithDescription("Handler latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	handlerFailures, err := meter.Int64Counter("eventbus.handler.failures",
		metric.WithDescription("Number of handler invocations that returned an error"),
	)
	if err != nil {
		return nil, err
	}

	vetoes, err := meter.Int64Counter("eventbus.vetoes",
		metric.WithDescription("Number of vetoed events"),
	)
	if err != nil {
		return nil, err
	}

	deadEvents, err := meter.Int64Counter("eventbus.dead_events",
		metric.WithDescription("Number of events that matched no handlers"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		deliveries:      deliveries,
		handlerCalls:    handlerCalls,
		handlerLatency:  handlerLatency,
		handlerFailures: handlerFailures,
		vetoes:          vetoes,
		deadEvents:      deadEvents,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordDelivery records an event queued for delivery.
func (m *otelMetrics) RecordDelivery(ctx context.Context, eventType string, handlers int) {
	m.deliveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.Int("handlers", handlers),
	))
}

// RecordHandler records a handler invocation.
func (m *otelMetrics) RecordHandler(ctx context.Context, handler string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("handler", handler))

	m.handlerCalls.Add(ctx, 1, attrs)
	m.handlerLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)

	if err != nil {
		m.handlerFailures.Add(ctx, 1, attrs)
	}
}

// RecordVeto records an accepted veto.
func (m *otelMetrics) RecordVeto(ctx context.Context, eventType, handler string) {
	m.vetoes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("handler", handler),
	))
}

// RecordDeadEvent records an unmatched event.
func (m *otelMetrics) RecordDeadEvent(ctx context.Context, eventType string) {
	m.deadEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}
