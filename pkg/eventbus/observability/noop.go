package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

// RecordDelivery does nothing.
func (NoopMetrics) RecordDelivery(_ context.Context, _ string, _ int) {}

// RecordHandler does nothing.
func (NoopMetrics) RecordHandler(_ context.Context, _ string, _ time.Duration, _ error) {}

// RecordVeto does nothing.
func (NoopMetrics) RecordVeto(_ context.Context, _, _ string) {}

// RecordDeadEvent does nothing.
func (NoopMetrics) RecordDeadEvent(_ context.Context, _ string) {}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartDeliverySpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartDeliverySpan(ctx context.Context, _, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartHandlerSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartHandlerSpan(ctx context.Context, _ string, _ bool) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
