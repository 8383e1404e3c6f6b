// Package observability provides logging, metrics, and tracing for the
// event bus.
//
// Features:
//   - Structured logging via slog
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// Every helper accepts a nil logger and every interface has a no-op
// implementation, so a bus without observability pays nothing.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds the bus identifier to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "orders")
//	enriched.Info("ready") // includes bus=orders
func EnrichLogger(logger *slog.Logger, busID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(slog.String("bus", busID))
}

// LogRegister logs a registrant being added to the bus.
func LogRegister(logger *slog.Logger, target string, handlers int) {
	if logger == nil {
		return
	}
	logger.Debug("registrant added",
		slog.String("target", target),
		slog.Int("handlers", handlers),
	)
}

// LogUnregister logs a registrant being removed from the bus.
func LogUnregister(logger *slog.Logger, target string, handlers int) {
	if logger == nil {
		return
	}
	logger.Debug("registrant removed",
		slog.String("target", target),
		slog.Int("handlers", handlers),
	)
}

// LogDelivery logs the start of a delivery.
func LogDelivery(logger *slog.Logger, deliveryID, eventType string, vetoers, handlers int) {
	if logger == nil {
		return
	}
	logger.Debug("delivering event",
		slog.String("delivery_id", deliveryID),
		slog.String("event_type", eventType),
		slog.Int("vetoers", vetoers),
		slog.Int("handlers", handlers),
	)
}

// LogVeto logs an accepted veto.
func LogVeto(logger *slog.Logger, deliveryID, eventType, handler string, reason error) {
	if logger == nil {
		return
	}
	logger.Info("event vetoed",
		slog.String("delivery_id", deliveryID),
		slog.String("event_type", eventType),
		slog.String("handler", handler),
		slog.String("reason", reason.Error()),
	)
}

// LogHandlerFailure logs a handler error that the failure policy swallowed.
func LogHandlerFailure(logger *slog.Logger, deliveryID, eventType, handler string, err error) {
	if logger == nil {
		return
	}
	logger.Error("handler failed",
		slog.String("delivery_id", deliveryID),
		slog.String("event_type", eventType),
		slog.String("handler", handler),
		slog.String("error", err.Error()),
	)
}

// LogCallbackFailure logs a failure raised by an exception callback itself.
func LogCallbackFailure(logger *slog.Logger, handler string, err error) {
	if logger == nil {
		return
	}
	logger.Error("exception handler failed",
		slog.String("handler", handler),
		slog.String("error", err.Error()),
	)
}

// LogDeadEvent logs an event that matched no handlers.
func LogDeadEvent(logger *slog.Logger, eventType string) {
	if logger == nil {
		return
	}
	logger.Debug("no handlers matched, posting dead event",
		slog.String("event_type", eventType),
	)
}

// LogUnhandledDeadEvent logs a dead event that nothing subscribed to.
func LogUnhandledDeadEvent(logger *slog.Logger, eventType string) {
	if logger == nil {
		return
	}
	logger.Debug("dead event dropped, no subscribers",
		slog.String("event_type", eventType),
	)
}

// LogDroppedDeliveries logs queued deliveries discarded after a drain was
// aborted.
func LogDroppedDeliveries(logger *slog.Logger, count int, cause error) {
	if logger == nil || count == 0 {
		return
	}
	attrs := []any{slog.Int("dropped", count)}
	if cause != nil {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}
	logger.Warn("drain aborted, queued deliveries dropped", attrs...)
}

// LogAsyncFailure logs an error rethrown inside an asynchronous unit of work,
// where there is no poster to return it to.
func LogAsyncFailure(logger *slog.Logger, deliveryID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("asynchronous delivery failed",
		slog.String("delivery_id", deliveryID),
		slog.String("error", err.Error()),
	)
}

// LogJournalError logs a failure to write an audit entry (non-fatal).
func LogJournalError(logger *slog.Logger, kind string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("journal write failed",
		slog.String("kind", kind),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	elapsed := done()
func TimedOperation() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}
