package eventbus

import (
	"log/slog"

	buserrors "github.com/randalmurphal/eventbus/pkg/eventbus/errors"
	"github.com/randalmurphal/eventbus/pkg/eventbus/journal"
	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
)

// busConfig holds the configuration shared by Bus and AsyncBus.
type busConfig struct {
	id               string
	logger           *slog.Logger
	policy           FailurePolicy
	exceptionHandler ExceptionHandler
	metrics          observability.MetricsRecorder
	spans            observability.SpanManager
	journal          journal.Store
	contracts        []Contract
	retry            buserrors.RetryConfig
}

func defaultBusConfig() busConfig {
	return busConfig{
		id:      "default",
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
		retry:   buserrors.NoRetry,
	}
}

// Option configures a bus.
type Option func(*busConfig)

// WithIdentifier names the bus in logs, spans, and journal entries.
// Default: "default"
func WithIdentifier(id string) Option {
	return func(c *busConfig) {
		if id != "" {
			c.id = id
		}
	}
}

// WithLogger sets the logger. The bus adds a "bus" attribute with its
// identifier. Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(c *busConfig) {
		c.logger = logger
	}
}

// WithFailurePolicy sets the policy for handler errors.
// Default: LogFailures with the bus logger.
//
// Example:
//
//	bus := eventbus.New(eventbus.WithFailurePolicy(eventbus.ThrowFailures()))
func WithFailurePolicy(p FailurePolicy) Option {
	return func(c *busConfig) {
		c.policy = p
	}
}

// WithExceptionHandler forwards handler errors to h. It is shorthand for
// WithFailurePolicy(CallbackFailures(h, logger)) using the bus logger.
func WithExceptionHandler(h ExceptionHandler) Option {
	return func(c *busConfig) {
		c.policy = nil
		c.exceptionHandler = h
	}
}

// WithMetrics sets the metrics recorder.
// Default: observability.NoopMetrics{}
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *busConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing sets the span manager.
// Default: observability.NoopSpanManager{}
func WithTracing(sm observability.SpanManager) Option {
	return func(c *busConfig) {
		if sm != nil {
			c.spans = sm
		}
	}
}

// WithJournal records vetoes, handler failures, and dead events to store.
// The bus does not close the store.
func WithJournal(store journal.Store) Option {
	return func(c *busConfig) {
		c.journal = store
	}
}

// WithContracts adds interface contracts used by handler discovery.
func WithContracts(contracts ...Contract) Option {
	return func(c *busConfig) {
		c.contracts = append(c.contracts, contracts...)
	}
}

// WithRetry retries handler errors the errors package categorizes as
// transient before the failure policy sees them. Vetoes are never retried.
// Default: errors.NoRetry
func WithRetry(cfg buserrors.RetryConfig) Option {
	return func(c *busConfig) {
		c.retry = cfg
	}
}
