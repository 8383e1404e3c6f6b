package eventbus

import (
	"context"
	"errors"
	"fmt"

	"github.com/randalmurphal/eventbus/pkg/eventbus/config"
	buserrors "github.com/randalmurphal/eventbus/pkg/eventbus/errors"
	"github.com/randalmurphal/eventbus/pkg/eventbus/journal"
	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
)

// Runtime is a bus assembled from config.Settings together with the
// resources it owns.
type Runtime struct {
	// Bus is a *Bus or an *AsyncBus depending on the configured mode.
	Bus Dispatcher
	// Pool is the worker pool of an asynchronous bus, nil otherwise.
	Pool *WorkerPool
	// Journal is the configured journal, nil when disabled.
	Journal journal.Store
}

// FromSettings builds a bus from s. Options in opts are applied after the
// ones derived from s, so callers can override any of them, for example to
// add contracts or a logger.
//
// Example:
//
//	s, err := config.LoadSettings("bus.yaml")
//	if err != nil {
//	    return err
//	}
//	rt, err := eventbus.FromSettings(s, eventbus.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer rt.Close(ctx)
func FromSettings(s config.Settings, opts ...Option) (*Runtime, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	// Resolve the logger the bus will use so the pool and the policy log
	// the same way.
	probe := defaultBusConfig()
	for _, opt := range append([]Option{WithIdentifier(s.Identifier)}, opts...) {
		opt(&probe)
	}
	logger := observability.EnrichLogger(orDefault(probe.logger), probe.id)

	rt := &Runtime{}
	derived := []Option{WithIdentifier(s.Identifier)}

	switch s.FailurePolicy {
	case config.PolicyThrow:
		derived = append(derived, WithFailurePolicy(ThrowFailures()))
	case config.PolicyThrowUnrecoverable:
		derived = append(derived, WithFailurePolicy(ThrowUnrecoverable(logger)))
	}

	if s.Retry.MaxAttempts > 1 {
		derived = append(derived, WithRetry(buserrors.NewRetryConfig(
			buserrors.WithMaxAttempts(s.Retry.MaxAttempts),
			buserrors.WithInitialBackoff(s.Retry.InitialBackoff),
			buserrors.WithMaxBackoff(s.Retry.MaxBackoff),
		)))
	}

	switch s.Journal.Driver {
	case config.JournalMemory:
		rt.Journal = journal.NewMemoryStore()
	case config.JournalSQLite:
		store, err := journal.NewSQLiteStore(s.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		rt.Journal = store
	}
	if rt.Journal != nil {
		derived = append(derived, WithJournal(rt.Journal))
	}

	if s.Metrics {
		derived = append(derived, WithMetrics(observability.NewMetricsRecorder()))
	}
	if s.Tracing {
		derived = append(derived, WithTracing(observability.NewSpanManager()))
	}

	all := append(derived, opts...)
	if s.Mode == config.ModeAsync {
		rt.Pool = NewWorkerPool(
			WithWorkers(s.Async.Workers),
			WithQueueSize(s.Async.QueueSize),
			WithPoolLogger(logger),
		)
		rt.Bus = NewAsync(rt.Pool, all...)
	} else {
		rt.Bus = New(all...)
	}
	return rt, nil
}

// Close stops the worker pool, waiting for queued work, and closes the
// journal.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Pool != nil {
		if err := rt.Pool.Stop(ctx); err != nil && !errors.Is(err, ErrPoolStopped) {
			errs = append(errs, fmt.Errorf("stop pool: %w", err))
		}
	}
	if rt.Journal != nil {
		if err := rt.Journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	return errors.Join(errs...)
}
