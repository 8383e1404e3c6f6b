package eventbus

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/uuid"

	"github.com/randalmurphal/eventbus/pkg/eventbus/hierarchy"
	"github.com/randalmurphal/eventbus/pkg/eventbus/journal"
	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
)

// core is the registration and matching machinery shared by Bus and
// AsyncBus. The variants differ only in how they drain deliveries.
type core struct {
	busConfig

	// source is the bus that owns the core, reported in DeadEvent.Source.
	source   any
	resolver *hierarchy.Resolver
	registry *registry
}

func newCore(opts []Option) *core {
	cfg := defaultBusConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	cfg.logger = observability.EnrichLogger(orDefault(cfg.logger), cfg.id)
	if cfg.policy == nil {
		if cfg.exceptionHandler != nil {
			cfg.policy = CallbackFailures(cfg.exceptionHandler, cfg.logger)
		} else {
			cfg.policy = LogFailures(cfg.logger)
		}
	}

	return &core{
		busConfig: cfg,
		resolver:  hierarchy.NewResolver(),
		registry:  newRegistry(),
	}
}

func (c *core) register(registrant any) error {
	handlers, err := discover(registrant, c.contracts)
	if err != nil {
		return err
	}
	if len(handlers) == 0 {
		return nil
	}

	// Declare parameter interfaces before the handlers become visible so a
	// concurrent post never matches a handler its closure cannot reach.
	types := make([]reflect.Type, 0, len(handlers))
	for _, h := range handlers {
		types = append(types, h.eventType)
	}
	c.resolver.Declare(types...)

	added := c.registry.add(registrant, handlers)
	observability.LogRegister(c.logger, fmt.Sprintf("%T", registrant), len(added))
	return nil
}

func (c *core) unregister(registrant any) error {
	if _, err := registrantValue(registrant); err != nil {
		return err
	}
	removed, err := c.registry.remove(registrant)
	if err != nil {
		return fmt.Errorf("unregister %T: %w", registrant, err)
	}
	observability.LogUnregister(c.logger, fmt.Sprintf("%T", registrant), len(removed))
	return nil
}

func (c *core) handlersFor(t reflect.Type) []*Handler {
	return c.registry.handlersFor(t)
}

func (c *core) closure(t reflect.Type) []reflect.Type {
	shared := c.resolver.Closure(t)
	out := make([]reflect.Type, len(shared))
	copy(out, shared)
	return out
}

func checkPost(ctx context.Context, event any) error {
	if ctx == nil {
		return ErrNilContext
	}
	if event == nil {
		return ErrNilEvent
	}
	return nil
}

// prepare matches event against the registry. An unmatched event is
// replaced by a DeadEvent; an unmatched DeadEvent yields nil.
func (c *core) prepare(ctx context.Context, event any) *delivery {
	t := reflect.TypeOf(event)
	vetoers, handlers := c.registry.match(c.resolver.Closure(t))

	if len(vetoers)+len(handlers) == 0 {
		name := typeName(t)
		if isDeadEvent(event) {
			observability.LogUnhandledDeadEvent(c.logger, name)
			return nil
		}
		observability.LogDeadEvent(c.logger, name)
		c.metrics.RecordDeadEvent(ctx, name)
		c.record(ctx, journal.Entry{Kind: journal.KindDeadEvent, EventType: name})
		return c.prepare(ctx, DeadEvent{Source: c.source, Event: event})
	}

	d := &delivery{
		id:        uuid.NewString(),
		event:     event,
		eventType: typeName(t),
		vetoers:   vetoers,
		handlers:  handlers,
	}
	c.metrics.RecordDelivery(ctx, d.eventType, len(vetoers)+len(handlers))
	return d
}

// record writes a journal entry when a journal is configured. Write
// failures are logged, never returned.
func (c *core) record(ctx context.Context, e journal.Entry) {
	if c.journal == nil {
		return
	}
	e.Bus = c.id
	if err := c.journal.Record(context.WithoutCancel(ctx), e); err != nil {
		observability.LogJournalError(c.logger, string(e.Kind), err)
	}
}
