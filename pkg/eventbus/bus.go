package eventbus

import (
	"context"
	"reflect"

	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
)

// Dispatcher is the API shared by Bus and AsyncBus.
type Dispatcher interface {
	// Register adds every handler declared by registrant.
	Register(registrant any) error

	// Unregister removes every handler contributed by registrant.
	Unregister(registrant any) error

	// Post delivers event to every matching handler.
	Post(ctx context.Context, event any) error

	// Identifier returns the bus name.
	Identifier() string
}

var (
	_ Dispatcher = (*Bus)(nil)
	_ Dispatcher = (*AsyncBus)(nil)
)

// Bus delivers events synchronously on the posting goroutine.
//
// Each call chain has its own dispatch queue carried in its context. A
// handler that posts using the context it received only enqueues: the new
// event is delivered after the current delivery and everything queued
// before it, never in the middle. Posting with an unrelated context starts
// an independent drain, so a handler of the func(E) form cannot re-post in
// order.
type Bus struct {
	core *core
}

// New creates a synchronous bus.
//
// Example:
//
//	bus := eventbus.New(
//	    eventbus.WithIdentifier("orders"),
//	    eventbus.WithLogger(logger),
//	)
func New(opts ...Option) *Bus {
	b := &Bus{core: newCore(opts)}
	b.core.source = b
	return b
}

// Register adds every handler declared by registrant, which must be a
// non-nil pointer. Registrants are identified by address, so a type that
// declares handlers must have at least one real field: a struct holding only
// Subscribe markers is rejected, since separate values of it can share an
// address. Registering the same registrant again adds nothing. A registrant
// without handler declarations is accepted and ignored.
//
// A handler that posts must take a context.Context and post with it; see
// Bus for ordering.
//
// Errors are *ConfigError values wrapping ErrInvalidRegistrant,
// ErrInvalidHandler, or ErrVetoNotAllowed; on error nothing is registered.
func (b *Bus) Register(registrant any) error {
	return b.core.register(registrant)
}

// Unregister removes every handler contributed by registrant. It returns an
// error wrapping ErrNotRegistered if registrant has no handlers, so a
// second Unregister of the same registrant always fails.
func (b *Bus) Unregister(registrant any) error {
	return b.core.unregister(registrant)
}

// Post delivers event to every handler whose declared parameter type event
// is assignable to. An unmatched event is delivered as a DeadEvent.
//
// Post returns an error only for a nil context or event, or when the
// failure policy rethrows a handler error. In the latter case the rest of
// the queued deliveries of this call chain are dropped. Handler panics
// propagate to the caller after the queue is reset.
func (b *Bus) Post(ctx context.Context, event any) error {
	if err := checkPost(ctx, event); err != nil {
		return err
	}

	st, ok := stateFrom(ctx, b.core)
	if !ok {
		st = &dispatchState{}
		ctx = withState(ctx, b.core, st)
	}

	d := b.core.prepare(ctx, event)
	if d == nil {
		return nil
	}
	if !st.enqueue(d) {
		return nil
	}
	return b.drain(ctx, st)
}

// drain delivers queued deliveries in FIFO order until the queue is empty.
func (b *Bus) drain(ctx context.Context, st *dispatchState) (err error) {
	completed := false
	defer func() {
		if !completed {
			observability.LogDroppedDeliveries(b.core.logger, st.abort(), err)
		}
	}()

	for {
		d, ok := st.next()
		if !ok {
			completed = true
			return nil
		}
		if err = b.core.runGroup(ctx, d); err != nil {
			return err
		}
	}
}

// HandlersFor returns the handlers declared for exactly t.
func (b *Bus) HandlersFor(t reflect.Type) []*Handler {
	return b.core.handlersFor(t)
}

// Closure returns the types an event of type t is delivered as.
func (b *Bus) Closure(t reflect.Type) []reflect.Type {
	return b.core.closure(t)
}

// Identifier returns the bus name.
func (b *Bus) Identifier() string {
	return b.core.id
}
