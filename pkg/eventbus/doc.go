/*
Package eventbus provides in-process publish/subscribe event dispatch.

# Overview

A bus routes posted values to handler methods of registered objects. The
event's runtime type selects the handlers: a handler receives every event
assignable to its parameter type, so a handler taking an interface sees every
event implementing it and a handler taking any sees everything.

Two variants share one API:
  - Bus delivers synchronously on the posting goroutine
  - AsyncBus hands deliveries to an Executor such as WorkerPool

# Declaring Handlers

Handlers are exported methods named by Subscribe marker fields:

	type Audit struct {
	    _ eventbus.Subscribe `subscribe:"OnOrder"`
	    _ eventbus.Subscribe `subscribe:"Check,veto"`

	    seen []string
	}

	func (a *Audit) OnOrder(o OrderPlaced) { a.seen = append(a.seen, o.ID) }

	func (a *Audit) Check(ctx context.Context, o OrderPlaced) *eventbus.VetoError {
	    if o.Total < 0 {
	        return eventbus.Veto("negative total %d", o.Total)
	    }
	    return nil
	}

A handler method takes the event, optionally preceded by a context.Context,
and returns nothing, an error, or a *VetoError. Returning *VetoError requires
the veto option. Handlers that post events need the context form.

Registrants are identified by address. A type made only of marker fields
has size zero and is rejected with ErrInvalidRegistrant; give it a field.

Markers on embedded structs are inherited. When the outer type overrides the
method, the override is what runs, once. Markers that belong on an interface
are declared with a Contract and apply to every registrant implementing it:

	var observers = eventbus.ContractFor[Observer](eventbus.Mark("Observe"))

	bus := eventbus.New(eventbus.WithContracts(observers))

# Posting

	bus := eventbus.New(eventbus.WithIdentifier("orders"))
	if err := bus.Register(&Audit{}); err != nil {
	    log.Fatal(err)
	}
	if err := bus.Post(ctx, OrderPlaced{ID: "o-1", Total: 12}); err != nil {
	    log.Fatal(err)
	}

An event no handler accepts is posted again wrapped in a DeadEvent. A
DeadEvent no handler accepts is dropped.

# Ordering and Reentrancy

Within one delivery, veto-capable handlers run before ordinary handlers.
Handlers declared for the same parameter type run in registration order;
the order across parameter types is unspecified. A handler that posts using the
context it was given does not recurse: the new event is queued and delivered
once the current delivery and everything queued before it completes. A
post with any other context, such as context.Background() from a handler
that took none, starts a separate drain and is delivered immediately.

# Vetoes

A veto-capable handler returning a non-nil *VetoError stops the delivery
before any ordinary handler runs. The veto is logged and journaled but
never returned to the poster. A veto from a handler without the veto option
panics with a *BusError.

# Failures

Handler errors go to the FailurePolicy:
  - LogFailures logs and continues (default)
  - CallbackFailures forwards to an ExceptionHandler and continues
  - ThrowFailures returns a *HandlerError from Post
  - ThrowUnrecoverable returns permanent errors and logs transient ones

WithRetry retries transient errors before the policy sees them. A rethrown
error or a handler panic drops the deliveries still queued for that context.

# Configuration

A bus can be built from a YAML or JSON file:

	s, err := config.LoadSettings("bus.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	rt, err := eventbus.FromSettings(s)
	if err != nil {
	    log.Fatal(err)
	}
	defer rt.Close(ctx)

# Observability

WithLogger, WithMetrics, WithTracing, and WithJournal attach slog logging,
OpenTelemetry metrics and spans, and an audit journal of vetoes, failures and
dead events. All of them default to no-ops except logging, which uses
slog.Default().

# Thread Safety

Bus and AsyncBus are safe for concurrent use. Register and Unregister may run
concurrently with Post; a delivery uses the handlers matched when it was
posted.
*/
package eventbus
