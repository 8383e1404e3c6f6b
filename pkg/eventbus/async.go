package eventbus

import (
	"context"
	"reflect"
	"sync/atomic"

	"github.com/dustinxie/lockfree"

	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
)

// AsyncBus delivers events through an Executor.
//
// All posters share one lock-free queue. Whichever poster wins the drain
// flag moves queued deliveries to the executor; the others return as soon
// as their delivery is enqueued. Post never waits for handlers.
//
// A delivery without veto-capable handlers is submitted as one unit of work
// per handler. A delivery with veto-capable handlers is submitted as one
// unit that runs the veto gate and, if nothing vetoed, submits one unit per
// ordinary handler. The order in which units run is up to the executor.
//
// Handler errors rethrown by the failure policy have no poster to return to
// and are logged. Panics are left to the executor: WorkerPool recovers them
// and reports them to its PanicHandler.
type AsyncBus struct {
	core     *core
	executor Executor
	queue    lockfree.Queue
	draining atomic.Bool
}

// queued pairs a delivery with the context it was posted with.
type queued struct {
	ctx context.Context
	d   *delivery
}

// NewAsync creates an asynchronous bus that runs handlers on executor. It
// panics if executor is nil.
//
// Example:
//
//	pool := eventbus.NewWorkerPool(eventbus.WithWorkers(8))
//	defer pool.Stop(context.Background())
//	bus := eventbus.NewAsync(pool, eventbus.WithIdentifier("orders"))
func NewAsync(executor Executor, opts ...Option) *AsyncBus {
	if executor == nil {
		panic("eventbus: NewAsync requires an executor")
	}
	b := &AsyncBus{
		core:     newCore(opts),
		executor: executor,
		queue:    lockfree.NewQueue(),
	}
	b.core.source = b
	return b
}

// Register adds every handler declared by registrant. See Bus.Register.
func (b *AsyncBus) Register(registrant any) error {
	return b.core.register(registrant)
}

// Unregister removes every handler contributed by registrant. See
// Bus.Unregister.
func (b *AsyncBus) Unregister(registrant any) error {
	return b.core.unregister(registrant)
}

// Post queues event for delivery and returns. Handlers matched at this
// moment are the ones that will run, even if they are unregistered before
// the executor gets to them.
//
// Handlers receive ctx without its cancellation, so values such as trace
// spans flow through but a finished request does not abort its events.
func (b *AsyncBus) Post(ctx context.Context, event any) error {
	if err := checkPost(ctx, event); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	d := b.core.prepare(ctx, event)
	if d == nil {
		return nil
	}
	b.queue.Enque(queued{ctx: ctx, d: d})
	b.drain()
	return nil
}

// drain hands queued deliveries to the executor. Only one goroutine drains
// at a time; the length check after releasing the flag picks up deliveries
// enqueued by posters that lost the race for it.
func (b *AsyncBus) drain() {
	for {
		if !b.draining.CompareAndSwap(false, true) {
			return
		}
		for {
			v := b.queue.Deque()
			if v == nil {
				break
			}
			q := v.(queued)
			b.submit(q.ctx, q.d)
		}
		b.draining.Store(false)

		if b.queue.Len() == 0 {
			return
		}
	}
}

func (b *AsyncBus) submit(ctx context.Context, d *delivery) {
	ctx, span := b.core.spans.StartDeliverySpan(ctx, b.core.id, d.id, d.eventType)
	defer b.core.spans.EndSpanWithError(span, nil)

	observability.LogDelivery(b.core.logger, d.id, d.eventType, len(d.vetoers), len(d.handlers))

	if len(d.vetoers) == 0 {
		b.submitHandlers(ctx, d)
		return
	}
	b.executor.Submit(func() {
		vetoed, err := b.core.gate(ctx, d)
		if err != nil {
			observability.LogAsyncFailure(b.core.logger, d.id, err)
			return
		}
		if !vetoed {
			b.submitHandlers(ctx, d)
		}
	})
}

func (b *AsyncBus) submitHandlers(ctx context.Context, d *delivery) {
	for _, h := range d.handlers {
		b.executor.Submit(func() {
			if _, err := b.core.invoke(ctx, d, h); err != nil {
				observability.LogAsyncFailure(b.core.logger, d.id, err)
			}
		})
	}
}

// Pending returns the number of deliveries not yet handed to the executor.
func (b *AsyncBus) Pending() int {
	return int(b.queue.Len())
}

// HandlersFor returns the handlers declared for exactly t.
func (b *AsyncBus) HandlersFor(t reflect.Type) []*Handler {
	return b.core.handlersFor(t)
}

// Closure returns the types an event of type t is delivered as.
func (b *AsyncBus) Closure(t reflect.Type) []reflect.Type {
	return b.core.closure(t)
}

// Identifier returns the bus name.
func (b *AsyncBus) Identifier() string {
	return b.core.id
}
