package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Executor runs units of work for an AsyncBus. Submit must not wait for the
// work to finish; beyond that the bus assumes nothing about scheduling.
type Executor interface {
	Submit(work func())
}

// ExecutorFunc adapts a function to Executor.
//
// Example:
//
//	bus := eventbus.NewAsync(eventbus.ExecutorFunc(func(work func()) { go work() }))
type ExecutorFunc func(work func())

// Submit calls f.
func (f ExecutorFunc) Submit(work func()) {
	f(work)
}

// PanicHandler receives a value recovered from a unit of work with the
// stack captured at the point of recovery.
type PanicHandler func(recovered any, stack []byte)

// ErrPoolStopped indicates Stop was called on a stopped pool.
var ErrPoolStopped = errors.New("worker pool stopped")

// WorkerPool is an Executor backed by a fixed set of goroutines reading a
// buffered queue.
//
// When the queue is full, Submit runs the work on the submitting goroutine.
// Units of work that themselves submit work therefore never deadlock on a
// saturated pool. Work submitted after Stop is dropped and counted.
type WorkerPool struct {
	workers      int
	queueSize    int
	panicHandler PanicHandler
	logger       *slog.Logger

	mu      sync.RWMutex
	running bool
	tasks   chan func()
	wg      sync.WaitGroup

	submitted  atomic.Uint64
	callerRuns atomic.Uint64
	completed  atomic.Uint64
	panicked   atomic.Uint64
	dropped    atomic.Uint64
}

// PoolOption configures a WorkerPool.
type PoolOption func(*WorkerPool)

// WithWorkers sets the number of worker goroutines. Default: 4
func WithWorkers(n int) PoolOption {
	return func(p *WorkerPool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithQueueSize sets the queue buffer. Default: 256
func WithQueueSize(n int) PoolOption {
	return func(p *WorkerPool) {
		if n >= 0 {
			p.queueSize = n
		}
	}
}

// WithPanicHandler sets the handler for panics raised by units of work.
// Default: log the panic and its stack at error level.
func WithPanicHandler(h PanicHandler) PoolOption {
	return func(p *WorkerPool) {
		if h != nil {
			p.panicHandler = h
		}
	}
}

// WithPoolLogger sets the logger for the default panic handler and dropped
// work. Default: slog.Default()
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *WorkerPool) {
		p.logger = logger
	}
}

// NewWorkerPool creates a pool and starts its workers.
func NewWorkerPool(opts ...PoolOption) *WorkerPool {
	p := &WorkerPool{
		workers:   4,
		queueSize: 256,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = orDefault(p.logger)
	if p.panicHandler == nil {
		p.panicHandler = func(recovered any, stack []byte) {
			p.logger.Error("unit of work panicked",
				slog.Any("panic", recovered),
				slog.String("stack", string(stack)),
			)
		}
	}

	p.tasks = make(chan func(), p.queueSize)
	p.running = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit implements Executor.
func (p *WorkerPool) Submit(work func()) {
	p.mu.RLock()
	if !p.running {
		p.mu.RUnlock()
		p.dropped.Add(1)
		p.logger.Warn("worker pool stopped, work dropped")
		return
	}
	select {
	case p.tasks <- work:
		p.mu.RUnlock()
		p.submitted.Add(1)
	default:
		p.mu.RUnlock()
		p.callerRuns.Add(1)
		p.run(work)
	}
}

// Stop stops accepting work, lets the workers finish the queue, and waits
// for them or for ctx to end.
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return ErrPoolStopped
	}
	p.running = false
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for work := range p.tasks {
		p.run(work)
	}
}

// run executes work, recovering panics for the panic handler.
func (p *WorkerPool) run(work func()) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			stack := debug.Stack()
			func() {
				defer func() { _ = recover() }()
				p.panicHandler(r, stack)
			}()
			return
		}
		p.completed.Add(1)
	}()
	work()
}

// PoolStats is a snapshot of WorkerPool counters.
type PoolStats struct {
	Submitted  uint64
	CallerRuns uint64
	Completed  uint64
	Panicked   uint64
	Dropped    uint64
	QueueDepth int
}

// Stats returns the current counters.
func (p *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Submitted:  p.submitted.Load(),
		CallerRuns: p.callerRuns.Load(),
		Completed:  p.completed.Load(),
		Panicked:   p.panicked.Load(),
		Dropped:    p.dropped.Load(),
		QueueDepth: len(p.tasks),
	}
}
