package eventbus

import (
	"context"
	"reflect"
	"sync"
)

// delivery is one posted event with the handlers it matched, captured
// before any handler runs.
type delivery struct {
	id        string
	event     any
	eventType string
	vetoers   []*Handler
	handlers  []*Handler
}

// dispatchState sequences deliveries for one dispatch context. A drain loop
// owns the state while draining is set; posts made meanwhile only enqueue.
type dispatchState struct {
	mu       sync.Mutex
	queue    []*delivery
	draining bool
}

// enqueue appends d and reports whether the caller must drain.
func (s *dispatchState) enqueue(d *delivery) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = append(s.queue, d)
	if s.draining {
		return false
	}
	s.draining = true
	return true
}

// next pops the head delivery. When the queue is empty it releases the
// drain in the same critical section, so a concurrent enqueue either lands
// before the release or starts a new drain.
func (s *dispatchState) next() (*delivery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		s.draining = false
		s.queue = nil
		return nil, false
	}
	d := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return d, true
}

// abort discards queued deliveries and releases the drain.
func (s *dispatchState) abort() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.queue)
	s.queue = nil
	s.draining = false
	return n
}

type dispatchKey struct {
	c *core
}

// stateFrom returns the dispatch state c stored in ctx.
func stateFrom(ctx context.Context, c *core) (*dispatchState, bool) {
	s, ok := ctx.Value(dispatchKey{c}).(*dispatchState)
	return s, ok
}

func withState(ctx context.Context, c *core, s *dispatchState) context.Context {
	return context.WithValue(ctx, dispatchKey{c}, s)
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
