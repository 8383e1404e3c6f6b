package eventbus

import (
	"reflect"
	"sync"
)

// registry maps declared event types to handlers in registration order.
type registry struct {
	mu       sync.RWMutex
	byType   map[reflect.Type][]*Handler
	byTarget map[any][]*Handler
}

func newRegistry() *registry {
	return &registry{
		byType:   make(map[reflect.Type][]*Handler),
		byTarget: make(map[any][]*Handler),
	}
}

// add inserts handlers of target that are not registered yet and returns
// the ones added.
func (r *registry) add(target any, handlers []*Handler) []*Handler {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing := make(map[string]bool, len(r.byTarget[target]))
	for _, h := range r.byTarget[target] {
		existing[h.method.Name] = true
	}

	var added []*Handler
	for _, h := range handlers {
		if existing[h.method.Name] {
			continue
		}
		existing[h.method.Name] = true
		r.byType[h.eventType] = append(r.byType[h.eventType], h)
		r.byTarget[target] = append(r.byTarget[target], h)
		added = append(added, h)
	}
	return added
}

// remove deletes every handler of target. It returns ErrNotRegistered when
// target has none.
func (r *registry) remove(target any) ([]*Handler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handlers := r.byTarget[target]
	if len(handlers) == 0 {
		return nil, ErrNotRegistered
	}
	delete(r.byTarget, target)

	for _, h := range handlers {
		list := r.byType[h.eventType]
		kept := make([]*Handler, 0, len(list))
		for _, other := range list {
			if other != h {
				kept = append(kept, other)
			}
		}
		if len(kept) == 0 {
			delete(r.byType, h.eventType)
		} else {
			r.byType[h.eventType] = kept
		}
	}
	return handlers, nil
}

// handlersFor returns a snapshot of the handlers declared for exactly t.
func (r *registry) handlersFor(t reflect.Type) []*Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.byType[t]
	out := make([]*Handler, len(list))
	copy(out, list)
	return out
}

// match collects the handlers of every type in closure under one lock and
// splits them into veto-capable and ordinary handlers.
func (r *registry) match(closure []reflect.Type) (vetoers, ordinary []*Handler) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range closure {
		for _, h := range r.byType[t] {
			if h.canVeto {
				vetoers = append(vetoers, h)
			} else {
				ordinary = append(ordinary, h)
			}
		}
	}
	return vetoers, ordinary
}
