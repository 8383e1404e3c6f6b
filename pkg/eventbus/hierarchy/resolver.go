package hierarchy

import (
	"reflect"
	"sync"
)

// AnyType is the universal root type. Every closure ends with it.
var AnyType = reflect.TypeFor[any]()

// Resolver computes and memoizes type closures against a growing set of
// known interfaces.
type Resolver struct {
	mu         sync.RWMutex
	interfaces []reflect.Type
	known      map[reflect.Type]struct{}
	closures   *Cache[reflect.Type, []reflect.Type]
}

// NewResolver creates a resolver with an empty interface universe.
func NewResolver() *Resolver {
	return &Resolver{
		known:    make(map[reflect.Type]struct{}),
		closures: NewCache[reflect.Type, []reflect.Type](),
	}
}

// Declare adds interface types to the universe considered by Closure.
// Non-interface types and the root type are ignored. Declare reports
// whether the universe grew; when it does, memoized closures are dropped.
func (r *Resolver) Declare(types ...reflect.Type) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	grew := false
	for _, t := range types {
		if t == nil || t.Kind() != reflect.Interface || t == AnyType {
			continue
		}
		if _, ok := r.known[t]; ok {
			continue
		}
		r.known[t] = struct{}{}
		r.interfaces = append(r.interfaces, t)
		grew = true
	}
	if grew {
		r.closures.Reset()
	}
	return grew
}

// Closure returns every type a value of type t can be delivered as: t
// itself, each declared interface t implements in declaration order, and
// AnyType. A nil t yields only AnyType.
//
// The returned slice is shared with the memo and must not be modified.
func (r *Resolver) Closure(t reflect.Type) []reflect.Type {
	if t == nil {
		return []reflect.Type{AnyType}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closures.GetOrCreate(t, func() []reflect.Type {
		return r.compute(t)
	})
}

// compute walks the universe. Callers hold r.mu.
func (r *Resolver) compute(t reflect.Type) []reflect.Type {
	out := make([]reflect.Type, 0, 2+len(r.interfaces))
	out = append(out, t)
	for _, iface := range r.interfaces {
		if iface == t {
			continue
		}
		if t.Implements(iface) {
			out = append(out, iface)
		}
	}
	if t != AnyType {
		out = append(out, AnyType)
	}
	return out
}

// cached reports how many closures are currently memoized.
func (r *Resolver) cached() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closures.len()
}
