// Package hierarchy computes type closures for event routing.
//
// A closure is the set of types a value of some runtime type can be delivered
// as: the type itself, every known interface it implements, and the universal
// root type any. Go has no class hierarchy and no registry of interfaces, so a
// Resolver only considers interfaces that were declared to it. The event bus
// declares every interface used as a handler parameter type, which is exactly
// the set of interfaces that can ever match.
//
// # Basic Usage
//
//	r := hierarchy.NewResolver()
//	r.Declare(reflect.TypeFor[fmt.Stringer]())
//
//	for _, t := range r.Closure(reflect.TypeOf(myEvent)) {
//	    fmt.Println(t) // main.MyEvent, fmt.Stringer, interface {}
//	}
//
// # Caching
//
// Closures are memoized per type in a Cache. Declaring a new interface drops
// the memo so later lookups see the larger universe. Embedded struct types are
// never part of a closure: an outer struct is not assignable to the type it
// embeds.
//
// # Thread Safety
//
// Resolver and Cache are safe for concurrent use. Cache.GetOrCreate calls its
// factory at most once per key, even under concurrent access.
package hierarchy
