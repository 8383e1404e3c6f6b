package eventbus

import (
	"fmt"
	"reflect"
	"strings"
)

// Subscribe marks a handler method. Declare it as a blank field whose tag
// names the method:
//
//	type Audit struct {
//	    _ eventbus.Subscribe `subscribe:"OnOrder"`
//	    _ eventbus.Subscribe `subscribe:"Check,veto"`
//	}
//
// Tag options after the method name:
//   - veto: the handler is veto-capable
//   - serial: calls to the handler never overlap
//
// Markers on embedded structs apply to the outer type, so a method marked on
// an embedded struct stays a handler when the outer type overrides it.
type Subscribe struct{}

const tagName = "subscribe"

var subscribeType = reflect.TypeFor[Subscribe]()

// declaration is the merged marker state of one method.
type declaration struct {
	canVeto bool
	serial  bool
}

func (d declaration) merge(o declaration) declaration {
	return declaration{
		canVeto: d.canVeto || o.canVeto,
		serial:  d.serial || o.serial,
	}
}

// MarkOption configures a Marker.
type MarkOption func(*declaration)

// CanVeto marks the handler veto-capable.
func CanVeto() MarkOption {
	return func(d *declaration) { d.canVeto = true }
}

// Serial serializes calls to the handler.
func Serial() MarkOption {
	return func(d *declaration) { d.serial = true }
}

// Marker declares one interface method as a handler.
type Marker struct {
	method string
	decl   declaration
}

// Mark creates a Marker for the named method.
func Mark(method string, opts ...MarkOption) Marker {
	m := Marker{method: method}
	for _, opt := range opts {
		opt(&m.decl)
	}
	return m
}

// Contract marks methods of an interface as handlers for every registrant
// that implements it. It is how a handler is declared once on an interface
// and inherited by all implementations, including implementations of
// interfaces that embed it.
type Contract struct {
	iface   reflect.Type
	markers []Marker
}

// NewContract creates a contract for iface. Every marker must name a method
// of iface.
func NewContract(iface reflect.Type, markers ...Marker) (Contract, error) {
	if iface == nil || iface.Kind() != reflect.Interface {
		return Contract{}, fmt.Errorf("%w: got %v", ErrInvalidContract, iface)
	}
	for _, m := range markers {
		if _, ok := iface.MethodByName(m.method); !ok {
			return Contract{}, fmt.Errorf("%w: %v has no method %q", ErrInvalidHandler, iface, m.method)
		}
	}
	return Contract{iface: iface, markers: markers}, nil
}

// ContractFor is NewContract for the interface type I. It panics when the
// contract is invalid, which makes it suitable for package-level variables.
func ContractFor[I any](markers ...Marker) Contract {
	c, err := NewContract(reflect.TypeFor[I](), markers...)
	if err != nil {
		panic(err)
	}
	return c
}

// Interface returns the interface type the contract applies to.
func (c Contract) Interface() reflect.Type {
	return c.iface
}

// parseTag splits a subscribe tag into the method name and its options.
func parseTag(tag string) (string, declaration, error) {
	parts := strings.Split(tag, ",")
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return "", declaration{}, fmt.Errorf("subscribe tag %q has no method name", tag)
	}

	var d declaration
	for _, opt := range parts[1:] {
		switch strings.TrimSpace(opt) {
		case "veto":
			d.canVeto = true
		case "serial":
			d.serial = true
		case "":
		default:
			return "", declaration{}, fmt.Errorf("subscribe tag %q has unknown option %q", tag, opt)
		}
	}
	return name, d, nil
}
