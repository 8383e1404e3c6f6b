package eventbus

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

type resultKind int

const (
	resultNone resultKind = iota
	resultError
	resultVeto
)

// Handler describes one subscribed method of one registrant. Two handlers
// are the same subscription when they share the target pointer and the
// method name.
type Handler struct {
	target    any
	method    reflect.Method
	fn        reflect.Value
	eventType reflect.Type
	withCtx   bool
	result    resultKind
	canVeto   bool
	serial    bool
	name      string

	// mu serializes calls when serial is set.
	mu sync.Mutex
}

// Target returns the registrant that owns the handler.
func (h *Handler) Target() any { return h.target }

// Method returns the handler method.
func (h *Handler) Method() reflect.Method { return h.method }

// EventType returns the declared event parameter type.
func (h *Handler) EventType() reflect.Type { return h.eventType }

// CanVeto reports whether the handler may veto deliveries.
func (h *Handler) CanVeto() bool { return h.canVeto }

// Serial reports whether calls to the handler are serialized.
func (h *Handler) Serial() bool { return h.serial }

// String returns the receiver type and method name.
func (h *Handler) String() string { return h.name }

// newHandler validates m against the accepted handler forms:
//
//	func(E) [error | *VetoError]
//	func(context.Context, E) [error | *VetoError]
//
// Only the second form can re-post in delivery order.
func newHandler(target any, v reflect.Value, m reflect.Method, d declaration) (*Handler, error) {
	t := v.Type()
	invalid := func(reason string) error {
		return &ConfigError{Type: t, Method: m.Name, Reason: reason, Err: ErrInvalidHandler}
	}

	ft := m.Type // In(0) is the receiver
	if ft.IsVariadic() {
		return nil, invalid("variadic methods cannot be handlers")
	}

	h := &Handler{
		target:  target,
		method:  m,
		fn:      v.Method(m.Index),
		canVeto: d.canVeto,
		serial:  d.serial,
		name:    fmt.Sprintf("%v.%s", t, m.Name),
	}

	switch ft.NumIn() - 1 {
	case 1:
		h.eventType = ft.In(1)
	case 2:
		if ft.In(1) != contextType {
			return nil, invalid("first of two parameters must be context.Context")
		}
		h.withCtx = true
		h.eventType = ft.In(2)
	default:
		return nil, invalid(fmt.Sprintf("expected one event parameter, got %d parameters", ft.NumIn()-1))
	}

	switch {
	case ft.NumOut() == 0:
		h.result = resultNone
	case ft.NumOut() == 1 && ft.Out(0) == errorType:
		h.result = resultError
	case ft.NumOut() == 1 && ft.Out(0) == vetoErrorType:
		h.result = resultVeto
	default:
		return nil, invalid("results must be empty, error, or *VetoError")
	}

	if h.result == resultVeto && !h.canVeto {
		return nil, &ConfigError{Type: t, Method: m.Name, Err: ErrVetoNotAllowed}
	}
	return h, nil
}

// call invokes the method. Panics from the method propagate unchanged.
func (h *Handler) call(ctx context.Context, event any) error {
	if h.serial {
		h.mu.Lock()
		defer h.mu.Unlock()
	}

	var in [2]reflect.Value
	args := in[:0]
	if h.withCtx {
		args = append(args, reflect.ValueOf(ctx))
	}
	args = append(args, reflect.ValueOf(event))

	out := h.fn.Call(args)
	if h.result == resultNone || out[0].IsNil() {
		return nil
	}
	return out[0].Interface().(error)
}
