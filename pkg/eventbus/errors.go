package eventbus

import (
	"errors"
	"fmt"
	"reflect"
)

// Sentinel errors for registration.
var (
	// ErrInvalidRegistrant indicates Register or Unregister was given a nil
	// value or a value that is not a pointer, or Register was given a
	// pointer to a zero-size type that declares handlers.
	ErrInvalidRegistrant = errors.New("invalid registrant")

	// ErrInvalidHandler indicates a marker names a method that is missing
	// from the registrant's method set or has an unsupported signature.
	ErrInvalidHandler = errors.New("invalid handler method")

	// ErrVetoNotAllowed indicates a method can return a veto but none of its
	// markers declare it veto-capable.
	ErrVetoNotAllowed = errors.New("handler returns a veto but is not marked veto-capable")

	// ErrInvalidContract indicates a contract was built for a type that is
	// not an interface.
	ErrInvalidContract = errors.New("contract type must be an interface")

	// ErrNotRegistered indicates Unregister was called for a registrant that
	// contributed no handlers.
	ErrNotRegistered = errors.New("registrant has no registered handlers")
)

// Sentinel errors for posting.
var (
	// ErrNilContext indicates Post was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrNilEvent indicates Post was called with a nil event.
	ErrNilEvent = errors.New("event cannot be nil")
)

// ConfigError describes why a registrant's declarations were rejected.
type ConfigError struct {
	// Type is the registrant type.
	Type reflect.Type
	// Method is the offending method name, empty when the registrant itself
	// is invalid.
	Method string
	// Reason adds detail to Err.
	Reason string
	// Err is one of the registration sentinels.
	Err error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := e.Err.Error()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Method == "" {
		return fmt.Sprintf("register %v: %s", e.Type, msg)
	}
	return fmt.Sprintf("register %v.%s: %s", e.Type, e.Method, msg)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// HandlerError is a handler failure surfaced to the poster by a rethrowing
// failure policy.
type HandlerError struct {
	// DeliveryID identifies the delivery the handler was part of.
	DeliveryID string
	// Event is the posted value.
	Event any
	// Target is the registrant that owns the handler.
	Target any
	// Method is the handler method.
	Method reflect.Method
	// Attempts counts invocations, including retries.
	Attempts int
	// Err is the error the handler returned.
	Err error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %T.%s failed on %T: %v", e.Target, e.Method.Name, e.Event, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// BusError is raised by panic for programming errors the bus refuses to
// treat as handler failures, such as a veto from a handler that is not
// veto-capable.
type BusError struct {
	// Handler names the offending handler.
	Handler string
	// Err is the error that triggered the panic.
	Err error
}

// Error implements the error interface.
func (e *BusError) Error() string {
	return fmt.Sprintf("event bus: handler %s: %v", e.Handler, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *BusError) Unwrap() error {
	return e.Err
}
