package eventbus

import (
	"fmt"
	"reflect"
)

// VetoError is the veto signal. A veto-capable handler returns one to stop
// delivery of the current event to ordinary handlers. Vetoes are recorded,
// never returned to the poster.
type VetoError struct {
	Reason string
}

// Veto builds a VetoError with a formatted reason.
func Veto(format string, args ...any) *VetoError {
	return &VetoError{Reason: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *VetoError) Error() string {
	if e.Reason == "" {
		return "vetoed"
	}
	return "vetoed: " + e.Reason
}

var vetoErrorType = reflect.TypeFor[*VetoError]()
