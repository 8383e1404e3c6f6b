package eventbus

// DeadEvent wraps an event that matched no handlers. The bus posts it once
// through the same pipeline; an unmatched DeadEvent is dropped, never wrapped
// again.
type DeadEvent struct {
	// Source is the bus that received the event.
	Source any
	// Event is the original posted value.
	Event any
}

// OriginalEvent returns the wrapped event.
func (d DeadEvent) OriginalEvent() any {
	return d.Event
}

func isDeadEvent(event any) bool {
	switch event.(type) {
	case DeadEvent, *DeadEvent:
		return true
	}
	return false
}
