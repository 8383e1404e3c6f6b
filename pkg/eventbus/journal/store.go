// Package journal records the outcomes a bus cannot report to the poster:
// vetoes, swallowed handler failures, and dead events.
//
// A journal is an audit trail. Entries describe what happened to a delivery;
// they never hold the event itself and are never replayed.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store persists journal entries.
// Implementations must be safe for concurrent use.
type Store interface {
	// Record appends an entry. A missing ID or Timestamp is filled in.
	Record(ctx context.Context, e Entry) error

	// List returns matching entries in recording order.
	// Returns an empty slice (not error) when nothing matches.
	List(ctx context.Context, f Filter) ([]Entry, error)

	// Count returns the number of entries of a kind. An empty kind counts
	// every entry.
	Count(ctx context.Context, kind Kind) (int, error)

	// Prune removes entries recorded before the cutoff and returns how many
	// were removed.
	Prune(ctx context.Context, before time.Time) (int, error)

	// Close releases any resources (connections, files).
	Close() error
}

// Kind classifies an entry.
type Kind string

const (
	// KindVeto marks a delivery cancelled by a veto-capable handler.
	KindVeto Kind = "veto"

	// KindFailure marks a handler error.
	KindFailure Kind = "failure"

	// KindDeadEvent marks an event that matched no handlers.
	KindDeadEvent Kind = "dead_event"
)

// Entry is one journal record.
type Entry struct {
	ID         string
	Bus        string
	DeliveryID string
	Kind       Kind
	EventType  string
	Handler    string
	Message    string
	Timestamp  time.Time
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Kind       Kind
	DeliveryID string
	// Limit caps the result size; 0 means no limit.
	Limit int
}

func (f Filter) matches(e Entry) bool {
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.DeliveryID != "" && e.DeliveryID != f.DeliveryID {
		return false
	}
	return true
}

// Sentinel errors for journal operations.
var (
	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("journal store closed")

	// ErrInvalidEntry indicates an entry without a kind.
	ErrInvalidEntry = errors.New("journal entry requires a kind")
)

// prepare validates e and fills generated fields.
func prepare(e Entry) (Entry, error) {
	if e.Kind == "" {
		return Entry{}, ErrInvalidEntry
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Timestamp = e.Timestamp.UTC()
	return e, nil
}
