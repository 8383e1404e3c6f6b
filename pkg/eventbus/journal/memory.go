package journal

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in memory. Entries are lost when the process
// exits.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	closed  bool
}

// NewMemoryStore creates an empty in-memory journal.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record implements Store.
func (m *MemoryStore) Record(_ context.Context, e Entry) error {
	e, err := prepare(e)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	m.entries = append(m.entries, e)
	return nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, f Filter) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	out := []Entry{}
	for _, e := range m.entries {
		if !f.matches(e) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// Count implements Store.
func (m *MemoryStore) Count(_ context.Context, kind Kind) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStoreClosed
	}

	n := 0
	for _, e := range m.entries {
		if kind == "" || e.Kind == kind {
			n++
		}
	}
	return n, nil
}

// Prune implements Store.
func (m *MemoryStore) Prune(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStoreClosed
	}

	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.Timestamp.Before(before) {
			continue
		}
		kept = append(kept, e)
	}
	removed := len(m.entries) - len(kept)
	m.entries = kept
	return removed, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = nil
	return nil
}
