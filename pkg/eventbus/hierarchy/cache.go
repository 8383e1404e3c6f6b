package hierarchy

import "sync"

// Cache is a thread-safe memo for values indexed by key.
// It uses sync.RWMutex for read-heavy workloads.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

// NewCache creates an empty cache.
func NewCache[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		entries: make(map[K]V),
	}
}

// len returns the number of cached entries.
func (c *Cache[K, V]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Reset drops every entry.
func (c *Cache[K, V]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]V)
}

// GetOrCreate returns the value for a key, creating it with the factory
// function if it doesn't exist. The factory is called at most once per key,
// even under concurrent access.
func (c *Cache[K, V]) GetOrCreate(key K, factory func() V) V {
	// Fast path: check if already exists
	c.mu.RLock()
	v, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return v
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if v, ok := c.entries[key]; ok {
		return v
	}

	v = factory()
	c.entries[key] = v
	return v
}
