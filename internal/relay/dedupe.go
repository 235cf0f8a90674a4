package relay

import (
	"sync"
	"time"
)

// dedupeCache remembers envelope ids for a fixed window.
type dedupeCache struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	seen   map[string]time.Time // id -> expiry
}

func newDedupeCache(window time.Duration, now func() time.Time) *dedupeCache {
	return &dedupeCache{
		window: window,
		now:    now,
		seen:   make(map[string]time.Time),
	}
}

// Seen reports whether id was recorded within the window, and records it
// if not.
func (c *dedupeCache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, expiry := range c.seen {
		if !now.Before(expiry) {
			delete(c.seen, k)
		}
	}

	if _, ok := c.seen[id]; ok {
		return true
	}
	c.seen[id] = now.Add(c.window)
	return false
}

// Len returns the number of remembered ids.
func (c *dedupeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
