// Package dedup suppresses duplicate processing of inbound events within a
// fixed time window.
package dedup

import (
	"sync"
	"time"
)

// DefaultTTL is how long an admitted key blocks re-admission.
const DefaultTTL = 60 * time.Second

// Gate is an in-memory set of in-flight inbound event keys with TTL
// eviction. A key admitted once is rejected until its TTL expires; eviction
// is unconditional and independent of whether processing finished. Callers
// must treat this as a throttle, not a durable idempotency guarantee.
type Gate struct {
	mu      sync.Mutex
	entries map[string]*time.Timer
	ttl     time.Duration
	stopped bool
}

// NewGate creates a gate with the given TTL. A non-positive TTL falls back
// to DefaultTTL.
func NewGate(ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Gate{
		entries: make(map[string]*time.Timer),
		ttl:     ttl,
	}
}

// Admit registers the key and returns true if it is not currently held.
// Returns false with no side effects when the key is already registered;
// the original eviction timer is not extended.
func (g *Gate) Admit(key string) bool {
	if key == "" {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stopped {
		return false
	}
	if _, held := g.entries[key]; held {
		return false
	}

	g.entries[key] = time.AfterFunc(g.ttl, func() {
		g.evict(key)
	})
	return true
}

// Len returns the number of keys currently held.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// Stop cancels all pending eviction timers and rejects further admissions.
func (g *Gate) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.stopped = true
	for key, timer := range g.entries {
		timer.Stop()
		delete(g.entries, key)
	}
}

func (g *Gate) evict(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, key)
}
