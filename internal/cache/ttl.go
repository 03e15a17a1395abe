// Package cache provides a small in-process TTL store. The engine itself is
// stateless; callers that want to reuse fetched chains or computed surfaces
// inject one of these rather than reaching for a process-wide singleton.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Store maps string keys to values with a fixed time-to-live and a bounded
// entry count. Expired entries are dropped on read; when the store is full
// the entry closest to expiry is evicted first.
type Store[V any] struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	items      map[string]entry[V]
	now        func() time.Time
}

// NewStore creates a Store. maxEntries <= 0 means unbounded.
func NewStore[V any](ttl time.Duration, maxEntries int) *Store[V] {
	return &Store[V]{
		ttl:        ttl,
		maxEntries: maxEntries,
		items:      make(map[string]entry[V]),
		now:        time.Now,
	}
}

// Get returns the cached value and whether it was present and fresh.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	if s.now().After(e.expiresAt) {
		delete(s.items, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores a value, evicting the soonest-to-expire entry when at capacity.
func (s *Store[V]) Set(key string, v V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxEntries > 0 && len(s.items) >= s.maxEntries {
		if _, exists := s.items[key]; !exists {
			s.evictOldestLocked()
		}
	}

	s.items[key] = entry[V]{value: v, expiresAt: s.now().Add(s.ttl)}
}

// Delete removes a single entry.
func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

// Purge drops every entry.
func (s *Store[V]) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]entry[V])
}

// Len reports the number of entries, counting expired ones not yet swept.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store[V]) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
		first     = true
	)
	for k, e := range s.items {
		if first || e.expiresAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.expiresAt
			first = false
		}
	}
	if !first {
		delete(s.items, oldestKey)
	}
}
