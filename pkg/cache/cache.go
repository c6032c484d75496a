// Package cache provides a small in-memory LRU cache with per-entry TTL.
//
// The engine uses it to memoize schema discovery lookups (table lists, key
// column sets) so repeated candidate checks do not hammer the backing store.
// Instances are constructed explicitly and injected; lifecycle is owned by
// the caller.
package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Cache is a bounded in-memory cache with TTL expiry and LRU eviction.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]*entry[V]
	maxSize int
	ttl     time.Duration

	stopCleanup chan struct{}
	cleanupOnce sync.Once
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
	// lastAccess is unix nanos, updated atomically so Get can touch it
	// while holding only the read lock.
	lastAccess atomic.Int64
}

// New creates a cache holding at most maxSize entries, each valid for ttl.
func New[V any](maxSize int, ttl time.Duration) *Cache[V] {
	if maxSize <= 0 {
		maxSize = 256
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache[V]{
		entries:     make(map[string]*entry[V]),
		maxSize:     maxSize,
		ttl:         ttl,
		stopCleanup: make(chan struct{}),
	}
}

// Get retrieves a value. Expired entries are treated as misses.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		// Leave deletion to Set/cleanup; Get holds only the read lock.
		return zero, false
	}
	e.lastAccess.Store(time.Now().UnixNano())
	return e.value, true
}

// Set stores a value, evicting the least recently used entry when full.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictLRU()
	}

	now := time.Now()
	e := &entry[V]{
		value:     value,
		expiresAt: now.Add(c.ttl),
	}
	e.lastAccess.Store(now.UnixNano())
	c.entries[key] = e
}

// Delete removes a single entry.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Purge removes all entries.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[V])
}

// Len returns the number of live entries (including not-yet-collected
// expired ones).
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictLRU removes the least recently used entry. Caller holds the lock.
func (c *Cache[V]) evictLRU() {
	var oldestKey string
	var oldestAccess int64
	for k, e := range c.entries {
		if la := e.lastAccess.Load(); oldestKey == "" || la < oldestAccess {
			oldestKey = k
			oldestAccess = la
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// StartCleanup launches a background goroutine that removes expired
// entries every interval. Stop it with StopCleanup.
func (c *Cache[V]) StartCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.removeExpired()
			case <-c.stopCleanup:
				return
			}
		}
	}()
}

// StopCleanup stops the background cleanup goroutine. Safe to call more
// than once.
func (c *Cache[V]) StopCleanup() {
	c.cleanupOnce.Do(func() {
		close(c.stopCleanup)
	})
}

func (c *Cache[V]) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}
