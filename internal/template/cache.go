package template

import (
	"strings"
	"sync"
	"time"
)

// Cache memoizes rendered output keyed by (pattern, serialized variables).
// Entries optionally expire after a TTL. A Cache is an explicit component
// with its own lifecycle; callers create one per pipeline rather than
// sharing a process-wide singleton, so concurrent runs don't leak state.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration

	hits   int64
	misses int64

	// now is swappable for expiry tests.
	now func() time.Time
}

type cacheEntry struct {
	content string
	addedAt time.Time
}

// NewCache creates a cache. A zero ttl disables expiry.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Invalidate drops every cached rendering of the given pattern,
// regardless of the variable bag it was rendered with.
func (c *Cache) Invalidate(pattern string) {
	prefix := pattern + "\x00"
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

// InvalidateAll empties the cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Stats returns cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

func (c *Cache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if ok && c.ttl > 0 && c.now().Sub(entry.addedAt) > c.ttl {
		delete(c.entries, key)
		ok = false
	}
	if !ok {
		c.misses++
		return "", false
	}
	c.hits++
	return entry.content, true
}

func (c *Cache) put(key, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{content: content, addedAt: c.now()}
}
