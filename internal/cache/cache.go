// Package cache provides the TTL + LRU keyed cache used to memoize search
// results. Keys are namespaced as "scope:rest" so whole scopes can be
// invalidated without touching unrelated entries.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// entry pairs a cached value with its insertion timestamp.
type entry struct {
	value    any
	storedAt time.Time
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Expired   int64 `json:"expired"`
	Entries   int   `json:"entries"`
	MaxSize   int   `json:"max_size"`
}

// Cache is a TTL + LRU keyed cache. All operations are serialized under a
// single mutex; hold times are microseconds, so contention is acceptable.
type Cache struct {
	mu      sync.Mutex
	lru     *simplelru.LRU[string, entry]
	ttl     time.Duration
	maxSize int

	hits      int64
	misses    int64
	evictions int64
	expired   int64

	// now is swappable for deterministic TTL tests.
	now func() time.Time
}

// New creates a cache with the given maximum entry count and TTL.
// A non-positive size defaults to 1024; a non-positive TTL means no expiry.
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	c := &Cache{ttl: ttl, maxSize: maxEntries, now: time.Now}
	// Error is impossible for size > 0.
	c.lru, _ = simplelru.NewLRU[string, entry](maxEntries, nil)
	return c
}

// Set stores a value under key, replacing any existing entry.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lru.Len() == c.maxSize && !c.lru.Contains(key) {
		c.evictions++
	}
	c.lru.Add(key, entry{value: value, storedAt: c.now()})
}

// Get returns the value for key. Entries older than the TTL are removed and
// reported as a miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(e.storedAt) > c.ttl {
		c.lru.Remove(key)
		c.expired++
		c.misses++
		return nil, false
	}
	c.hits++
	return e.value, true
}

// Delete removes a single key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// ClearAll removes every entry.
func (c *Cache) ClearAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.lru.Len()
	c.lru.Purge()
	return n
}

// ClearScope removes all keys starting with "prefix:".
// Returns the number of entries removed.
func (c *Cache) ClearScope(scope string) int {
	prefix := scope + ":"

	c.mu.Lock()
	defer c.mu.Unlock()

	var removed int
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed
}

// ClearPattern removes all keys matching the glob pattern.
// Returns the number of entries removed, or an error for a bad pattern.
func (c *Cache) ClearPattern(pattern string) (int, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var removed int
	for _, key := range c.lru.Keys() {
		if g.Match(key) {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the current entry count, including not-yet-expired entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expired,
		Entries:   c.lru.Len(),
		MaxSize:   c.maxSize,
	}
}
