package source

import (
	"sync"

	"github.com/chazu/topoc/pkg/metrics"
)

// Cache is a thread-safe in-memory cache keyed by content digest.
// Entries never expire: a digest always names the same content.
type Cache[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// NewCache creates a new cache instance
func NewCache[V any]() *Cache[V] {
	return &Cache[V]{items: make(map[string]V)}
}

// Get retrieves a value from the cache, recording a hit or miss
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	value, found := c.items[key]
	c.mu.RUnlock()

	if found {
		metrics.RecordCacheHit("memory")
	} else {
		metrics.RecordCacheMiss("memory")
	}
	return value, found
}

// Set stores a value in the cache
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
}

// Size returns the number of items in the cache
func (c *Cache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
