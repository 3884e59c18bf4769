package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache is a typed, expiring in-process cache
type Cache[V any] struct {
	store *gocache.Cache
}

// New creates a cache whose entries live for ttl and are purged every purgeWindow
func New[V any](ttl, purgeWindow time.Duration) *Cache[V] {
	return &Cache[V]{store: gocache.New(ttl, purgeWindow)}
}

// Set stores value under key with the default expiration
func (c *Cache[V]) Set(key string, value V) {
	c.store.SetDefault(key, value)
}

// Add stores value under key only if no unexpired entry exists.
// It reports whether the value was stored.
func (c *Cache[V]) Add(key string, value V) bool {
	return c.store.Add(key, value, gocache.DefaultExpiration) == nil
}

// Get returns the cached value, if present and unexpired
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	raw, found := c.store.Get(key)
	if !found {
		return zero, false
	}
	value, ok := raw.(V)
	if !ok {
		return zero, false
	}
	return value, true
}

// Delete removes key
func (c *Cache[V]) Delete(key string) {
	c.store.Delete(key)
}

// Flush removes all entries
func (c *Cache[V]) Flush() {
	c.store.Flush()
}

// Count returns the number of entries, including expired ones not yet purged
func (c *Cache[V]) Count() int {
	return c.store.ItemCount()
}
