// Package cache provides the explicit read caches used by services. Callers populate entries
// after reads and invalidate the affected keys after every write.
package cache

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultSize = 1024
	defaultTTL  = 10 * time.Minute
)

// Cache stores values by string key with a bounded size and per-entry expiry.
type Cache[V any] struct {
	name string
	lru  *expirable.LRU[string, V]
}

// New constructs a cache. Non-positive size or ttl fall back to defaults.
func New[V any](name string, size int, ttl time.Duration) *Cache[V] {
	if size <= 0 {
		size = defaultSize
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache[V]{
		name: strings.TrimSpace(name),
		lru:  expirable.NewLRU[string, V](size, nil, ttl),
	}
}

// Name returns the cache name used in logs.
func (c *Cache[V]) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Get returns the cached value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil || key == "" {
		return zero, false
	}
	return c.lru.Get(key)
}

// Set stores value under key.
func (c *Cache[V]) Set(key string, value V) {
	if c == nil || key == "" {
		return
	}
	c.lru.Add(key, value)
}

// Invalidate removes the given keys. Empty keys are ignored.
func (c *Cache[V]) Invalidate(keys ...string) {
	if c == nil {
		return
	}
	for _, key := range keys {
		if key != "" {
			c.lru.Remove(key)
		}
	}
}

// InvalidatePrefix removes every key that starts with prefix.
func (c *Cache[V]) InvalidatePrefix(prefix string) {
	if c == nil || prefix == "" {
		return
	}
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
}

// Len reports the number of live entries.
func (c *Cache[V]) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
