package marketdata

import (
	"sync"
	"time"
)

// SimplePrice is the CoinGecko /simple/price response shape:
// coin id -> currency -> price.
type SimplePrice map[string]map[string]float64

type cacheEntry struct {
	prices     SimplePrice
	insertedAt time.Time
}

// Cache is a TTL cache for price responses keyed by endpoint+params.
// Expiration is an explicit insertion-time check, so a stale price is
// never served no matter how few keys the cache holds.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry

	// now is swappable for tests.
	now func() time.Time
}

// NewCache creates a cache whose entries expire ttl after insertion.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached response and its insertion time, or ok=false if
// the key is absent or expired. Expired entries are evicted on access.
func (c *Cache) Get(key string) (SimplePrice, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, time.Time{}, false
	}
	if c.now().Sub(entry.insertedAt) > c.ttl {
		delete(c.entries, key)
		return nil, time.Time{}, false
	}
	return entry.prices, entry.insertedAt, true
}

// Set stores a response under the key, stamping the insertion time.
func (c *Cache) Set(key string, prices SimplePrice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{prices: prices, insertedAt: c.now()}
}

// Clear drops every entry. Useful for tests and forced invalidation.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
