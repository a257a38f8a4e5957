package app

import (
	"sync"
	"time"
)

// DefaultHealthCacheTTL is how long a storage probe result is reused.
const DefaultHealthCacheTTL = 10 * time.Second

// HealthCache remembers the last storage probe so that frequent health
// checks from load balancers do not hit the backend every time.
type HealthCache struct {
	mu        sync.RWMutex
	err       error
	checkedAt time.Time
	ttl       time.Duration
	now       func() time.Time
}

// NewHealthCache creates a HealthCache. A TTL of 0 disables caching.
func NewHealthCache(ttl time.Duration) *HealthCache {
	return &HealthCache{ttl: ttl, now: time.Now}
}

// Get reports whether a fresh probe result is cached, and returns it.
func (c *HealthCache) Get() (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	valid := !c.checkedAt.IsZero() && c.now().Sub(c.checkedAt) < c.ttl
	return valid, c.err
}

// Set stores a probe result.
func (c *HealthCache) Set(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
	c.checkedAt = c.now()
}

// Invalidate forces the next check to probe the backend.
func (c *HealthCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkedAt = time.Time{}
}

// TTL returns the cache's time-to-live duration.
func (c *HealthCache) TTL() time.Duration {
	return c.ttl
}
