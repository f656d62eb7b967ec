package token

import (
	"sync"
	"time"
)

// RevokedSessionCache remembers revoked session handles until their last
// access token expires, so tokens of a revoked session are rejected without
// a database lookup.
type RevokedSessionCache interface {
	Add(handle string, until time.Time)
	IsRevoked(handle string, now time.Time) bool
	Cleanup(now time.Time) // Remove expired entries
}

// InMemoryRevokedSessionCache is a simple in-memory implementation
type InMemoryRevokedSessionCache struct {
	revoked map[string]time.Time
	mu      sync.RWMutex
}

func NewInMemoryRevokedSessionCache() *InMemoryRevokedSessionCache {
	return &InMemoryRevokedSessionCache{
		revoked: make(map[string]time.Time),
	}
}

func (c *InMemoryRevokedSessionCache) Add(handle string, until time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[handle] = until
}

// IsRevoked reports whether handle was revoked and its entry is still live
// at now. Expired entries count as absent even before Cleanup removes them.
func (c *InMemoryRevokedSessionCache) IsRevoked(handle string, now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	until, exists := c.revoked[handle]
	return exists && !now.After(until)
}

func (c *InMemoryRevokedSessionCache) Cleanup(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for handle, until := range c.revoked {
		if now.After(until) {
			delete(c.revoked, handle)
		}
	}
}
