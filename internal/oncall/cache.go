package oncall

import (
	"context"
	"strings"
	"sync"
	"time"
)

type cacheEntry struct {
	engineer  Engineer
	expiresAt time.Time
}

// CachingProvider remembers engineer lookups of another provider for a fixed
// TTL. Rotations are always fetched fresh.
type CachingProvider struct {
	next Provider
	ttl  time.Duration
	now  func() time.Time

	mu          sync.RWMutex
	entries     map[string]cacheEntry
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewCachingProvider wraps next. Expired entries are swept every
// cleanupInterval until Stop is called.
func NewCachingProvider(next Provider, ttl, cleanupInterval time.Duration) *CachingProvider {
	c := &CachingProvider{
		next:        next,
		ttl:         ttl,
		now:         time.Now,
		entries:     make(map[string]cacheEntry),
		stopCleanup: make(chan struct{}),
	}
	go c.cleanupLoop(cleanupInterval)
	return c
}

func (c *CachingProvider) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *CachingProvider) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// PrimaryAndSecondary delegates to the wrapped provider
func (c *CachingProvider) PrimaryAndSecondary(ctx context.Context) (Rotation, error) {
	return c.next.PrimaryAndSecondary(ctx)
}

// Engineer serves a cached lookup when one is fresh. Failed lookups are not cached.
func (c *CachingProvider) Engineer(ctx context.Context, email string) (*Engineer, error) {
	key := strings.ToLower(email)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && !c.now().After(entry.expiresAt) {
		e := entry.engineer
		return &e, nil
	}

	e, err := c.next.Engineer(ctx, email)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{engineer: *e, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return e, nil
}

// Len returns the number of cached entries, expired ones included
func (c *CachingProvider) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop ends the background sweep. It is safe to call more than once.
func (c *CachingProvider) Stop() {
	c.stopOnce.Do(func() { close(c.stopCleanup) })
}
