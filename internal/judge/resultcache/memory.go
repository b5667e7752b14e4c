package resultcache

import (
	"context"
	"sync"
	"time"

	"smartsolution/internal/judge/model"
	appErr "smartsolution/pkg/errors"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryCache is an in-process Cache backed by ttlcache.
type MemoryCache struct {
	items *ttlcache.Cache[string, model.CacheEntry]
	now   func() time.Time

	mu      sync.Mutex
	running bool
}

// NewMemoryCache creates a MemoryCache. Call Start to enable the background sweep.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items: ttlcache.New[string, model.CacheEntry](
			ttlcache.WithDisableTouchOnHit[string, model.CacheEntry](),
		),
		now: time.Now,
	}
}

// Start runs the periodic sweep of expired entries until Stop.
func (c *MemoryCache) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	go c.items.Start()
}

// Stop ends the sweep. It is a no-op when the sweep is not running.
func (c *MemoryCache) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	c.items.Stop()
}

func (c *MemoryCache) Put(ctx context.Context, submissionID string, result model.AutoJudgeResult, ttl time.Duration) error {
	if submissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if ttl <= 0 {
		return appErr.ValidationError("ttl", "must be positive")
	}
	c.items.Set(submissionID, newEntry(result, c.now(), ttl), ttl)
	return nil
}

// Get treats entries past their ExpiresAt as absent even before the sweep removes them.
func (c *MemoryCache) Get(ctx context.Context, submissionID string) (model.CacheEntry, bool, error) {
	item := c.items.Get(submissionID)
	if item == nil {
		return model.CacheEntry{}, false, nil
	}
	// Removal is left to the sweep so a concurrent Put is never dropped.
	entry := item.Value()
	if !c.now().Before(entry.ExpiresAt) {
		return model.CacheEntry{}, false, nil
	}
	return entry, true, nil
}

func (c *MemoryCache) Invalidate(ctx context.Context, submissionID string) error {
	c.items.Delete(submissionID)
	return nil
}

// Len reports the number of stored entries, including expired ones not yet swept.
func (c *MemoryCache) Len() int {
	return c.items.Len()
}
