package resultcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"smartsolution/internal/common/cache"
	"smartsolution/internal/judge/model"
	appErr "smartsolution/pkg/errors"
)

const resultKeyPrefix = "judge:result:"

// RedisCache stores JSON-encoded entries with a native redis TTL.
type RedisCache struct {
	cache cache.Cache
	now   func() time.Time
}

// NewRedisCache creates a RedisCache on top of a cache client.
func NewRedisCache(cacheClient cache.Cache) *RedisCache {
	return &RedisCache{cache: cacheClient, now: time.Now}
}

func (r *RedisCache) Put(ctx context.Context, submissionID string, result model.AutoJudgeResult, ttl time.Duration) error {
	if submissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if ttl <= 0 {
		return appErr.ValidationError("ttl", "must be positive")
	}
	if r.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	data, err := json.Marshal(newEntry(result, r.now(), ttl))
	if err != nil {
		return fmt.Errorf("marshal result failed: %w", err)
	}
	if err := r.cache.Set(ctx, resultKeyPrefix+submissionID, string(data), ttl); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store result failed")
	}
	return nil
}

func (r *RedisCache) Get(ctx context.Context, submissionID string) (model.CacheEntry, bool, error) {
	if r.cache == nil {
		return model.CacheEntry{}, false, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	val, err := r.cache.Get(ctx, resultKeyPrefix+submissionID)
	if err != nil {
		return model.CacheEntry{}, false, appErr.Wrapf(err, appErr.CacheError, "load result failed")
	}
	if val == "" {
		return model.CacheEntry{}, false, nil
	}
	var entry model.CacheEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return model.CacheEntry{}, false, appErr.Wrapf(err, appErr.CacheError, "decode result failed")
	}
	if !r.now().Before(entry.ExpiresAt) {
		return model.CacheEntry{}, false, nil
	}
	return entry, true, nil
}

func (r *RedisCache) Invalidate(ctx context.Context, submissionID string) error {
	if r.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	if err := r.cache.Del(ctx, resultKeyPrefix+submissionID); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "invalidate result failed")
	}
	return nil
}
