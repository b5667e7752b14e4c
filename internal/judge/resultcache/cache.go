// Package resultcache keeps the latest judging result per submission for quick read-back.
package resultcache

import (
	"context"
	"time"

	"smartsolution/internal/judge/model"
)

// Cache stores at most one current result per submission.
// Put overwrites; expired entries read as absent.
type Cache interface {
	Put(ctx context.Context, submissionID string, result model.AutoJudgeResult, ttl time.Duration) error
	Get(ctx context.Context, submissionID string) (model.CacheEntry, bool, error)
	Invalidate(ctx context.Context, submissionID string) error
}

func newEntry(result model.AutoJudgeResult, now time.Time, ttl time.Duration) model.CacheEntry {
	return model.CacheEntry{Result: result, CreatedAt: now, ExpiresAt: now.Add(ttl)}
}
