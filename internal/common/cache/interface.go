package cache

import (
	"context"
	"time"
)

// Cache defines the key-value operations the judge service needs from a cache backend.
type Cache interface {
	// Get returns the value for key, or "" when the key does not exist.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair. A ttl of 0 means no expiry.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Del deletes one or more keys.
	Del(ctx context.Context, keys ...string) error

	// TTL returns the remaining time to live of a key.
	TTL(ctx context.Context, key string) (time.Duration, error)

	Ping(ctx context.Context) error
	Close() error
}
