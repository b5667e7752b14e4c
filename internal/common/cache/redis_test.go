package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rc, err := NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new redis cache: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestRedisCacheGetMissingIsEmpty(t *testing.T) {
	rc, _ := newTestRedis(t)
	v, err := rc.Get(context.Background(), "nope")
	if err != nil || v != "" {
		t.Fatalf("Get missing = %q, %v", v, err)
	}
}

func TestRedisCacheSetExpire(t *testing.T) {
	rc, mr := newTestRedis(t)
	ctx := context.Background()
	if err := rc.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := rc.Get(ctx, "k"); v != "v" {
		t.Fatalf("Get = %q", v)
	}
	if ttl, _ := rc.TTL(ctx, "k"); ttl <= 0 {
		t.Fatalf("expected positive ttl, got %v", ttl)
	}
	mr.FastForward(2 * time.Minute)
	if v, _ := rc.Get(ctx, "k"); v != "" {
		t.Fatalf("expected expiry, got %q", v)
	}
}

func TestRedisCacheDel(t *testing.T) {
	rc, _ := newTestRedis(t)
	ctx := context.Background()
	_ = rc.Set(ctx, "a", "1", 0)
	if err := rc.Del(ctx, "a"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if err := rc.Del(ctx); err != nil {
		t.Fatalf("del with no keys: %v", err)
	}
	if v, _ := rc.Get(ctx, "a"); v != "" {
		t.Fatalf("expected deleted, got %q", v)
	}
}

func TestJitterTTL(t *testing.T) {
	for i := 0; i < 50; i++ {
		got := JitterTTL(time.Second)
		if got < 900*time.Millisecond || got > time.Second {
			t.Fatalf("jitter out of range: %v", got)
		}
	}
	if JitterTTL(0) != 0 {
		t.Fatalf("zero ttl must stay zero")
	}
}
