package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	if _, err := c.Get(ctx, "missing"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss, got %v", err)
	}

	if err := c.Set(ctx, "k", "v", 0); err != nil {
		t.Fatal(err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil || got != "v" {
		t.Errorf("Get = %q, %v", got, err)
	}

	c.Set(ctx, "k", "v2", 0)
	if got, _ := c.Get(ctx, "k"); got != "v2" {
		t.Errorf("Set should overwrite, got %q", got)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	c.Set(ctx, "k", "v", time.Minute)

	now = now.Add(59 * time.Second)
	if _, err := c.Get(ctx, "k"); err != nil {
		t.Errorf("entry should still be live: %v", err)
	}

	now = now.Add(time.Second)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("entry should have expired, got %v", err)
	}
	if c.Len() != 0 {
		t.Error("expired entry should be evicted on read")
	}
}

func TestRedisCacheSatisfiesCache(t *testing.T) {
	var _ Cache = (*RedisCache)(nil)
	var _ Cache = (*MemoryCache)(nil)
}
