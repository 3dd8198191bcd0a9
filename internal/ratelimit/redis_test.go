package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStoreIncrementRefreshesExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := setupRedisStore(t)
	window := 15 * time.Minute

	for i := 1; i <= 3; i++ {
		n, err := store.Increment(ctx, "login:alice", window)
		if err != nil || n != i {
			t.Fatalf("increment %d returned %d err=%v", i, n, err)
		}
		mr.FastForward(5 * time.Minute)
	}

	if ttl := mr.TTL(redisKeyPrefix + "login:alice"); ttl != 10*time.Minute {
		t.Fatalf("expected expiry refreshed by last increment, got %v", ttl)
	}
	if count, _ := store.Count(ctx, "login:alice", window); count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}

	mr.FastForward(10 * time.Minute)
	if count, _ := store.Count(ctx, "login:alice", window); count != 0 {
		t.Fatalf("expected idle key to expire, got %d", count)
	}
}

func TestRedisStoreAttempt(t *testing.T) {
	ctx := context.Background()
	store, mr := setupRedisStore(t)

	for i := 1; i <= 3; i++ {
		d, err := store.Attempt(ctx, "password_reset:alice", 3, time.Hour)
		if err != nil || !d.Allowed || d.Count != i {
			t.Fatalf("attempt %d: %+v err=%v", i, d, err)
		}
	}

	mr.FastForward(15 * time.Minute)
	d, err := store.Attempt(ctx, "password_reset:alice", 3, time.Hour)
	if err != nil {
		t.Fatalf("attempt failed: %v", err)
	}
	if d.Allowed || d.Count != 3 {
		t.Fatalf("expected denial at limit, got %+v", d)
	}
	if d.RetryAfter != 45*time.Minute {
		t.Fatalf("expected 45m retry, got %v", d.RetryAfter)
	}
}

func TestRedisStoreResetAndTTL(t *testing.T) {
	ctx := context.Background()
	store, _ := setupRedisStore(t)

	if ttl, err := store.TTL(ctx, "login:nobody", time.Minute); err != nil || ttl != 0 {
		t.Fatalf("expected zero ttl for missing key, got %v err=%v", ttl, err)
	}

	store.Increment(ctx, "login:alice", time.Minute)
	if ttl, _ := store.TTL(ctx, "login:alice", time.Minute); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected ttl within window, got %v", ttl)
	}
	if err := store.Reset(ctx, "login:alice"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if count, _ := store.Count(ctx, "login:alice", time.Minute); count != 0 {
		t.Fatalf("expected reset key gone, got %d", count)
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}
