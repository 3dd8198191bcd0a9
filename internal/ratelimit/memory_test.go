package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStoreWindow(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore(clock.Now)
	const key = "login:alice"
	window := 15 * time.Minute

	for i := 1; i <= 5; i++ {
		n, err := store.Increment(ctx, key, window)
		if err != nil || n != i {
			t.Fatalf("increment %d returned %d err=%v", i, n, err)
		}
		clock.Advance(time.Minute)
	}

	if count, _ := store.Count(ctx, key, window); count != 5 {
		t.Fatalf("expected count 5, got %d", count)
	}
	if ttl, _ := store.TTL(ctx, key, window); ttl != 10*time.Minute {
		t.Fatalf("expected 10m left in window, got %v", ttl)
	}

	clock.Advance(10 * time.Minute)
	if count, _ := store.Count(ctx, key, window); count != 0 {
		t.Fatalf("expected lazy reset after window, got %d", count)
	}
	if ttl, _ := store.TTL(ctx, key, window); ttl != 0 {
		t.Fatalf("expected no cooldown on an empty bucket, got %v", ttl)
	}

	if n, _ := store.Increment(ctx, key, window); n != 1 {
		t.Fatalf("expected a new window to start at 1, got %d", n)
	}
}

func TestMemoryStoreAttemptIsStrictUnderContention(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	const limit = 5

	var admitted int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := store.Attempt(ctx, "register:10.0.0.1", limit, time.Hour)
			if err != nil {
				t.Errorf("attempt failed: %v", err)
				return
			}
			if d.Allowed {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	if admitted != limit {
		t.Fatalf("expected exactly %d admissions, got %d", limit, admitted)
	}
	if count, _ := store.Count(ctx, "register:10.0.0.1", time.Hour); count != limit {
		t.Fatalf("expected denied attempts not to be counted, got %d", count)
	}
}

func TestMemoryStoreAttemptRetryAfter(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore(clock.Now)

	for i := 0; i < 3; i++ {
		store.Attempt(ctx, "k", 3, time.Hour)
	}
	clock.Advance(20 * time.Minute)

	d, _ := store.Attempt(ctx, "k", 3, time.Hour)
	if d.Allowed || d.RetryAfter != 40*time.Minute {
		t.Fatalf("expected denial with 40m retry, got %+v", d)
	}
}

func TestMemoryStoreResetAndPrune(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore(clock.Now)

	store.Increment(ctx, "login:alice", 15*time.Minute)
	store.Increment(ctx, "register:10.0.0.1", time.Hour)

	if err := store.Reset(ctx, "login:alice"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if count, _ := store.Count(ctx, "login:alice", 15*time.Minute); count != 0 {
		t.Fatalf("expected reset key to count 0, got %d", count)
	}

	clock.Advance(30 * time.Minute)
	removed := store.Prune()
	if removed != 1 {
		t.Fatalf("expected only the elapsed login bucket pruned, got %d", removed)
	}
	if store.Len() != 1 {
		t.Fatalf("expected registration bucket to remain, got %d buckets", store.Len())
	}
	if count, _ := store.Count(ctx, "register:10.0.0.1", time.Hour); count != 1 {
		t.Fatalf("expected live bucket untouched, got %d", count)
	}
}

func TestMemoryStorePruneDuringIncrements(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.Increment(ctx, "login:bob", time.Hour)
		}()
		go func() {
			defer wg.Done()
			store.Prune()
		}()
	}
	wg.Wait()

	if count, _ := store.Count(ctx, "login:bob", time.Hour); count != 50 {
		t.Fatalf("expected no increments lost to pruning, got %d", count)
	}
}
