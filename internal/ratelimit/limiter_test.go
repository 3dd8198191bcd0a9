package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/moneymapper/authcore/internal/config"
	"github.com/moneymapper/authcore/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
)

// unreachableRedis points at a port nothing listens on.
func unreachableRedis(t *testing.T) *RedisStore {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client)
}

func TestLoginScenario(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	limiter := NewLimiter(Options{
		Fallback: NewMemoryStore(clock.Now),
		Policies: Policies{ActionLogin: {Limit: 5, Window: 15 * time.Minute}},
	})

	for i := 0; i < 5; i++ {
		d, err := limiter.Attempt(ctx, ActionLogin, "alice")
		if err != nil || !d.Allowed {
			t.Fatalf("attempt %d should be allowed, got %+v err=%v", i+1, d, err)
		}
		if d.Count != i+1 {
			t.Fatalf("attempt %d: expected count %d, got %d", i+1, i+1, d.Count)
		}
	}

	d, _ := limiter.Attempt(ctx, ActionLogin, "alice")
	if d.Allowed {
		t.Fatal("expected sixth attempt to be denied")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > 15*time.Minute {
		t.Fatalf("unexpected retry-after %v", d.RetryAfter)
	}
	if remaining, _ := limiter.Remaining(ctx, ActionLogin, "alice"); remaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", remaining)
	}
	if cooldown, _ := limiter.Cooldown(ctx, ActionLogin, "alice"); cooldown != 15*time.Minute {
		t.Fatalf("expected full window cooldown, got %v", cooldown)
	}

	clock.Advance(15 * time.Minute)
	d, _ = limiter.Attempt(ctx, ActionLogin, "alice")
	if !d.Allowed {
		t.Fatal("expected window expiry to re-admit without explicit reset")
	}
}

func TestRecordThenCheckScenario(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	limiter := NewLimiter(Options{
		Fallback: NewMemoryStore(clock.Now),
		Policies: Policies{ActionLogin: {Limit: 5, Window: 15 * time.Minute}},
	})

	for i := 0; i < 5; i++ {
		if err := limiter.RecordAttempt(ctx, ActionLogin, "alice"); err != nil {
			t.Fatalf("record %d failed: %v", i+1, err)
		}
	}
	if allowed, err := limiter.IsAllowed(ctx, ActionLogin, "alice"); err != nil || allowed {
		t.Fatalf("expected sixth check to be denied, got %v err=%v", allowed, err)
	}

	clock.Advance(15 * time.Minute)
	if allowed, _ := limiter.IsAllowed(ctx, ActionLogin, "alice"); !allowed {
		t.Fatal("expected window expiry to re-admit without explicit reset")
	}
}

func TestClearForgetsAttempts(t *testing.T) {
	ctx := context.Background()
	limiter := NewLimiter(Options{})

	for i := 0; i < 5; i++ {
		limiter.Attempt(ctx, ActionLogin, "alice")
	}
	if err := limiter.Clear(ctx, ActionLogin, "alice"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if remaining, _ := limiter.Remaining(ctx, ActionLogin, "alice"); remaining != 5 {
		t.Fatalf("expected full allowance after clear, got %d", remaining)
	}
}

func TestActionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	limiter := NewLimiter(Options{})

	for i := 0; i < 3; i++ {
		limiter.Attempt(ctx, ActionPasswordReset, "alice")
	}
	if d, _ := limiter.Attempt(ctx, ActionPasswordReset, "alice"); d.Allowed {
		t.Fatal("expected password reset to be exhausted")
	}
	if d, _ := limiter.Attempt(ctx, ActionLogin, "alice"); !d.Allowed {
		t.Fatal("expected login to be unaffected")
	}
}

func TestFallbackWhenPrimaryUnavailable(t *testing.T) {
	ctx := context.Background()
	fallback := NewMemoryStore(nil)
	limiter := NewLimiter(Options{
		Primary:      unreachableRedis(t),
		Fallback:     fallback,
		Policies:     DefaultPolicies(),
		StoreTimeout: 100 * time.Millisecond,
	})

	before := testutil.ToFloat64(metrics.RateLimitFallbacks.WithLabelValues("attempt"))

	for i := 0; i < 3; i++ {
		d, err := limiter.Attempt(ctx, ActionRegistration, "10.0.0.9")
		if err != nil {
			t.Fatalf("expected fallback to hide the outage, got %v", err)
		}
		if !d.Allowed {
			t.Fatalf("attempt %d should be admitted", i+1)
		}
	}
	d, err := limiter.Attempt(ctx, ActionRegistration, "10.0.0.9")
	if err != nil || d.Allowed {
		t.Fatalf("expected fourth registration to be denied in fallback, got %+v err=%v", d, err)
	}

	if count, _ := fallback.Count(ctx, Key(ActionRegistration, "10.0.0.9"), time.Hour); count != 3 {
		t.Fatalf("expected fallback store to hold the count, got %d", count)
	}
	after := testutil.ToFloat64(metrics.RateLimitFallbacks.WithLabelValues("attempt"))
	if after-before != 4 {
		t.Fatalf("expected 4 fallback calls recorded, got %v", after-before)
	}

	if err := limiter.Clear(ctx, ActionRegistration, "10.0.0.9"); err != nil {
		t.Fatalf("clear should not surface primary failure, got %v", err)
	}
}

func TestPrimaryPreferredWhenHealthy(t *testing.T) {
	ctx := context.Background()
	primary, _ := setupRedisStore(t)
	fallback := NewMemoryStore(nil)
	limiter := NewLimiter(Options{Primary: primary, Fallback: fallback})

	if _, err := limiter.Attempt(ctx, ActionLogin, "alice"); err != nil {
		t.Fatalf("attempt failed: %v", err)
	}
	if fallback.Len() != 0 {
		t.Fatal("expected healthy primary to keep fallback untouched")
	}
	if count, _ := primary.Count(ctx, Key(ActionLogin, "alice"), time.Minute); count != 1 {
		t.Fatalf("expected primary count 1, got %d", count)
	}
}

func TestPoliciesFromConfig(t *testing.T) {
	policies := PoliciesFromConfig(config.RateLimitConfig{
		Login:         config.RateLimitPolicy{Limit: 10, Window: time.Minute},
		PasswordReset: config.RateLimitPolicy{Limit: 0, Window: 2 * time.Hour},
	})

	if p := policies[ActionLogin]; p.Limit != 10 || p.Window != time.Minute {
		t.Fatalf("expected login override, got %+v", p)
	}
	if p := policies[ActionPasswordReset]; p.Limit != 3 || p.Window != 2*time.Hour {
		t.Fatalf("expected partial override, got %+v", p)
	}
	if p := policies[ActionEmailVerification]; p.Limit != 5 || p.Window != time.Hour {
		t.Fatalf("expected default email verification policy, got %+v", p)
	}
}
