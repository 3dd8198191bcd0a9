package ratelimit

import (
	"context"
	"time"

	"github.com/moneymapper/authcore/internal/metrics"
	apperrors "github.com/moneymapper/authcore/pkg/errors"
	"github.com/moneymapper/authcore/pkg/logger"
)

// Limiter applies per-action policies over a durable Store, falling back to
// an in-process MemoryStore for any call the durable store cannot serve.
type Limiter struct {
	primary  Store
	fallback *MemoryStore
	policies Policies
	timeout  time.Duration
}

type Options struct {
	// Primary is optional; without it every call uses Fallback.
	Primary  Store
	Fallback *MemoryStore
	Policies Policies
	// StoreTimeout bounds each call to Primary.
	StoreTimeout time.Duration
}

func NewLimiter(opts Options) *Limiter {
	if opts.Fallback == nil {
		opts.Fallback = NewMemoryStore(nil)
	}
	if opts.Policies == nil {
		opts.Policies = DefaultPolicies()
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 250 * time.Millisecond
	}
	return &Limiter{
		primary:  opts.Primary,
		fallback: opts.Fallback,
		policies: opts.Policies,
		timeout:  opts.StoreTimeout,
	}
}

func (l *Limiter) Policy(action Action) Policy {
	p, ok := l.policies[action]
	if !ok || p.Limit < 1 || p.Window <= 0 {
		return DefaultPolicies()[ActionLogin]
	}
	return p
}

// Fallback exposes the in-process store for pruning.
func (l *Limiter) Fallback() *MemoryStore {
	return l.fallback
}

// run executes fn against the primary store under a timeout. On any error
// the whole call is replayed against the fallback, so one call never
// splits across backends.
func (l *Limiter) run(ctx context.Context, op, key string, fn func(ctx context.Context, s Store) error) error {
	if l.primary != nil {
		pctx, cancel := context.WithTimeout(ctx, l.timeout)
		err := fn(pctx, l.primary)
		cancel()
		if err == nil {
			return nil
		}
		metrics.RateLimitFallbacks.WithLabelValues(op).Inc()
		logger.Warn("rate_limit_fallback", map[string]interface{}{
			"op":    op,
			"key":   logger.MaskIdentifier(key),
			"error": err.Error(),
		})
	}
	if err := fn(ctx, l.fallback); err != nil {
		return apperrors.Internal("rate limit store unavailable", err)
	}
	return nil
}

// IsAllowed reports whether identifier has attempts left in the current
// window. It does not record anything, so a check followed by
// RecordAttempt is not atomic; admission paths use Attempt.
func (l *Limiter) IsAllowed(ctx context.Context, action Action, identifier string) (bool, error) {
	p := l.Policy(action)
	key := Key(action, identifier)
	var count int
	err := l.run(ctx, "count", key, func(ctx context.Context, s Store) error {
		var err error
		count, err = s.Count(ctx, key, p.Window)
		return err
	})
	if err != nil {
		return false, err
	}
	return count < p.Limit, nil
}

// RecordAttempt counts one attempt unconditionally.
func (l *Limiter) RecordAttempt(ctx context.Context, action Action, identifier string) error {
	p := l.Policy(action)
	key := Key(action, identifier)
	return l.run(ctx, "increment", key, func(ctx context.Context, s Store) error {
		_, err := s.Increment(ctx, key, p.Window)
		return err
	})
}

// Attempt checks and records in one atomic step. Denied attempts are not
// counted.
func (l *Limiter) Attempt(ctx context.Context, action Action, identifier string) (Decision, error) {
	p := l.Policy(action)
	key := Key(action, identifier)
	var d Decision
	err := l.run(ctx, "attempt", key, func(ctx context.Context, s Store) error {
		var err error
		d, err = s.Attempt(ctx, key, p.Limit, p.Window)
		return err
	})
	if err != nil {
		return Decision{}, err
	}
	l.observe(action, d.Allowed)
	return d, nil
}

// Clear forgets every attempt for identifier. Both stores are cleared so a
// key counted during an outage does not linger.
func (l *Limiter) Clear(ctx context.Context, action Action, identifier string) error {
	key := Key(action, identifier)
	_ = l.fallback.Reset(ctx, key)
	if l.primary == nil {
		return nil
	}
	pctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.primary.Reset(pctx, key); err != nil {
		metrics.RateLimitFallbacks.WithLabelValues("reset").Inc()
		logger.Warn("rate_limit_fallback", map[string]interface{}{
			"op":    "reset",
			"key":   logger.MaskIdentifier(key),
			"error": err.Error(),
		})
	}
	return nil
}

// Cooldown is the time until identifier's window resets.
func (l *Limiter) Cooldown(ctx context.Context, action Action, identifier string) (time.Duration, error) {
	p := l.Policy(action)
	key := Key(action, identifier)
	var ttl time.Duration
	err := l.run(ctx, "ttl", key, func(ctx context.Context, s Store) error {
		var err error
		ttl, err = s.TTL(ctx, key, p.Window)
		return err
	})
	return ttl, err
}

func (l *Limiter) Remaining(ctx context.Context, action Action, identifier string) (int, error) {
	p := l.Policy(action)
	key := Key(action, identifier)
	var count int
	err := l.run(ctx, "count", key, func(ctx context.Context, s Store) error {
		var err error
		count, err = s.Count(ctx, key, p.Window)
		return err
	})
	if err != nil {
		return 0, err
	}
	if count >= p.Limit {
		return 0, nil
	}
	return p.Limit - count, nil
}

func (l *Limiter) observe(action Action, allowed bool) {
	decision := "allowed"
	if !allowed {
		decision = "denied"
	}
	metrics.RateLimitDecisions.WithLabelValues(string(action), decision).Inc()
}
