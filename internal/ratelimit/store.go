package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of an atomic check-and-record.
type Decision struct {
	Allowed    bool
	Count      int
	RetryAfter time.Duration
}

// Store keeps per-key attempt counters. Implementations must make Attempt
// atomic per key.
type Store interface {
	Count(ctx context.Context, key string, window time.Duration) (int, error)
	Increment(ctx context.Context, key string, window time.Duration) (int, error)
	Attempt(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
	Reset(ctx context.Context, key string) error
	TTL(ctx context.Context, key string, window time.Duration) (time.Duration, error)
}
