package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
	dead        bool
}

// roll empties the bucket once its window has fully elapsed. The next
// increment opens a new window.
func (b *bucket) roll(now time.Time, window time.Duration) {
	if !b.windowStart.IsZero() && now.Sub(b.windowStart) >= window {
		b.count = 0
		b.windowStart = time.Time{}
	}
}

func (b *bucket) incr(now time.Time) int {
	if b.count == 0 {
		b.windowStart = now
	}
	b.count++
	return b.count
}

// MemoryStore is the in-process counter store. Each key has its own lock;
// the map lock is held only to find or create a bucket.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	windows map[string]time.Duration
	now     func() time.Time
}

func NewMemoryStore(clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{
		buckets: make(map[string]*bucket),
		windows: make(map[string]time.Duration),
		now:     clock,
	}
}

func (s *MemoryStore) withBucket(key string, window time.Duration, fn func(b *bucket, now time.Time)) {
	for {
		s.mu.Lock()
		b, ok := s.buckets[key]
		if !ok {
			b = &bucket{}
			s.buckets[key] = b
		}
		s.windows[key] = window
		s.mu.Unlock()

		b.mu.Lock()
		if b.dead {
			// pruned between lookup and lock
			b.mu.Unlock()
			continue
		}
		now := s.now()
		b.roll(now, window)
		fn(b, now)
		b.mu.Unlock()
		return
	}
}

func (s *MemoryStore) Count(_ context.Context, key string, window time.Duration) (int, error) {
	var count int
	s.withBucket(key, window, func(b *bucket, _ time.Time) {
		count = b.count
	})
	return count, nil
}

func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int, error) {
	var count int
	s.withBucket(key, window, func(b *bucket, now time.Time) {
		count = b.incr(now)
	})
	return count, nil
}

func (s *MemoryStore) Attempt(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	var d Decision
	s.withBucket(key, window, func(b *bucket, now time.Time) {
		if b.count >= limit {
			d = Decision{Allowed: false, Count: b.count, RetryAfter: b.windowStart.Add(window).Sub(now)}
			return
		}
		d = Decision{Allowed: true, Count: b.incr(now)}
	})
	return d, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buckets[key]; ok {
		b.mu.Lock()
		b.dead = true
		b.mu.Unlock()
		delete(s.buckets, key)
		delete(s.windows, key)
	}
	return nil
}

func (s *MemoryStore) TTL(_ context.Context, key string, window time.Duration) (time.Duration, error) {
	s.mu.Lock()
	b, ok := s.buckets[key]
	s.mu.Unlock()
	if !ok {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dead || b.count == 0 {
		return 0, nil
	}
	remaining := b.windowStart.Add(window).Sub(s.now())
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// Prune drops buckets whose window has elapsed and returns how many went.
func (s *MemoryStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, b := range s.buckets {
		b.mu.Lock()
		if now.Sub(b.windowStart) >= s.windows[key] {
			b.dead = true
			delete(s.buckets, key)
			delete(s.windows, key)
			removed++
		}
		b.mu.Unlock()
	}
	return removed
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}
