package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// attemptScript admits and counts in one round trip. The expiry is
// refreshed on every increment so idle keys age out.
var attemptScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
  local ttl = redis.call('PTTL', KEYS[1])
  return {0, current, ttl}
end
current = redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return {1, current, tonumber(ARGV[2])}
`)

// RedisStore keeps counters in Redis so limits hold across instances.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Count(ctx context.Context, key string, _ time.Duration) (int, error) {
	count, err := s.client.Get(ctx, redisKeyPrefix+key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKeyPrefix+key)
	pipe.PExpire(ctx, redisKeyPrefix+key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

func (s *RedisStore) Attempt(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	res, err := attemptScript.Run(ctx, s.client, []string{redisKeyPrefix + key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) != 3 {
		return Decision{}, errors.New("unexpected rate limit script reply")
	}
	d := Decision{Allowed: res[0] == 1, Count: int(res[1])}
	if !d.Allowed && res[2] > 0 {
		d.RetryAfter = time.Duration(res[2]) * time.Millisecond
	}
	return d, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, redisKeyPrefix+key).Err()
}

func (s *RedisStore) TTL(ctx context.Context, key string, _ time.Duration) (time.Duration, error) {
	ttl, err := s.client.PTTL(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return 0, err
	}
	// -1 (no expiry) and -2 (missing) both mean nothing to wait for.
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
