package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/pagora/pagora/internal/service"
	"github.com/redis/go-redis/v9"
)

// fixedWindowScript checks before it increments, so requests over the limit
// never inflate the counter, and the first hit of a window owns the TTL.
const fixedWindowScript = `
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local max = tonumber(ARGV[1])
if current >= max then
  local ttl = redis.call("PTTL", KEYS[1])
  return {0, current, ttl}
end
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
local ttl = redis.call("PTTL", KEYS[1])
return {1, count, ttl}
`

type RedisCounterStore struct {
	client *redis.Client
	script *redis.Script
	prefix string
}

func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{
		client: client,
		script: redis.NewScript(fixedWindowScript),
		prefix: "rate:",
	}
}

func (s *RedisCounterStore) Hit(ctx context.Context, key string, limit int, window time.Duration) (*service.RateResult, error) {
	res, err := s.script.Run(ctx, s.client, []string{s.prefix + key},
		limit,
		strconv.FormatInt(int64(window/time.Millisecond), 10),
	).Slice()
	if err != nil {
		return nil, err
	}
	if len(res) < 3 {
		return nil, errors.New("invalid rate limit script response")
	}

	allowed := toInt64(res[0]) == 1
	count := toInt64(res[1])
	ttlMs := toInt64(res[2])
	if ttlMs < 0 {
		ttlMs = int64(window / time.Millisecond)
	}

	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}
	return &service.RateResult{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: int(remaining),
		ResetAt:   time.Now().Add(time.Duration(ttlMs) * time.Millisecond),
	}, nil
}

func toInt64(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case string:
		n, _ := strconv.ParseInt(val, 10, 64)
		return n
	default:
		return 0
	}
}
