package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pagora/pagora/internal/model"
	"github.com/redis/go-redis/v9"
)

// RedisIdempotencyStore is the fast tier. The first writer claims a key with
// SET NX so concurrent duplicates see an in-flight placeholder instead of
// both executing the handler.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyStore{
		client: client,
		ttl:    ttl,
		prefix: "idem:",
	}
}

func (s *RedisIdempotencyStore) GetOrLock(ctx context.Context, key string, placeholder *model.IdempotencyRecord) (*model.IdempotencyRecord, bool, error) {
	payload, err := json.Marshal(placeholder)
	if err != nil {
		return nil, false, err
	}

	ok, err := s.client.SetNX(ctx, s.prefix+key, payload, s.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if ok {
		// We hold the lock.
		return nil, false, nil
	}

	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Evicted between SETNX and GET; treat as a miss.
			return nil, false, nil
		}
		return nil, false, err
	}
	var rec model.IdempotencyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

func (s *RedisIdempotencyStore) Complete(ctx context.Context, key string, rec *model.IdempotencyRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+key, payload, s.ttl).Err()
}

func (s *RedisIdempotencyStore) Unlock(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
