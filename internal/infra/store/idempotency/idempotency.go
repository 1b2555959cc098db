package idemstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "pdftoxml:idem:"

type redisIdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisIdempotencyStore(rdb *redis.Client, ttl time.Duration) *redisIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisIdempotencyStore{rdb: rdb, ttl: ttl}
}

// Reserve binds key to conversionID for the owner. When the key is already
// bound it returns the existing conversion id and false.
func (s *redisIdempotencyStore) Reserve(
	ctx context.Context,
	ownerID, key, conversionID string,
) (string, bool, error) {
	rkey := s.key(ownerID, key)

	ok, err := s.rdb.SetNX(ctx, rkey, conversionID, s.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return conversionID, true, nil
	}

	existing, err := s.rdb.Get(ctx, rkey).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return s.Reserve(ctx, ownerID, key, conversionID)
	}
	if err != nil {
		return "", false, fmt.Errorf("get idempotency key: %w", err)
	}

	return existing, false, nil
}

func (s *redisIdempotencyStore) Release(ctx context.Context, ownerID, key string) error {
	if err := s.rdb.Del(ctx, s.key(ownerID, key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func (s *redisIdempotencyStore) key(ownerID, key string) string {
	return keyPrefix + ownerID + ":" + key
}
