package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Limit     int
	Window    time.Duration
	KeyPrefix string
}

type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetIn   time.Duration
}

// redisLimiter is a fixed window counter: INCR the key, set the expiry on
// the first hit of a window.
type redisLimiter struct {
	rdb *redis.Client
	cfg Config
}

func NewRedisLimiter(rdb *redis.Client, cfg Config) *redisLimiter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "pdftoxml:rl:"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 30
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &redisLimiter{rdb: rdb, cfg: cfg}
}

func (l *redisLimiter) Allow(ctx context.Context, subject string) (Decision, error) {
	if subject == "" {
		subject = "anonymous"
	}
	key := l.cfg.KeyPrefix + subject

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("incr %s: %w", key, err)
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, key, l.cfg.Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("expire %s: %w", key, err)
		}
	}

	ttl, err := l.rdb.TTL(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ttl %s: %w", key, err)
	}
	if ttl < 0 {
		// a previous EXPIRE was lost; start a new window
		_ = l.rdb.Expire(ctx, key, l.cfg.Window).Err()
		ttl = l.cfg.Window
	}

	return Decision{
		Allowed:   count <= int64(l.cfg.Limit),
		Limit:     l.cfg.Limit,
		Remaining: max(l.cfg.Limit-int(count), 0),
		ResetIn:   ttl,
	}, nil
}
