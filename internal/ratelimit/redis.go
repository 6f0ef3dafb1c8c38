package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a sliding-window limiter backed by a sorted set per key, so
// every server replica sees the same counts.
type Redis struct {
	client *redis.Client
	cfg    *Config
}

func NewRedis(client *redis.Client, cfg *Config) *Redis {
	return &Redis{
		client: client,
		cfg:    cfg,
	}
}

func (r *Redis) Allow(ctx context.Context, key string) (*Result, error) {
	now := time.Now()
	windowStart := now.Add(-r.cfg.Window)
	redisKey := "ratelimit:" + key

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, redisKey, r.cfg.Window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("ratelimit pipeline: %w", err)
	}

	// Count taken before this request's entry was added.
	count := int(countCmd.Val())
	resetAt := now.Add(r.cfg.Window)

	if count >= r.cfg.MaxRequests {
		return &Result{
			Allowed:   false,
			Limit:     r.cfg.MaxRequests,
			Remaining: 0,
			ResetAt:   resetAt,
		}, nil
	}

	return &Result{
		Allowed:   true,
		Limit:     r.cfg.MaxRequests,
		Remaining: r.cfg.MaxRequests - count - 1,
		ResetAt:   resetAt,
	}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
