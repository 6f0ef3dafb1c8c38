package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"crednet-oauth/internal/store"
)

// RedisClient is the subset of go-redis operations the cache needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Redis implements Cache backed by a Redis instance.
type Redis struct {
	client RedisClient
	hits   int64
	misses int64
	errors int64
}

func NewRedis(client RedisClient) *Redis {
	return &Redis{client: client}
}

func (c *Redis) GetClient(ctx context.Context, clientID string) (*store.Client, error) {
	var client store.Client
	if err := c.get(ctx, "client:"+clientID, &client); err != nil {
		return nil, err
	}
	return &client, nil
}

func (c *Redis) SetClient(ctx context.Context, clientID string, client *store.Client, ttl time.Duration) error {
	return c.set(ctx, "client:"+clientID, client, ttl)
}

func (c *Redis) InvalidateClient(ctx context.Context, clientID string) error {
	return c.del(ctx, "client:"+clientID)
}

func (c *Redis) GetToken(ctx context.Context, accessToken string) (*store.Token, error) {
	var token store.Token
	if err := c.get(ctx, "token:"+accessToken, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

func (c *Redis) SetToken(ctx context.Context, accessToken string, token *store.Token, ttl time.Duration) error {
	return c.set(ctx, "token:"+accessToken, token, ttl)
}

func (c *Redis) InvalidateToken(ctx context.Context, accessToken string) error {
	return c.del(ctx, "token:"+accessToken)
}

func (c *Redis) get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		atomic.AddInt64(&c.misses, 1)
		return ErrMiss
	}
	if err != nil {
		atomic.AddInt64(&c.errors, 1)
		return &Error{Message: "cache get failed", Err: err}
	}

	if err := json.Unmarshal(data, dest); err != nil {
		atomic.AddInt64(&c.errors, 1)
		return &Error{Message: "cache decode failed", Err: err}
	}

	atomic.AddInt64(&c.hits, 1)
	return nil
}

func (c *Redis) set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		atomic.AddInt64(&c.errors, 1)
		return &Error{Message: "cache encode failed", Err: err}
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		atomic.AddInt64(&c.errors, 1)
		return &Error{Message: "cache set failed", Err: err}
	}
	return nil
}

func (c *Redis) del(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		atomic.AddInt64(&c.errors, 1)
		return &Error{Message: "cache invalidate failed", Err: err}
	}
	return nil
}

func (c *Redis) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return &Error{Message: "redis ping failed", Err: err}
	}
	return nil
}

func (c *Redis) Close() error {
	return c.client.Close()
}

func (c *Redis) Stats() Stats {
	return Stats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
		Errors: atomic.LoadInt64(&c.errors),
	}
}
