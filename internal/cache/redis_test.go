package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"crednet-oauth/internal/store"
)

// fakeRedis is a map-backed RedisClient for tests.
type fakeRedis struct {
	data map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	value, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var deleted int64
	for _, key := range keys {
		if _, ok := f.data[key]; ok {
			delete(f.data, key)
			deleted++
		}
	}
	return redis.NewIntResult(deleted, nil)
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) Close() error {
	return nil
}

func TestClientRoundTrip(t *testing.T) {
	c := NewRedis(newFakeRedis())
	ctx := context.Background()

	client := &store.Client{
		ClientID:      "crn_abc",
		Name:          "Test App",
		RedirectURIs:  []string{"https://app.example.com/callback"},
		AllowedScopes: []string{"profile"},
		Active:        true,
	}
	if err := c.SetClient(ctx, "crn_abc", client, time.Minute); err != nil {
		t.Fatalf("SetClient failed: %v", err)
	}

	got, err := c.GetClient(ctx, "crn_abc")
	if err != nil {
		t.Fatalf("GetClient failed: %v", err)
	}
	if got.Name != "Test App" || !got.Active {
		t.Errorf("Client did not round-trip: %+v", got)
	}
}

func TestMissAndInvalidate(t *testing.T) {
	c := NewRedis(newFakeRedis())
	ctx := context.Background()

	if _, err := c.GetToken(ctx, "crnat_missing"); !IsMiss(err) {
		t.Errorf("Expected a cache miss, got %v", err)
	}

	token := &store.Token{AccessToken: "crnat_abc", ClientID: "crn_abc"}
	if err := c.SetToken(ctx, "crnat_abc", token, time.Minute); err != nil {
		t.Fatalf("SetToken failed: %v", err)
	}
	if _, err := c.GetToken(ctx, "crnat_abc"); err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}

	if err := c.InvalidateToken(ctx, "crnat_abc"); err != nil {
		t.Fatalf("InvalidateToken failed: %v", err)
	}
	if _, err := c.GetToken(ctx, "crnat_abc"); !errors.Is(err, ErrMiss) {
		t.Errorf("Expected miss after invalidation, got %v", err)
	}
}

func TestStats(t *testing.T) {
	c := NewRedis(newFakeRedis())
	ctx := context.Background()

	c.GetToken(ctx, "crnat_missing")
	token := &store.Token{AccessToken: "crnat_abc"}
	c.SetToken(ctx, "crnat_abc", token, time.Minute)
	c.GetToken(ctx, "crnat_abc")

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Expected 1 hit and 1 miss, got %+v", stats)
	}
}
