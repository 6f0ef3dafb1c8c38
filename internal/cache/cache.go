package cache

import (
	"context"
	"time"

	"crednet-oauth/internal/store"
)

// Cache is a read-through cache in front of the persistence layer for the
// two hot lookups: client records on every authorize/token request and
// token records on every userinfo request. It is strictly an accelerator;
// a miss or error always falls back to the store.
type Cache interface {
	GetClient(ctx context.Context, clientID string) (*store.Client, error)
	SetClient(ctx context.Context, clientID string, client *store.Client, ttl time.Duration) error
	InvalidateClient(ctx context.Context, clientID string) error

	GetToken(ctx context.Context, accessToken string) (*store.Token, error)
	SetToken(ctx context.Context, accessToken string, token *store.Token, ttl time.Duration) error
	InvalidateToken(ctx context.Context, accessToken string) error

	Ping(ctx context.Context) error
	Close() error
	Stats() Stats
}

// Stats holds cache performance counters.
type Stats struct {
	Hits   int64
	Misses int64
	Errors int64
}

// ErrMiss is returned when a key is not cached.
var ErrMiss = &Error{Message: "cache miss"}

// Error is a cache-specific error.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsMiss reports whether the error is a cache miss.
func IsMiss(err error) bool {
	return err == ErrMiss
}
