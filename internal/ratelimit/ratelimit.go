// Package ratelimit throttles per-client request rates. A memory limiter
// serves single-instance deployments; the Redis limiter keeps a shared
// window across replicas.
package ratelimit

import (
	"context"
	"time"
)

// Result reports the outcome of one admission check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type Limiter interface {
	// Allow records one request against key and reports whether it fits
	// inside the current window.
	Allow(ctx context.Context, key string) (*Result, error)

	Close() error
}

type Config struct {
	MaxRequests int
	Window      time.Duration
}
