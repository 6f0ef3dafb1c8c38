package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory is a fixed-window limiter held in process memory.
type Memory struct {
	cfg     *Config
	mu      sync.Mutex
	buckets map[string]*bucket
	stop    chan struct{}
}

type bucket struct {
	count       int
	windowStart time.Time
}

func NewMemory(cfg *Config) *Memory {
	m := &Memory{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	go m.sweep()
	return m
}

func (m *Memory) Allow(_ context.Context, key string) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{windowStart: now}
		m.buckets[key] = b
	}

	if now.Sub(b.windowStart) > m.cfg.Window {
		b.count = 0
		b.windowStart = now
	}

	resetAt := b.windowStart.Add(m.cfg.Window)
	if b.count >= m.cfg.MaxRequests {
		return &Result{
			Allowed:   false,
			Limit:     m.cfg.MaxRequests,
			Remaining: 0,
			ResetAt:   resetAt,
		}, nil
	}

	b.count++
	return &Result{
		Allowed:   true,
		Limit:     m.cfg.MaxRequests,
		Remaining: m.cfg.MaxRequests - b.count,
		ResetAt:   resetAt,
	}, nil
}

// sweep drops buckets whose window expired long enough ago that they
// cannot influence a future check.
func (m *Memory) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			now := time.Now()
			for key, b := range m.buckets {
				if now.Sub(b.windowStart) > 2*m.cfg.Window {
					delete(m.buckets, key)
				}
			}
			m.mu.Unlock()
		case <-m.stop:
			return
		}
	}
}

func (m *Memory) Close() error {
	close(m.stop)
	return nil
}
