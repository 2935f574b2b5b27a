package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter hands out one token bucket per key, all sharing the same rate.
type Limiter struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	m     map[string]*rate.Limiter
}

// New allows perMinute events per key with the given burst.
func New(perMinute, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return &Limiter{limit: limit, burst: burst, m: make(map[string]*rate.Limiter)}
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.m[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.m[key] = b
	}
	return b
}

// Allow reports whether one event for key may happen now.
func (l *Limiter) Allow(key string) bool { return l.get(key).Allow() }

// Wait blocks until an event for key is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error { return l.get(key).Wait(ctx) }
