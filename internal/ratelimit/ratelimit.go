// Package ratelimit counts attempts per key in fixed windows. The login route
// uses it to slow down password guessing.
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/notes/internal/apperr"
	"github.com/Skotchmaster/notes/internal/logging"
)

type Limiter interface {
	// Allow records one attempt for key and reports whether it is within the
	// limit. When it is not, retryAfter tells how long until the window resets.
	Allow(ctx context.Context, key string) (ok bool, retryAfter time.Duration, err error)
}

type MemoryLimiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	count int
	reset time.Time
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		max:     max,
		window:  window,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || !now.Before(b.reset) {
		if now.Sub(l.lastSweep) >= l.window {
			l.sweep(now)
			l.lastSweep = now
		}
		b = &bucket{reset: now.Add(l.window)}
		l.buckets[key] = b
	}
	b.count++
	if b.count > l.max {
		return false, b.reset.Sub(now), nil
	}
	return true, 0, nil
}

// sweep drops expired buckets so the map does not grow with every client ip.
// It runs at most once per window.
func (l *MemoryLimiter) sweep(now time.Time) {
	for k, b := range l.buckets {
		if !now.Before(b.reset) {
			delete(l.buckets, k)
		}
	}
}

// Middleware rejects requests over the limit with a rate_limited error and a
// Retry-After header. Limiter failures let the request through.
func Middleware(l Limiter, prefix string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			ok, retry, err := l.Allow(ctx, prefix+":"+c.RealIP())
			if err != nil {
				logging.FromContext(ctx).Error("rate_limit_unavailable", "error", err)
				return next(c)
			}
			if !ok {
				secs := int(retry.Round(time.Second) / time.Second)
				if secs < 1 {
					secs = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				logging.FromContext(ctx).Warn("rate_limited", "status", 429, "retry_after_s", secs)
				return apperr.New(apperr.KindRateLimited, "too many login attempts, try again later")
			}
			return next(c)
		}
	}
}
