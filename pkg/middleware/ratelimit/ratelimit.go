// Package ratelimit implements a fixed-window request counter keyed by
// client IP. State is in-memory and per-process; multiple instances each
// enforce the limit independently.
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/render"

	"github.com/Tcdrol/url-shortener/pkg/middleware"
	"github.com/Tcdrol/url-shortener/pkg/response"
)

type window struct {
	count   int
	startAt time.Time
}

// Limiter counts requests per key within fixed windows of a configured size.
type Limiter struct {
	mu        sync.Mutex
	windows   map[string]*window
	limit     int
	interval  time.Duration
	lastPrune time.Time
}

func NewLimiter(limit int, interval time.Duration) *Limiter {
	return &Limiter{
		windows:   make(map[string]*window),
		limit:     limit,
		interval:  interval,
		lastPrune: time.Now(),
	}
}

// Allow reports whether one more request fits into the key's current window.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.prune(now)

	w, ok := l.windows[key]
	if !ok || now.Sub(w.startAt) >= l.interval {
		l.windows[key] = &window{count: 1, startAt: now}
		return true
	}

	if w.count >= l.limit {
		return false
	}

	w.count++
	return true
}

// prune reclaims elapsed windows at most once per interval, so keys seen
// only once do not accumulate forever. Callers must hold l.mu.
func (l *Limiter) prune(now time.Time) {
	if now.Sub(l.lastPrune) < l.interval {
		return
	}

	for key, w := range l.windows {
		if now.Sub(w.startAt) >= l.interval {
			delete(l.windows, key)
		}
	}

	l.lastPrune = now
}

// New returns a middleware rejecting requests over the limit with 429.
func New(limiter *Limiter) middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientKey(r)) {
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, response.RateLimitResponse)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	// RealIP middleware rewrites RemoteAddr from X-Forwarded-For upstream.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
