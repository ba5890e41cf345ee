package middleware

import (
	"net/http"
	"sync"
	"time"

	"simplane/pkg/api"

	"golang.org/x/time/rate"
)

// RateLimiter throttles ingestion per session, keyed by the {id} path value.
type RateLimiter struct {
	limit rate.Limit
	burst int
	ttl   time.Duration

	limiters sync.Map // session id -> *cachedLimiter
}

// Option configures a RateLimiter.
type Option func(*RateLimiter)

// WithLimit sets records per second and burst. A zero rate disables limiting.
func WithLimit(perSecond float64, burst int) Option {
	return func(rl *RateLimiter) {
		rl.limit = rate.Limit(perSecond)
		rl.burst = burst
	}
}

// WithTTL sets how long a session's limiter lives before it is rebuilt.
func WithTTL(ttl time.Duration) Option {
	return func(rl *RateLimiter) {
		rl.ttl = ttl
	}
}

// NewRateLimiter creates a limiter that allows everything until WithLimit is given.
func NewRateLimiter(opts ...Option) *RateLimiter {
	rl := &RateLimiter{burst: 1, ttl: 5 * time.Minute}
	for _, opt := range opts {
		opt(rl)
	}
	if rl.burst < 1 {
		rl.burst = 1
	}
	return rl
}

// Middleware returns the HTTP middleware. It must wrap a route with an {id} segment.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Limit=0 means unlimited
			if rl.limit > 0 {
				key := r.PathValue("id")
				if !rl.get(key).Allow() {
					w.Header().Set("Retry-After", "1")
					writeError(w, http.StatusTooManyRequests, api.CodeRateLimited, "Too Many Requests")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

type cachedLimiter struct {
	limiter   *rate.Limiter
	expiresAt time.Time
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	now := time.Now()
	if v, ok := rl.limiters.Load(key); ok {
		cached := v.(*cachedLimiter)
		if now.Before(cached.expiresAt) {
			return cached.limiter
		}
		// expired, need to create new
	}

	limiter := rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters.Store(key, &cachedLimiter{
		limiter:   limiter,
		expiresAt: now.Add(rl.ttl),
	})
	return limiter
}
