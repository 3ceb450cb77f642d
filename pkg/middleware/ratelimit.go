package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a per-key requests-per-minute budget. Each caller
// gets an independent token bucket per limiter instance, so the embedding
// endpoint and the search endpoints meter separately.
type RateLimiter struct {
	perMinute int
	burst     int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewRateLimiter builds a limiter allowing perMinute requests per key per
// minute, with a burst of the same size.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &RateLimiter{
		perMinute: perMinute,
		burst:     perMinute,
		buckets:   make(map[string]*rate.Limiter),
	}
}

func (rl *RateLimiter) bucket(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.buckets[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.perMinute)), rl.burst)
		rl.buckets[key] = limiter
	}
	return limiter
}

// Middleware rejects requests over budget with a 429. The API key set by
// APIKeyAuth identifies the caller; unauthenticated routes fall back to
// the remote address.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := APIKeyFromRequest(r)
		if key == "" {
			key = r.RemoteAddr
		}

		if !rl.bucket(key).Allow() {
			writeDetail(w, http.StatusTooManyRequests,
				fmt.Sprintf("Rate limit exceeded: %d per 1 minute", rl.perMinute))
			return
		}
		next.ServeHTTP(w, r)
	})
}
