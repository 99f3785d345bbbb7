package middleware

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures a global token bucket limiter.
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

// newLimiter returns nil when the configuration does not limit anything.
func newLimiter(cfg RateLimitConfig) *rate.Limiter {
	if !cfg.Enabled || cfg.RPS <= 0 || cfg.Burst <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
}

// RateLimitMiddleware enforces a global rate limit for all requests through the handler.
func RateLimitMiddleware(cfg RateLimitConfig) func(http.Handler) http.Handler {
	limiter := newLimiter(cfg)
	if limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	retryAfter := strconv.Itoa(int(math.Max(1, math.Ceil(1/cfg.RPS))))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", retryAfter)
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{
						"statusCode": http.StatusTooManyRequests,
						"name":       "TooManyRequestsError",
						"message":    "rate limit exceeded",
					},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
