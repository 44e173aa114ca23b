package middleware

import (
	"net"
	"net/http"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client IP. The least recently
// seen clients are evicted once maxClients buckets exist.
type RateLimiter struct {
	limiters *lru.Cache
	rate     rate.Limit
	burst    int
}

// NewRateLimiter creates a per-IP limiter
func NewRateLimiter(ratePerSecond float64, burst, maxClients int) (*RateLimiter, error) {
	limiters, err := lru.New(maxClients)
	if err != nil {
		return nil, err
	}
	return &RateLimiter{
		limiters: limiters,
		rate:     rate.Limit(ratePerSecond),
		burst:    burst,
	}, nil
}

// Allow reports whether a request from ip may proceed
func (rl *RateLimiter) Allow(ip string) bool {
	if v, ok := rl.limiters.Get(ip); ok {
		return v.(*rate.Limiter).Allow()
	}
	limiter := rate.NewLimiter(rl.rate, rl.burst)
	// another request may have raced us in; keep whichever got stored
	if prev, ok, _ := rl.limiters.PeekOrAdd(ip, limiter); ok {
		limiter = prev.(*rate.Limiter)
	}
	return limiter.Allow()
}

// Clients returns the number of tracked client IPs
func (rl *RateLimiter) Clients() int {
	return rl.limiters.Len()
}

// RateLimit rejects requests over the per-IP rate with 429
func RateLimit(limiter *RateLimiter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			if !limiter.Allow(ip) {
				logger.Warn("rate limit exceeded",
					zap.String("ip", ip),
					zap.String("path", r.URL.Path))
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP extracts the caller address, preferring a valid X-Forwarded-For
// or X-Real-IP value over the socket address
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if net.ParseIP(ip) != nil {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
