package api

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimiterConfig holds rate limiter configuration.
type RateLimiterConfig struct {
	RequestsPerMinute int
	BurstSize         int
}

// tokenBucket implements a token bucket rate limiter.
type tokenBucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

// refill tops the bucket up for the time elapsed since the last call.
func (tb *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.last).Seconds()
	tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
	tb.last = now
}

// full returns when the bucket will be full again.
func (tb *tokenBucket) full(now time.Time) time.Time {
	if tb.tokens >= tb.capacity || tb.refillRate <= 0 {
		return now
	}
	secs := (tb.capacity - tb.tokens) / tb.refillRate
	return now.Add(time.Duration(secs * float64(time.Second)))
}

// RateLimiter manages per-IP rate limiting. Idle buckets are swept on
// access, so no background goroutine is needed.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*tokenBucket
	config    RateLimiterConfig
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.BurstSize <= 0 {
		config.BurstSize = 10
	}
	return &RateLimiter{
		buckets: make(map[string]*tokenBucket),
		config:  config,
		idleTTL: 5 * time.Minute,
		now:     time.Now,
	}
}

// take consumes a token for ip. It reports whether the request may proceed,
// the tokens left and when the bucket refills.
func (rl *RateLimiter) take(ip string) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > time.Minute {
		for key, b := range rl.buckets {
			if now.Sub(b.last) > rl.idleTTL {
				delete(rl.buckets, key)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[ip]
	if !ok {
		b = &tokenBucket{
			tokens:     float64(rl.config.BurstSize),
			capacity:   float64(rl.config.BurstSize),
			refillRate: float64(rl.config.RequestsPerMinute) / 60.0,
			last:       now,
		}
		rl.buckets[ip] = b
	}
	b.refill(now)

	allowed := b.tokens >= 1.0
	if allowed {
		b.tokens--
	}
	return allowed, int(b.tokens), b.full(now)
}

// Allow checks if a request from the given IP should be allowed.
func (rl *RateLimiter) Allow(ip string) bool {
	ok, _, _ := rl.take(ip)
	return ok
}

// Middleware returns an HTTP middleware that applies rate limiting.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining, reset := rl.take(clientIP(r))

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.config.RequestsPerMinute))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset.Unix()))

		if !allowed {
			retryAfter := int(reset.Sub(rl.now()).Seconds()) + 1
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			respondError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED",
				fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", retryAfter))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client address, preferring the leftmost valid
// X-Forwarded-For entry, then X-Real-IP, then RemoteAddr.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if net.ParseIP(ip) != nil {
		return ip
	}
	return "unknown"
}
