/**
 * @description
 * Rate limiting middleware protecting the PIN verification endpoint from
 * online brute forcing. Uses a simple in-memory token bucket per user (the
 * credential under attack is per-user, so keying by IP alone is not enough).
 *
 * @dependencies
 * - sync: For thread-safe operations
 * - time: For time-based rate limiting
 * - net/http: For HTTP middleware
 */
package middleware

import (
	"net/http"
	"sync"
	"time"
)

// tokenBucket tracks remaining tokens for one key.
type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// evictInterval bounds how often fully-refilled buckets are swept out.
const evictInterval = 5 * time.Minute

// RateLimiter implements a per-key token bucket rate limiter.
type RateLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*tokenBucket
	capacity   float64
	refillRate float64 // tokens per second
	lastEvict  time.Time
}

// NewRateLimiter allows `capacity` requests in a burst, refilling at
// requestsPerMinute averaged over time.
func NewRateLimiter(requestsPerMinute, capacity int) *RateLimiter {
	return &RateLimiter{
		buckets:    make(map[string]*tokenBucket),
		capacity:   float64(capacity),
		refillRate: float64(requestsPerMinute) / 60.0,
		lastEvict:  time.Now(),
	}
}

// Allow consumes one token for the key, reporting whether the request may
// proceed.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastEvict) >= evictInterval {
		rl.evictStale(now)
		rl.lastEvict = now
	}

	bucket, ok := rl.buckets[key]
	if !ok {
		bucket = &tokenBucket{tokens: rl.capacity, lastRefill: now}
		rl.buckets[key] = bucket
	}

	elapsed := now.Sub(bucket.lastRefill).Seconds()
	bucket.tokens += elapsed * rl.refillRate
	if bucket.tokens > rl.capacity {
		bucket.tokens = rl.capacity
	}
	bucket.lastRefill = now

	if bucket.tokens >= 1 {
		bucket.tokens--
		return true
	}
	return false
}

// evictStale drops buckets that have refilled completely, to bound memory.
// Runs inline on the Allow path (caller holds the lock), so a limiter needs
// no background goroutine and can be created and dropped freely.
func (rl *RateLimiter) evictStale(now time.Time) {
	for key, bucket := range rl.buckets {
		if now.Sub(bucket.lastRefill).Seconds()*rl.refillRate >= rl.capacity {
			delete(rl.buckets, key)
		}
	}
}

// RateLimitMiddleware limits authenticated requests per user; requests
// without a user in context fall back to the remote address.
func RateLimitMiddleware(requestsPerMinute int) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(requestsPerMinute, requestsPerMinute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := GetUserIDFromContext(r.Context())
			if key == "" {
				key = r.RemoteAddr
			}
			if !limiter.Allow(key) {
				http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
