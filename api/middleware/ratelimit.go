package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/openalpha/spotex/metrics"
)

const bucketTTL = time.Hour

// RateLimiter is a token-bucket limiter keyed by api key when the request
// carries one, by client IP otherwise.
type RateLimiter struct {
	rps   float64
	burst float64
	col   *metrics.Collector

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// NewRateLimiter creates a limiter allowing rps sustained requests with the
// given burst capacity per client.
func NewRateLimiter(rps, burst int, col *metrics.Collector) *RateLimiter {
	return &RateLimiter{
		rps:     float64(rps),
		burst:   float64(burst),
		col:     col,
		buckets: make(map[string]*bucket),
	}
}

// Allow consumes one token for key, reporting whether the request may
// proceed and, if not, the suggested retry delay in seconds.
func (rl *RateLimiter) Allow(key string) (bool, int) {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.burst, lastUpdate: now}
		rl.buckets[key] = b
		rl.maybeSweep(now)
	}

	b.tokens += now.Sub(b.lastUpdate).Seconds() * rl.rps
	if b.tokens > rl.burst {
		b.tokens = rl.burst
	}
	b.lastUpdate = now

	if b.tokens < 1 {
		return false, int((1-b.tokens)/rl.rps) + 1
	}
	b.tokens--
	return true, 0
}

// maybeSweep drops buckets idle longer than the TTL. Called with the lock
// held, piggybacking on bucket creation instead of a background goroutine.
func (rl *RateLimiter) maybeSweep(now time.Time) {
	if len(rl.buckets)%1024 != 0 {
		return
	}
	threshold := now.Add(-bucketTTL)
	for key, b := range rl.buckets {
		if b.lastUpdate.Before(threshold) {
			delete(rl.buckets, key)
		}
	}
}

// Middleware enforces the limit, answering 429 with a Retry-After hint.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, kind := clientKey(r)
		allowed, retryAfter := rl.Allow(key)
		if !allowed {
			rl.col.RateLimitHits.WithLabelValues(kind).Inc()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"detail":      "Too many requests",
				"retry_after": retryAfter,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey picks the limiter key: the api key for authenticated traffic,
// the remote IP for everything else.
func clientKey(r *http.Request) (key, kind string) {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, authPrefix) {
		return "key:" + strings.TrimPrefix(header, authPrefix), "api_key"
	}
	return "ip:" + clientIP(r), "ip"
}

// clientIP extracts the originating client address, honouring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		return host[:i]
	}
	return host
}
