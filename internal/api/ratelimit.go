package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/surfersbangs/surfers/internal/log"
)

const (
	// visitorSweepEvery bounds how often stale visitor entries are purged.
	visitorSweepEvery = 5 * time.Minute

	// visitorTTL is how long an idle IP keeps its bucket.
	visitorTTL = 10 * time.Minute
)

// rateLimiter hands out one token bucket per client IP. Stale buckets are
// swept inline from allow() so no background goroutine is needed.
type rateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*visitor
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newRateLimiter creates a limiter refilling r tokens per second with the
// given burst capacity per IP.
func newRateLimiter(r float64, burst int) *rateLimiter {
	return &rateLimiter{
		buckets:   make(map[string]*visitor),
		limit:     rate.Limit(r),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

// allow reports whether a request from ip may proceed, consuming one token.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.sweepLocked(now)

	v, ok := rl.buckets[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[ip] = v
	}
	v.lastSeen = now
	return v.limiter.Allow()
}

// sweepLocked drops buckets idle past visitorTTL. Caller holds mu.
func (rl *rateLimiter) sweepLocked(now time.Time) {
	if now.Sub(rl.lastSweep) < visitorSweepEvery {
		return
	}
	for ip, v := range rl.buckets {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(rl.buckets, ip)
		}
	}
	rl.lastSweep = now
}

// rateLimitMiddleware rejects requests from IPs that exhausted their bucket
// with 429 and a Retry-After hint.
func rateLimitMiddleware(rl *rateLimiter, trustProxy bool, logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, trustProxy)
			if !rl.allow(ip) {
				logger.Warn("rate limit exceeded",
					"ip", ip,
					"method", r.Method,
					"path", r.URL.Path,
				)
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the client IP used as the rate limit key.
//
// X-Real-IP and the first X-Forwarded-For hop are consulted only when
// trustProxy is set, and only when they parse as real IPs; anything else
// falls back to RemoteAddr.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, candidate := range forwardedCandidates(r) {
			if ip := net.ParseIP(strings.TrimSpace(candidate)); ip != nil {
				return ip.String()
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// forwardedCandidates lists proxy-supplied client addresses in trust order.
func forwardedCandidates(r *http.Request) []string {
	var out []string
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		out = append(out, xri)
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		out = append(out, first)
	}
	return out
}
