package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// cleanupThreshold is the map size above which idle entries are pruned.
	cleanupThreshold = 500
	// maxIdleAge is how long an IP can go quiet before its limiter is dropped.
	maxIdleAge = 10 * time.Minute
)

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter hands out one token bucket per client IP.
//
// TOKEN BUCKET:
// Each IP gets a bucket holding up to burst tokens, refilled at rps tokens per
// second. A request spends one token; an empty bucket means 429. Bursts of
// clicks go through, sustained hammering of the write endpoints does not.
type IPRateLimiter struct {
	mu    sync.Mutex
	ips   map[string]*ipEntry
	limit rate.Limit
	burst int
	now   func() time.Time
}

func NewIPRateLimiter(rps float64, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		ips:   make(map[string]*ipEntry),
		limit: rate.Limit(rps),
		burst: burst,
		now:   time.Now,
	}
}

// Limiter returns the bucket for ip, pruning idle entries once the map grows
// past cleanupThreshold.
func (l *IPRateLimiter) Limiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.ips) > cleanupThreshold {
		cutoff := now.Add(-maxIdleAge)
		for k, e := range l.ips {
			if e.lastSeen.Before(cutoff) {
				delete(l.ips, k)
			}
		}
	}

	e, ok := l.ips[ip]
	if !ok {
		e = &ipEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.ips[ip] = e
	}
	e.lastSeen = now
	return e.limiter
}

func (l *IPRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ips)
}

// RateLimit rejects requests from IPs that have used up their bucket with
// 429 and a Retry-After header. Mount it after chi's RealIP so RemoteAddr is
// the client, not the proxy.
func RateLimit(l *IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			if !l.Limiter(ip).Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate_limited","message":"too many requests, slow down"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
