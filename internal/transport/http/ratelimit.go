package http

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipLimiter pairs a token bucket with its last use so idle entries can be
// evicted.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a per-client-IP token bucket.
type RateLimiter struct {
	mu    sync.Mutex
	ips   map[string]*ipLimiter
	rps   rate.Limit
	burst int

	idleTTL time.Duration
	done    chan struct{}
}

// NewRateLimiter creates a rate limiter allowing rps sustained requests with
// the given burst per client IP.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		ips:     make(map[string]*ipLimiter),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: 10 * time.Minute,
		done:    make(chan struct{}),
	}
	go rl.evictLoop()
	return rl
}

// Allow reports whether a request from ip may proceed.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.ips[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.ips[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

// Stop ends the background eviction goroutine.
func (rl *RateLimiter) Stop() {
	close(rl.done)
}

func (rl *RateLimiter) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-rl.idleTTL)
			rl.mu.Lock()
			for ip, entry := range rl.ips {
				if entry.lastSeen.Before(cutoff) {
					delete(rl.ips, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// RateLimitMiddleware rejects requests above the per-IP budget.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(clientIP(r)) {
				respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
