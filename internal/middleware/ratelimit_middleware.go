package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// InvalidAuthRateLimiter throttles clients that keep sending bad tokens.
// Each IP may fail 5 times, refilled at 5 per minute.
type InvalidAuthRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
}

type ipLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func NewInvalidAuthRateLimiter() *InvalidAuthRateLimiter {
	rl := &InvalidAuthRateLimiter{
		limiters: make(map[string]*ipLimiter),
	}
	go rl.cleanup()
	return rl
}

func (r *InvalidAuthRateLimiter) get(ip string) *ipLimiter {
	l, ok := r.limiters[ip]
	if !ok {
		l = &ipLimiter{lim: rate.NewLimiter(rate.Every(12*time.Second), 5)}
		r.limiters[ip] = l
	}
	l.lastSeen = time.Now()
	return l
}

// Blocked reports whether ip has used up its failed attempts.
func (r *InvalidAuthRateLimiter) Blocked(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[ip]
	if !ok {
		return false
	}
	return l.lim.Tokens() < 1
}

// Fail records one failed attempt from ip.
func (r *InvalidAuthRateLimiter) Fail(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.get(ip).lim.Allow()
}

func (r *InvalidAuthRateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	for range ticker.C {
		r.mu.Lock()
		for ip, l := range r.limiters {
			if time.Since(l.lastSeen) > 5*time.Minute {
				delete(r.limiters, ip)
			}
		}
		r.mu.Unlock()
	}
}
