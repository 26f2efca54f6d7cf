package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/liliang-cn/ragmentor/internal/api/respond"
	"github.com/liliang-cn/ragmentor/internal/domain"
)

// sweepInterval bounds how often idle buckets are looked for
const sweepInterval = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per caller. A bucket left idle
// for a full refill period is dropped: it would be full again anyway.
type RateLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter allows requestsPerHour per caller, all of them usable in
// a burst
func NewRateLimiter(requestsPerHour int) *RateLimiter {
	if requestsPerHour < 1 {
		requestsPerHour = 1
	}
	return &RateLimiter{
		limit:   rate.Every(time.Hour / time.Duration(requestsPerHour)),
		burst:   requestsPerHour,
		idle:    time.Hour,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow takes one token from key's bucket
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	now := l.now()
	if now.Sub(l.lastSweep) >= sweepInterval {
		l.sweep(now)
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()
	return b.limiter.AllowN(now, 1)
}

// Len reports how many callers currently hold a bucket
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *RateLimiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.idle {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

// RateLimit rejects callers that exhausted their bucket. Callers are keyed
// by verified email, falling back to the client IP.
func RateLimit(l *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if identity, ok := IdentityFrom(c); ok && identity.Email != "" {
			key = identity.Email
		}

		if !l.Allow(key) {
			c.Header("Retry-After", "60")
			respond.Error(c, domain.ErrRateLimited)
			return
		}
		c.Next()
	}
}
