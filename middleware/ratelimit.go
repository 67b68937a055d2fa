package middleware

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	rps     int
	burst   int
	mu      sync.Mutex
	clients map[string]*limiterEntry
	now     func() time.Time
}

func NewRateLimiter(rps, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = rps
	}
	return &RateLimiter{
		rps:     rps,
		burst:   burst,
		clients: make(map[string]*limiterEntry),
		now:     time.Now,
	}
}

func (r *RateLimiter) get(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.clients[key]; ok {
		entry.lastAccess = r.now()
		return entry.limiter
	}
	lim := rate.NewLimiter(rate.Every(time.Second/time.Duration(r.rps)), r.burst)
	r.clients[key] = &limiterEntry{limiter: lim, lastAccess: r.now()}
	return lim
}

func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Please slow down."})
			return
		}
		c.Next()
	}
}

// Cleanup drops limiters idle for longer than ttl and returns how many.
func (r *RateLimiter) Cleanup(ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-ttl)
	removed := 0
	for key, entry := range r.clients {
		if entry.lastAccess.Before(cutoff) {
			delete(r.clients, key)
			removed++
		}
	}
	return removed
}

// StartCleanup runs Cleanup every ttl until stop is closed.
func (r *RateLimiter) StartCleanup(ttl time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(ttl)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if n := r.Cleanup(ttl); n > 0 {
					log.Printf("Cleaned up %d stale rate limiters", n)
				}
			}
		}
	}()
}
