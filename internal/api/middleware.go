package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", strings.Join([]string{
				"Authorization",
				"Content-Type",
				"Accept",
				"Origin",
				"X-Requested-With",
			}, ", "))
			c.Header("Access-Control-Allow-Methods", strings.Join([]string{
				"GET",
				"POST",
				"OPTIONS",
			}, ", "))
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RateLimiter restricts request frequency per client.
type RateLimiter struct {
	mu   sync.Mutex
	last map[string]time.Time
	rate time.Duration
}

// NewRateLimiter creates a limiter with the given minimum interval
// between requests from the same client.
func NewRateLimiter(rate time.Duration) *RateLimiter {
	return &RateLimiter{last: make(map[string]time.Time), rate: rate}
}

// Allow returns false if the client hits the limit.
func (r *RateLimiter) Allow(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if t, ok := r.last[clientID]; ok && now.Sub(t) < r.rate {
		return false
	}
	r.last[clientID] = now
	return true
}

// Middleware rejects requests over the limit with 429, keyed by client IP.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
