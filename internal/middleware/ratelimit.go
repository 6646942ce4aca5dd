package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per client IP. The bucket map is an LRU
// so idle clients fall out instead of accumulating.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

func NewRateLimiter(limit rate.Limit, burst, maxClients int) *RateLimiter {
	l, err := lru.New[string, *rate.Limiter](maxClients)
	if err != nil {
		panic(err)
	}
	return &RateLimiter{limiters: l, limit: limit, burst: burst}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if l, ok := rl.limiters.Get(key); ok {
		return l
	}
	l := rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters.Add(key, l)
	return l
}

// Allow consumes one token for key.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiterFor(key).Allow()
}

// Limit rejects requests over the client's budget with 429. Admins are exempt.
func (rl *RateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsAdmin(c) || rl.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": gin.H{"code": "RATE_LIMITED", "message": "Too many comments from this address. Please wait a minute."},
		})
	}
}
