package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const limiterCacheSize = 4096

// RateLimiter enforces a per-client request budget. Limiters are kept in a
// bounded LRU so an attacker rotating source addresses cannot grow memory
// without bound.
type RateLimiter struct {
	limiters *lru.Cache[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

// NewRateLimiter builds a limiter allowing rpm requests per minute per
// client IP.
func NewRateLimiter(rpm int) *RateLimiter {
	if rpm <= 0 {
		rpm = 600
	}
	cache, _ := lru.New[string, *rate.Limiter](limiterCacheSize)
	return &RateLimiter{
		limiters: cache,
		limit:    rate.Limit(float64(rpm) / 60.0),
		burst:    rpm / 10,
	}
}

// Handler returns the gin middleware.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limited",
				"error_description": "Too many requests.",
			})
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) allow(key string) bool {
	limiter, ok := r.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(r.limit, max(1, r.burst))
		r.limiters.Add(key, limiter)
	}
	return limiter.Allow()
}
