package middleware

import (
	"net/http"
	"strconv"
	"time"

	"campus-eats-api/ratelimit"

	"github.com/gin-gonic/gin"
)

// GlobalLimit is the system-wide safety valve, checked before anything else.
// A nil limiter disables it.
func GlobalLimit(l *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}
		if d := l.AllowGlobal(c.Request.Context()); !d.Allowed {
			c.Header("Retry-After", retryAfter(d))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "Service is busy, please retry shortly",
			})
			return
		}
		c.Next()
	}
}

// RateLimit throttles the route per user (or per client IP when anonymous)
// under the given endpoint group. Place it after AuthRequired on private routes.
func RateLimit(l *ratelimit.Limiter, group string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}
		id := ratelimit.Identity{UserID: GetUserID(c), IP: c.ClientIP()}
		d := l.Allow(c.Request.Context(), id, group)
		if !d.Degraded {
			c.Header("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
			c.Header("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		}
		if !d.Allowed {
			c.Header("Retry-After", retryAfter(d))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests",
				"group":       group,
				"limit":       d.Limit,
				"retry_after": retryAfter(d),
			})
			return
		}
		c.Next()
	}
}

func retryAfter(d ratelimit.Decision) string {
	secs := int64(time.Until(d.ResetAt).Seconds()) + 1
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
