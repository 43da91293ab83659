package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// NewPerMinuteLimiter creates an in-memory limiter allowing limit requests
// per minute per key.
func NewPerMinuteLimiter(limit int64) *limiter.Limiter {
	if limit <= 0 {
		limit = 30
	}
	return limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: limit})
}

// RateLimit rejects requests over the limiter's rate. Authenticated requests
// are keyed by user, others by client IP.
func RateLimit(limiterInstance *limiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if userID, err := GetUserID(c); err == nil {
			key = userID
		}

		limiterContext, err := limiterInstance.Get(c.Request.Context(), key)
		if err != nil {
			jww.ERROR.Printf("[RATE] Limiter error for %s: %v", key, err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "RATE_LIMITER_ERROR",
					"message": "Rate limiter error",
				},
			})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limiterContext.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", limiterContext.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", limiterContext.Reset))

		if limiterContext.Reached {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "RATE_LIMITED",
					"message": "Too many messages, slow down",
				},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
