package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/leadflow/internal/logging"
	"github.com/imrishuroy/leadflow/internal/telemetry"
)

// Middleware limits requests per client IP. Redis errors let the request
// through so a cache outage never blocks checkout.
func Middleware(bucket *TokenBucket, prefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := prefix + ":" + c.ClientIP()
		allowed, tokens, err := bucket.Allow(c.Request.Context(), key)
		if err != nil {
			logging.Logger.WithError(err).Warn("rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(int(tokens)))
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}
		c.Next()
	}
}
