package server

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/pearlsonic/internal/observability/logger"
	"github.com/smallbiznis/pearlsonic/internal/ratelimit"
	"go.uber.org/zap"
)

// RateLimit counts the request against class, keyed by client address. A
// nil limiter disables the check.
func (s *Server) RateLimit(class ratelimit.Class) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		result, err := s.limiter.Check(ctx, class, ratelimit.ClientKey(c.Request))
		if err != nil {
			logger.FromContext(ctx).Warn("rate limit check failed, allowing request",
				zap.String("class", string(class)),
				zap.Error(err),
			)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			retryAfter := result.RetryAfterSeconds()
			logger.FromContext(ctx).Warn("rate limit exceeded",
				zap.String("class", string(class)),
				zap.String("route", normalizeRateLimitEndpoint(c)),
			)
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			AbortWithError(c, &ratelimit.LimitExceededError{Class: class, RetryAfter: retryAfter})
			return
		}

		c.Next()
	}
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	if endpoint := c.FullPath(); endpoint != "" {
		return endpoint
	}
	if c.Request.URL.Path != "" {
		return c.Request.URL.Path
	}
	return "unknown"
}
