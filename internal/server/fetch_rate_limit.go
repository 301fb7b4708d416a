package server

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/azurecost/internal/observability/logger"
	"github.com/smallbiznis/azurecost/internal/ratelimit"
	"go.uber.org/zap"
)

// FetchRateLimit guards the endpoints that call Cost Management on demand.
func (s *Server) FetchRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}

		endpoint := normalizeRateLimitEndpoint(c)
		res, err := s.limiter.Allow(c.Request.Context(), endpoint)
		if res != nil && res.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		}
		if errors.Is(err, ratelimit.ErrRateLimited) {
			logger.FromContext(c.Request.Context()).Warn("fetch rate limit exceeded",
				zap.String("endpoint", endpoint),
			)
			c.Header("Retry-After", strconv.Itoa(ratelimit.RetryAfterSeconds(res)))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
