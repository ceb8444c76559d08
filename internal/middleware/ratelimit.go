package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pagora/pagora/internal/pkg/apperrors"
	"github.com/pagora/pagora/internal/pkg/metrics"
	"github.com/pagora/pagora/internal/service"
)

// RateLimit admits requests against the tenant's fixed-window budget. Quota
// headers go out on every response, allowed or not.
func RateLimit(limiter *service.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc := TenantFrom(c)
		if tc == nil {
			c.Error(apperrors.NewAuthentication())
			c.Abort()
			return
		}

		routeKey := c.Request.Method + " " + c.FullPath()
		res := limiter.Check(c.Request.Context(), tc.TenantID, routeKey)

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			metrics.RateLimitRejects.WithLabelValues(tc.TenantID).Inc()
			c.Header("Retry-After", strconv.FormatInt(secondsUntil(res), 10))
			c.Error(apperrors.NewRateLimited("too many requests, please retry later"))
			c.Abort()
			return
		}

		c.Next()
	}
}

func secondsUntil(res *service.RateResult) int64 {
	secs := res.ResetAt.Unix() - time.Now().Unix()
	if secs < 1 {
		secs = 1
	}
	return secs
}
