package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pagora/pagora/internal/model"
	"github.com/pagora/pagora/internal/pkg/apperrors"
	"github.com/pagora/pagora/internal/service"
)

const ContextTenantKey = "tenant"

// Auth resolves the bearer API key into a tenant context. Everything behind
// it can assume ContextTenantKey is set.
func Auth(validator *service.KeyValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawKey := bearerToken(c.GetHeader("Authorization"))
		if rawKey == "" {
			c.Error(apperrors.NewAuthentication())
			c.Abort()
			return
		}

		tc, err := validator.Validate(c.Request.Context(), rawKey)
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}

		c.Set(ContextTenantKey, tc)
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// TenantFrom returns the authenticated tenant context, or nil before Auth ran.
func TenantFrom(c *gin.Context) *model.TenantContext {
	val, exists := c.Get(ContextTenantKey)
	if !exists {
		return nil
	}
	tc, _ := val.(*model.TenantContext)
	return tc
}
