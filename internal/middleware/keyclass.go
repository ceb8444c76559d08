package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pagora/pagora/internal/model"
	"github.com/pagora/pagora/internal/pkg/apperrors"
)

// RequireWriteAccess blocks read-only (publishable) keys from mutating verbs.
// GET/HEAD/OPTIONS pass for any key class.
func RequireWriteAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		tc := TenantFrom(c)
		if tc == nil {
			c.Error(apperrors.NewAuthentication())
			c.Abort()
			return
		}
		if tc.KeyClass != model.KeyClassFullAccess {
			c.Error(apperrors.NewUnauthorized("this operation requires a secret key"))
			c.Abort()
			return
		}
		c.Next()
	}
}
