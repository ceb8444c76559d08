package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/pagora/pagora/internal/pkg/apperrors"
	"github.com/pagora/pagora/internal/pkg/logger"
)

// ErrorHandler converts accumulated gin errors into the canonical
// {"error": {...}} envelope. Handlers call c.Error and abort; nothing else
// writes error bodies.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		appErr := resolveError(c)

		logFields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"type", string(appErr.Type),
			"code", appErr.Code,
			"request_id", appErr.RequestID,
			"client_ip", c.ClientIP(),
		}
		if appErr.HTTPStatus >= 500 {
			logger.LogError(c.Request.Context(), appErr, "internal server error", logFields...)
		} else {
			logger.Warn(appErr.Message, logFields...)
		}

		if !c.Writer.Written() {
			c.JSON(appErr.HTTPStatus, gin.H{"error": appErr})
		}
	}
}

// resolveError folds the accumulated gin errors into a single AppError.
func resolveError(c *gin.Context) *apperrors.AppError {
	err := c.Errors.Last().Err
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.Wrap(err, "handle request")
	}
	appErr.RequestID = RequestIDFrom(c)
	return appErr
}

// effectiveStatus is the status the response will carry once pending errors
// are rendered. Middleware observing the outcome runs before ErrorHandler
// writes the envelope, when the writer still reports the 200 default.
func effectiveStatus(c *gin.Context) int {
	if len(c.Errors) > 0 && !c.Writer.Written() {
		return resolveError(c).HTTPStatus
	}
	return c.Writer.Status()
}
