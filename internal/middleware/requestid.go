package middleware

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/gin-gonic/gin"
)

const (
	HeaderRequestID  = "X-Request-ID"
	ContextRequestID = "request_id"
)

// RequestID accepts a caller-supplied request id or generates one, stores it
// in the context and echoes it on the response. Runs first in the chain so
// every later stage can tag its logs.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(HeaderRequestID)
		if reqID == "" {
			reqID = newRequestID()
		}
		c.Set(ContextRequestID, reqID)
		c.Header(HeaderRequestID, reqID)
		c.Next()
	}
}

func newRequestID() string {
	buf := make([]byte, 12)
	rand.Read(buf)
	return "req_" + hex.EncodeToString(buf)
}

// RequestIDFrom returns the request id set by RequestID, or "".
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(ContextRequestID)
}
