package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pagora/pagora/internal/model"
	"github.com/pagora/pagora/internal/pkg/apperrors"
	"github.com/pagora/pagora/internal/pkg/canonhash"
	"github.com/pagora/pagora/internal/pkg/logger"
	"github.com/pagora/pagora/internal/pkg/metrics"
	"github.com/pagora/pagora/internal/service"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotency-Replayed"
)

// replayHeaders are the only stored response headers echoed on a replay.
// Per-request headers (request id, rate limit quota) are always fresh.
var replayHeaders = []string{"Content-Type"}

// Idempotency makes mutating endpoints safe to retry. A completed request's
// response is stored under (tenant, endpoint, key) and replayed byte for byte
// for duplicates with a matching body; key reuse with a different body is a
// conflict. Runs after Auth.
func Idempotency(coord *service.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !mutating(c.Request.Method) {
			c.Next()
			return
		}

		idemKey := c.GetHeader(HeaderIdempotencyKey)
		if idemKey == "" {
			// Permitted, but the retry safety net is off.
			logger.Warn("mutating request without idempotency key",
				"method", c.Request.Method, "path", c.Request.URL.Path)
			c.Next()
			return
		}

		tc := TenantFrom(c)
		if tc == nil {
			c.Error(apperrors.NewAuthentication())
			c.Abort()
			return
		}

		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}
		bodyHash := canonhash.Hash(body)
		endpoint := c.Request.Method + " " + c.FullPath()

		begin, err := coord.Begin(c.Request.Context(), tc.TenantID, endpoint, idemKey, bodyHash)
		if err != nil {
			c.Error(apperrors.Wrap(err, "idempotency begin"))
			c.Abort()
			return
		}

		switch {
		case begin.Replay != nil:
			metrics.IdempotentReplays.WithLabelValues(endpoint).Inc()
			rec := begin.Replay
			for _, h := range replayHeaders {
				if v, ok := rec.ResponseHeaders[h]; ok {
					c.Header(h, v)
				}
			}
			c.Header(HeaderReplayed, "true")
			c.Data(rec.StatusCode, rec.ResponseHeaders["Content-Type"], rec.ResponseBody)
			c.Abort()
			return

		case begin.Conflict:
			c.Error(apperrors.NewConflict("idempotency_key_reuse",
				"idempotency key was used with a different request body"))
			c.Abort()
			return

		case begin.InProgress:
			c.Error(apperrors.NewConflict("request_in_progress",
				"a request with this idempotency key is still being processed"))
			c.Abort()
			return
		}

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		status := c.Writer.Status()
		if len(c.Errors) > 0 && !c.Writer.Written() {
			// ErrorHandler renders error envelopes outside this middleware,
			// so at this point the writer still reports the 200 default and
			// the capture buffer is empty. Render the envelope here so the
			// stored record carries the real outcome.
			appErr := resolveError(c)
			if appErr.HTTPStatus >= 500 {
				coord.Abort(c.Request.Context(), tc.TenantID, endpoint, idemKey)
				return
			}
			c.JSON(appErr.HTTPStatus, gin.H{"error": appErr})
			status = appErr.HTTPStatus
		}
		if status >= 500 {
			// Server fault: release the claim so the client can retry.
			coord.Abort(c.Request.Context(), tc.TenantID, endpoint, idemKey)
			return
		}

		headers := make(map[string]string, len(replayHeaders))
		for _, h := range replayHeaders {
			if v := c.Writer.Header().Get(h); v != "" {
				headers[h] = v
			}
		}
		now := time.Now().UTC()
		rec := &model.IdempotencyRecord{
			TenantID:        tc.TenantID,
			Endpoint:        endpoint,
			Key:             idemKey,
			BodyHash:        bodyHash,
			StatusCode:      status,
			ResponseBody:    w.body,
			ResponseHeaders: headers,
			CreatedAt:       now,
			ExpiresAt:       now.Add(coord.TTL()),
		}
		if err := coord.Complete(c.Request.Context(), tc.TenantID, endpoint, idemKey, rec); err != nil {
			logger.Error("idempotency record save failed",
				"tenant_id", tc.TenantID, "endpoint", endpoint, "error", err.Error())
		}
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

type captureWriter struct {
	gin.ResponseWriter
	body []byte
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body = append(w.body, s...)
	return w.ResponseWriter.WriteString(s)
}
