package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pagora/pagora/internal/model"
	"github.com/pagora/pagora/internal/service"
)

const ContextAuditLog = "audit_log"

type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyLogWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyLogWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Audit captures request/response pairs for the async audit trail. Card data
// and credentials are redacted before anything is stored.
func Audit(auditSvc *service.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var reqBodyBytes []byte
		if c.Request.Body != nil {
			reqBodyBytes, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(reqBodyBytes))
		}

		// Handlers may attach extra business context through AddAuditContext.
		auditEntry := &model.AuditLog{
			ID:        RequestIDFrom(c),
			Method:    c.Request.Method,
			Path:      c.Request.URL.Path,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			CreatedAt: start,
			Context:   make(map[string]interface{}),
		}
		c.Set(ContextAuditLog, auditEntry)

		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		if tc := TenantFrom(c); tc != nil {
			auditEntry.TenantID = tc.TenantID
		}
		auditEntry.RequestBody = redactAuditBody(reqBodyBytes)
		auditEntry.StatusCode = effectiveStatus(c)
		respBody := blw.body.Bytes()
		if len(respBody) == 0 && len(c.Errors) > 0 {
			// The error envelope is rendered after this middleware returns;
			// record what the client will actually receive.
			if envelope, err := json.Marshal(gin.H{"error": resolveError(c)}); err == nil {
				respBody = envelope
			}
		}
		auditEntry.ResponseBody = redactAuditBody(respBody)
		auditEntry.LatencyMs = time.Since(start).Milliseconds()

		auditSvc.Log(auditEntry)
	}
}

// AddAuditContext lets handlers attach business context to the audit entry.
func AddAuditContext(c *gin.Context, key string, value interface{}) {
	if val, exists := c.Get(ContextAuditLog); exists {
		if entry, ok := val.(*model.AuditLog); ok {
			entry.Context[key] = value
		}
	}
}

func redactAuditBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	redacted, ok := redactJSON(body)
	if !ok {
		// Non-JSON payloads are never stored verbatim.
		return "[unparsed]"
	}
	return string(redacted)
}

func redactJSON(body []byte) ([]byte, bool) {
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, false
	}
	redactValue(&data)
	out, err := json.Marshal(data)
	if err != nil {
		return nil, false
	}
	return out, true
}

func redactValue(v *interface{}) {
	switch raw := (*v).(type) {
	case map[string]interface{}:
		for key, val := range raw {
			if isSensitiveKey(key) {
				raw[key] = "***"
				continue
			}
			vv := val
			redactValue(&vv)
			raw[key] = vv
		}
	case []interface{}:
		for i, val := range raw {
			vv := val
			redactValue(&vv)
			raw[i] = vv
		}
	}
}

func isSensitiveKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "number",
		"card_number",
		"cvc",
		"cvv",
		"secret",
		"secret_key",
		"api_key",
		"webhook_secret",
		"authorization",
		"admin_key":
		return true
	default:
		return false
	}
}
