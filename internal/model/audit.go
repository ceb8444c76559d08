package model

import "time"

// AuditLog records one processed API request. Request and response bodies are
// stored after redaction of card data and secrets.
type AuditLog struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`

	RequestBody  string `json:"request_body"`
	StatusCode   int    `json:"status_code"`
	ResponseBody string `json:"response_body"`
	LatencyMs    int64  `json:"latency_ms"`

	// Business context filled in by handlers (adapter chosen, intent id, ...)
	Context map[string]interface{} `json:"context"`

	CreatedAt time.Time `json:"created_at"`
}
