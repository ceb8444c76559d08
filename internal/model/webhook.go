package model

import "time"

const (
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
	EventPaymentIntentCanceled  = "payment_intent.canceled"
	EventChargeCaptured         = "charge.captured"
	EventChargeRefunded         = "charge.refunded"
)

// WebhookEndpoint is a merchant-owned URL subscribed to event types. An empty
// EventTypes list (or "*") receives everything.
type WebhookEndpoint struct {
	ID         string    `json:"id" db:"id"`
	TenantID   string    `json:"-" db:"tenant_id"`
	URL        string    `json:"url" db:"url"`
	Secret     string    `json:"-" db:"secret"`
	EventTypes []string  `json:"event_types"`
	Active     bool      `json:"active" db:"active"`
	CreatedAt  time.Time `json:"created" db:"created_at"`
}

func (e *WebhookEndpoint) Subscribed(eventType string) bool {
	if len(e.EventTypes) == 0 {
		return true
	}
	for _, t := range e.EventTypes {
		if t == "*" || t == eventType {
			return true
		}
	}
	return false
}

// WebhookDelivery is one scheduled notification to a merchant endpoint.
// Delivered=true means no further retries; Attempt never exceeds MaxAttempts;
// NextRetryAt strictly increases across failed attempts.
type WebhookDelivery struct {
	ID           string     `json:"id" db:"id"`
	TenantID     string     `json:"-" db:"tenant_id"`
	EndpointID   string     `json:"endpoint_id" db:"endpoint_id"`
	EventType    string     `json:"event_type" db:"event_type"`
	EventID      string     `json:"event_id,omitempty" db:"event_id"`
	URL          string     `json:"url" db:"url"`
	Payload      []byte     `json:"-" db:"payload"`
	Attempt      int        `json:"attempt" db:"attempt"`
	MaxAttempts  int        `json:"max_attempts" db:"max_attempts"`
	StatusCode   *int       `json:"status_code,omitempty" db:"status_code"`
	ResponseBody string     `json:"response_body,omitempty" db:"response_body"`
	LastError    string     `json:"error,omitempty" db:"last_error"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty" db:"next_retry_at"`
	Delivered    bool       `json:"delivered" db:"delivered"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	CreatedAt    time.Time  `json:"created" db:"created_at"`
}

// Exhausted reports whether the delivery has used up its retry budget without
// succeeding.
func (d *WebhookDelivery) Exhausted() bool {
	return !d.Delivered && d.Attempt >= d.MaxAttempts
}
