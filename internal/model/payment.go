package model

import "time"

type IntentStatus string

const (
	IntentStatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentStatusRequiresAction        IntentStatus = "requires_action"
	IntentStatusProcessing            IntentStatus = "processing"
	IntentStatusSucceeded             IntentStatus = "succeeded"
	IntentStatusCanceled              IntentStatus = "canceled"
	IntentStatusFailed                IntentStatus = "failed"
)

const (
	CaptureMethodAutomatic = "automatic"
	CaptureMethodManual    = "manual"

	ConfirmationMethodAutomatic = "automatic"
	ConfirmationMethodManual    = "manual"
)

// intentTransitions is the only authority on status changes. Transitions are
// driven by authorize/capture/cancel outcomes, never set directly by callers.
var intentTransitions = map[IntentStatus][]IntentStatus{
	IntentStatusRequiresPaymentMethod: {IntentStatusRequiresAction, IntentStatusProcessing, IntentStatusCanceled, IntentStatusFailed},
	IntentStatusRequiresAction:        {IntentStatusProcessing, IntentStatusCanceled, IntentStatusFailed},
	IntentStatusProcessing:            {IntentStatusSucceeded, IntentStatusCanceled, IntentStatusFailed},
}

func (s IntentStatus) CanTransitionTo(next IntentStatus) bool {
	for _, allowed := range intentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s IntentStatus) Terminal() bool {
	return len(intentTransitions[s]) == 0
}

// PaymentMethodDetails holds only derived, display-safe card fields. Raw PANs
// and CVCs never reach this struct and are never persisted.
type PaymentMethodDetails struct {
	Type     string `json:"type"`
	Brand    string `json:"brand,omitempty"`
	Network  string `json:"network,omitempty"`
	Last4    string `json:"last4,omitempty"`
	ExpMonth int    `json:"exp_month,omitempty"`
	ExpYear  int    `json:"exp_year,omitempty"`
}

type RoutingStrategy string

const (
	StrategyCostOptimization RoutingStrategy = "cost_optimization"
	StrategyApprovalRate     RoutingStrategy = "approval_rate"
	StrategyManual           RoutingStrategy = "manual"
	StrategyFallback         RoutingStrategy = "fallback"
)

// RoutingDecision records which acquirer adapter handled an authorization and
// why. Immutable once attached to an intent.
type RoutingDecision struct {
	SelectedAdapter   string            `json:"selected_adapter"`
	CandidateAdapters []string          `json:"candidate_adapters"`
	Strategy          RoutingStrategy   `json:"strategy"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

type PaymentIntent struct {
	ID                 string                `json:"id" db:"id"`
	TenantID           string                `json:"-" db:"tenant_id"`
	CustomerID         string                `json:"customer_id,omitempty" db:"customer_id"`
	Amount             int64                 `json:"amount" db:"amount"`
	Currency           string                `json:"currency" db:"currency"`
	CaptureMethod      string                `json:"capture_method" db:"capture_method"`
	ConfirmationMethod string                `json:"confirmation_method" db:"confirmation_method"`
	Status             IntentStatus          `json:"status" db:"status"`
	PaymentMethod      *PaymentMethodDetails `json:"payment_method,omitempty"`
	Routing            *RoutingDecision      `json:"acquirer_routing,omitempty"`
	LatestChargeID     string                `json:"latest_charge,omitempty" db:"latest_charge_id"`
	FailureCode        string                `json:"failure_code,omitempty" db:"failure_code"`
	Metadata           map[string]string     `json:"metadata,omitempty"`
	Livemode           bool                  `json:"livemode" db:"livemode"`
	CreatedAt          time.Time             `json:"created" db:"created_at"`
	UpdatedAt          time.Time             `json:"-" db:"updated_at"`
}

type ChargeStatus string

const (
	ChargeStatusAuthorized ChargeStatus = "authorized"
	ChargeStatusSucceeded  ChargeStatus = "succeeded"
	ChargeStatusRefunded   ChargeStatus = "refunded"
	ChargeStatusFailed     ChargeStatus = "failed"
)

type Charge struct {
	ID                string       `json:"id" db:"id"`
	TenantID          string       `json:"-" db:"tenant_id"`
	PaymentIntentID   string       `json:"payment_intent" db:"payment_intent_id"`
	Amount            int64        `json:"amount" db:"amount"`
	AmountCaptured    int64        `json:"amount_captured" db:"amount_captured"`
	AmountRefunded    int64        `json:"amount_refunded" db:"amount_refunded"`
	Currency          string       `json:"currency" db:"currency"`
	Status            ChargeStatus `json:"status" db:"status"`
	Adapter           string       `json:"-" db:"adapter"`
	AuthorizationCode string       `json:"authorization_code,omitempty" db:"authorization_code"`
	AcquirerReference string       `json:"acquirer_reference,omitempty" db:"acquirer_reference"`
	Livemode          bool         `json:"livemode" db:"livemode"`
	CreatedAt         time.Time    `json:"created" db:"created_at"`
}

type Refund struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"-" db:"tenant_id"`
	ChargeID  string    `json:"charge" db:"charge_id"`
	Amount    int64     `json:"amount" db:"amount"`
	Currency  string    `json:"currency" db:"currency"`
	Status    string    `json:"status" db:"status"`
	Reason    string    `json:"reason,omitempty" db:"reason"`
	CreatedAt time.Time `json:"created" db:"created_at"`
}

type BalanceEntryType string

const (
	BalanceEntryCharge BalanceEntryType = "charge"
	BalanceEntryRefund BalanceEntryType = "refund"
)

// BalanceEntry is one row of the tenant's ledger, written when funds move.
type BalanceEntry struct {
	ID        string           `json:"id" db:"id"`
	TenantID  string           `json:"-" db:"tenant_id"`
	Type      BalanceEntryType `json:"type" db:"entry_type"`
	Amount    int64            `json:"amount" db:"amount"`
	Fee       int64            `json:"fee" db:"fee"`
	Net       int64            `json:"net" db:"net"`
	Currency  string           `json:"currency" db:"currency"`
	SourceID  string           `json:"source" db:"source_id"`
	CreatedAt time.Time        `json:"created" db:"created_at"`
}

// IdempotencyRecord stores a completed response for replay. Unique per
// (tenant, endpoint, key); immutable once completed except for promotion of a
// durable-store entry into the fast cache.
type IdempotencyRecord struct {
	TenantID        string            `json:"tenant_id"`
	Endpoint        string            `json:"endpoint"`
	Key             string            `json:"key"`
	BodyHash        string            `json:"body_hash"`
	StatusCode      int               `json:"status_code"`
	ResponseBody    []byte            `json:"response_body"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	Processing      bool              `json:"processing"`
	CreatedAt       time.Time         `json:"created_at"`
	ExpiresAt       time.Time         `json:"expires_at"`
}
