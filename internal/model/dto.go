package model

// CardParams carries raw card data through the request only. It is mapped to
// an acquirer authorization and reduced to PaymentMethodDetails for storage.
type CardParams struct {
	Number   string `json:"number" binding:"required,numeric,min=12,max=19"`
	ExpMonth int    `json:"exp_month" binding:"required,min=1,max=12"`
	ExpYear  int    `json:"exp_year" binding:"required,min=2000"`
	CVC      string `json:"cvc" binding:"required,numeric,min=3,max=4"`
	Token    string `json:"token,omitempty"`
}

type PaymentMethodParams struct {
	Type string      `json:"type" binding:"required,oneof=card"`
	Card *CardParams `json:"card" binding:"required"`
}

type BillingAddress struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty" binding:"omitempty,len=2"`
}

type CreateIntentRequest struct {
	Amount             int64             `json:"amount" binding:"required,gt=0"`
	Currency           string            `json:"currency" binding:"required,iso4217"`
	CustomerID         string            `json:"customer,omitempty"`
	CaptureMethod      string            `json:"capture_method,omitempty" binding:"omitempty,oneof=automatic manual"`
	ConfirmationMethod string            `json:"confirmation_method,omitempty" binding:"omitempty,oneof=automatic manual"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

type ConfirmIntentRequest struct {
	PaymentMethod  *PaymentMethodParams `json:"payment_method" binding:"required"`
	BillingAddress *BillingAddress      `json:"billing_address,omitempty"`
}

type CaptureIntentRequest struct {
	// Zero means capture the full authorized amount.
	Amount int64 `json:"amount,omitempty" binding:"omitempty,gt=0"`
}

type CreateRefundRequest struct {
	ChargeID string `json:"charge" binding:"required"`
	Amount   int64  `json:"amount,omitempty" binding:"omitempty,gt=0"`
	Reason   string `json:"reason,omitempty" binding:"omitempty,oneof=duplicate fraudulent requested_by_customer"`
}

type CreateWebhookEndpointRequest struct {
	URL        string   `json:"url" binding:"required,url"`
	EventTypes []string `json:"event_types,omitempty"`
}
