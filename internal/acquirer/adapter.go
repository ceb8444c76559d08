// Package acquirer abstracts downstream payment processors behind a uniform
// capability contract and routes authorizations to one of them.
package acquirer

import (
	"context"
	"fmt"
)

type ResultStatus string

const (
	StatusApproved       ResultStatus = "approved"
	StatusDeclined       ResultStatus = "declined"
	StatusRequiresAction ResultStatus = "requires_action"
)

// CardInput carries raw card data to the acquirer. It exists only for the
// duration of the call and is never persisted.
type CardInput struct {
	Number   string
	ExpMonth int
	ExpYear  int
	CVC      string
	Brand    string
	Last4    string
	Token    string
}

// PaymentMethodInput is a tagged union keyed by Type. Card is the only
// variant today; adding one means extending the mapper's switch.
type PaymentMethodInput struct {
	Type string
	Card *CardInput
}

type CustomerInput struct {
	ID    string
	Email string
}

type AddressInput struct {
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

type AuthorizationRequest struct {
	Amount            int64
	Currency          string
	MerchantReference string
	PaymentMethod     PaymentMethodInput
	Customer          *CustomerInput
	BillingAddress    *AddressInput
	// Capture requests immediate capture with the authorization.
	Capture bool
}

type CaptureRequest struct {
	AcquirerReference string
	Amount            int64
	Currency          string
}

type RefundRequest struct {
	AcquirerReference string
	Amount            int64
	Currency          string
}

type CancelRequest struct {
	AcquirerReference string
}

// Result is the canonical outcome of any adapter operation. Declines are
// results, not errors; errors mean the call itself failed.
type Result struct {
	Status            ResultStatus
	AuthorizationCode string
	AcquirerReference string
	DeclineCode       string
	DeclineMessage    string
	ProcessorResponse string
}

// Adapter is the uniform contract every acquirer integration satisfies.
type Adapter interface {
	Name() string
	Authorize(ctx context.Context, req *AuthorizationRequest) (*Result, error)
	Capture(ctx context.Context, req *CaptureRequest) (*Result, error)
	Refund(ctx context.Context, req *RefundRequest) (*Result, error)
	Cancel(ctx context.Context, req *CancelRequest) (*Result, error)
}

// AdapterError is a transport or protocol failure talking to an acquirer.
// Provider-specific shapes stop here; callers see only code and message.
type AdapterError struct {
	Adapter string
	Code    string
	Message string
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("acquirer %s: %s (%s)", e.Adapter, e.Message, e.Code)
}
