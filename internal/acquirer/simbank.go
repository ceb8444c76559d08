package acquirer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Simbank is a deterministic in-process acquirer. Well-known test PANs force
// specific outcomes; everything else approves. Used as the default adapter in
// test mode and as the routing fallback in development.
type Simbank struct{}

func NewSimbank() *Simbank { return &Simbank{} }

func (s *Simbank) Name() string { return "simbank" }

const (
	panGenericDecline    = "4000000000000002"
	panInsufficientFunds = "4000000000009995"
	panRequiresAction    = "4000000000003220"
)

func (s *Simbank) Authorize(ctx context.Context, req *AuthorizationRequest) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	card := req.PaymentMethod.Card
	if card == nil {
		return nil, &AdapterError{Adapter: s.Name(), Code: "missing_card", Message: "card data required"}
	}

	if expired(card.ExpMonth, card.ExpYear) {
		return &Result{
			Status:         StatusDeclined,
			DeclineCode:    "expired_card",
			DeclineMessage: "The card has expired.",
		}, nil
	}

	switch card.Number {
	case panGenericDecline:
		return &Result{
			Status:         StatusDeclined,
			DeclineCode:    "card_declined",
			DeclineMessage: "The card was declined.",
		}, nil
	case panInsufficientFunds:
		return &Result{
			Status:         StatusDeclined,
			DeclineCode:    "insufficient_funds",
			DeclineMessage: "The card has insufficient funds.",
		}, nil
	case panRequiresAction:
		return &Result{
			Status:            StatusRequiresAction,
			AcquirerReference: s.reference(),
		}, nil
	}

	return &Result{
		Status:            StatusApproved,
		AuthorizationCode: s.authCode(),
		AcquirerReference: s.reference(),
		ProcessorResponse: "00",
	}, nil
}

func (s *Simbank) Capture(ctx context.Context, req *CaptureRequest) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Result{
		Status:            StatusApproved,
		AcquirerReference: req.AcquirerReference,
		ProcessorResponse: "00",
	}, nil
}

func (s *Simbank) Refund(ctx context.Context, req *RefundRequest) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Result{
		Status:            StatusApproved,
		AcquirerReference: req.AcquirerReference,
		ProcessorResponse: "00",
	}, nil
}

func (s *Simbank) Cancel(ctx context.Context, req *CancelRequest) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Result{
		Status:            StatusApproved,
		AcquirerReference: req.AcquirerReference,
		ProcessorResponse: "00",
	}, nil
}

func (s *Simbank) authCode() string {
	buf := make([]byte, 3)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}

func (s *Simbank) reference() string {
	buf := make([]byte, 8)
	rand.Read(buf)
	return fmt.Sprintf("sb_%s", hex.EncodeToString(buf))
}

func expired(month, year int) bool {
	if month < 1 || month > 12 || year == 0 {
		return true
	}
	now := time.Now().UTC()
	if year < now.Year() {
		return true
	}
	return year == now.Year() && month < int(now.Month())
}
