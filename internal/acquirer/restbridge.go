package acquirer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RestBridge speaks a minimal JSON protocol to an external acquirer gateway.
// One instance per configured upstream; the adapter name is whatever the
// routing config registered it under.
type RestBridge struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewRestBridge(name, baseURL, apiKey string, timeout time.Duration) *RestBridge {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RestBridge{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (b *RestBridge) Name() string { return b.name }

type bridgeCard struct {
	Number   string `json:"number"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
	CVC      string `json:"cvc,omitempty"`
	Token    string `json:"token,omitempty"`
}

type bridgeAuthorize struct {
	Amount    int64       `json:"amount"`
	Currency  string      `json:"currency"`
	Reference string      `json:"reference"`
	Capture   bool        `json:"capture"`
	Card      *bridgeCard `json:"card,omitempty"`
}

type bridgeOperation struct {
	Reference string `json:"reference"`
	Amount    int64  `json:"amount,omitempty"`
	Currency  string `json:"currency,omitempty"`
}

type bridgeResult struct {
	Status            string `json:"status"`
	AuthorizationCode string `json:"authorization_code"`
	Reference         string `json:"reference"`
	DeclineCode       string `json:"decline_code"`
	DeclineMessage    string `json:"decline_message"`
	ProcessorResponse string `json:"processor_response"`
}

func (b *RestBridge) Authorize(ctx context.Context, req *AuthorizationRequest) (*Result, error) {
	payload := bridgeAuthorize{
		Amount:    req.Amount,
		Currency:  req.Currency,
		Reference: req.MerchantReference,
		Capture:   req.Capture,
	}
	if card := req.PaymentMethod.Card; card != nil {
		payload.Card = &bridgeCard{
			Number:   card.Number,
			ExpMonth: card.ExpMonth,
			ExpYear:  card.ExpYear,
			CVC:      card.CVC,
			Token:    card.Token,
		}
	}
	return b.post(ctx, "/authorize", payload)
}

func (b *RestBridge) Capture(ctx context.Context, req *CaptureRequest) (*Result, error) {
	return b.post(ctx, "/capture", bridgeOperation{Reference: req.AcquirerReference, Amount: req.Amount, Currency: req.Currency})
}

func (b *RestBridge) Refund(ctx context.Context, req *RefundRequest) (*Result, error) {
	return b.post(ctx, "/refund", bridgeOperation{Reference: req.AcquirerReference, Amount: req.Amount, Currency: req.Currency})
}

func (b *RestBridge) Cancel(ctx context.Context, req *CancelRequest) (*Result, error) {
	return b.post(ctx, "/void", bridgeOperation{Reference: req.AcquirerReference})
}

func (b *RestBridge) post(ctx context.Context, path string, payload any) (*Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", path, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, &AdapterError{Adapter: b.name, Code: "connection_error", Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, &AdapterError{Adapter: b.name, Code: "read_error", Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &AdapterError{
			Adapter: b.name,
			Code:    fmt.Sprintf("http_%d", resp.StatusCode),
			Message: strings.TrimSpace(string(raw)),
		}
	}

	var br bridgeResult
	if err := json.Unmarshal(raw, &br); err != nil {
		return nil, &AdapterError{Adapter: b.name, Code: "invalid_response", Message: err.Error()}
	}

	result := &Result{
		AuthorizationCode: br.AuthorizationCode,
		AcquirerReference: br.Reference,
		DeclineCode:       br.DeclineCode,
		DeclineMessage:    br.DeclineMessage,
		ProcessorResponse: br.ProcessorResponse,
	}
	switch br.Status {
	case "approved", "succeeded":
		result.Status = StatusApproved
	case "requires_action", "pending_action":
		result.Status = StatusRequiresAction
	case "declined", "failed":
		result.Status = StatusDeclined
	default:
		return nil, &AdapterError{Adapter: b.name, Code: "unknown_status", Message: br.Status}
	}
	return result, nil
}
