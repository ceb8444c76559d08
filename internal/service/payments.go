package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pagora/pagora/internal/acquirer"
	"github.com/pagora/pagora/internal/config"
	"github.com/pagora/pagora/internal/model"
	"github.com/pagora/pagora/internal/pkg/apperrors"
	"github.com/pagora/pagora/internal/pkg/logger"
	"github.com/pagora/pagora/internal/pkg/metrics"
)

// PaymentStore is the persistence surface the payment service needs. Both the
// Postgres and in-memory stores satisfy it.
type PaymentStore interface {
	CreateIntent(ctx context.Context, intent *model.PaymentIntent) error
	GetIntent(ctx context.Context, tenantID, id string) (*model.PaymentIntent, error)
	UpdateIntent(ctx context.Context, intent *model.PaymentIntent) error
	CreateCharge(ctx context.Context, charge *model.Charge) error
	GetCharge(ctx context.Context, tenantID, id string) (*model.Charge, error)
	UpdateCharge(ctx context.Context, charge *model.Charge) error
	CreateRefund(ctx context.Context, refund *model.Refund) error
	CreateBalanceEntry(ctx context.Context, entry *model.BalanceEntry) error
}

// EventEmitter fans a domain event out to the tenant's webhook endpoints.
// Emission is best-effort from the caller's point of view; delivery retries
// belong to the dispatcher.
type EventEmitter interface {
	Emit(ctx context.Context, tenantID, eventType string, data any)
}

// PaymentService drives the intent state machine: create, confirm against an
// acquirer, capture, cancel, refund. Status transitions only happen here.
type PaymentService struct {
	store   PaymentStore
	router  *acquirer.Router
	emitter EventEmitter
	timeout time.Duration
}

func NewPaymentService(cfg *config.Config, store PaymentStore, router *acquirer.Router, emitter EventEmitter) *PaymentService {
	timeout := 15 * time.Second
	if cfg != nil && cfg.Acquirers.TimeoutMs > 0 {
		timeout = time.Duration(cfg.Acquirers.TimeoutMs) * time.Millisecond
	}
	return &PaymentService{store: store, router: router, emitter: emitter, timeout: timeout}
}

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s *PaymentService) CreateIntent(ctx context.Context, tc *model.TenantContext, req *model.CreateIntentRequest) (*model.PaymentIntent, error) {
	now := time.Now().UTC()
	intent := &model.PaymentIntent{
		ID:                 newID("pi"),
		TenantID:           tc.TenantID,
		CustomerID:         req.CustomerID,
		Amount:             req.Amount,
		Currency:           strings.ToUpper(req.Currency),
		CaptureMethod:      model.CaptureMethodAutomatic,
		ConfirmationMethod: model.ConfirmationMethodAutomatic,
		Status:             model.IntentStatusRequiresPaymentMethod,
		Metadata:           req.Metadata,
		Livemode:           tc.Livemode,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if req.CaptureMethod != "" {
		intent.CaptureMethod = req.CaptureMethod
	}
	if req.ConfirmationMethod != "" {
		intent.ConfirmationMethod = req.ConfirmationMethod
	}

	if err := s.store.CreateIntent(ctx, intent); err != nil {
		return nil, apperrors.Wrap(err, "create payment intent")
	}
	logger.Info("payment intent created",
		"tenant_id", tc.TenantID, "intent_id", intent.ID,
		"amount", intent.Amount, "currency", intent.Currency)
	return intent, nil
}

func (s *PaymentService) GetIntent(ctx context.Context, tc *model.TenantContext, id string) (*model.PaymentIntent, error) {
	intent, err := s.store.GetIntent(ctx, tc.TenantID, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, apperrors.NewNotFound("payment intent")
		}
		return nil, apperrors.Wrap(err, "load payment intent")
	}
	return intent, nil
}

// ConfirmIntent maps the supplied payment method, routes to an acquirer and
// authorizes. A declined authorization is a domain outcome (failed intent,
// processing_error), not a transport error.
func (s *PaymentService) ConfirmIntent(ctx context.Context, tc *model.TenantContext, id string, req *model.ConfirmIntentRequest) (*model.PaymentIntent, error) {
	intent, err := s.GetIntent(ctx, tc, id)
	if err != nil {
		return nil, err
	}
	if intent.Status != model.IntentStatusRequiresPaymentMethod && intent.Status != model.IntentStatusRequiresAction {
		return nil, apperrors.NewConflict("intent_not_confirmable",
			"payment intent cannot be confirmed in status "+string(intent.Status))
	}

	authReq, details, err := acquirer.BuildAuthorization(intent, req.PaymentMethod, req.BillingAddress)
	if err != nil {
		return nil, err
	}

	adapter, decision, err := s.router.Route(tc.TenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, "route authorization")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	result, err := adapter.Authorize(callCtx, authReq)
	if err != nil {
		metrics.AuthorizationsTotal.WithLabelValues(adapter.Name(), "error").Inc()
		logger.Error("acquirer authorization failed",
			"tenant_id", tc.TenantID, "intent_id", intent.ID,
			"adapter", adapter.Name(), "error", err.Error())
		var adapterErr *acquirer.AdapterError
		if errors.As(err, &adapterErr) {
			return nil, apperrors.NewProcessing("the acquirer could not process the payment", adapterErr.Code, adapterErr.Message)
		}
		return nil, apperrors.Wrap(err, "authorize payment")
	}

	intent.PaymentMethod = details
	intent.Routing = decision
	now := time.Now().UTC()

	switch result.Status {
	case acquirer.StatusRequiresAction:
		s.transition(intent, model.IntentStatusRequiresAction)
		metrics.AuthorizationsTotal.WithLabelValues(adapter.Name(), "requires_action").Inc()

	case acquirer.StatusDeclined:
		s.transition(intent, model.IntentStatusFailed)
		intent.FailureCode = result.DeclineCode
		metrics.AuthorizationsTotal.WithLabelValues(adapter.Name(), "declined").Inc()

	case acquirer.StatusApproved:
		charge := &model.Charge{
			ID:                newID("ch"),
			TenantID:          tc.TenantID,
			PaymentIntentID:   intent.ID,
			Amount:            intent.Amount,
			Currency:          intent.Currency,
			Status:            model.ChargeStatusAuthorized,
			Adapter:           adapter.Name(),
			AuthorizationCode: result.AuthorizationCode,
			AcquirerReference: result.AcquirerReference,
			Livemode:          tc.Livemode,
			CreatedAt:         now,
		}
		if authReq.Capture {
			charge.Status = model.ChargeStatusSucceeded
			charge.AmountCaptured = intent.Amount
		}
		if err := s.store.CreateCharge(ctx, charge); err != nil {
			return nil, apperrors.Wrap(err, "record charge")
		}
		intent.LatestChargeID = charge.ID

		if authReq.Capture {
			s.transition(intent, model.IntentStatusProcessing)
			s.transition(intent, model.IntentStatusSucceeded)
			if err := s.settle(ctx, tc, charge); err != nil {
				logger.Error("balance entry write failed", "charge_id", charge.ID, "error", err.Error())
			}
		} else {
			s.transition(intent, model.IntentStatusProcessing)
		}
		metrics.AuthorizationsTotal.WithLabelValues(adapter.Name(), "approved").Inc()
	}

	intent.UpdatedAt = now
	if err := s.store.UpdateIntent(ctx, intent); err != nil {
		return nil, apperrors.Wrap(err, "update payment intent")
	}

	switch intent.Status {
	case model.IntentStatusSucceeded:
		s.emit(ctx, tc.TenantID, model.EventPaymentIntentSucceeded, intent)
	case model.IntentStatusFailed:
		s.emit(ctx, tc.TenantID, model.EventPaymentIntentFailed, intent)
	}

	logger.Info("payment intent confirmed",
		"tenant_id", tc.TenantID, "intent_id", intent.ID,
		"adapter", adapter.Name(), "status", string(intent.Status))

	if intent.Status == model.IntentStatusFailed {
		return intent, apperrors.NewProcessing("your card was declined", result.DeclineCode, result.DeclineMessage)
	}
	return intent, nil
}

// CaptureIntent settles a previously authorized manual-capture intent, in
// full or for a lower amount.
func (s *PaymentService) CaptureIntent(ctx context.Context, tc *model.TenantContext, id string, req *model.CaptureIntentRequest) (*model.PaymentIntent, error) {
	intent, err := s.GetIntent(ctx, tc, id)
	if err != nil {
		return nil, err
	}
	if intent.Status != model.IntentStatusProcessing {
		return nil, apperrors.NewConflict("intent_not_capturable",
			"payment intent cannot be captured in status "+string(intent.Status))
	}

	charge, err := s.store.GetCharge(ctx, tc.TenantID, intent.LatestChargeID)
	if err != nil {
		return nil, apperrors.Wrap(err, "load charge")
	}

	amount := charge.Amount
	if req != nil && req.Amount > 0 {
		if req.Amount > charge.Amount {
			return nil, apperrors.NewInvalidRequest("capture amount exceeds authorized amount", "amount")
		}
		amount = req.Amount
	}

	adapter, err := s.adapterFor(charge)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	result, err := adapter.Capture(callCtx, &acquirer.CaptureRequest{
		AcquirerReference: charge.AcquirerReference,
		Amount:            amount,
		Currency:          charge.Currency,
	})
	if err != nil {
		var adapterErr *acquirer.AdapterError
		if errors.As(err, &adapterErr) {
			return nil, apperrors.NewProcessing("the acquirer could not capture the payment", adapterErr.Code, adapterErr.Message)
		}
		return nil, apperrors.Wrap(err, "capture payment")
	}
	if result.Status != acquirer.StatusApproved {
		return nil, apperrors.NewProcessing("capture was declined", result.DeclineCode, result.DeclineMessage)
	}

	charge.Status = model.ChargeStatusSucceeded
	charge.AmountCaptured = amount
	if err := s.store.UpdateCharge(ctx, charge); err != nil {
		return nil, apperrors.Wrap(err, "update charge")
	}

	s.transition(intent, model.IntentStatusSucceeded)
	intent.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateIntent(ctx, intent); err != nil {
		return nil, apperrors.Wrap(err, "update payment intent")
	}
	if err := s.settle(ctx, tc, charge); err != nil {
		logger.Error("balance entry write failed", "charge_id", charge.ID, "error", err.Error())
	}

	s.emit(ctx, tc.TenantID, model.EventChargeCaptured, charge)
	s.emit(ctx, tc.TenantID, model.EventPaymentIntentSucceeded, intent)
	return intent, nil
}

// CancelIntent voids an intent that has not reached a terminal status. An
// authorized but uncaptured charge is voided at the acquirer first.
func (s *PaymentService) CancelIntent(ctx context.Context, tc *model.TenantContext, id string) (*model.PaymentIntent, error) {
	intent, err := s.GetIntent(ctx, tc, id)
	if err != nil {
		return nil, err
	}
	if !intent.Status.CanTransitionTo(model.IntentStatusCanceled) {
		return nil, apperrors.NewConflict("intent_not_cancelable",
			"payment intent cannot be canceled in status "+string(intent.Status))
	}

	if intent.LatestChargeID != "" {
		charge, err := s.store.GetCharge(ctx, tc.TenantID, intent.LatestChargeID)
		if err == nil && charge.Status == model.ChargeStatusAuthorized {
			adapter, adErr := s.adapterFor(charge)
			if adErr == nil {
				callCtx, cancel := context.WithTimeout(ctx, s.timeout)
				if _, voidErr := adapter.Cancel(callCtx, &acquirer.CancelRequest{AcquirerReference: charge.AcquirerReference}); voidErr != nil {
					logger.Warn("authorization void failed", "charge_id", charge.ID, "error", voidErr.Error())
				}
				cancel()
			}
			charge.Status = model.ChargeStatusFailed
			if err := s.store.UpdateCharge(ctx, charge); err != nil {
				logger.Warn("charge update failed on cancel", "charge_id", charge.ID, "error", err.Error())
			}
		}
	}

	s.transition(intent, model.IntentStatusCanceled)
	intent.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateIntent(ctx, intent); err != nil {
		return nil, apperrors.Wrap(err, "update payment intent")
	}

	s.emit(ctx, tc.TenantID, model.EventPaymentIntentCanceled, intent)
	logger.Info("payment intent canceled", "tenant_id", tc.TenantID, "intent_id", intent.ID)
	return intent, nil
}

func (s *PaymentService) GetCharge(ctx context.Context, tc *model.TenantContext, id string) (*model.Charge, error) {
	charge, err := s.store.GetCharge(ctx, tc.TenantID, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, apperrors.NewNotFound("charge")
		}
		return nil, apperrors.Wrap(err, "load charge")
	}
	return charge, nil
}

// CreateRefund returns captured funds on a charge, in full or partially.
// Cumulative refunds never exceed the captured amount.
func (s *PaymentService) CreateRefund(ctx context.Context, tc *model.TenantContext, req *model.CreateRefundRequest) (*model.Refund, error) {
	charge, err := s.GetCharge(ctx, tc, req.ChargeID)
	if err != nil {
		return nil, err
	}
	if charge.Status != model.ChargeStatusSucceeded && charge.Status != model.ChargeStatusRefunded {
		return nil, apperrors.NewConflict("charge_not_refundable",
			"charge cannot be refunded in status "+string(charge.Status))
	}

	amount := charge.AmountCaptured - charge.AmountRefunded
	if req.Amount > 0 {
		amount = req.Amount
	}
	if amount <= 0 || charge.AmountRefunded+amount > charge.AmountCaptured {
		return nil, apperrors.NewInvalidRequest("refund amount exceeds refundable balance", "amount")
	}

	adapter, err := s.adapterFor(charge)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	result, err := adapter.Refund(callCtx, &acquirer.RefundRequest{
		AcquirerReference: charge.AcquirerReference,
		Amount:            amount,
		Currency:          charge.Currency,
	})
	if err != nil {
		var adapterErr *acquirer.AdapterError
		if errors.As(err, &adapterErr) {
			return nil, apperrors.NewProcessing("the acquirer could not process the refund", adapterErr.Code, adapterErr.Message)
		}
		return nil, apperrors.Wrap(err, "refund charge")
	}
	if result.Status != acquirer.StatusApproved {
		return nil, apperrors.NewProcessing("refund was declined", result.DeclineCode, result.DeclineMessage)
	}

	now := time.Now().UTC()
	refund := &model.Refund{
		ID:        newID("re"),
		TenantID:  tc.TenantID,
		ChargeID:  charge.ID,
		Amount:    amount,
		Currency:  charge.Currency,
		Status:    "succeeded",
		Reason:    req.Reason,
		CreatedAt: now,
	}
	if err := s.store.CreateRefund(ctx, refund); err != nil {
		return nil, apperrors.Wrap(err, "record refund")
	}

	charge.AmountRefunded += amount
	if charge.AmountRefunded == charge.AmountCaptured {
		charge.Status = model.ChargeStatusRefunded
	}
	if err := s.store.UpdateCharge(ctx, charge); err != nil {
		return nil, apperrors.Wrap(err, "update charge")
	}

	entry := &model.BalanceEntry{
		ID:        newID("bal"),
		TenantID:  tc.TenantID,
		Type:      model.BalanceEntryRefund,
		Amount:    -amount,
		Net:       -amount,
		Currency:  charge.Currency,
		SourceID:  refund.ID,
		CreatedAt: now,
	}
	if err := s.store.CreateBalanceEntry(ctx, entry); err != nil {
		logger.Error("balance entry write failed", "refund_id", refund.ID, "error", err.Error())
	}

	s.emit(ctx, tc.TenantID, model.EventChargeRefunded, charge)
	logger.Info("refund created",
		"tenant_id", tc.TenantID, "charge_id", charge.ID,
		"refund_id", refund.ID, "amount", amount)
	return refund, nil
}

func (s *PaymentService) settle(ctx context.Context, tc *model.TenantContext, charge *model.Charge) error {
	return s.store.CreateBalanceEntry(ctx, &model.BalanceEntry{
		ID:        newID("bal"),
		TenantID:  tc.TenantID,
		Type:      model.BalanceEntryCharge,
		Amount:    charge.AmountCaptured,
		Net:       charge.AmountCaptured,
		Currency:  charge.Currency,
		SourceID:  charge.ID,
		CreatedAt: time.Now().UTC(),
	})
}

func (s *PaymentService) adapterFor(charge *model.Charge) (acquirer.Adapter, error) {
	adapter, decision, err := s.router.Route(charge.TenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, "route acquirer operation")
	}
	// Follow-up operations must go to the adapter that authorized.
	if charge.Adapter != "" && adapter.Name() != charge.Adapter {
		if byName, ok := s.routerRegistryGet(charge.Adapter); ok {
			return byName, nil
		}
		logger.Warn("original adapter unavailable, using routed adapter",
			"charge_adapter", charge.Adapter, "routed", decision.SelectedAdapter)
	}
	return adapter, nil
}

func (s *PaymentService) routerRegistryGet(name string) (acquirer.Adapter, bool) {
	return s.router.Adapter(name)
}

func (s *PaymentService) transition(intent *model.PaymentIntent, next model.IntentStatus) {
	if !intent.Status.CanTransitionTo(next) {
		logger.Error("illegal intent transition blocked",
			"intent_id", intent.ID, "from", string(intent.Status), "to", string(next))
		return
	}
	intent.Status = next
}

func (s *PaymentService) emit(ctx context.Context, tenantID, eventType string, data any) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(ctx, tenantID, eventType, data)
}
