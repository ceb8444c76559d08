package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pagora/pagora/internal/acquirer"
	"github.com/pagora/pagora/internal/config"
	"github.com/pagora/pagora/internal/model"
	"github.com/pagora/pagora/internal/pkg/apperrors"
	"github.com/pagora/pagora/internal/repository"
	"github.com/pagora/pagora/internal/service"
)

type recordingEmitter struct {
	events []string
}

func (r *recordingEmitter) Emit(ctx context.Context, tenantID, eventType string, data any) {
	r.events = append(r.events, eventType)
}

func paymentFixture(t *testing.T) (*service.PaymentService, *repository.MemoryPaymentStore, *recordingEmitter) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Acquirers.DefaultAdapter = "simbank"
	cfg.Acquirers.Candidates = []string{"simbank"}
	cfg.Acquirers.TimeoutMs = 5000

	store := repository.NewMemoryPaymentStore()
	emitter := &recordingEmitter{}
	router := acquirer.NewRouter(cfg, acquirer.NewRegistry(acquirer.NewSimbank()))
	return service.NewPaymentService(cfg, store, router, emitter), store, emitter
}

func tenantCtx() *model.TenantContext {
	return &model.TenantContext{TenantID: "tn_1", CredentialID: "key_1", KeyClass: model.KeyClassFullAccess}
}

func confirmReq(number string) *model.ConfirmIntentRequest {
	return &model.ConfirmIntentRequest{
		PaymentMethod: &model.PaymentMethodParams{
			Type: "card",
			Card: &model.CardParams{Number: number, ExpMonth: 12, ExpYear: 2030, CVC: "123"},
		},
	}
}

func TestCreateIntent(t *testing.T) {
	svc, _, _ := paymentFixture(t)

	intent, err := svc.CreateIntent(context.Background(), tenantCtx(), &model.CreateIntentRequest{
		Amount:   10050,
		Currency: "mxn",
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if !strings.HasPrefix(intent.ID, "pi_") {
		t.Fatalf("unexpected intent id: %s", intent.ID)
	}
	if intent.Status != model.IntentStatusRequiresPaymentMethod {
		t.Fatalf("unexpected status: %s", intent.Status)
	}
	if intent.Currency != "MXN" {
		t.Fatalf("currency not normalized: %s", intent.Currency)
	}
	if intent.CaptureMethod != model.CaptureMethodAutomatic {
		t.Fatalf("default capture method wrong: %s", intent.CaptureMethod)
	}
}

func TestConfirmIntent_AutomaticCapture(t *testing.T) {
	svc, store, emitter := paymentFixture(t)
	ctx := context.Background()
	tc := tenantCtx()

	intent, _ := svc.CreateIntent(ctx, tc, &model.CreateIntentRequest{Amount: 10050, Currency: "MXN"})
	confirmed, err := svc.ConfirmIntent(ctx, tc, intent.ID, confirmReq("4242424242424242"))
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != model.IntentStatusSucceeded {
		t.Fatalf("expected succeeded, got %s", confirmed.Status)
	}
	if confirmed.PaymentMethod == nil || confirmed.PaymentMethod.Last4 != "4242" {
		t.Fatalf("payment method details missing: %+v", confirmed.PaymentMethod)
	}
	if confirmed.Routing == nil || confirmed.Routing.SelectedAdapter != "simbank" {
		t.Fatalf("routing decision missing: %+v", confirmed.Routing)
	}
	if confirmed.LatestChargeID == "" {
		t.Fatal("latest charge not linked")
	}

	charge, err := store.GetCharge(ctx, tc.TenantID, confirmed.LatestChargeID)
	if err != nil {
		t.Fatalf("load charge: %v", err)
	}
	if charge.Status != model.ChargeStatusSucceeded || charge.AmountCaptured != 10050 {
		t.Fatalf("unexpected charge: status=%s captured=%d", charge.Status, charge.AmountCaptured)
	}

	found := false
	for _, e := range emitter.events {
		if e == model.EventPaymentIntentSucceeded {
			found = true
		}
	}
	if !found {
		t.Fatalf("succeeded event not emitted: %v", emitter.events)
	}
}

func TestConfirmIntent_Declined(t *testing.T) {
	svc, _, emitter := paymentFixture(t)
	ctx := context.Background()
	tc := tenantCtx()

	intent, _ := svc.CreateIntent(ctx, tc, &model.CreateIntentRequest{Amount: 500, Currency: "USD"})
	_, err := svc.ConfirmIntent(ctx, tc, intent.ID, confirmReq("4000000000000002"))

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.Type != apperrors.ErrProcessing {
		t.Fatalf("expected processing error, got %s", appErr.Type)
	}
	if appErr.AcquirerCode != "card_declined" {
		t.Fatalf("expected card_declined, got %s", appErr.AcquirerCode)
	}

	stored, _ := svc.GetIntent(ctx, tc, intent.ID)
	if stored.Status != model.IntentStatusFailed {
		t.Fatalf("expected failed intent, got %s", stored.Status)
	}
	if stored.FailureCode != "card_declined" {
		t.Fatalf("failure code not recorded: %s", stored.FailureCode)
	}
	found := false
	for _, e := range emitter.events {
		if e == model.EventPaymentIntentFailed {
			found = true
		}
	}
	if !found {
		t.Fatalf("failed event not emitted: %v", emitter.events)
	}
}

func TestConfirmIntent_RequiresAction(t *testing.T) {
	svc, _, _ := paymentFixture(t)
	ctx := context.Background()
	tc := tenantCtx()

	intent, _ := svc.CreateIntent(ctx, tc, &model.CreateIntentRequest{Amount: 500, Currency: "USD"})
	confirmed, err := svc.ConfirmIntent(ctx, tc, intent.ID, confirmReq("4000000000003220"))
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != model.IntentStatusRequiresAction {
		t.Fatalf("expected requires_action, got %s", confirmed.Status)
	}
}

func TestConfirmIntent_WrongStatus(t *testing.T) {
	svc, _, _ := paymentFixture(t)
	ctx := context.Background()
	tc := tenantCtx()

	intent, _ := svc.CreateIntent(ctx, tc, &model.CreateIntentRequest{Amount: 500, Currency: "USD"})
	if _, err := svc.ConfirmIntent(ctx, tc, intent.ID, confirmReq("4242424242424242")); err != nil {
		t.Fatalf("first confirm: %v", err)
	}

	_, err := svc.ConfirmIntent(ctx, tc, intent.ID, confirmReq("4242424242424242"))
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Type != apperrors.ErrConflict {
		t.Fatalf("expected conflict on double confirm, got %v", err)
	}
}

func TestManualCaptureFlow(t *testing.T) {
	svc, store, _ := paymentFixture(t)
	ctx := context.Background()
	tc := tenantCtx()

	intent, _ := svc.CreateIntent(ctx, tc, &model.CreateIntentRequest{
		Amount: 2000, Currency: "USD", CaptureMethod: model.CaptureMethodManual,
	})
	confirmed, err := svc.ConfirmIntent(ctx, tc, intent.ID, confirmReq("4242424242424242"))
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != model.IntentStatusProcessing {
		t.Fatalf("expected processing after manual-capture confirm, got %s", confirmed.Status)
	}

	charge, _ := store.GetCharge(ctx, tc.TenantID, confirmed.LatestChargeID)
	if charge.Status != model.ChargeStatusAuthorized || charge.AmountCaptured != 0 {
		t.Fatalf("expected authorized uncaptured charge: %+v", charge)
	}

	captured, err := svc.CaptureIntent(ctx, tc, intent.ID, &model.CaptureIntentRequest{Amount: 1500})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if captured.Status != model.IntentStatusSucceeded {
		t.Fatalf("expected succeeded, got %s", captured.Status)
	}
	charge, _ = store.GetCharge(ctx, tc.TenantID, confirmed.LatestChargeID)
	if charge.AmountCaptured != 1500 {
		t.Fatalf("partial capture amount wrong: %d", charge.AmountCaptured)
	}

	if _, err := svc.CaptureIntent(ctx, tc, intent.ID, nil); err == nil {
		t.Fatal("second capture must conflict")
	}
}

func TestCaptureExceedsAuthorized(t *testing.T) {
	svc, _, _ := paymentFixture(t)
	ctx := context.Background()
	tc := tenantCtx()

	intent, _ := svc.CreateIntent(ctx, tc, &model.CreateIntentRequest{
		Amount: 2000, Currency: "USD", CaptureMethod: model.CaptureMethodManual,
	})
	svc.ConfirmIntent(ctx, tc, intent.ID, confirmReq("4242424242424242"))

	_, err := svc.CaptureIntent(ctx, tc, intent.ID, &model.CaptureIntentRequest{Amount: 3000})
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Type != apperrors.ErrInvalidRequest {
		t.Fatalf("expected invalid_request, got %v", err)
	}
}

func TestCancelIntent(t *testing.T) {
	svc, _, emitter := paymentFixture(t)
	ctx := context.Background()
	tc := tenantCtx()

	intent, _ := svc.CreateIntent(ctx, tc, &model.CreateIntentRequest{Amount: 500, Currency: "USD"})
	canceled, err := svc.CancelIntent(ctx, tc, intent.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if canceled.Status != model.IntentStatusCanceled {
		t.Fatalf("expected canceled, got %s", canceled.Status)
	}
	found := false
	for _, e := range emitter.events {
		if e == model.EventPaymentIntentCanceled {
			found = true
		}
	}
	if !found {
		t.Fatalf("canceled event not emitted: %v", emitter.events)
	}

	if _, err := svc.CancelIntent(ctx, tc, intent.ID); err == nil {
		t.Fatal("canceling a canceled intent must fail")
	}
}

func TestCancelSucceededIntent(t *testing.T) {
	svc, _, _ := paymentFixture(t)
	ctx := context.Background()
	tc := tenantCtx()

	intent, _ := svc.CreateIntent(ctx, tc, &model.CreateIntentRequest{Amount: 500, Currency: "USD"})
	svc.ConfirmIntent(ctx, tc, intent.ID, confirmReq("4242424242424242"))

	if _, err := svc.CancelIntent(ctx, tc, intent.ID); err == nil {
		t.Fatal("canceling a succeeded intent must fail")
	}
}

func TestCreateRefund(t *testing.T) {
	svc, store, emitter := paymentFixture(t)
	ctx := context.Background()
	tc := tenantCtx()

	intent, _ := svc.CreateIntent(ctx, tc, &model.CreateIntentRequest{Amount: 10000, Currency: "USD"})
	confirmed, _ := svc.ConfirmIntent(ctx, tc, intent.ID, confirmReq("4242424242424242"))

	refund, err := svc.CreateRefund(ctx, tc, &model.CreateRefundRequest{
		ChargeID: confirmed.LatestChargeID,
		Amount:   4000,
		Reason:   "requested_by_customer",
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if !strings.HasPrefix(refund.ID, "re_") || refund.Amount != 4000 {
		t.Fatalf("unexpected refund: %+v", refund)
	}

	charge, _ := store.GetCharge(ctx, tc.TenantID, confirmed.LatestChargeID)
	if charge.AmountRefunded != 4000 || charge.Status != model.ChargeStatusSucceeded {
		t.Fatalf("partial refund state wrong: refunded=%d status=%s", charge.AmountRefunded, charge.Status)
	}

	// Second refund takes the remainder and flips the charge to refunded.
	if _, err := svc.CreateRefund(ctx, tc, &model.CreateRefundRequest{ChargeID: confirmed.LatestChargeID}); err != nil {
		t.Fatalf("full refund: %v", err)
	}
	charge, _ = store.GetCharge(ctx, tc.TenantID, confirmed.LatestChargeID)
	if charge.AmountRefunded != 10000 || charge.Status != model.ChargeStatusRefunded {
		t.Fatalf("full refund state wrong: refunded=%d status=%s", charge.AmountRefunded, charge.Status)
	}

	// Nothing left to refund.
	if _, err := svc.CreateRefund(ctx, tc, &model.CreateRefundRequest{ChargeID: confirmed.LatestChargeID, Amount: 1}); err == nil {
		t.Fatal("over-refund must be rejected")
	}

	found := false
	for _, e := range emitter.events {
		if e == model.EventChargeRefunded {
			found = true
		}
	}
	if !found {
		t.Fatalf("refund event not emitted: %v", emitter.events)
	}
}

func TestTenantIsolation(t *testing.T) {
	svc, _, _ := paymentFixture(t)
	ctx := context.Background()

	intent, _ := svc.CreateIntent(ctx, tenantCtx(), &model.CreateIntentRequest{Amount: 500, Currency: "USD"})

	other := &model.TenantContext{TenantID: "tn_other", KeyClass: model.KeyClassFullAccess}
	_, err := svc.GetIntent(ctx, other, intent.ID)
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Type != apperrors.ErrNotFound {
		t.Fatalf("expected not_found across tenants, got %v", err)
	}
}
