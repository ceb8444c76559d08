package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pagora/pagora/internal/acquirer"
	"github.com/pagora/pagora/internal/config"
	"github.com/pagora/pagora/internal/repository"
	"github.com/pagora/pagora/internal/service"
	"github.com/pagora/pagora/internal/webhook"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type gatewayFixture struct {
	router       *gin.Engine
	paymentStore *repository.MemoryPaymentStore
}

func newGateway(t *testing.T) *gatewayFixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.Auth.AdminKey = "test-admin-key"
	cfg.RateLimit.MaxRequests = 1000
	cfg.RateLimit.WindowMs = 60000
	cfg.Acquirers.DefaultAdapter = "simbank"
	cfg.Acquirers.Candidates = []string{"simbank"}
	cfg.Acquirers.TimeoutMs = 5000
	cfg.Webhooks.MaxAttempts = 3
	cfg.Tenants = []config.TenantConfig{{
		ID:             "tn_acme",
		Name:           "Acme",
		PublishableKey: "pk_test_acme",
		SecretKey:      "sk_test_acme",
	}}

	paymentStore := repository.NewMemoryPaymentStore()
	webhookStore := repository.NewMemoryWebhookStore()
	router := acquirer.NewRouter(cfg, acquirer.NewRegistry(acquirer.NewSimbank()))
	enqueuer := webhook.NewEnqueuer(cfg, webhookStore)

	auditSvc, err := service.NewAuditService(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("audit service: %v", err)
	}
	t.Cleanup(auditSvc.Close)

	deps := Deps{
		Config:       cfg,
		KeyValidator: service.NewKeyValidator(cfg, nil),
		RateLimiter:  service.NewRateLimiter(cfg, repository.NewMemoryCounterStore()),
		Idempotency:  service.NewCoordinator(repository.NewMemoryIdempotencyStore(), repository.NewMemoryIdempotencyStore(), time.Hour),
		Payments:     service.NewPaymentService(cfg, paymentStore, router, enqueuer),
		Audit:        auditSvc,
		WebhookStore: webhookStore,
		Dispatcher:   webhook.NewDispatcher(cfg, webhookStore),
	}
	return &gatewayFixture{
		router:       NewRouter(deps),
		paymentStore: paymentStore,
	}
}

func (f *gatewayFixture) do(method, path, key, idemKey, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

const confirmBody = `{"payment_method":{"type":"card","card":{"number":"4242424242424242","exp_month":12,"exp_year":2030,"cvc":"123"}}}`

func TestGateway_CreateConfirmSucceeds(t *testing.T) {
	f := newGateway(t)

	created := f.do(http.MethodPost, "/v1/payment_intents", "sk_test_acme", "", `{"amount":10050,"currency":"MXN"}`)
	if created.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", created.Code, created.Body.String())
	}
	intent := decode(t, created)
	intentID := intent["id"].(string)
	if intent["status"] != "requires_payment_method" {
		t.Fatalf("unexpected status: %v", intent["status"])
	}

	confirmed := f.do(http.MethodPost, "/v1/payment_intents/"+intentID+"/confirm", "sk_test_acme", "", confirmBody)
	if confirmed.Code != http.StatusOK {
		t.Fatalf("confirm: %d %s", confirmed.Code, confirmed.Body.String())
	}
	res := decode(t, confirmed)
	if res["status"] != "succeeded" {
		t.Fatalf("expected succeeded, got %v", res["status"])
	}
	pm := res["payment_method"].(map[string]any)
	if pm["last4"] != "4242" || pm["brand"] != "visa" {
		t.Fatalf("payment method details wrong: %v", pm)
	}
	if strings.Contains(confirmed.Body.String(), "4242424242424242") {
		t.Fatal("raw card number leaked into the response")
	}

	chargeID := res["latest_charge"].(string)
	chargeRes := f.do(http.MethodGet, "/v1/charges/"+chargeID, "sk_test_acme", "", "")
	if chargeRes.Code != http.StatusOK {
		t.Fatalf("get charge: %d %s", chargeRes.Code, chargeRes.Body.String())
	}
	charge := decode(t, chargeRes)
	if charge["amount_captured"].(float64) != 10050 {
		t.Fatalf("amount_captured wrong: %v", charge["amount_captured"])
	}
}

func TestGateway_IdempotentConfirmNoDuplicateCharge(t *testing.T) {
	f := newGateway(t)

	created := f.do(http.MethodPost, "/v1/payment_intents", "sk_test_acme", "", `{"amount":10050,"currency":"MXN"}`)
	intentID := decode(t, created)["id"].(string)

	first := f.do(http.MethodPost, "/v1/payment_intents/"+intentID+"/confirm", "sk_test_acme", "retry-key", confirmBody)
	if first.Code != http.StatusOK {
		t.Fatalf("first confirm: %d %s", first.Code, first.Body.String())
	}

	second := f.do(http.MethodPost, "/v1/payment_intents/"+intentID+"/confirm", "sk_test_acme", "retry-key", confirmBody)
	if second.Code != http.StatusOK {
		t.Fatalf("replayed confirm: %d %s", second.Code, second.Body.String())
	}
	if second.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatal("second confirm should be a replay")
	}
	if first.Body.String() != second.Body.String() {
		t.Fatal("replay body must be byte-identical")
	}
	if n := f.paymentStore.ChargeCount(intentID); n != 1 {
		t.Fatalf("expected exactly 1 charge, got %d", n)
	}
}

func TestGateway_DeclinedCardReturns402(t *testing.T) {
	f := newGateway(t)

	created := f.do(http.MethodPost, "/v1/payment_intents", "sk_test_acme", "", `{"amount":500,"currency":"USD"}`)
	intentID := decode(t, created)["id"].(string)

	declineBody := strings.Replace(confirmBody, "4242424242424242", "4000000000000002", 1)
	confirmed := f.do(http.MethodPost, "/v1/payment_intents/"+intentID+"/confirm", "sk_test_acme", "", declineBody)
	if confirmed.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", confirmed.Code, confirmed.Body.String())
	}
	envelope := decode(t, confirmed)
	errObj := envelope["error"].(map[string]any)
	if errObj["type"] != "processing_error" || errObj["acquirer_code"] != "card_declined" {
		t.Fatalf("unexpected error envelope: %v", errObj)
	}
}

func TestGateway_DeclinedConfirmReplaysDecline(t *testing.T) {
	f := newGateway(t)

	created := f.do(http.MethodPost, "/v1/payment_intents", "sk_test_acme", "", `{"amount":500,"currency":"USD"}`)
	intentID := decode(t, created)["id"].(string)

	declineBody := strings.Replace(confirmBody, "4242424242424242", "4000000000000002", 1)
	first := f.do(http.MethodPost, "/v1/payment_intents/"+intentID+"/confirm", "sk_test_acme", "decline-key", declineBody)
	if first.Code != http.StatusPaymentRequired {
		t.Fatalf("first confirm: %d %s", first.Code, first.Body.String())
	}

	second := f.do(http.MethodPost, "/v1/payment_intents/"+intentID+"/confirm", "sk_test_acme", "decline-key", declineBody)
	if second.Code != http.StatusPaymentRequired {
		t.Fatalf("retried decline must replay the 402, got %d: %s", second.Code, second.Body.String())
	}
	if second.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatal("second confirm should be a replay")
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replay body differs:\n%s\n%s", first.Body.String(), second.Body.String())
	}
	errObj := decode(t, second)["error"].(map[string]any)
	if errObj["type"] != "processing_error" || errObj["acquirer_code"] != "card_declined" {
		t.Fatalf("unexpected error envelope: %v", errObj)
	}
}

func TestGateway_RefundFlow(t *testing.T) {
	f := newGateway(t)

	created := f.do(http.MethodPost, "/v1/payment_intents", "sk_test_acme", "", `{"amount":10000,"currency":"USD"}`)
	intentID := decode(t, created)["id"].(string)
	confirmed := f.do(http.MethodPost, "/v1/payment_intents/"+intentID+"/confirm", "sk_test_acme", "", confirmBody)
	chargeID := decode(t, confirmed)["latest_charge"].(string)

	refunded := f.do(http.MethodPost, "/v1/refunds", "sk_test_acme", "", `{"charge":"`+chargeID+`","amount":4000,"reason":"requested_by_customer"}`)
	if refunded.Code != http.StatusCreated {
		t.Fatalf("refund: %d %s", refunded.Code, refunded.Body.String())
	}
	refund := decode(t, refunded)
	if refund["amount"].(float64) != 4000 || refund["status"] != "succeeded" {
		t.Fatalf("unexpected refund: %v", refund)
	}
}

func TestGateway_AuthRequired(t *testing.T) {
	f := newGateway(t)

	w := f.do(http.MethodPost, "/v1/payment_intents", "", "", `{"amount":500,"currency":"USD"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	envelope := decode(t, w)
	errObj := envelope["error"].(map[string]any)
	if errObj["type"] != "authentication_error" {
		t.Fatalf("unexpected error: %v", errObj)
	}
}

func TestGateway_PublishableKeyCannotMutate(t *testing.T) {
	f := newGateway(t)

	w := f.do(http.MethodPost, "/v1/payment_intents", "pk_test_acme", "", `{"amount":500,"currency":"USD"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for publishable key, got %d", w.Code)
	}
}

func TestGateway_ValidationErrors(t *testing.T) {
	f := newGateway(t)

	cases := []string{
		`{"amount":0,"currency":"USD"}`,
		`{"amount":-5,"currency":"USD"}`,
		`{"amount":100,"currency":"NOPE"}`,
		`{"currency":"USD"}`,
	}
	for _, body := range cases {
		w := f.do(http.MethodPost, "/v1/payment_intents", "sk_test_acme", "", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, w.Code)
		}
	}
}

func TestGateway_ExpiredCardRejectedByValidation(t *testing.T) {
	f := newGateway(t)

	created := f.do(http.MethodPost, "/v1/payment_intents", "sk_test_acme", "", `{"amount":500,"currency":"USD"}`)
	intentID := decode(t, created)["id"].(string)

	expired := `{"payment_method":{"type":"card","card":{"number":"4242424242424242","exp_month":1,"exp_year":2020,"cvc":"123"}}}`
	w := f.do(http.MethodPost, "/v1/payment_intents/"+intentID+"/confirm", "sk_test_acme", "", expired)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for expired card, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGateway_WebhookEndpointLifecycle(t *testing.T) {
	f := newGateway(t)

	created := f.do(http.MethodPost, "/v1/webhook_endpoints", "sk_test_acme", "", `{"url":"https://merchant.example.com/hooks","event_types":["payment_intent.succeeded"]}`)
	if created.Code != http.StatusCreated {
		t.Fatalf("create endpoint: %d %s", created.Code, created.Body.String())
	}
	ep := decode(t, created)
	secret, _ := ep["secret"].(string)
	if !strings.HasPrefix(secret, "whsec_") {
		t.Fatalf("secret missing from create response: %v", ep)
	}

	listed := f.do(http.MethodGet, "/v1/webhook_endpoints", "sk_test_acme", "", "")
	if listed.Code != http.StatusOK {
		t.Fatalf("list endpoints: %d", listed.Code)
	}
	if strings.Contains(listed.Body.String(), secret) {
		t.Fatal("secret must not appear in list responses")
	}

	// A succeeded payment enqueues a delivery for the endpoint.
	intent := decode(t, f.do(http.MethodPost, "/v1/payment_intents", "sk_test_acme", "", `{"amount":100,"currency":"USD"}`))
	f.do(http.MethodPost, "/v1/payment_intents/"+intent["id"].(string)+"/confirm", "sk_test_acme", "", confirmBody)

	deliveries := f.do(http.MethodGet, "/v1/webhook_deliveries", "sk_test_acme", "", "")
	if deliveries.Code != http.StatusOK {
		t.Fatalf("list deliveries: %d", deliveries.Code)
	}
	if !strings.Contains(deliveries.Body.String(), "payment_intent.succeeded") {
		t.Fatalf("expected pending delivery for succeeded intent: %s", deliveries.Body.String())
	}
}

func TestGateway_AdminDispatchGuarded(t *testing.T) {
	f := newGateway(t)

	req := httptest.NewRequest(http.MethodPost, "/internal/dispatch", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without admin key, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/internal/dispatch", nil)
	req.Header.Set("X-Admin-Key", "test-admin-key")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("dispatch with admin key: %d %s", w.Code, w.Body.String())
	}
}

func TestGateway_TenantScopedReads(t *testing.T) {
	f := newGateway(t)

	created := f.do(http.MethodPost, "/v1/payment_intents", "sk_test_acme", "", `{"amount":500,"currency":"USD"}`)
	intentID := decode(t, created)["id"].(string)

	w := f.do(http.MethodGet, "/v1/payment_intents/"+intentID, "sk_test_acme", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("owner read: %d", w.Code)
	}

	w = f.do(http.MethodGet, "/v1/payment_intents/pi_doesnotexist", "sk_test_acme", "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing intent: expected 404, got %d", w.Code)
	}
}

func TestGateway_Health(t *testing.T) {
	f := newGateway(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("health: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "pagora") {
		t.Fatalf("unexpected health body: %s", w.Body.String())
	}
}
