package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/pagora/pagora/internal/config"
	"github.com/pagora/pagora/internal/service"
)

func authRouter() *gin.Engine {
	cfg := &config.Config{
		Tenants: []config.TenantConfig{{
			ID:             "tn_acme",
			PublishableKey: "pk_test_acme",
			SecretKey:      "sk_test_acme",
		}},
	}
	validator := service.NewKeyValidator(cfg, nil)

	r := gin.New()
	r.Use(ErrorHandler(), RequestID(), Auth(validator))
	r.GET("/v1/payment_intents/:id", func(c *gin.Context) {
		tc := TenantFrom(c)
		c.JSON(http.StatusOK, gin.H{"tenant": tc.TenantID, "class": string(tc.KeyClass)})
	})
	r.POST("/v1/payment_intents", RequireWriteAccess(), func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})
	return r
}

func doAuth(r *gin.Engine, method, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_ValidSecretKey(t *testing.T) {
	w := doAuth(authRouter(), http.MethodGet, "/v1/payment_intents/pi_1", "sk_test_acme")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "tn_acme") {
		t.Fatalf("tenant missing from response: %s", w.Body.String())
	}
}

func TestAuth_MissingKey(t *testing.T) {
	w := doAuth(authRouter(), http.MethodGet, "/v1/payment_intents/pi_1", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "invalid or inactive API key") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestAuth_UnknownKey(t *testing.T) {
	w := doAuth(authRouter(), http.MethodGet, "/v1/payment_intents/pi_1", "sk_test_nope")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuth_ErrorEnvelopeCarriesRequestID(t *testing.T) {
	w := doAuth(authRouter(), http.MethodGet, "/v1/payment_intents/pi_1", "")
	if !strings.Contains(w.Body.String(), `"request_id":"req_`) {
		t.Fatalf("request id missing from error envelope: %s", w.Body.String())
	}
}

func TestRequireWriteAccess_BlocksPublishableKey(t *testing.T) {
	r := authRouter()

	w := doAuth(r, http.MethodPost, "/v1/payment_intents", "pk_test_acme")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for publishable key on POST, got %d", w.Code)
	}

	w = doAuth(r, http.MethodPost, "/v1/payment_intents", "sk_test_acme")
	if w.Code != http.StatusCreated {
		t.Fatalf("secret key POST should pass, got %d", w.Code)
	}

	// Reads are fine with either class.
	w = doAuth(r, http.MethodGet, "/v1/payment_intents/pi_1", "pk_test_acme")
	if w.Code != http.StatusOK {
		t.Fatalf("publishable key GET should pass, got %d", w.Code)
	}
}

func TestRequestID_EchoesCallerValue(t *testing.T) {
	r := authRouter()
	req := httptest.NewRequest(http.MethodGet, "/v1/payment_intents/pi_1", nil)
	req.Header.Set("Authorization", "Bearer sk_test_acme")
	req.Header.Set(HeaderRequestID, "req_caller_supplied")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get(HeaderRequestID); got != "req_caller_supplied" {
		t.Fatalf("expected caller request id echoed, got %q", got)
	}
}

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	r := authRouter()
	req := httptest.NewRequest(http.MethodGet, "/v1/payment_intents/pi_1", nil)
	req.Header.Set("Authorization", "Bearer sk_test_acme")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get(HeaderRequestID); !strings.HasPrefix(got, "req_") {
		t.Fatalf("expected generated request id, got %q", got)
	}
}
