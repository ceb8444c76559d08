package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/pagora/pagora/internal/config"
	"github.com/pagora/pagora/internal/repository"
	"github.com/pagora/pagora/internal/service"
)

func rateLimitedRouter(max int) *gin.Engine {
	cfg := &config.Config{}
	cfg.RateLimit.MaxRequests = max
	cfg.RateLimit.WindowMs = 60000
	limiter := service.NewRateLimiter(cfg, repository.NewMemoryCounterStore())

	r := gin.New()
	r.Use(ErrorHandler(), RequestID(), fakeAuth("tn_1"), RateLimit(limiter))
	r.GET("/v1/charges/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})
	return r
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	r := rateLimitedRouter(2)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/charges/ch_1", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, w.Code)
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/charges/ch_1", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("429 must include Retry-After")
	}
}

func TestRateLimit_QuotaHeaders(t *testing.T) {
	r := rateLimitedRouter(5)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/charges/ch_1", nil))

	if got := w.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Fatalf("limit header: %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "4" {
		t.Fatalf("remaining header: %q", got)
	}
	if w.Header().Get("X-RateLimit-Reset") == "" {
		t.Fatal("reset header missing")
	}
}
