package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pagora/pagora/internal/config"
	"github.com/pagora/pagora/internal/middleware"
	"github.com/pagora/pagora/internal/service"
	"github.com/pagora/pagora/internal/webhook"
)

// Deps bundles everything the HTTP surface needs. Built once in main and in
// tests.
type Deps struct {
	Config       *config.Config
	KeyValidator *service.KeyValidator
	RateLimiter  *service.RateLimiter
	Idempotency  *service.Coordinator
	Payments     *service.PaymentService
	Audit        *service.AuditService
	WebhookStore webhook.Store
	Dispatcher   *webhook.Dispatcher
}

// NewRouter assembles the full middleware chain and route table. Order
// matters: errors and metrics wrap everything, audit sees authenticated
// tenants, rate limiting runs before idempotency so rejected requests never
// claim a key.
func NewRouter(d Deps) *gin.Engine {
	RegisterValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RequestID())
	r.Use(middleware.Metrics())
	if d.Audit != nil {
		r.Use(middleware.Audit(d.Audit))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "pagora"})
	})
	if d.Config != nil && d.Config.Metrics.Enabled {
		path := d.Config.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.Handler()))
	}

	paymentHandler := NewPaymentHandler(d.Payments)
	webhookHandler := NewWebhookHandler(d.WebhookStore, d.Dispatcher)
	auditHandler := NewAuditHandler(d.Audit)

	v1 := r.Group("/v1")
	v1.Use(middleware.Auth(d.KeyValidator))
	v1.Use(middleware.RateLimit(d.RateLimiter))
	v1.Use(middleware.RequireWriteAccess())
	v1.Use(middleware.Idempotency(d.Idempotency))
	{
		v1.POST("/payment_intents", paymentHandler.CreateIntent)
		v1.GET("/payment_intents/:id", paymentHandler.GetIntent)
		v1.POST("/payment_intents/:id/confirm", paymentHandler.ConfirmIntent)
		v1.POST("/payment_intents/:id/capture", paymentHandler.CaptureIntent)
		v1.POST("/payment_intents/:id/cancel", paymentHandler.CancelIntent)

		v1.GET("/charges/:id", paymentHandler.GetCharge)
		v1.POST("/refunds", paymentHandler.CreateRefund)

		v1.POST("/webhook_endpoints", webhookHandler.CreateEndpoint)
		v1.GET("/webhook_endpoints", webhookHandler.ListEndpoints)
		v1.GET("/webhook_deliveries", webhookHandler.ListDeliveries)

		v1.GET("/audit_logs", auditHandler.List)
	}

	internal := r.Group("/internal")
	internal.Use(middleware.Admin(d.Config))
	{
		internal.POST("/dispatch", webhookHandler.Dispatch)
	}

	return r
}
