package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pagora/pagora/internal/middleware"
	"github.com/pagora/pagora/internal/model"
	"github.com/pagora/pagora/internal/pkg/apperrors"
	"github.com/pagora/pagora/internal/webhook"
)

type WebhookHandler struct {
	store      webhook.Store
	dispatcher *webhook.Dispatcher
}

func NewWebhookHandler(store webhook.Store, dispatcher *webhook.Dispatcher) *WebhookHandler {
	return &WebhookHandler{store: store, dispatcher: dispatcher}
}

// endpointWithSecret is the create response; the only time the secret leaves
// the server.
type endpointWithSecret struct {
	*model.WebhookEndpoint
	Secret string `json:"secret"`
}

func (h *WebhookHandler) CreateEndpoint(c *gin.Context) {
	tc := middleware.TenantFrom(c)
	if tc == nil {
		c.Error(apperrors.NewAuthentication())
		return
	}

	var req model.CreateWebhookEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error(), ""))
		return
	}

	ep := webhook.NewEndpoint(tc.TenantID, &req)
	if err := h.store.CreateEndpoint(c.Request.Context(), ep); err != nil {
		c.Error(apperrors.Wrap(err, "create webhook endpoint"))
		return
	}

	middleware.AddAuditContext(c, "endpoint_id", ep.ID)
	c.JSON(http.StatusCreated, endpointWithSecret{WebhookEndpoint: ep, Secret: ep.Secret})
}

func (h *WebhookHandler) ListEndpoints(c *gin.Context) {
	tc := middleware.TenantFrom(c)
	if tc == nil {
		c.Error(apperrors.NewAuthentication())
		return
	}

	endpoints, err := h.store.ListEndpoints(c.Request.Context(), tc.TenantID)
	if err != nil {
		c.Error(apperrors.Wrap(err, "list webhook endpoints"))
		return
	}
	if endpoints == nil {
		endpoints = []*model.WebhookEndpoint{}
	}
	c.JSON(http.StatusOK, gin.H{"data": endpoints})
}

func (h *WebhookHandler) ListDeliveries(c *gin.Context) {
	tc := middleware.TenantFrom(c)
	if tc == nil {
		c.Error(apperrors.NewAuthentication())
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.Error(apperrors.NewInvalidRequest("limit must be a positive integer", "limit"))
			return
		}
		limit = parsed
	}

	deliveries, err := h.store.ListDeliveries(c.Request.Context(), tc.TenantID, limit)
	if err != nil {
		c.Error(apperrors.Wrap(err, "list webhook deliveries"))
		return
	}
	if deliveries == nil {
		deliveries = []*model.WebhookDelivery{}
	}
	c.JSON(http.StatusOK, gin.H{"data": deliveries})
}

// Dispatch runs one delivery batch immediately. Operator-only; the normal
// path is the background dispatcher loop.
func (h *WebhookHandler) Dispatch(c *gin.Context) {
	sent, err := h.dispatcher.RunBatch(c.Request.Context())
	if err != nil {
		c.Error(apperrors.Wrap(err, "dispatch webhook batch"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempted": sent})
}
