package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pagora/pagora/internal/middleware"
	"github.com/pagora/pagora/internal/model"
	"github.com/pagora/pagora/internal/pkg/apperrors"
	"github.com/pagora/pagora/internal/service"
)

type PaymentHandler struct {
	svc *service.PaymentService
}

func NewPaymentHandler(svc *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	tc := middleware.TenantFrom(c)
	if tc == nil {
		c.Error(apperrors.NewAuthentication())
		return
	}

	var req model.CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error(), ""))
		return
	}

	intent, err := h.svc.CreateIntent(c.Request.Context(), tc, &req)
	if err != nil {
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "intent_id", intent.ID)
	c.JSON(http.StatusCreated, intent)
}

func (h *PaymentHandler) GetIntent(c *gin.Context) {
	tc := middleware.TenantFrom(c)
	if tc == nil {
		c.Error(apperrors.NewAuthentication())
		return
	}

	intent, err := h.svc.GetIntent(c.Request.Context(), tc, c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (h *PaymentHandler) ConfirmIntent(c *gin.Context) {
	tc := middleware.TenantFrom(c)
	if tc == nil {
		c.Error(apperrors.NewAuthentication())
		return
	}

	var req model.ConfirmIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error(), ""))
		return
	}

	intent, err := h.svc.ConfirmIntent(c.Request.Context(), tc, c.Param("id"), &req)
	if err != nil {
		middleware.AddAuditContext(c, "error", err.Error())
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "intent_id", intent.ID)
	middleware.AddAuditContext(c, "status", string(intent.Status))
	c.JSON(http.StatusOK, intent)
}

func (h *PaymentHandler) CaptureIntent(c *gin.Context) {
	tc := middleware.TenantFrom(c)
	if tc == nil {
		c.Error(apperrors.NewAuthentication())
		return
	}

	// Body is optional: absent means full capture.
	var req model.CaptureIntentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperrors.NewInvalidRequest(err.Error(), ""))
			return
		}
	}

	intent, err := h.svc.CaptureIntent(c.Request.Context(), tc, c.Param("id"), &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (h *PaymentHandler) CancelIntent(c *gin.Context) {
	tc := middleware.TenantFrom(c)
	if tc == nil {
		c.Error(apperrors.NewAuthentication())
		return
	}

	intent, err := h.svc.CancelIntent(c.Request.Context(), tc, c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (h *PaymentHandler) GetCharge(c *gin.Context) {
	tc := middleware.TenantFrom(c)
	if tc == nil {
		c.Error(apperrors.NewAuthentication())
		return
	}

	charge, err := h.svc.GetCharge(c.Request.Context(), tc, c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, charge)
}

func (h *PaymentHandler) CreateRefund(c *gin.Context) {
	tc := middleware.TenantFrom(c)
	if tc == nil {
		c.Error(apperrors.NewAuthentication())
		return
	}

	var req model.CreateRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error(), ""))
		return
	}

	refund, err := h.svc.CreateRefund(c.Request.Context(), tc, &req)
	if err != nil {
		middleware.AddAuditContext(c, "error", err.Error())
		c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "refund_id", refund.ID)
	c.JSON(http.StatusCreated, refund)
}
