package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pagora/pagora/internal/middleware"
	"github.com/pagora/pagora/internal/pkg/apperrors"
	"github.com/pagora/pagora/internal/service"
)

type AuditHandler struct {
	svc *service.AuditService
}

func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

func (h *AuditHandler) List(c *gin.Context) {
	tc := middleware.TenantFrom(c)
	if tc == nil {
		c.Error(apperrors.NewAuthentication())
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	var fromPtr, toPtr *time.Time
	if raw := c.Query("from"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			c.Error(apperrors.NewInvalidRequest(err.Error(), "from"))
			return
		}
		fromPtr = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			c.Error(apperrors.NewInvalidRequest(err.Error(), "to"))
			return
		}
		toPtr = &t
	}

	records, err := h.svc.List(c.Request.Context(), tc.TenantID, limit, fromPtr, toPtr)
	if err != nil {
		c.Error(apperrors.Wrap(err, "list audit entries"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time format")
}
