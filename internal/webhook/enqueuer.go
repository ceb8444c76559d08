package webhook

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pagora/pagora/internal/config"
	"github.com/pagora/pagora/internal/model"
	"github.com/pagora/pagora/internal/pkg/logger"
)

// Store is the persistence surface for endpoints and deliveries. The Postgres
// and in-memory webhook stores both satisfy it.
type Store interface {
	CreateEndpoint(ctx context.Context, ep *model.WebhookEndpoint) error
	ListEndpoints(ctx context.Context, tenantID string) ([]*model.WebhookEndpoint, error)
	EndpointSecret(ctx context.Context, tenantID, endpointID string) (string, error)
	CreateDelivery(ctx context.Context, d *model.WebhookDelivery) error
	ListPending(ctx context.Context, now time.Time, limit int) ([]*model.WebhookDelivery, error)
	ListDeliveries(ctx context.Context, tenantID string, limit int) ([]*model.WebhookDelivery, error)
	UpdateDelivery(ctx context.Context, d *model.WebhookDelivery) error
}

// eventEnvelope is the JSON body delivered to merchant endpoints.
type eventEnvelope struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Created  int64  `json:"created"`
	Livemode bool   `json:"livemode"`
	Data     struct {
		Object any `json:"object"`
	} `json:"data"`
}

// Enqueuer fans domain events out as pending deliveries, one per subscribed
// active endpoint. It satisfies the payment service's EventEmitter.
type Enqueuer struct {
	store       Store
	maxAttempts int
}

func NewEnqueuer(cfg *config.Config, store Store) *Enqueuer {
	maxAttempts := 3
	if cfg != nil && cfg.Webhooks.MaxAttempts > 0 {
		maxAttempts = cfg.Webhooks.MaxAttempts
	}
	return &Enqueuer{store: store, maxAttempts: maxAttempts}
}

func newEventID() string {
	return "evt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Emit builds one event envelope and schedules a delivery per matching
// endpoint. Failures are logged, never surfaced to the payment flow.
func (e *Enqueuer) Emit(ctx context.Context, tenantID, eventType string, data any) {
	if e.store == nil {
		return
	}
	endpoints, err := e.store.ListEndpoints(ctx, tenantID)
	if err != nil {
		logger.Error("webhook endpoint list failed", "tenant_id", tenantID, "error", err.Error())
		return
	}

	now := time.Now().UTC()
	envelope := eventEnvelope{
		ID:      newEventID(),
		Type:    eventType,
		Created: now.Unix(),
	}
	switch v := data.(type) {
	case *model.PaymentIntent:
		envelope.Livemode = v.Livemode
	case *model.Charge:
		envelope.Livemode = v.Livemode
	}
	envelope.Data.Object = data

	payload, err := json.Marshal(envelope)
	if err != nil {
		logger.Error("webhook payload encode failed", "event_type", eventType, "error", err.Error())
		return
	}

	for _, ep := range endpoints {
		if !ep.Active || !ep.Subscribed(eventType) {
			continue
		}
		delivery := &model.WebhookDelivery{
			ID:          "whd_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
			TenantID:    tenantID,
			EndpointID:  ep.ID,
			EventType:   eventType,
			EventID:     envelope.ID,
			URL:         ep.URL,
			Payload:     payload,
			MaxAttempts: e.maxAttempts,
			CreatedAt:   now,
		}
		if err := e.store.CreateDelivery(ctx, delivery); err != nil {
			logger.Error("webhook delivery enqueue failed",
				"tenant_id", tenantID, "endpoint_id", ep.ID, "error", err.Error())
			continue
		}
		logger.Debug("webhook delivery enqueued",
			"tenant_id", tenantID, "endpoint_id", ep.ID, "event_type", eventType)
	}
}
