package webhook

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/pagora/pagora/internal/config"
	"github.com/pagora/pagora/internal/model"
	"github.com/pagora/pagora/internal/pkg/logger"
	"github.com/pagora/pagora/internal/pkg/metrics"
)

const (
	headerSignature = "X-Pagora-Signature"
	headerEventType = "X-Pagora-Event-Type"
	headerEventID   = "X-Pagora-Event-Id"
	headerTimestamp = "X-Pagora-Timestamp"
)

// backoffLadder spaces retry attempts; attempts past the ladder reuse the
// last rung.
var backoffLadder = []time.Duration{1 * time.Minute, 5 * time.Minute, 30 * time.Minute}

// Dispatcher drains pending deliveries in batches, signing and POSTing each
// one. A 2xx response marks the delivery done; anything else schedules a retry
// until the attempt budget runs out. Outbound sends are paced so a burst of
// events cannot flood merchant endpoints.
type Dispatcher struct {
	store           Store
	client          *http.Client
	limiter         *rate.Limiter
	batchSize       int
	maxResponseBody int
	now             func() time.Time
}

func NewDispatcher(cfg *config.Config, store Store) *Dispatcher {
	timeout := 10 * time.Second
	batchSize := 50
	maxBody := 1000
	sendRate := rate.Limit(25)
	burst := 5
	if cfg != nil {
		if cfg.Webhooks.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.Webhooks.TimeoutSeconds) * time.Second
		}
		if cfg.Webhooks.BatchSize > 0 {
			batchSize = cfg.Webhooks.BatchSize
		}
		if cfg.Webhooks.MaxResponseBody > 0 {
			maxBody = cfg.Webhooks.MaxResponseBody
		}
		if cfg.Webhooks.SendRatePerSec > 0 {
			sendRate = rate.Limit(cfg.Webhooks.SendRatePerSec)
		}
		if cfg.Webhooks.SendBurst > 0 {
			burst = cfg.Webhooks.SendBurst
		}
	}
	return &Dispatcher{
		store:           store,
		client:          &http.Client{Timeout: timeout},
		limiter:         rate.NewLimiter(sendRate, burst),
		batchSize:       batchSize,
		maxResponseBody: maxBody,
		now:             time.Now,
	}
}

// RunBatch delivers one batch of due deliveries, oldest first. Returns the
// number attempted.
func (d *Dispatcher) RunBatch(ctx context.Context) (int, error) {
	pending, err := d.store.ListPending(ctx, d.now().UTC(), d.batchSize)
	if err != nil {
		return 0, err
	}
	for _, delivery := range pending {
		if err := d.limiter.Wait(ctx); err != nil {
			return 0, err
		}
		d.deliver(ctx, delivery)
	}
	return len(pending), nil
}

// Run polls for due deliveries until the context is canceled.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.RunBatch(ctx); err != nil && ctx.Err() == nil {
				logger.Error("webhook batch failed", "error", err.Error())
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, delivery *model.WebhookDelivery) {
	secret, err := d.store.EndpointSecret(ctx, delivery.TenantID, delivery.EndpointID)
	if err != nil {
		// Endpoint gone; stop retrying.
		delivery.Attempt = delivery.MaxAttempts
		delivery.LastError = "endpoint secret unavailable: " + err.Error()
		d.persist(ctx, delivery)
		return
	}

	now := d.now().UTC()
	ts := now.Unix()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		d.recordFailure(ctx, delivery, 0, "", err.Error(), now)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerSignature, Sign(secret, ts, delivery.Payload))
	req.Header.Set(headerEventType, delivery.EventType)
	req.Header.Set(headerEventID, delivery.EventID)
	req.Header.Set(headerTimestamp, strconv.FormatInt(ts, 10))

	resp, err := d.client.Do(req)
	if err != nil {
		d.recordFailure(ctx, delivery, 0, "", err.Error(), now)
		return
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, int64(d.maxResponseBody)))
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		delivery.Attempt++
		delivery.StatusCode = &resp.StatusCode
		delivery.ResponseBody = string(body)
		delivery.LastError = ""
		delivery.Delivered = true
		delivery.DeliveredAt = &now
		delivery.NextRetryAt = nil
		d.persist(ctx, delivery)
		metrics.WebhookDeliveries.WithLabelValues("delivered").Inc()
		logger.Info("webhook delivered",
			"delivery_id", delivery.ID, "event_type", delivery.EventType,
			"attempt", delivery.Attempt, "status", resp.StatusCode)
		return
	}

	d.recordFailure(ctx, delivery, resp.StatusCode, string(body), "", now)
}

func (d *Dispatcher) recordFailure(ctx context.Context, delivery *model.WebhookDelivery, status int, body, errMsg string, now time.Time) {
	delivery.Attempt++
	if status > 0 {
		delivery.StatusCode = &status
	}
	delivery.ResponseBody = body
	delivery.LastError = errMsg

	if delivery.Attempt >= delivery.MaxAttempts {
		delivery.NextRetryAt = nil
		metrics.WebhookDeliveries.WithLabelValues("exhausted").Inc()
		logger.Warn("webhook delivery exhausted",
			"delivery_id", delivery.ID, "event_type", delivery.EventType,
			"attempts", delivery.Attempt, "status", status, "error", errMsg)
	} else {
		next := now.Add(backoffFor(delivery.Attempt))
		delivery.NextRetryAt = &next
		metrics.WebhookDeliveries.WithLabelValues("retry").Inc()
		logger.Info("webhook delivery retry scheduled",
			"delivery_id", delivery.ID, "attempt", delivery.Attempt,
			"next_retry_at", next.Format(time.RFC3339))
	}
	d.persist(ctx, delivery)
}

// backoffFor returns the delay after the given (1-based) failed attempt.
func backoffFor(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(backoffLadder) {
		idx = len(backoffLadder) - 1
	}
	return backoffLadder[idx]
}

func (d *Dispatcher) persist(ctx context.Context, delivery *model.WebhookDelivery) {
	if err := d.store.UpdateDelivery(ctx, delivery); err != nil {
		logger.Error("webhook delivery update failed", "delivery_id", delivery.ID, "error", err.Error())
	}
}
