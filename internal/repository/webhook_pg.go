package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pagora/pagora/internal/model"
)

// PostgresWebhookStore owns webhook endpoints and delivery records. The
// dispatcher is the only writer of delivery state transitions.
type PostgresWebhookStore struct {
	db *sqlx.DB
}

func NewPostgresWebhookStore(db *sqlx.DB) *PostgresWebhookStore {
	store := &PostgresWebhookStore{db: db}
	_ = store.ensureSchema(context.Background())
	return store
}

func (s *PostgresWebhookStore) CreateEndpoint(ctx context.Context, ep *model.WebhookEndpoint) error {
	events, _ := json.Marshal(ep.EventTypes)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_endpoints (id, tenant_id, url, secret, event_types, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, ep.ID, ep.TenantID, ep.URL, ep.Secret, events, ep.Active, ep.CreatedAt)
	return err
}

func (s *PostgresWebhookStore) ListEndpoints(ctx context.Context, tenantID string) ([]*model.WebhookEndpoint, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, tenant_id, url, secret, event_types, active, created_at
		FROM webhook_endpoints
		WHERE tenant_id = $1
		ORDER BY created_at
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*model.WebhookEndpoint
	for rows.Next() {
		var ep model.WebhookEndpoint
		var events []byte
		if err := rows.Scan(&ep.ID, &ep.TenantID, &ep.URL, &ep.Secret, &events, &ep.Active, &ep.CreatedAt); err != nil {
			return nil, err
		}
		if len(events) > 0 {
			_ = json.Unmarshal(events, &ep.EventTypes)
		}
		results = append(results, &ep)
	}
	return results, rows.Err()
}

func (s *PostgresWebhookStore) EndpointSecret(ctx context.Context, tenantID, endpointID string) (string, error) {
	var secret string
	err := s.db.QueryRowxContext(ctx, `
		SELECT secret FROM webhook_endpoints WHERE id = $1 AND tenant_id = $2
	`, endpointID, tenantID).Scan(&secret)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return secret, nil
}

func (s *PostgresWebhookStore) CreateDelivery(ctx context.Context, d *model.WebhookDelivery) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (
			id, tenant_id, endpoint_id, event_type, event_id, url, payload,
			attempt, max_attempts, delivered, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, d.ID, d.TenantID, d.EndpointID, d.EventType, d.EventID, d.URL, d.Payload,
		d.Attempt, d.MaxAttempts, d.Delivered, d.CreatedAt)
	return err
}

// ListPending returns undelivered records that are due (next_retry_at null or
// past), oldest first, excluding those that exhausted their attempts.
func (s *PostgresWebhookStore) ListPending(ctx context.Context, now time.Time, limit int) ([]*model.WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, tenant_id, endpoint_id, event_type, event_id, url, payload,
		       attempt, max_attempts, status_code, response_body, last_error,
		       next_retry_at, delivered, delivered_at, created_at
		FROM webhook_deliveries
		WHERE delivered = false
		  AND attempt < max_attempts
		  AND (next_retry_at IS NULL OR next_retry_at <= $1)
		ORDER BY created_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*model.WebhookDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

func (s *PostgresWebhookStore) ListDeliveries(ctx context.Context, tenantID string, limit int) ([]*model.WebhookDelivery, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, tenant_id, endpoint_id, event_type, event_id, url, payload,
		       attempt, max_attempts, status_code, response_body, last_error,
		       next_retry_at, delivered, delivered_at, created_at
		FROM webhook_deliveries
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*model.WebhookDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

func (s *PostgresWebhookStore) UpdateDelivery(ctx context.Context, d *model.WebhookDelivery) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET attempt = $2, status_code = $3, response_body = $4, last_error = $5,
		    next_retry_at = $6, delivered = $7, delivered_at = $8
		WHERE id = $1
	`, d.ID, d.Attempt, d.StatusCode, d.ResponseBody, d.LastError, d.NextRetryAt, d.Delivered, d.DeliveredAt)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDelivery(rows *sqlx.Rows) (*model.WebhookDelivery, error) {
	var d model.WebhookDelivery
	var eventID, responseBody, lastError sql.NullString
	var statusCode sql.NullInt64
	var nextRetryAt, deliveredAt sql.NullTime
	err := rows.Scan(&d.ID, &d.TenantID, &d.EndpointID, &d.EventType, &eventID, &d.URL, &d.Payload,
		&d.Attempt, &d.MaxAttempts, &statusCode, &responseBody, &lastError,
		&nextRetryAt, &d.Delivered, &deliveredAt, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.EventID = eventID.String
	d.ResponseBody = responseBody.String
	d.LastError = lastError.String
	if statusCode.Valid {
		code := int(statusCode.Int64)
		d.StatusCode = &code
	}
	if nextRetryAt.Valid {
		t := nextRetryAt.Time
		d.NextRetryAt = &t
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		d.DeliveredAt = &t
	}
	return &d, nil
}

func (s *PostgresWebhookStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS webhook_endpoints (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			url TEXT NOT NULL,
			secret TEXT NOT NULL,
			event_types JSONB,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_webhook_endpoints_tenant ON webhook_endpoints(tenant_id)`,
		`CREATE TABLE IF NOT EXISTS webhook_deliveries (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			endpoint_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			event_id TEXT,
			url TEXT NOT NULL,
			payload BYTEA NOT NULL,
			attempt INTEGER NOT NULL DEFAULT 0,
			max_attempts INTEGER NOT NULL DEFAULT 3,
			status_code INTEGER,
			response_body TEXT,
			last_error TEXT,
			next_retry_at TIMESTAMPTZ,
			delivered BOOLEAN NOT NULL DEFAULT false,
			delivered_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_pending ON webhook_deliveries(delivered, next_retry_at, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_tenant ON webhook_deliveries(tenant_id, created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
