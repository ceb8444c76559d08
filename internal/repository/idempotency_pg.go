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

// PostgresIdempotencyStore is the durable tier. INSERT ... ON CONFLICT DO
// NOTHING makes the first write a conditional claim, so the check-then-act
// window of a naive lookup does not exist here.
type PostgresIdempotencyStore struct {
	db *sqlx.DB
}

func NewPostgresIdempotencyStore(db *sqlx.DB) *PostgresIdempotencyStore {
	store := &PostgresIdempotencyStore{db: db}
	_ = store.ensureSchema(context.Background())
	return store
}

func (s *PostgresIdempotencyStore) GetOrLock(ctx context.Context, key string, placeholder *model.IdempotencyRecord) (*model.IdempotencyRecord, bool, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_records (key, tenant_id, endpoint, idempotency_key, body_hash, processing, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, true, $6, $7)
		ON CONFLICT (key) DO NOTHING
	`, key, placeholder.TenantID, placeholder.Endpoint, placeholder.Key, placeholder.BodyHash, now, placeholder.ExpiresAt)
	if err != nil {
		return nil, false, err
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		return nil, false, nil
	}

	rec, err := s.get(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	if !rec.ExpiresAt.IsZero() && rec.ExpiresAt.Before(now) {
		// Expired record: reclaim it for this request.
		res, err := s.db.ExecContext(ctx, `
			UPDATE idempotency_records
			SET body_hash = $2, processing = true, status_code = 0, response_body = NULL,
			    response_headers = NULL, created_at = $3, expires_at = $4
			WHERE key = $1 AND expires_at < $3
		`, key, placeholder.BodyHash, now, placeholder.ExpiresAt)
		if err != nil {
			return nil, false, err
		}
		if rows, _ := res.RowsAffected(); rows > 0 {
			return nil, false, nil
		}
		// Lost the reclaim race; fall through to the fresh row.
		rec, err = s.get(ctx, key)
		if err != nil {
			return nil, false, err
		}
	}

	return rec, true, nil
}

func (s *PostgresIdempotencyStore) Complete(ctx context.Context, key string, rec *model.IdempotencyRecord) error {
	headers, err := json.Marshal(rec.ResponseHeaders)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE idempotency_records
		SET status_code = $2, response_body = $3, response_headers = $4, processing = false
		WHERE key = $1
	`, key, rec.StatusCode, rec.ResponseBody, headers)
	return err
}

func (s *PostgresIdempotencyStore) Unlock(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_records WHERE key = $1 AND processing = true`, key)
	return err
}

func (s *PostgresIdempotencyStore) get(ctx context.Context, key string) (*model.IdempotencyRecord, error) {
	var rec model.IdempotencyRecord
	var body []byte
	var headers []byte
	var statusCode sql.NullInt64
	err := s.db.QueryRowxContext(ctx, `
		SELECT tenant_id, endpoint, idempotency_key, body_hash, status_code, response_body, response_headers, processing, created_at, expires_at
		FROM idempotency_records
		WHERE key = $1
	`, key).Scan(&rec.TenantID, &rec.Endpoint, &rec.Key, &rec.BodyHash, &statusCode, &body, &headers, &rec.Processing, &rec.CreatedAt, &rec.ExpiresAt)
	if err != nil {
		return nil, err
	}
	rec.StatusCode = int(statusCode.Int64)
	rec.ResponseBody = body
	if len(headers) > 0 {
		_ = json.Unmarshal(headers, &rec.ResponseHeaders)
	}
	return &rec, nil
}

func (s *PostgresIdempotencyStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS idempotency_records (
			key TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			idempotency_key TEXT NOT NULL,
			body_hash TEXT NOT NULL,
			status_code INTEGER NOT NULL DEFAULT 0,
			response_body BYTEA,
			response_headers JSONB,
			processing BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			expires_at TIMESTAMPTZ
		)
	`)
	if err != nil {
		return err
	}
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_idem_tenant ON idempotency_records(tenant_id, endpoint)`)
	return nil
}

func (s *PostgresIdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	_, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_records WHERE created_at < $1`, cutoff)
	return err
}
