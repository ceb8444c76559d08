package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pagora/pagora/internal/service"
)

// PostgresCounterStore is the fallback when no Redis is configured. Counting
// rows and then inserting is not atomic: concurrent requests can all read an
// under-threshold count before any insert lands. Permissive under
// concurrency, documented as such.
type PostgresCounterStore struct {
	db *sqlx.DB
}

func NewPostgresCounterStore(db *sqlx.DB) *PostgresCounterStore {
	store := &PostgresCounterStore{db: db}
	_ = store.ensureSchema(context.Background())
	return store
}

func (s *PostgresCounterStore) Hit(ctx context.Context, key string, limit int, window time.Duration) (*service.RateResult, error) {
	now := time.Now().UTC()
	windowStart := now.Add(-window)

	var count int
	err := s.db.QueryRowxContext(ctx, `
		SELECT COUNT(*) FROM rate_hits WHERE route_key = $1 AND created_at >= $2
	`, key, windowStart).Scan(&count)
	if err != nil {
		return nil, err
	}

	if count >= limit {
		return &service.RateResult{
			Allowed:   false,
			Limit:     limit,
			Remaining: 0,
			ResetAt:   now.Add(window),
		}, nil
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_hits (route_key, created_at) VALUES ($1, $2)
	`, key, now); err != nil {
		return nil, err
	}

	// Opportunistic cleanup of hits that can no longer affect any window.
	_, _ = s.db.ExecContext(ctx, `DELETE FROM rate_hits WHERE route_key = $1 AND created_at < $2`, key, windowStart)

	remaining := limit - count - 1
	if remaining < 0 {
		remaining = 0
	}
	return &service.RateResult{
		Allowed:   true,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   now.Add(window),
	}, nil
}

func (s *PostgresCounterStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rate_hits (
			id BIGSERIAL PRIMARY KEY,
			route_key TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return err
	}
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_rate_hits_key ON rate_hits(route_key, created_at)`)
	return nil
}
