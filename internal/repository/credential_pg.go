package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pagora/pagora/internal/model"
)

var ErrCredentialNotFound = errors.New("credential not found")

type PostgresCredentialRepo struct {
	db *sqlx.DB
}

func NewPostgresCredentialRepo(db *sqlx.DB) *PostgresCredentialRepo {
	repo := &PostgresCredentialRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

const credentialColumns = `id, tenant_id, key_class, livemode, public_key, secret_hash, active, last_used_at, created_at`

func (r *PostgresCredentialRepo) GetByPublicKey(ctx context.Context, key string) (*model.APICredential, error) {
	var cred model.APICredential
	err := r.db.GetContext(ctx, &cred, `
		SELECT `+credentialColumns+` FROM api_credentials
		WHERE public_key = $1 AND key_class = $2
		LIMIT 1
	`, key, model.KeyClassReadOnly)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return &cred, nil
}

func (r *PostgresCredentialRepo) GetBySecretHash(ctx context.Context, hash string) (*model.APICredential, error) {
	var cred model.APICredential
	err := r.db.GetContext(ctx, &cred, `
		SELECT `+credentialColumns+` FROM api_credentials
		WHERE secret_hash = $1 AND key_class = $2
		LIMIT 1
	`, hash, model.KeyClassFullAccess)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return &cred, nil
}

func (r *PostgresCredentialRepo) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_credentials SET last_used_at = $2 WHERE id = $1`, id, at)
	return err
}

// Create is used by seeding and operational tooling.
func (r *PostgresCredentialRepo) Create(ctx context.Context, cred *model.APICredential) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_credentials (id, tenant_id, key_class, livemode, public_key, secret_hash, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, cred.ID, cred.TenantID, cred.KeyClass, cred.Livemode, cred.PublicKey, cred.SecretHash, cred.Active, cred.CreatedAt)
	return err
}

func (r *PostgresCredentialRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS api_credentials (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			key_class TEXT NOT NULL,
			livemode BOOLEAN NOT NULL DEFAULT false,
			public_key TEXT,
			secret_hash TEXT,
			active BOOLEAN NOT NULL DEFAULT true,
			last_used_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS idx_credentials_public_key ON api_credentials(public_key) WHERE public_key IS NOT NULL`)
	_, _ = r.db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS idx_credentials_secret_hash ON api_credentials(secret_hash) WHERE secret_hash IS NOT NULL`)
	return nil
}
