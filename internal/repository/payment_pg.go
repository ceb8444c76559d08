package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/pagora/pagora/internal/model"
)

// ErrNotFound aliases the shared sentinel so callers inside the package read
// naturally.
var ErrNotFound = model.ErrNotFound

// PostgresPaymentStore persists payment intents, charges, refunds and balance
// entries. All reads are tenant-scoped by query predicate.
type PostgresPaymentStore struct {
	db *sqlx.DB
}

func NewPostgresPaymentStore(db *sqlx.DB) *PostgresPaymentStore {
	store := &PostgresPaymentStore{db: db}
	_ = store.ensureSchema(context.Background())
	return store
}

// DB row with JSONB columns for the nested structs.
type intentDB struct {
	ID                 string         `db:"id"`
	TenantID           string         `db:"tenant_id"`
	CustomerID         sql.NullString `db:"customer_id"`
	Amount             int64          `db:"amount"`
	Currency           string         `db:"currency"`
	CaptureMethod      string         `db:"capture_method"`
	ConfirmationMethod string         `db:"confirmation_method"`
	Status             string         `db:"status"`
	PaymentMethodJSON  []byte         `db:"payment_method"`
	RoutingJSON        []byte         `db:"routing"`
	LatestChargeID     sql.NullString `db:"latest_charge_id"`
	FailureCode        sql.NullString `db:"failure_code"`
	MetadataJSON       []byte         `db:"metadata"`
	Livemode           bool           `db:"livemode"`
	CreatedAt          sql.NullTime   `db:"created_at"`
	UpdatedAt          sql.NullTime   `db:"updated_at"`
}

func (s *PostgresPaymentStore) CreateIntent(ctx context.Context, intent *model.PaymentIntent) error {
	pm, _ := json.Marshal(intent.PaymentMethod)
	routing, _ := json.Marshal(intent.Routing)
	meta, _ := json.Marshal(intent.Metadata)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_intents (
			id, tenant_id, customer_id, amount, currency, capture_method, confirmation_method,
			status, payment_method, routing, latest_charge_id, failure_code, metadata, livemode,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$15)
	`, intent.ID, intent.TenantID, intent.CustomerID, intent.Amount, intent.Currency,
		intent.CaptureMethod, intent.ConfirmationMethod, intent.Status, pm, routing,
		intent.LatestChargeID, intent.FailureCode, meta, intent.Livemode, intent.CreatedAt)
	return err
}

func (s *PostgresPaymentStore) GetIntent(ctx context.Context, tenantID, id string) (*model.PaymentIntent, error) {
	var row intentDB
	err := s.db.GetContext(ctx, &row, `
		SELECT id, tenant_id, customer_id, amount, currency, capture_method, confirmation_method,
		       status, payment_method, routing, latest_charge_id, failure_code, metadata, livemode,
		       created_at, updated_at
		FROM payment_intents
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return intentFromRow(&row)
}

func (s *PostgresPaymentStore) UpdateIntent(ctx context.Context, intent *model.PaymentIntent) error {
	pm, _ := json.Marshal(intent.PaymentMethod)
	routing, _ := json.Marshal(intent.Routing)
	res, err := s.db.ExecContext(ctx, `
		UPDATE payment_intents
		SET status = $3, payment_method = $4, routing = $5, latest_charge_id = $6,
		    failure_code = $7, updated_at = $8
		WHERE id = $1 AND tenant_id = $2
	`, intent.ID, intent.TenantID, intent.Status, pm, routing, intent.LatestChargeID,
		intent.FailureCode, intent.UpdatedAt)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func intentFromRow(row *intentDB) (*model.PaymentIntent, error) {
	intent := &model.PaymentIntent{
		ID:                 row.ID,
		TenantID:           row.TenantID,
		CustomerID:         row.CustomerID.String,
		Amount:             row.Amount,
		Currency:           row.Currency,
		CaptureMethod:      row.CaptureMethod,
		ConfirmationMethod: row.ConfirmationMethod,
		Status:             model.IntentStatus(row.Status),
		LatestChargeID:     row.LatestChargeID.String,
		FailureCode:        row.FailureCode.String,
		Livemode:           row.Livemode,
		CreatedAt:          row.CreatedAt.Time,
		UpdatedAt:          row.UpdatedAt.Time,
	}
	if len(row.PaymentMethodJSON) > 0 && string(row.PaymentMethodJSON) != "null" {
		intent.PaymentMethod = &model.PaymentMethodDetails{}
		if err := json.Unmarshal(row.PaymentMethodJSON, intent.PaymentMethod); err != nil {
			return nil, err
		}
	}
	if len(row.RoutingJSON) > 0 && string(row.RoutingJSON) != "null" {
		intent.Routing = &model.RoutingDecision{}
		if err := json.Unmarshal(row.RoutingJSON, intent.Routing); err != nil {
			return nil, err
		}
	}
	if len(row.MetadataJSON) > 0 && string(row.MetadataJSON) != "null" {
		if err := json.Unmarshal(row.MetadataJSON, &intent.Metadata); err != nil {
			return nil, err
		}
	}
	return intent, nil
}

func (s *PostgresPaymentStore) CreateCharge(ctx context.Context, charge *model.Charge) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO charges (
			id, tenant_id, payment_intent_id, amount, amount_captured, amount_refunded,
			currency, status, adapter, authorization_code, acquirer_reference, livemode, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, charge.ID, charge.TenantID, charge.PaymentIntentID, charge.Amount, charge.AmountCaptured,
		charge.AmountRefunded, charge.Currency, charge.Status, charge.Adapter,
		charge.AuthorizationCode, charge.AcquirerReference, charge.Livemode, charge.CreatedAt)
	return err
}

func (s *PostgresPaymentStore) GetCharge(ctx context.Context, tenantID, id string) (*model.Charge, error) {
	var charge model.Charge
	err := s.db.GetContext(ctx, &charge, `
		SELECT id, tenant_id, payment_intent_id, amount, amount_captured, amount_refunded,
		       currency, status, adapter, authorization_code, acquirer_reference, livemode, created_at
		FROM charges
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &charge, nil
}

func (s *PostgresPaymentStore) UpdateCharge(ctx context.Context, charge *model.Charge) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE charges
		SET amount_captured = $3, amount_refunded = $4, status = $5
		WHERE id = $1 AND tenant_id = $2
	`, charge.ID, charge.TenantID, charge.AmountCaptured, charge.AmountRefunded, charge.Status)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresPaymentStore) CreateRefund(ctx context.Context, refund *model.Refund) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refunds (id, tenant_id, charge_id, amount, currency, status, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, refund.ID, refund.TenantID, refund.ChargeID, refund.Amount, refund.Currency,
		refund.Status, refund.Reason, refund.CreatedAt)
	return err
}

func (s *PostgresPaymentStore) CreateBalanceEntry(ctx context.Context, entry *model.BalanceEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO balance_entries (id, tenant_id, entry_type, amount, fee, net, currency, source_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.TenantID, entry.Type, entry.Amount, entry.Fee, entry.Net,
		entry.Currency, entry.SourceID, entry.CreatedAt)
	return err
}

func (s *PostgresPaymentStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS payment_intents (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			customer_id TEXT,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			capture_method TEXT NOT NULL,
			confirmation_method TEXT NOT NULL,
			status TEXT NOT NULL,
			payment_method JSONB,
			routing JSONB,
			latest_charge_id TEXT,
			failure_code TEXT,
			metadata JSONB,
			livemode BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_intents_tenant ON payment_intents(tenant_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS charges (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			payment_intent_id TEXT NOT NULL,
			amount BIGINT NOT NULL,
			amount_captured BIGINT NOT NULL DEFAULT 0,
			amount_refunded BIGINT NOT NULL DEFAULT 0,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			adapter TEXT,
			authorization_code TEXT,
			acquirer_reference TEXT,
			livemode BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_charges_tenant ON charges(tenant_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS refunds (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			charge_id TEXT NOT NULL,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS balance_entries (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			entry_type TEXT NOT NULL,
			amount BIGINT NOT NULL,
			fee BIGINT NOT NULL DEFAULT 0,
			net BIGINT NOT NULL,
			currency TEXT NOT NULL,
			source_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_balance_tenant ON balance_entries(tenant_id, created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
