package model

import "time"

type KeyClass string

const (
	KeyClassReadOnly   KeyClass = "read_only"
	KeyClassFullAccess KeyClass = "full_access"
)

// APICredential is a stored API key. Full-access keys keep only a one-way
// hash of the secret; read-only (publishable) keys are matched by value.
type APICredential struct {
	ID         string     `json:"id" db:"id"`
	TenantID   string     `json:"tenant_id" db:"tenant_id"`
	KeyClass   KeyClass   `json:"key_class" db:"key_class"`
	Livemode   bool       `json:"livemode" db:"livemode"`
	PublicKey  string     `json:"-" db:"public_key"`
	SecretHash string     `json:"-" db:"secret_hash"`
	Active     bool       `json:"active" db:"active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// TenantContext is the per-request identity derived from a validated
// credential. It lives only for the request's lifetime.
type TenantContext struct {
	TenantID     string   `json:"tenant_id"`
	CredentialID string   `json:"credential_id"`
	KeyClass     KeyClass `json:"key_class"`
	Livemode     bool     `json:"livemode"`
}
