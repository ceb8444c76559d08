package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/pagora/pagora/internal/config"
	"github.com/pagora/pagora/internal/model"
	"github.com/pagora/pagora/internal/pkg/apperrors"
	"github.com/pagora/pagora/internal/pkg/logger"
)

// HashSecretKey is the one-way hash stored for full-access keys. The same
// function runs at key creation and at validation.
func HashSecretKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

type CredentialRepo interface {
	GetByPublicKey(ctx context.Context, key string) (*model.APICredential, error)
	GetBySecretHash(ctx context.Context, hash string) (*model.APICredential, error)
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

// KeyValidator authenticates bearer credentials and derives tenant context.
// Config-seeded credentials are cached in memory; a repository, when
// configured, serves everything else.
type KeyValidator struct {
	mu           sync.RWMutex
	byPublicKey  map[string]*model.APICredential
	bySecretHash map[string]*model.APICredential
	repo         CredentialRepo
}

func NewKeyValidator(cfg *config.Config, repo CredentialRepo) *KeyValidator {
	v := &KeyValidator{
		byPublicKey:  make(map[string]*model.APICredential),
		bySecretHash: make(map[string]*model.APICredential),
		repo:         repo,
	}
	if cfg == nil {
		return v
	}
	for _, tc := range cfg.Tenants {
		if tc.PublishableKey != "" {
			livemode := strings.HasPrefix(tc.PublishableKey, "pk_live_")
			v.Register(&model.APICredential{
				ID:        "key_" + tc.ID + "_pk",
				TenantID:  tc.ID,
				KeyClass:  model.KeyClassReadOnly,
				Livemode:  livemode,
				PublicKey: tc.PublishableKey,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			})
		}
		if tc.SecretKey != "" {
			livemode := strings.HasPrefix(tc.SecretKey, "sk_live_")
			v.Register(&model.APICredential{
				ID:         "key_" + tc.ID + "_sk",
				TenantID:   tc.ID,
				KeyClass:   model.KeyClassFullAccess,
				Livemode:   livemode,
				SecretHash: HashSecretKey(tc.SecretKey),
				Active:     true,
				CreatedAt:  time.Now().UTC(),
			})
		}
	}
	return v
}

func (v *KeyValidator) Register(cred *model.APICredential) {
	if cred == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	switch cred.KeyClass {
	case model.KeyClassReadOnly:
		if cred.PublicKey != "" {
			v.byPublicKey[cred.PublicKey] = cred
		}
	case model.KeyClassFullAccess:
		if cred.SecretHash != "" {
			v.bySecretHash[cred.SecretHash] = cred
		}
	}
}

// Validate classifies the presented key by prefix, resolves the stored
// credential, and builds the tenant context. Every failure path returns the
// same authentication error so callers learn nothing about why.
func (v *KeyValidator) Validate(ctx context.Context, rawKey string) (*model.TenantContext, error) {
	rawKey = strings.TrimSpace(rawKey)
	keyClass, ok := classifyKey(rawKey)
	if !ok {
		return nil, apperrors.NewAuthentication()
	}

	var cred *model.APICredential
	var err error
	switch keyClass {
	case model.KeyClassReadOnly:
		cred, err = v.lookupPublic(ctx, rawKey)
	case model.KeyClassFullAccess:
		hash := HashSecretKey(rawKey)
		cred, err = v.lookupSecret(ctx, hash)
		if cred != nil && subtle.ConstantTimeCompare([]byte(cred.SecretHash), []byte(hash)) != 1 {
			cred = nil
		}
	}
	if err != nil || cred == nil || !cred.Active {
		return nil, apperrors.NewAuthentication()
	}

	// Best-effort; auth does not depend on the stamp landing.
	v.touchLastUsed(cred.ID)

	return &model.TenantContext{
		TenantID:     cred.TenantID,
		CredentialID: cred.ID,
		KeyClass:     cred.KeyClass,
		Livemode:     cred.Livemode,
	}, nil
}

func (v *KeyValidator) lookupPublic(ctx context.Context, key string) (*model.APICredential, error) {
	v.mu.RLock()
	cred, ok := v.byPublicKey[key]
	v.mu.RUnlock()
	if ok {
		return cred, nil
	}
	if v.repo == nil {
		return nil, nil
	}
	cred, err := v.repo.GetByPublicKey(ctx, key)
	if err != nil {
		return nil, err
	}
	v.Register(cred)
	return cred, nil
}

func (v *KeyValidator) lookupSecret(ctx context.Context, hash string) (*model.APICredential, error) {
	v.mu.RLock()
	cred, ok := v.bySecretHash[hash]
	v.mu.RUnlock()
	if ok {
		return cred, nil
	}
	if v.repo == nil {
		return nil, nil
	}
	cred, err := v.repo.GetBySecretHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	v.Register(cred)
	return cred, nil
}

func (v *KeyValidator) touchLastUsed(credentialID string) {
	if v.repo == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := v.repo.TouchLastUsed(ctx, credentialID, time.Now().UTC()); err != nil {
			logger.Debug("failed to stamp credential last-used", "credential_id", credentialID, "error", err.Error())
		}
	}()
}

func classifyKey(raw string) (model.KeyClass, bool) {
	switch {
	case strings.HasPrefix(raw, "pk_test_"), strings.HasPrefix(raw, "pk_live_"):
		return model.KeyClassReadOnly, true
	case strings.HasPrefix(raw, "sk_test_"), strings.HasPrefix(raw, "sk_live_"):
		return model.KeyClassFullAccess, true
	default:
		return "", false
	}
}
