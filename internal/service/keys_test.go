package service

import (
	"context"
	"testing"

	"github.com/pagora/pagora/internal/config"
	"github.com/pagora/pagora/internal/model"
)

func seededValidator() *KeyValidator {
	cfg := &config.Config{
		Tenants: []config.TenantConfig{
			{
				ID:             "tn_acme",
				Name:           "Acme",
				PublishableKey: "pk_test_acme123",
				SecretKey:      "sk_test_acme456",
			},
			{
				ID:        "tn_live",
				SecretKey: "sk_live_prod789",
			},
		},
	}
	return NewKeyValidator(cfg, nil)
}

func TestValidate_SecretKey(t *testing.T) {
	tc, err := seededValidator().Validate(context.Background(), "sk_test_acme456")
	if err != nil {
		t.Fatalf("expected valid secret key, got %v", err)
	}
	if tc.TenantID != "tn_acme" {
		t.Fatalf("wrong tenant: %s", tc.TenantID)
	}
	if tc.KeyClass != model.KeyClassFullAccess {
		t.Fatalf("wrong key class: %s", tc.KeyClass)
	}
	if tc.Livemode {
		t.Fatal("test key must not be livemode")
	}
}

func TestValidate_PublishableKey(t *testing.T) {
	tc, err := seededValidator().Validate(context.Background(), "pk_test_acme123")
	if err != nil {
		t.Fatalf("expected valid publishable key, got %v", err)
	}
	if tc.KeyClass != model.KeyClassReadOnly {
		t.Fatalf("wrong key class: %s", tc.KeyClass)
	}
}

func TestValidate_LivemodeFromPrefix(t *testing.T) {
	tc, err := seededValidator().Validate(context.Background(), "sk_live_prod789")
	if err != nil {
		t.Fatalf("expected valid live key, got %v", err)
	}
	if !tc.Livemode {
		t.Fatal("live key must set livemode")
	}
}

func TestValidate_Failures(t *testing.T) {
	v := seededValidator()
	cases := []string{
		"",
		"sk_test_wrong",
		"pk_test_wrong",
		"no_prefix_at_all",
		"sk_test_acme456extra",
	}
	for _, key := range cases {
		if _, err := v.Validate(context.Background(), key); err == nil {
			t.Fatalf("expected rejection for %q", key)
		}
	}
}

func TestValidate_UniformErrorMessage(t *testing.T) {
	v := seededValidator()
	_, errUnknown := v.Validate(context.Background(), "sk_test_doesnotexist")
	_, errMalformed := v.Validate(context.Background(), "garbage")
	if errUnknown.Error() != errMalformed.Error() {
		t.Fatalf("error messages differ: %q vs %q", errUnknown, errMalformed)
	}
}

func TestValidate_InactiveCredential(t *testing.T) {
	v := NewKeyValidator(nil, nil)
	v.Register(&model.APICredential{
		ID:         "key_1",
		TenantID:   "tn_1",
		KeyClass:   model.KeyClassFullAccess,
		SecretHash: HashSecretKey("sk_test_disabled"),
		Active:     false,
	})
	if _, err := v.Validate(context.Background(), "sk_test_disabled"); err == nil {
		t.Fatal("inactive credential must be rejected")
	}
}

func TestHashSecretKeyStable(t *testing.T) {
	if HashSecretKey("sk_test_a") != HashSecretKey("sk_test_a") {
		t.Fatal("hash not deterministic")
	}
	if HashSecretKey("sk_test_a") == HashSecretKey("sk_test_b") {
		t.Fatal("distinct keys must hash differently")
	}
}
