package acquirer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pagora/pagora/internal/model"
)

func testIntent() *model.PaymentIntent {
	return &model.PaymentIntent{
		ID:            "pi_test_123",
		TenantID:      "tn_1",
		Amount:        10050,
		Currency:      "MXN",
		CaptureMethod: model.CaptureMethodAutomatic,
		Status:        model.IntentStatusRequiresPaymentMethod,
	}
}

func cardParams(number string) *model.PaymentMethodParams {
	return &model.PaymentMethodParams{
		Type: "card",
		Card: &model.CardParams{
			Number:   number,
			ExpMonth: 12,
			ExpYear:  2030,
			CVC:      "123",
		},
	}
}

func TestBuildAuthorization_Card(t *testing.T) {
	req, details, err := BuildAuthorization(testIntent(), cardParams("4242424242424242"), nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(10050), req.Amount)
	assert.Equal(t, "MXN", req.Currency)
	assert.Equal(t, "pi_test_123", req.MerchantReference)
	assert.True(t, req.Capture)
	assert.Equal(t, "visa", req.PaymentMethod.Card.Brand)

	assert.Equal(t, "card", details.Type)
	assert.Equal(t, "visa", details.Brand)
	assert.Equal(t, "4242", details.Last4)
	assert.Equal(t, 12, details.ExpMonth)
	assert.Equal(t, 2030, details.ExpYear)
}

func TestBuildAuthorization_ManualCaptureFlag(t *testing.T) {
	intent := testIntent()
	intent.CaptureMethod = model.CaptureMethodManual

	req, _, err := BuildAuthorization(intent, cardParams("4242424242424242"), nil)
	assert.NoError(t, err)
	assert.False(t, req.Capture)
}

func TestBuildAuthorization_DetailsNeverCarryRawCard(t *testing.T) {
	_, details, err := BuildAuthorization(testIntent(), cardParams("4242 4242 4242 4242"), nil)
	assert.NoError(t, err)

	// Display-safe struct has no PAN or CVC fields at all; last4 is derived.
	assert.Equal(t, "4242", details.Last4)
	assert.NotContains(t, details.Last4, "4242424242424242")
}

func TestBuildAuthorization_InvalidLuhn(t *testing.T) {
	_, _, err := BuildAuthorization(testIntent(), cardParams("4242424242424241"), nil)
	assert.Error(t, err)
}

func TestBuildAuthorization_MissingMethod(t *testing.T) {
	_, _, err := BuildAuthorization(testIntent(), nil, nil)
	assert.Error(t, err)
}

func TestBuildAuthorization_BillingCountryUppercased(t *testing.T) {
	req, _, err := BuildAuthorization(testIntent(), cardParams("4242424242424242"), &model.BillingAddress{Country: "mx"})
	assert.NoError(t, err)
	assert.Equal(t, "MX", req.BillingAddress.Country)
}

func TestDetectBrand(t *testing.T) {
	cases := map[string]string{
		"4242424242424242": "visa",
		"5555555555554444": "mastercard",
		"2223003122003222": "mastercard",
		"378282246310005":  "amex",
		"6011111111111117": "discover",
		"3530111333300000": "unknown",
	}
	for number, want := range cases {
		assert.Equal(t, want, detectBrand(number), number)
	}
}

func TestLuhnValid(t *testing.T) {
	assert.True(t, luhnValid("4242424242424242"))
	assert.True(t, luhnValid("378282246310005"))
	assert.False(t, luhnValid("4242424242424241"))
	assert.False(t, luhnValid("1234"))
	assert.False(t, luhnValid("42424242424242ab"))
}
