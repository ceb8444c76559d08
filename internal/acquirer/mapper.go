package acquirer

import (
	"strings"

	"github.com/pagora/pagora/internal/model"
	"github.com/pagora/pagora/internal/pkg/apperrors"
)

// BuildAuthorization maps a stored intent plus caller-supplied raw payment
// method data into the canonical acquirer request. The second return value is
// the display-safe subset that may be persisted; raw card fields go no
// further than the AuthorizationRequest.
func BuildAuthorization(intent *model.PaymentIntent, params *model.PaymentMethodParams, billing *model.BillingAddress) (*AuthorizationRequest, *model.PaymentMethodDetails, error) {
	if params == nil {
		return nil, nil, apperrors.NewInvalidRequest("payment_method is required", "payment_method")
	}

	req := &AuthorizationRequest{
		Amount:            intent.Amount,
		Currency:          intent.Currency,
		MerchantReference: intent.ID,
		Capture:           intent.CaptureMethod != model.CaptureMethodManual,
	}
	if intent.CustomerID != "" {
		req.Customer = &CustomerInput{ID: intent.CustomerID}
	}
	if billing != nil {
		req.BillingAddress = &AddressInput{
			Line1:      billing.Line1,
			Line2:      billing.Line2,
			City:       billing.City,
			State:      billing.State,
			PostalCode: billing.PostalCode,
			Country:    strings.ToUpper(billing.Country),
		}
	}

	switch params.Type {
	case "card":
		card := params.Card
		if card == nil {
			return nil, nil, apperrors.NewInvalidRequest("card details are required", "payment_method.card")
		}
		number := strings.ReplaceAll(card.Number, " ", "")
		if !luhnValid(number) {
			return nil, nil, apperrors.NewInvalidRequest("invalid card number", "payment_method.card.number")
		}
		brand := detectBrand(number)
		last4 := number
		if len(last4) > 4 {
			last4 = last4[len(last4)-4:]
		}
		req.PaymentMethod = PaymentMethodInput{
			Type: "card",
			Card: &CardInput{
				Number:   number,
				ExpMonth: card.ExpMonth,
				ExpYear:  card.ExpYear,
				CVC:      card.CVC,
				Brand:    brand,
				Last4:    last4,
				Token:    card.Token,
			},
		}
		details := &model.PaymentMethodDetails{
			Type:     "card",
			Brand:    brand,
			Network:  brand,
			Last4:    last4,
			ExpMonth: card.ExpMonth,
			ExpYear:  card.ExpYear,
		}
		return req, details, nil
	default:
		return nil, nil, apperrors.NewInvalidRequest("unsupported payment method type", "payment_method.type")
	}
}

func detectBrand(number string) string {
	switch {
	case strings.HasPrefix(number, "4"):
		return "visa"
	case inRange(number, 2, 51, 55), inRange(number, 4, 2221, 2720):
		return "mastercard"
	case strings.HasPrefix(number, "34"), strings.HasPrefix(number, "37"):
		return "amex"
	case strings.HasPrefix(number, "6011"), strings.HasPrefix(number, "65"):
		return "discover"
	default:
		return "unknown"
	}
}

func inRange(number string, digits, lo, hi int) bool {
	if len(number) < digits {
		return false
	}
	prefix := 0
	for _, c := range number[:digits] {
		if c < '0' || c > '9' {
			return false
		}
		prefix = prefix*10 + int(c-'0')
	}
	return prefix >= lo && prefix <= hi
}

func luhnValid(number string) bool {
	if len(number) < 12 || len(number) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
