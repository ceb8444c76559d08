package handler

import (
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/pagora/pagora/internal/model"
)

// RegisterValidators installs cross-field rules on gin's binding validator.
// Safe to call more than once.
func RegisterValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterStructValidation(cardNotExpired, model.CardParams{})
}

// cardNotExpired rejects cards whose expiry month has passed. Field-level
// tags cannot see month and year together.
func cardNotExpired(sl validator.StructLevel) {
	card := sl.Current().Interface().(model.CardParams)
	now := time.Now().UTC()
	if card.ExpYear < now.Year() ||
		(card.ExpYear == now.Year() && card.ExpMonth < int(now.Month())) {
		sl.ReportError(card.ExpYear, "exp_year", "ExpYear", "card_expired", "")
	}
}
