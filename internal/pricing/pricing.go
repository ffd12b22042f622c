// Package pricing computes booking totals. The same Quote call backs both
// the price preview endpoint and booking creation.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-booking/internal/apperror"
)

const (
	MaxHeadcount = 500
	MinDuration  = 1
	MaxDuration  = 7
)

// DefaultSurchargePercent applies when a package has no surcharge configured.
var DefaultSurchargePercent = decimal.NewFromInt(10)

var hundred = decimal.NewFromInt(100)

// Terms are the package fields that drive the price.
type Terms struct {
	BasePrice     decimal.Decimal
	BaseHeadcount int
	// SurchargePercent is the per-additional-guest surcharge as a percentage
	// of the base price. Invalid means unset.
	SurchargePercent decimal.NullDecimal
}

// Request is what the customer asks for.
type Request struct {
	Headcount     int
	EventDuration int
}

// Breakdown is the computed price and its parts.
type Breakdown struct {
	BasePrice             decimal.Decimal `json:"base_price"`
	AdditionalGuests      int             `json:"additional_guests"`
	PerGuestSurcharge     decimal.Decimal `json:"per_guest_surcharge"`
	AdditionalGuestCharge decimal.Decimal `json:"additional_guest_charge"`
	Subtotal              decimal.Decimal `json:"subtotal"`
	DurationMultiplier    int             `json:"duration_multiplier"`
	Total                 decimal.Decimal `json:"total_price"`
}

// Validate checks the request against the package's guest allowance.
func Validate(t Terms, r Request) error {
	if r.Headcount < t.BaseHeadcount {
		return apperror.Validation("packs", fmt.Sprintf("must be at least %d", t.BaseHeadcount))
	}
	if r.Headcount > MaxHeadcount {
		return apperror.Validation("packs", fmt.Sprintf("must be at most %d", MaxHeadcount))
	}
	if r.EventDuration < MinDuration || r.EventDuration > MaxDuration {
		return apperror.Validation("event_duration", fmt.Sprintf("must be between %d and %d", MinDuration, MaxDuration))
	}
	return nil
}

// Quote validates the request and prices it:
//
//	additional = max(0, headcount - base)
//	perGuest   = basePrice * surcharge / 100
//	total      = (basePrice + perGuest * additional) * duration
func Quote(t Terms, r Request) (Breakdown, error) {
	if err := Validate(t, r); err != nil {
		return Breakdown{}, err
	}

	surcharge := DefaultSurchargePercent
	if t.SurchargePercent.Valid {
		surcharge = t.SurchargePercent.Decimal
	}

	additional := r.Headcount - t.BaseHeadcount
	if additional < 0 {
		additional = 0
	}
	perGuest := t.BasePrice.Mul(surcharge).Div(hundred)
	extra := perGuest.Mul(decimal.NewFromInt(int64(additional)))
	subtotal := t.BasePrice.Add(extra)
	total := subtotal.Mul(decimal.NewFromInt(int64(r.EventDuration)))

	return Breakdown{
		BasePrice:             t.BasePrice.Round(2),
		AdditionalGuests:      additional,
		PerGuestSurcharge:     perGuest.Round(2),
		AdditionalGuestCharge: extra.Round(2),
		Subtotal:              subtotal.Round(2),
		DurationMultiplier:    r.EventDuration,
		Total:                 total.Round(2),
	}, nil
}
