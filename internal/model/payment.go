package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is an immutable installment against a booking.
type Payment struct {
	ID          uint64          `json:"id"`
	BookingID   uint64          `json:"booking_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentType string          `json:"payment_type"`
	Note        *string         `json:"note"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Balance summarises what has been paid against a booking's total.
type Balance struct {
	TotalPrice decimal.Decimal `json:"total_price"`
	TotalPaid  decimal.Decimal `json:"total_paid"`
	Remaining  decimal.Decimal `json:"remaining_balance"`
}

// NewBalance floors the remaining amount at zero; overpayment is tolerated.
func NewBalance(total, paid decimal.Decimal) Balance {
	remaining := total.Sub(paid)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return Balance{TotalPrice: total, TotalPaid: paid, Remaining: remaining}
}
