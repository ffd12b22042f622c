// Package queue carries booking lifecycle and account events over RabbitMQ:
// the API publishes to a topic exchange and cmd/worker consumes them.
package queue

import (
	"time"

	"github.com/shopspring/decimal"
)

// Routing keys on the bookings topic exchange.
const (
	KeyBookingCreated   = "booking.created"
	KeyBookingConfirmed = "booking.confirmed"
	KeyBookingCompleted = "booking.completed"
	KeyBookingCancelled = "booking.cancelled"
	KeyBookingArchived  = "booking.archived"
	KeyBookingRestored  = "booking.restored"
	KeyPaymentRecorded  = "booking.payment_recorded"

	KeyUserRegistered         = "user.registered"
	KeyPasswordResetRequested = "user.password_reset_requested"
)

// BindingKeys are the patterns the worker queue subscribes to.
var BindingKeys = []string{"booking.*", "user.*"}

// BookingEvent describes a booking at the moment something happened to it.
// Consumers never need to query the database to act on it.
type BookingEvent struct {
	BookingID   uint64          `json:"booking_id"`
	UserID      uint64          `json:"user_id"`
	PackageID   uint64          `json:"package_id"`
	PackageName string          `json:"package_name,omitempty"`
	Email       string          `json:"email"`
	FullName    string          `json:"full_name"`
	EventDate   string          `json:"event_date"`
	Status      string          `json:"status"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	TotalPaid   decimal.Decimal `json:"total_paid"`
	Remaining   decimal.Decimal `json:"remaining_balance"`
	Amount      decimal.Decimal `json:"amount,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// UserEvent carries account notifications. ResetToken is only set on
// password-reset requests, for the mail sender downstream.
type UserEvent struct {
	UserID     uint64    `json:"user_id"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	ResetToken string    `json:"reset_token,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
