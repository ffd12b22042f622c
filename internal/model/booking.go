package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingOngoing   = "ongoing"
	BookingPreparing = "preparing"
	BookingCompleted = "completed"
	BookingCancelled = "cancelled"
)

var bookingStatuses = map[string]bool{
	BookingPending:   true,
	BookingConfirmed: true,
	BookingOngoing:   true,
	BookingPreparing: true,
	BookingCompleted: true,
	BookingCancelled: true,
}

// ValidBookingStatus reports whether s is a known booking status.
func ValidBookingStatus(s string) bool { return bookingStatuses[s] }

// TerminalBookingStatus reports whether no explicit transition may leave s.
func TerminalBookingStatus(s string) bool { return s == BookingCompleted || s == BookingCancelled }

// Booking mirrors the `bookings` table. TotalPrice is fixed at creation.
type Booking struct {
	ID                 uint64          `json:"id"`
	UserID             uint64          `json:"user_id"`
	PackageID          uint64          `json:"package_id"`
	FullName           string          `json:"full_name"`
	Email              string          `json:"email"`
	Phone              string          `json:"phone"`
	EventDate          time.Time       `json:"event_date"`
	EventTime          string          `json:"event_time"`
	VenueName          string          `json:"venue_name"`
	SpecialRequests    *string         `json:"special_requests"`
	EventDuration      int             `json:"event_duration"`
	Packs              int             `json:"packs"`
	PaymentMethod      string          `json:"payment_method"`
	TotalPrice         decimal.Decimal `json:"total_price"`
	TermsAccepted      bool            `json:"terms_accepted"`
	Status             string          `json:"status"`
	CancellationReason *string         `json:"cancellation_reason"`
	CancelledAt        *time.Time      `json:"cancelled_at"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`

	// joined on list/detail reads
	PackageName string `json:"package_name,omitempty"`
	PackageType string `json:"package_type,omitempty"`
}

// BookingFilter narrows admin booking lists. Zero values mean "any".
type BookingFilter struct {
	Status string
	UserID uint64
}
