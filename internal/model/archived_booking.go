package model

import "time"

// ArchivedBooking is a booking moved out of the live table. Snapshot keeps
// every original field; Snapshot.ID is the original booking id.
type ArchivedBooking struct {
	ID                uint64    `json:"id"`
	OriginalBookingID uint64    `json:"original_booking_id"`
	ArchivedAt        time.Time `json:"archived_at"`
	Snapshot          Booking   `json:"booking"`
	Payments          []Payment `json:"payments,omitempty"`
}
