package model

import "time"

const (
	AttachmentImage          = "image"
	AttachmentPaymentReceipt = "payment_receipt"
)

// Message is either booking-scoped (BookingID set) or direct (ReceiverID set).
type Message struct {
	ID             uint64    `json:"id"`
	BookingID      *uint64   `json:"booking_id"`
	SenderID       uint64    `json:"sender_id"`
	ReceiverID     *uint64   `json:"receiver_id"`
	Content        string    `json:"content"`
	Attachment     *string   `json:"attachment"`
	AttachmentType *string   `json:"attachment_type"`
	IsRead         bool      `json:"is_read"`
	IsSystem       bool      `json:"is_system"`
	CreatedAt      time.Time `json:"created_at"`

	SenderName string `json:"sender_name,omitempty"`
	SenderRole string `json:"sender_role,omitempty"`
}
