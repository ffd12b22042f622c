package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RatingActive  = "active"
	RatingFlagged = "flagged"
)

type Rating struct {
	ID        uint64    `json:"id"`
	UserID    uint64    `json:"user_id"`
	PackageID uint64    `json:"package_id"`
	BookingID *uint64   `json:"booking_id"`
	Rating    int       `json:"rating"`
	Review    *string   `json:"review"`
	Status    string    `json:"status"`
	Deleted   bool      `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ReviewerName   string  `json:"reviewer_name,omitempty"`
	ReviewerAvatar *string `json:"reviewer_avatar,omitempty"`
	PackageName    string  `json:"package_name,omitempty"`
}

// RatingSummary is the public view of a package's reviews.
type RatingSummary struct {
	Average      decimal.Decimal `json:"average"`
	Total        int             `json:"total"`
	Distribution map[int]int     `json:"distribution"`
	Reviews      []Rating        `json:"reviews"`
}
