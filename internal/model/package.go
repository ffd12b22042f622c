package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PackageActive   = "active"
	PackageInactive = "inactive"
)

// Package is a sellable event-service bundle (`packages` table).
// Rating and ReviewsCount are cached aggregates over active ratings.
type Package struct {
	ID                        uint64              `json:"id"`
	Name                      string              `json:"package_name"`
	Description               string              `json:"package_description"`
	Price                     decimal.Decimal     `json:"package_price"`
	PricePerDay               bool                `json:"price_per_day"`
	PriceIncreasePerDay       decimal.Decimal     `json:"price_increase_per_day"`
	AdditionalPricePercentage decimal.NullDecimal `json:"additional_price_percentage"`
	Packs                     int                 `json:"packs"`
	Type                      string              `json:"package_type"`
	Inclusions                []string            `json:"package_inclusion"`
	Image                     *string             `json:"package_image"`
	Status                    string              `json:"status"`
	Deleted                   bool                `json:"-"`
	Rating                    decimal.Decimal     `json:"rating"`
	ReviewsCount              int                 `json:"reviews_count"`
	BookingsCount             int                 `json:"bookings_count"`
	CreatedAt                 time.Time           `json:"created_at"`
	UpdatedAt                 time.Time           `json:"updated_at"`
}

// Bookable reports whether new bookings may reference the package.
func (p Package) Bookable() bool { return !p.Deleted && p.Status == PackageActive }
