package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a published catalog entry
type Product struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Image       string    `json:"image,omitempty"` // cover, kept for older storefront clients
	Images      []string  `json:"images"`
	Tags        []string  `json:"tags"`
	Price       Price     `json:"price"`
	Deleted     bool      `json:"deleted,omitempty"`
	CreatedBy   int64     `json:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	// RequestID is the caller's idempotency key; a create repeated with the
	// same key returns this record instead of adding another.
	RequestID   string    `json:"requestId,omitempty"`
}

// Cover returns the first image reference or an empty string
func (p Product) Cover() string {
	if len(p.Images) > 0 {
		return p.Images[0]
	}
	return p.Image
}

// Price is a non-negative ARS amount encoded as a bare JSON number
type Price struct {
	decimal.Decimal
}

// NewPrice wraps a decimal value
func NewPrice(d decimal.Decimal) Price {
	return Price{Decimal: d}
}

// MarshalJSON writes the price without quotes so the storefront reads a number.
func (p Price) MarshalJSON() ([]byte, error) {
	return []byte(p.Decimal.String()), nil
}

// UnmarshalJSON accepts both quoted and bare numbers.
func (p *Price) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		p.Decimal = decimal.Zero
		return nil
	}
	return p.Decimal.UnmarshalJSON(data)
}

// Event actions recorded in the audit journal
const (
	ActionCreate     = "create"
	ActionSoftDelete = "soft_delete"
	ActionHardDelete = "hard_delete"
	ActionReset      = "reset"
)

// CatalogEvent represents a mutation of the catalog document
type CatalogEvent struct {
	At        time.Time
	Action    string
	ProductID int64
	Title     string
	Actor     string
}
