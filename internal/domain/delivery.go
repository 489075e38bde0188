package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DeliveryLocation is a flat delivery fee for one (governorate, city) pair.
type DeliveryLocation struct {
	ID          uuid.UUID       `json:"id"`
	Governorate string          `json:"governorate"`
	City        string          `json:"city"`
	Fee         decimal.Decimal `json:"fee"`
	IsActive    bool            `json:"isActive"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// LocationKey normalizes a (governorate, city) pair for exact matching.
func LocationKey(governorate, city string) string {
	return strings.ToLower(strings.TrimSpace(governorate)) + "|" + strings.ToLower(strings.TrimSpace(city))
}

// Address is a saved customer address.
type Address struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"userId"`
	Governorate string    `json:"governorate"`
	City        string    `json:"city"`
	Street      string    `json:"street"`
	Phone       string    `json:"phone"`
}

// Delivery errors.
var (
	ErrDeliveryUnavailable = &Error{Code: EINVALID, Message: "Delivery is not available for this location"}
	ErrAddressNotFound     = &Error{Code: ENOTFOUND, Message: "Address not found"}
)
