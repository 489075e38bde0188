package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Window is an optional validity interval. Nil bounds are open.
type Window struct {
	StartsAt *time.Time `json:"startsAt,omitempty"`
	EndsAt   *time.Time `json:"endsAt,omitempty"`
}

// Contains reports whether t falls within the window, bounds inclusive.
func (w Window) Contains(t time.Time) bool {
	if w.StartsAt != nil && t.Before(*w.StartsAt) {
		return false
	}
	if w.EndsAt != nil && t.After(*w.EndsAt) {
		return false
	}
	return true
}

// Overlaps reports whether two windows share at least one instant.
func (w Window) Overlaps(o Window) bool {
	if w.EndsAt != nil && o.StartsAt != nil && w.EndsAt.Before(*o.StartsAt) {
		return false
	}
	if o.EndsAt != nil && w.StartsAt != nil && o.EndsAt.Before(*w.StartsAt) {
		return false
	}
	return true
}

// Valid reports whether the window's bounds are ordered.
func (w Window) Valid() bool {
	return w.StartsAt == nil || w.EndsAt == nil || !w.EndsAt.Before(*w.StartsAt)
}

// Product is the catalog view needed for pricing.
type Product struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	CategoryID  uuid.UUID       `json:"categoryId"`
	Price       decimal.Decimal `json:"price"`
	IsAvailable bool            `json:"isAvailable"`

	// Product-level sale.
	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
	IsDiscountActive   bool            `json:"isDiscountActive"`
	DiscountWindow     Window          `json:"discountWindow"`
}

// SaleActive reports whether the product's own sale applies at t.
func (p *Product) SaleActive(t time.Time) bool {
	return p.IsDiscountActive && p.DiscountPercentage.IsPositive() && p.DiscountWindow.Contains(t)
}

// CategoryDiscount is a percentage off every product in a category.
type CategoryDiscount struct {
	ID               uuid.UUID       `json:"id"`
	CategoryID       uuid.UUID       `json:"categoryId"`
	Percentage       decimal.Decimal `json:"percentage"`
	IsActive         bool            `json:"isActive"`
	Window           Window          `json:"window"`
	ExcludedProducts []uuid.UUID     `json:"excludedProducts,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// AppliesTo reports whether the discount covers product at t.
func (d *CategoryDiscount) AppliesTo(p *Product, t time.Time) bool {
	return d.IsActive &&
		d.CategoryID == p.CategoryID &&
		d.Window.Contains(t) &&
		!slices.Contains(d.ExcludedProducts, p.ID)
}

// GlobalDiscount is a store-wide percentage discount. Active global discounts
// never overlap in time; the store rejects an overlapping write.
type GlobalDiscount struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	Percentage         decimal.Decimal `json:"percentage"`
	IsActive           bool            `json:"isActive"`
	Window             Window          `json:"window"`
	ExcludedProducts   []uuid.UUID     `json:"excludedProducts,omitempty"`
	ExcludedCategories []uuid.UUID     `json:"excludedCategories,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// AppliesTo reports whether the discount covers product at t.
func (d *GlobalDiscount) AppliesTo(p *Product, t time.Time) bool {
	return d.IsActive &&
		d.Window.Contains(t) &&
		!slices.Contains(d.ExcludedProducts, p.ID) &&
		!slices.Contains(d.ExcludedCategories, p.CategoryID)
}

// ValidatePercentage checks a discount percentage is in (0, 100].
func ValidatePercentage(op string, pct decimal.Decimal) error {
	if !pct.IsPositive() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return NewValidationError(op, "percentage", "must be greater than 0 and at most 100")
	}
	return nil
}

// Catalog errors.
var (
	ErrProductNotFound           = &Error{Code: ENOTFOUND, Message: "Product not found"}
	ErrProductUnavailable        = &Error{Code: EINVALID, Message: "Product is currently unavailable"}
	ErrOverlappingGlobalDiscount = &Error{Code: ECONFLICT, Message: "An active global discount already covers this period"}
)
