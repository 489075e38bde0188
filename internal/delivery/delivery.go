// Package delivery resolves the delivery fee for an order.
package delivery

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xhaelri/qitchen/internal/domain"
)

// Locations is the read side of the delivery-location table.
type Locations interface {
	FindDeliveryLocation(ctx context.Context, governorate, city string) (*domain.DeliveryLocation, error)
}

// Thresholds reports the free-delivery threshold across provider configs.
type Thresholds interface {
	FreeDeliveryThreshold(ctx context.Context) (decimal.Decimal, error)
}

// Request carries what the resolver needs from an order.
type Request struct {
	PlaceType   domain.PlaceType
	Governorate string
	City        string

	// Subtotal is the items total after product and coupon discounts.
	Subtotal decimal.Decimal

	// FreeDelivery is set when a freeDelivery coupon was applied.
	FreeDelivery bool
}

// Resolver computes flat delivery fees by location.
type Resolver struct {
	locations  Locations
	thresholds Thresholds
}

// NewResolver creates a delivery fee resolver.
func NewResolver(locations Locations, thresholds Thresholds) *Resolver {
	return &Resolver{locations: locations, thresholds: thresholds}
}

// Resolve returns the delivery fee for req. Only Online orders pay delivery.
func (r *Resolver) Resolve(ctx context.Context, req Request) (decimal.Decimal, error) {
	const op = "delivery.resolve"

	if req.PlaceType != domain.PlaceOnline {
		return decimal.Zero, nil
	}

	gov := strings.TrimSpace(req.Governorate)
	city := strings.TrimSpace(req.City)
	if gov == "" || city == "" {
		return decimal.Zero, domain.Invalid(op, "Governorate and city are required for delivery")
	}

	loc, err := r.locations.FindDeliveryLocation(ctx, gov, city)
	if err != nil {
		if errors.Is(err, domain.ErrDeliveryUnavailable) || domain.IsCode(err, domain.ENOTFOUND) {
			return decimal.Zero, domain.WithOp(domain.ErrDeliveryUnavailable, op)
		}
		return decimal.Zero, domain.Internal(err, op, "failed to load delivery location")
	}
	if !loc.IsActive {
		return decimal.Zero, domain.WithOp(domain.ErrDeliveryUnavailable, op)
	}

	if req.FreeDelivery {
		return decimal.Zero, nil
	}

	threshold, err := r.thresholds.FreeDeliveryThreshold(ctx)
	if err != nil {
		return decimal.Zero, domain.Internal(err, op, "failed to load free delivery threshold")
	}
	if threshold.IsPositive() && req.Subtotal.GreaterThanOrEqual(threshold) {
		return decimal.Zero, nil
	}

	return loc.Fee, nil
}
