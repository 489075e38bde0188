package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CouponType selects how a coupon reduces the order.
type CouponType string

const (
	CouponPercentage   CouponType = "percentage"
	CouponFixed        CouponType = "fixed"
	CouponFreeDelivery CouponType = "freeDelivery"
)

// Coupon is a redeemable code. UsedCount and the per-user ledger are only
// changed through CouponRepository.RedeemCoupon and ReleaseCoupon.
type Coupon struct {
	ID          uuid.UUID       `json:"id"`
	Code        string          `json:"code"`
	Type        CouponType      `json:"type"`
	Value       decimal.Decimal `json:"value"`
	MaxDiscount decimal.Decimal `json:"maxDiscountAmount"`
	MinOrder    decimal.Decimal `json:"minOrderAmount"`

	// MaxUsageCount caps redemptions across all users; zero means unlimited.
	MaxUsageCount   int `json:"maxUsageCount"`
	MaxUsagePerUser int `json:"maxUsagePerUser"`
	UsedCount       int `json:"usedCount"`

	IsActive bool   `json:"isActive"`
	Window   Window `json:"window"`

	// IsGlobal coupons apply to any basket; otherwise at least one line must
	// match ApplicableProducts or ApplicableCategories.
	IsGlobal             bool        `json:"isGlobal"`
	ApplicableProducts   []uuid.UUID `json:"applicableProducts,omitempty"`
	ApplicableCategories []uuid.UUID `json:"applicableCategories,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// NormalizeCouponCode upper-cases and trims a code for lookup.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks a coupon definition before it is saved.
func (c *Coupon) Validate() error {
	const op = "coupon.validate"
	var err error
	if c.Code == "" {
		err = AddFieldError(err, "code", "is required")
	}
	switch c.Type {
	case CouponPercentage:
		if !c.Value.IsPositive() || c.Value.GreaterThan(decimal.NewFromInt(100)) {
			err = AddFieldError(err, "value", "percentage must be greater than 0 and at most 100")
		}
	case CouponFixed:
		if !c.Value.IsPositive() {
			err = AddFieldError(err, "value", "must be positive")
		}
	case CouponFreeDelivery:
	default:
		err = AddFieldError(err, "type", "must be percentage, fixed or freeDelivery")
	}
	if c.MaxDiscount.IsNegative() {
		err = AddFieldError(err, "maxDiscountAmount", "must not be negative")
	}
	if c.MinOrder.IsNegative() {
		err = AddFieldError(err, "minOrderAmount", "must not be negative")
	}
	if c.MaxUsageCount < 0 || c.MaxUsagePerUser < 0 {
		err = AddFieldError(err, "maxUsage", "must not be negative")
	}
	if !c.Window.Valid() {
		err = AddFieldError(err, "window", "end must not be before start")
	}
	if !c.IsGlobal && len(c.ApplicableProducts) == 0 && len(c.ApplicableCategories) == 0 {
		err = AddFieldError(err, "applicableProducts", "scoped coupons need at least one product or category")
	}
	if err != nil {
		err.(*ValidationError).Op = op
	}
	return err
}

// CouponRejection is returned when a coupon cannot be applied. Reason is
// safe to show to the customer.
func CouponRejection(reason string) error {
	return &Error{Code: EINVALID, Op: "coupon.apply", Message: reason, Err: ErrCouponInvalid}
}

// Coupon errors.
var (
	ErrCouponNotFound      = &Error{Code: ENOTFOUND, Message: "Coupon not found"}
	ErrCouponInvalid       = &Error{Code: EINVALID, Message: "Coupon cannot be applied"}
	ErrCouponUsageExceeded = &Error{Code: ECONFLICT, Message: "Coupon usage limit reached"}
	ErrCouponCodeTaken     = &Error{Code: ECONFLICT, Message: "Coupon code already exists"}
)
