package pricing

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xhaelri/qitchen/internal/domain"
)

// ApplyCoupon validates coupon for the quote and fills in the coupon fields.
// Rejections are domain.CouponRejection errors carrying the customer-facing
// reason; the quote is left untouched on failure.
func (e *Engine) ApplyCoupon(ctx context.Context, q *Quote, coupon *domain.Coupon, userID uuid.UUID) error {
	used, err := e.coupons.CountUserRedemptions(ctx, coupon.ID, userID)
	if err != nil {
		return domain.Internal(err, "pricing.applyCoupon", "failed to load coupon usage")
	}
	if err := CheckCoupon(coupon, q, used, e.now()); err != nil {
		return err
	}

	q.Coupon = coupon
	q.CouponCode = coupon.Code
	q.CouponDiscount = CouponDiscount(coupon, q.DiscountedSubtotal)
	q.FreeDelivery = coupon.Type == domain.CouponFreeDelivery
	q.Total = q.DiscountedSubtotal.Sub(q.CouponDiscount)
	if q.Total.IsNegative() {
		q.Total = decimal.Zero
	}
	return nil
}

// CheckCoupon validates a coupon against a priced basket. userUses is how many
// times the user already redeemed it.
func CheckCoupon(c *domain.Coupon, q *Quote, userUses int, now time.Time) error {
	if !c.IsActive {
		return domain.CouponRejection("Coupon is not active")
	}
	if c.Window.StartsAt != nil && now.Before(*c.Window.StartsAt) {
		return domain.CouponRejection("Coupon is not valid yet")
	}
	if c.Window.EndsAt != nil && now.After(*c.Window.EndsAt) {
		return domain.CouponRejection("Coupon has expired")
	}
	if c.MaxUsageCount > 0 && c.UsedCount >= c.MaxUsageCount {
		return domain.CouponRejection("Coupon usage limit reached")
	}
	if c.MaxUsagePerUser > 0 && userUses >= c.MaxUsagePerUser {
		return domain.CouponRejection("You have already used this coupon the maximum number of times")
	}
	if c.MinOrder.IsPositive() && q.DiscountedSubtotal.LessThan(c.MinOrder) {
		return domain.CouponRejection(fmt.Sprintf("Minimum order amount for this coupon is %s", c.MinOrder.StringFixed(2)))
	}
	if !c.IsGlobal && !couponMatchesBasket(c, q) {
		return domain.CouponRejection("Coupon does not apply to any item in your order")
	}
	return nil
}

// couponMatchesBasket reports whether any line is in the coupon's scope.
func couponMatchesBasket(c *domain.Coupon, q *Quote) bool {
	for _, it := range q.Items {
		if slices.Contains(c.ApplicableProducts, it.ProductID) {
			return true
		}
		if cat, ok := q.categoryOf(it.ProductID); ok && slices.Contains(c.ApplicableCategories, cat) {
			return true
		}
	}
	return false
}

// CouponDiscount computes the monetary reduction of c on subtotal.
func CouponDiscount(c *domain.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch c.Type {
	case domain.CouponPercentage:
		amount = subtotal.Mul(c.Value).Div(hundred).Round(2)
		if c.MaxDiscount.IsPositive() && amount.GreaterThan(c.MaxDiscount) {
			amount = c.MaxDiscount
		}
	case domain.CouponFixed:
		amount = c.Value
	default:
		return decimal.Zero
	}
	if amount.GreaterThan(subtotal) {
		amount = subtotal
	}
	return amount
}
