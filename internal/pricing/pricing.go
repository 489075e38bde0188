// Package pricing computes line prices, discounts and coupon reductions.
//
// Only one discount layer applies to a line. The layers are tried in priority
// order: the product's own sale, then its category discount, then the global
// discount. Coupons are applied afterwards to the discount-adjusted subtotal.
package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xhaelri/qitchen/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Catalog is the read side of the catalog needed for pricing.
type Catalog interface {
	GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error)
	ListCategoryDiscounts(ctx context.Context, categoryIDs []uuid.UUID) ([]*domain.CategoryDiscount, error)
	ListGlobalDiscounts(ctx context.Context) ([]*domain.GlobalDiscount, error)
}

// Coupons is the read side of the coupon store.
type Coupons interface {
	GetCoupon(ctx context.Context, id uuid.UUID) (*domain.Coupon, error)
	GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error)
	CountUserRedemptions(ctx context.Context, couponID, userID uuid.UUID) (int, error)
}

// Line is a requested (product, quantity) pair.
type Line struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1,max=100"`
}

// CouponRef selects a coupon by id or by code. The zero value means none.
type CouponRef struct {
	ID   *uuid.UUID
	Code string
}

// IsZero reports whether no coupon was requested.
func (r CouponRef) IsZero() bool {
	return r.ID == nil && r.Code == ""
}

// Quote is the priced result for a basket.
type Quote struct {
	Items []domain.OrderItem `json:"items"`

	// Subtotal is the sum of base price times quantity.
	Subtotal decimal.Decimal `json:"subtotal"`

	// ProductDiscount sums the per-line discount deltas of every layer.
	ProductDiscount decimal.Decimal `json:"productDiscount"`

	// DiscountedSubtotal is Subtotal minus ProductDiscount.
	DiscountedSubtotal decimal.Decimal `json:"discountedSubtotal"`

	Coupon         *domain.Coupon  `json:"-"`
	CouponCode     string          `json:"couponCode,omitempty"`
	CouponDiscount decimal.Decimal `json:"couponDiscount"`
	FreeDelivery   bool            `json:"freeDelivery"`

	// Total is max(0, DiscountedSubtotal - CouponDiscount), before delivery.
	Total decimal.Decimal `json:"total"`

	categories map[uuid.UUID]uuid.UUID
}

func (q *Quote) categoryOf(productID uuid.UUID) (uuid.UUID, bool) {
	cat, ok := q.categories[productID]
	return cat, ok
}

// Engine prices baskets against the catalog.
type Engine struct {
	catalog Catalog
	coupons Coupons
	now     func() time.Time
}

// NewEngine creates a pricing engine.
func NewEngine(catalog Catalog, coupons Coupons) *Engine {
	return &Engine{catalog: catalog, coupons: coupons, now: time.Now}
}

// WithClock overrides the engine's clock, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Quote prices lines for userID and applies the referenced coupon.
// An invalid coupon fails the whole quote with a domain.CouponRejection.
func (e *Engine) Quote(ctx context.Context, userID uuid.UUID, lines []Line, ref CouponRef) (*Quote, error) {
	q, err := e.PriceLines(ctx, lines)
	if err != nil {
		return nil, err
	}
	if ref.IsZero() {
		return q, nil
	}

	coupon, err := e.lookupCoupon(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := e.ApplyCoupon(ctx, q, coupon, userID); err != nil {
		return nil, err
	}
	return q, nil
}

// PriceLines resolves every line's effective price without any coupon.
func (e *Engine) PriceLines(ctx context.Context, lines []Line) (*Quote, error) {
	const op = "pricing.priceLines"
	if len(lines) == 0 {
		return nil, domain.WithOp(domain.ErrEmptyOrder, op)
	}

	ids := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 {
			return nil, domain.Invalid(op, "quantity must be at least 1")
		}
		ids = append(ids, l.ProductID)
	}

	products, err := e.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load products")
	}

	categoryIDs := make([]uuid.UUID, 0, len(products))
	for _, p := range products {
		categoryIDs = append(categoryIDs, p.CategoryID)
	}
	catDiscounts, err := e.catalog.ListCategoryDiscounts(ctx, categoryIDs)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load category discounts")
	}
	globals, err := e.catalog.ListGlobalDiscounts(ctx)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load global discounts")
	}

	now := e.now()
	global := ActiveGlobalDiscount(globals, now)

	q := &Quote{
		Subtotal:        decimal.Zero,
		ProductDiscount: decimal.Zero,
		CouponDiscount:  decimal.Zero,
		categories:      make(map[uuid.UUID]uuid.UUID, len(products)),
	}
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			return nil, &domain.Error{
				Code:    domain.ENOTFOUND,
				Op:      op,
				Message: fmt.Sprintf("Product not found: %s", l.ProductID),
				Err:     domain.ErrProductNotFound,
			}
		}
		if !p.IsAvailable {
			return nil, &domain.Error{
				Code:    domain.EINVALID,
				Op:      op,
				Message: fmt.Sprintf("Product is currently unavailable: %s", p.Name),
				Err:     domain.ErrProductUnavailable,
			}
		}

		item := PriceItem(p, l.Quantity, catDiscounts, global, now)
		q.Items = append(q.Items, item)
		q.categories[p.ID] = p.CategoryID

		base := p.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		q.Subtotal = q.Subtotal.Add(base)
		q.ProductDiscount = q.ProductDiscount.Add(base.Sub(item.LineTotal))
	}

	q.DiscountedSubtotal = q.Subtotal.Sub(q.ProductDiscount)
	q.Total = q.DiscountedSubtotal
	return q, nil
}

// PriceItem prices a single line with the highest-priority active discount.
func PriceItem(p *domain.Product, qty int, catDiscounts []*domain.CategoryDiscount, global *domain.GlobalDiscount, now time.Time) domain.OrderItem {
	pct, source := EffectiveDiscount(p, catDiscounts, global, now)
	unit := p.Price
	if pct.IsPositive() {
		unit = p.Price.Mul(hundred.Sub(pct)).Div(hundred).Round(2)
	}
	return domain.OrderItem{
		ProductID:          p.ID,
		Name:               p.Name,
		Quantity:           qty,
		BasePrice:          p.Price,
		UnitPrice:          unit,
		DiscountPercentage: pct,
		DiscountSource:     source,
		LineTotal:          unit.Mul(decimal.NewFromInt(int64(qty))),
	}
}

// EffectiveDiscount returns the single discount percentage that applies to p.
func EffectiveDiscount(p *domain.Product, catDiscounts []*domain.CategoryDiscount, global *domain.GlobalDiscount, now time.Time) (decimal.Decimal, domain.DiscountSource) {
	if p.SaleActive(now) {
		return p.DiscountPercentage, domain.DiscountProduct
	}
	for _, d := range catDiscounts {
		if d.AppliesTo(p, now) {
			return d.Percentage, domain.DiscountCategory
		}
	}
	if global != nil && global.AppliesTo(p, now) {
		return global.Percentage, domain.DiscountGlobal
	}
	return decimal.Zero, domain.DiscountNone
}

// ActiveGlobalDiscount picks the global discount in effect at now. Writes
// reject overlapping active discounts, so at most one normally matches; the
// most recently created wins if legacy data overlaps.
func ActiveGlobalDiscount(discounts []*domain.GlobalDiscount, now time.Time) *domain.GlobalDiscount {
	var best *domain.GlobalDiscount
	for _, d := range discounts {
		if !d.IsActive || !d.Window.Contains(now) {
			continue
		}
		if best == nil || d.CreatedAt.After(best.CreatedAt) {
			best = d
		}
	}
	return best
}

func (e *Engine) lookupCoupon(ctx context.Context, ref CouponRef) (*domain.Coupon, error) {
	const op = "pricing.lookupCoupon"
	var (
		c   *domain.Coupon
		err error
	)
	if ref.ID != nil {
		c, err = e.coupons.GetCoupon(ctx, *ref.ID)
	} else {
		c, err = e.coupons.GetCouponByCode(ctx, domain.NormalizeCouponCode(ref.Code))
	}
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			return nil, domain.CouponRejection("Coupon not found")
		}
		return nil, domain.Internal(err, op, "failed to load coupon")
	}
	return c, nil
}
