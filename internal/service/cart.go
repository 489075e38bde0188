package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xhaelri/qitchen/internal/domain"
	"github.com/xhaelri/qitchen/internal/pricing"
	"github.com/xhaelri/qitchen/internal/telemetry"
)

// MaxCartQuantity caps the quantity of a single cart line.
const MaxCartQuantity = 100

// CartService provides business logic for the caller's shopping cart
type CartService interface {
	GetCart(ctx context.Context) (*CartView, error)
	AddItem(ctx context.Context, productID uuid.UUID, quantity int) (*CartView, error)
	SetQuantity(ctx context.Context, productID uuid.UUID, quantity int) (*CartView, error)
	RemoveItem(ctx context.Context, productID uuid.UUID) (*CartView, error)
	ApplyCoupon(ctx context.Context, code string) (*CartView, error)
	RemoveCoupon(ctx context.Context) (*CartView, error)
	ClearCart(ctx context.Context) (*CartView, error)
}

// CartView is a cart priced at read time.
type CartView struct {
	Cart      *domain.Cart `json:"cart"`
	ItemCount int          `json:"itemCount"`

	Items              []domain.OrderItem `json:"items"`
	Subtotal           decimal.Decimal    `json:"subtotal"`
	ProductDiscount    decimal.Decimal    `json:"productDiscount"`
	DiscountedSubtotal decimal.Decimal    `json:"discountedSubtotal"`
	CouponCode         string             `json:"couponCode,omitempty"`
	CouponDiscount     decimal.Decimal    `json:"couponDiscount"`
	FreeDelivery       bool               `json:"freeDelivery"`
	Total              decimal.Decimal    `json:"total"`

	// CouponError explains why the saved coupon no longer applies.
	CouponError string `json:"couponError,omitempty"`
}

type cartService struct {
	store   domain.CartRepository
	pricing *pricing.Engine
	metrics *telemetry.BusinessMetrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewCartService creates a new CartService instance
func NewCartService(store domain.CartRepository, engine *pricing.Engine, metrics *telemetry.BusinessMetrics, logger *slog.Logger) CartService {
	if logger == nil {
		logger = slog.Default()
	}
	return &cartService{
		store:   store,
		pricing: engine,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// cart returns the caller's cart, creating an empty one on first use.
func (s *cartService) cart(ctx context.Context) (*domain.Cart, *domain.User, error) {
	const op = "cart.get"
	user := domain.UserFromContext(ctx)
	if user == nil {
		return nil, nil, domain.WithOp(ErrIdentityRequired, op)
	}

	c, err := s.store.GetCartByUser(ctx, user.ID)
	if err == nil {
		return c, user, nil
	}
	if !domain.IsCode(err, domain.ENOTFOUND) {
		return nil, nil, domain.Internal(err, op, "failed to load cart")
	}

	c = domain.NewCart(user.ID, s.now())
	if err := s.store.CreateCart(ctx, c); err != nil {
		if !errors.Is(err, domain.ErrCartExists) {
			return nil, nil, domain.Internal(err, op, "failed to create cart")
		}
		// Created concurrently by another request.
		c, err = s.store.GetCartByUser(ctx, user.ID)
		if err != nil {
			return nil, nil, domain.Internal(err, op, "failed to load cart")
		}
	}
	return c, user, nil
}

func (s *cartService) save(ctx context.Context, c *domain.Cart, action string) error {
	c.UpdatedAt = s.now()
	if err := s.store.SaveCart(ctx, c); err != nil {
		return domain.Internal(err, "cart.save", "failed to save cart")
	}
	s.metrics.Cart(action)
	return nil
}

// view prices the cart. A saved coupon that no longer applies is reported in
// CouponError instead of failing the read.
func (s *cartService) view(ctx context.Context, c *domain.Cart, userID uuid.UUID) (*CartView, error) {
	v := &CartView{Cart: c, Items: []domain.OrderItem{}}
	for _, it := range c.Items {
		v.ItemCount += it.Quantity
	}
	if c.Empty() {
		return v, nil
	}

	lines := cartLines(c)
	var ref pricing.CouponRef
	if c.CouponID != nil {
		ref.ID = c.CouponID
	}
	q, err := s.pricing.Quote(ctx, userID, lines, ref)
	if err != nil && !ref.IsZero() && errors.Is(err, domain.ErrCouponInvalid) {
		v.CouponError = domain.ErrorMessage(err)
		q, err = s.pricing.PriceLines(ctx, lines)
	}
	if err != nil {
		return nil, err
	}

	v.Items = q.Items
	v.Subtotal = q.Subtotal
	v.ProductDiscount = q.ProductDiscount
	v.DiscountedSubtotal = q.DiscountedSubtotal
	v.CouponCode = q.CouponCode
	v.CouponDiscount = q.CouponDiscount
	v.FreeDelivery = q.FreeDelivery
	v.Total = q.Total
	return v, nil
}

func cartLines(c *domain.Cart) []pricing.Line {
	lines := make([]pricing.Line, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, pricing.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines
}

func (s *cartService) GetCart(ctx context.Context) (*CartView, error) {
	c, user, err := s.cart(ctx)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, c, user.ID)
}

// AddItem adds quantity of a product, checking the product can be sold.
func (s *cartService) AddItem(ctx context.Context, productID uuid.UUID, quantity int) (*CartView, error) {
	const op = "cart.addItem"
	if quantity < 1 {
		return nil, domain.WithOp(ErrInvalidQuantity, op)
	}
	c, user, err := s.cart(ctx)
	if err != nil {
		return nil, err
	}
	next := c.Quantity(productID) + quantity
	if next > MaxCartQuantity {
		return nil, domain.Errorf(domain.EINVALID, op, "Quantity cannot exceed %d", MaxCartQuantity)
	}
	if _, err := s.pricing.PriceLines(ctx, []pricing.Line{{ProductID: productID, Quantity: next}}); err != nil {
		return nil, err
	}
	c.SetQuantity(productID, next)
	if err := s.save(ctx, c, "add"); err != nil {
		return nil, err
	}
	return s.view(ctx, c, user.ID)
}

// SetQuantity replaces a line's quantity. Zero removes the line.
func (s *cartService) SetQuantity(ctx context.Context, productID uuid.UUID, quantity int) (*CartView, error) {
	const op = "cart.setQuantity"
	if quantity < 0 || quantity > MaxCartQuantity {
		return nil, domain.Errorf(domain.EINVALID, op, "Quantity must be between 0 and %d", MaxCartQuantity)
	}
	c, user, err := s.cart(ctx)
	if err != nil {
		return nil, err
	}
	if c.Quantity(productID) == 0 {
		return nil, domain.NotFound(op, "cart item", productID.String())
	}
	c.SetQuantity(productID, quantity)
	action := "update"
	if quantity == 0 {
		action = "remove"
	}
	if err := s.save(ctx, c, action); err != nil {
		return nil, err
	}
	return s.view(ctx, c, user.ID)
}

func (s *cartService) RemoveItem(ctx context.Context, productID uuid.UUID) (*CartView, error) {
	const op = "cart.removeItem"
	c, user, err := s.cart(ctx)
	if err != nil {
		return nil, err
	}
	if c.Quantity(productID) == 0 {
		return nil, domain.NotFound(op, "cart item", productID.String())
	}
	c.SetQuantity(productID, 0)
	if err := s.save(ctx, c, "remove"); err != nil {
		return nil, err
	}
	return s.view(ctx, c, user.ID)
}

// ApplyCoupon validates code against the current cart and saves it.
func (s *cartService) ApplyCoupon(ctx context.Context, code string) (*CartView, error) {
	const op = "cart.applyCoupon"
	if domain.NormalizeCouponCode(code) == "" {
		return nil, domain.NewValidationError(op, "code", "is required")
	}
	c, user, err := s.cart(ctx)
	if err != nil {
		return nil, err
	}
	if c.Empty() {
		return nil, domain.WithOp(domain.ErrCartEmpty, op)
	}
	q, err := s.pricing.Quote(ctx, user.ID, cartLines(c), pricing.CouponRef{Code: code})
	if err != nil {
		return nil, err
	}
	id := q.Coupon.ID
	c.CouponID = &id
	if err := s.save(ctx, c, "coupon"); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "coupon applied to cart", "cart_id", c.ID, "coupon", q.CouponCode)
	return s.view(ctx, c, user.ID)
}

func (s *cartService) RemoveCoupon(ctx context.Context) (*CartView, error) {
	c, user, err := s.cart(ctx)
	if err != nil {
		return nil, err
	}
	if c.CouponID != nil {
		c.CouponID = nil
		if err := s.save(ctx, c, "coupon"); err != nil {
			return nil, err
		}
	}
	return s.view(ctx, c, user.ID)
}

func (s *cartService) ClearCart(ctx context.Context) (*CartView, error) {
	c, user, err := s.cart(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.ClearCart(ctx, c.ID); err != nil {
		return nil, domain.Internal(err, "cart.clear", "failed to clear cart")
	}
	s.metrics.Cart("clear")
	c.Items = []domain.CartItem{}
	c.CouponID = nil
	return s.view(ctx, c, user.ID)
}
