package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OrderRepository persists orders. Status changes go through UpdateStatus,
// which is a conditional write: it reports false without error when the
// guard in StatusUpdate no longer matches the stored order.
type OrderRepository interface {
	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrderByCorrelationID(ctx context.Context, correlationID string) (*Order, error)
	GetOrderByPaymobOrderID(ctx context.Context, paymobOrderID string) (*Order, error)
	GetOrderByStripeSessionID(ctx context.Context, sessionID string) (*Order, error)
	ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]*Order, error)
	// ListStalePendingOrders skips orders holding an authorized payment.
	ListStalePendingOrders(ctx context.Context, createdBefore time.Time, limit int) ([]*Order, error)
	SetPaymentRefs(ctx context.Context, id uuid.UUID, refs PaymentRefs) error
	SetReservation(ctx context.Context, id, reservationID uuid.UUID) error
	UpdateStatus(ctx context.Context, id uuid.UUID, u StatusUpdate) (bool, error)
}

// CartRepository persists carts. CreateCart fails with ErrCartExists when the
// user already owns one.
type CartRepository interface {
	GetCart(ctx context.Context, id uuid.UUID) (*Cart, error)
	GetCartByUser(ctx context.Context, userID uuid.UUID) (*Cart, error)
	CreateCart(ctx context.Context, c *Cart) error
	SaveCart(ctx context.Context, c *Cart) error
	ClearCart(ctx context.Context, id uuid.UUID) error
}

// CatalogRepository exposes the catalog data used for pricing.
type CatalogRepository interface {
	GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Product, error)
	ListCategoryDiscounts(ctx context.Context, categoryIDs []uuid.UUID) ([]*CategoryDiscount, error)
	ListGlobalDiscounts(ctx context.Context) ([]*GlobalDiscount, error)
	UpsertProduct(ctx context.Context, p *Product) error
	CreateCategoryDiscount(ctx context.Context, d *CategoryDiscount) error
	// CreateGlobalDiscount fails with ErrOverlappingGlobalDiscount when d is
	// active and overlaps another active global discount.
	CreateGlobalDiscount(ctx context.Context, d *GlobalDiscount) error
}

// CouponRepository persists coupons and their usage ledger.
type CouponRepository interface {
	GetCoupon(ctx context.Context, id uuid.UUID) (*Coupon, error)
	GetCouponByCode(ctx context.Context, code string) (*Coupon, error)
	CreateCoupon(ctx context.Context, c *Coupon) error
	CountUserRedemptions(ctx context.Context, couponID, userID uuid.UUID) (int, error)
	// RedeemCoupon records one use atomically, failing with
	// ErrCouponUsageExceeded when either cap would be exceeded.
	RedeemCoupon(ctx context.Context, couponID, userID uuid.UUID) error
	ReleaseCoupon(ctx context.Context, couponID, userID uuid.UUID) error
}

// ReservationRepository persists tables and reservations. CreateReservation
// fails with ErrSlotUnavailable when a non-cancelled reservation already holds
// the (table, date) pair.
type ReservationRepository interface {
	GetTable(ctx context.Context, id uuid.UUID) (*Table, error)
	UpsertTable(ctx context.Context, t *Table) error
	SlotTaken(ctx context.Context, tableID uuid.UUID, date time.Time) (bool, error)
	CreateReservation(ctx context.Context, r *Reservation) error
	GetReservation(ctx context.Context, id uuid.UUID) (*Reservation, error)
	ListReservationsByUser(ctx context.Context, userID uuid.UUID) ([]*Reservation, error)
	UpdateReservationStatus(ctx context.Context, id uuid.UUID, status ReservationStatus) error
}

// PaymentMethodRepository persists the payment method registry.
type PaymentMethodRepository interface {
	GetPaymentMethodByName(ctx context.Context, name PaymentMethodName) (*PaymentMethod, error)
	ListPaymentMethods(ctx context.Context) ([]*PaymentMethod, error)
	UpsertPaymentMethod(ctx context.Context, m *PaymentMethod) error
}

// ProviderConfigRepository persists one config per provider.
type ProviderConfigRepository interface {
	GetProviderConfig(ctx context.Context, provider Provider) (*ProviderConfig, error)
	SaveProviderConfig(ctx context.Context, cfg *ProviderConfig) error
}

// DeliveryRepository persists delivery locations and customer addresses.
type DeliveryRepository interface {
	FindDeliveryLocation(ctx context.Context, governorate, city string) (*DeliveryLocation, error)
	ListDeliveryLocations(ctx context.Context) ([]*DeliveryLocation, error)
	UpsertDeliveryLocation(ctx context.Context, l *DeliveryLocation) error
	GetAddress(ctx context.Context, id uuid.UUID) (*Address, error)
	UpsertAddress(ctx context.Context, a *Address) error
}

// Store is the full data store. Both the Postgres and in-memory
// implementations satisfy it; services depend on the narrower interfaces.
type Store interface {
	OrderRepository
	CartRepository
	CatalogRepository
	CouponRepository
	ReservationRepository
	PaymentMethodRepository
	ProviderConfigRepository
	DeliveryRepository
}
