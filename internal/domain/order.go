package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus tracks money movement for an order.
type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "Pending"
	PaymentCompleted         PaymentStatus = "Completed"
	PaymentFailed            PaymentStatus = "Failed"
	PaymentCancelled         PaymentStatus = "Cancelled"
	PaymentRefunded          PaymentStatus = "Refunded"
	PaymentPartiallyRefunded PaymentStatus = "PartiallyRefunded"
)

// OrderStatus tracks fulfilment.
type OrderStatus string

const (
	OrderProcessing OrderStatus = "Processing"
	OrderPaid       OrderStatus = "Paid"
	OrderReady      OrderStatus = "Ready"
	OrderOnTheWay   OrderStatus = "On the way"
	OrderReceived   OrderStatus = "Received"
	OrderFailed     OrderStatus = "Failed"
	OrderCancelled  OrderStatus = "Cancelled"
)

// PlaceType decides whether an order carries delivery or table details.
type PlaceType string

const (
	PlaceOnline   PlaceType = "Online"
	PlaceInPlace  PlaceType = "In-Place"
	PlaceTakeaway PlaceType = "Takeaway"
)

// Valid reports whether p is a known place type.
func (p PlaceType) Valid() bool {
	switch p {
	case PlaceOnline, PlaceInPlace, PlaceTakeaway:
		return true
	}
	return false
}

// DiscountSource names the single discount layer applied to a line.
type DiscountSource string

const (
	DiscountNone     DiscountSource = ""
	DiscountProduct  DiscountSource = "product"
	DiscountCategory DiscountSource = "category"
	DiscountGlobal   DiscountSource = "global"
)

// OrderItem is a priced line frozen at order creation.
type OrderItem struct {
	ProductID          uuid.UUID       `json:"productId"`
	Name               string          `json:"name"`
	Quantity           int             `json:"quantity"`
	BasePrice          decimal.Decimal `json:"basePrice"`
	UnitPrice          decimal.Decimal `json:"unitPrice"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
	DiscountSource     DiscountSource  `json:"discountSource,omitempty"`
	LineTotal          decimal.Decimal `json:"lineTotal"`
}

// DeliveryDetails is populated only for Online orders.
type DeliveryDetails struct {
	AddressID   uuid.UUID `json:"addressId"`
	Governorate string    `json:"governorate"`
	City        string    `json:"city"`
	Street      string    `json:"street,omitempty"`
	Phone       string    `json:"phone,omitempty"`
}

// PaymentRefs carries gateway correlation identifiers. Only the fields of the
// order's own provider are ever set.
type PaymentRefs struct {
	StripeSessionID       string `json:"stripeSessionId,omitempty"`
	StripePaymentIntentID string `json:"stripePaymentIntentId,omitempty"`

	// PaymobCorrelationID is minted per aggregator attempt and echoed back by
	// the aggregator's callbacks in place of our order id.
	PaymobCorrelationID string `json:"paymobCorrelationId,omitempty"`
	PaymobIntentionID   string `json:"paymobIntentionId,omitempty"`
	PaymobOrderID       string `json:"paymobOrderId,omitempty"`

	TransactionID string `json:"transactionId,omitempty"`

	// Authorized is set when the aggregator reports funds held but not captured.
	Authorized bool `json:"authorized,omitempty"`
}

// RefundDetails records the latest refund; Amount is cumulative.
type RefundDetails struct {
	RefundID string          `json:"refundId"`
	Amount   decimal.Decimal `json:"amount"`
	Date     time.Time       `json:"date"`
	Reason   string          `json:"reason,omitempty"`
	Status   string          `json:"status"`
}

// Order is the central aggregate.
type Order struct {
	ID     uuid.UUID  `json:"id"`
	UserID uuid.UUID  `json:"userId"`
	CartID *uuid.UUID `json:"cartId,omitempty"`

	Items []OrderItem `json:"items"`

	Subtotal        decimal.Decimal `json:"subtotal"`
	ProductDiscount decimal.Decimal `json:"productDiscount"`
	CouponDiscount  decimal.Decimal `json:"couponDiscount"`
	DeliveryFee     decimal.Decimal `json:"deliveryFee"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	Currency        string          `json:"currency"`
	CouponID        *uuid.UUID      `json:"couponId,omitempty"`

	PaymentMethodID uuid.UUID         `json:"paymentMethodId"`
	PaymentMethod   PaymentMethodName `json:"paymentMethod"`
	Provider        Provider          `json:"provider"`

	PaymentStatus PaymentStatus `json:"paymentStatus"`
	OrderStatus   OrderStatus   `json:"orderStatus"`

	PlaceType     PlaceType        `json:"placeType"`
	Delivery      *DeliveryDetails `json:"delivery,omitempty"`
	TableID       *uuid.UUID       `json:"tableId,omitempty"`
	ReservationID *uuid.UUID       `json:"reservationId,omitempty"`

	Payment PaymentRefs    `json:"payment"`
	Refund  *RefundDetails `json:"refundDetails,omitempty"`

	CancellationReason string `json:"cancellationReason,omitempty"`
	FailureReason      string `json:"failureReason,omitempty"`

	PaidAt    *time.Time `json:"paidAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// CheckInvariants verifies the money and place-type rules of an order.
func (o *Order) CheckInvariants() error {
	const op = "order.invariants"
	want := o.Subtotal.Sub(o.ProductDiscount).Sub(o.CouponDiscount)
	if want.IsNegative() {
		want = decimal.Zero
	}
	want = want.Add(o.DeliveryFee)
	if !o.TotalPrice.Equal(want) {
		return Errorf(EINTERNAL, op, "total %s does not match computed %s", o.TotalPrice, want)
	}
	if o.TotalPrice.IsNegative() {
		return Errorf(EINTERNAL, op, "total is negative")
	}
	if o.PlaceType != PlaceOnline && !o.DeliveryFee.IsZero() {
		return Errorf(EINTERNAL, op, "delivery fee set for %s order", o.PlaceType)
	}
	if (o.TableID != nil) != (o.PlaceType == PlaceInPlace) {
		return Errorf(EINTERNAL, op, "table must be set only for In-Place orders")
	}
	if (o.Delivery != nil) != (o.PlaceType == PlaceOnline) {
		return Errorf(EINTERNAL, op, "delivery details must be set only for Online orders")
	}
	return nil
}

// RefundedAmount returns what has been refunded so far.
func (o *Order) RefundedAmount() decimal.Decimal {
	if o.Refund == nil {
		return decimal.Zero
	}
	return o.Refund.Amount
}

// Refundable returns the amount that may still be refunded.
func (o *Order) Refundable() decimal.Decimal {
	return o.TotalPrice.Sub(o.RefundedAmount())
}

// AwaitingPayment reports whether a gateway outcome may still be applied.
func (o *Order) AwaitingPayment() bool {
	return o.PaymentStatus == PaymentPending
}

// Cancellable reports whether a cancel request is accepted in the current state.
func (o *Order) Cancellable() bool {
	switch o.PaymentStatus {
	case PaymentPending, PaymentCompleted:
	default:
		return false
	}
	return o.OrderStatus == OrderProcessing || o.OrderStatus == OrderPaid
}

// fulfilment lists the admin-driven order status moves.
var fulfilment = map[OrderStatus][]OrderStatus{
	OrderPaid:     {OrderReady},
	OrderReady:    {OrderOnTheWay, OrderReceived},
	OrderOnTheWay: {OrderReceived},
}

// CanAdvanceTo reports whether an admin may move the order to next.
func (o *Order) CanAdvanceTo(next OrderStatus) bool {
	if o.PaymentStatus != PaymentCompleted {
		return false
	}
	if !slices.Contains(fulfilment[o.OrderStatus], next) {
		return false
	}
	if o.PlaceType != PlaceOnline && next == OrderOnTheWay {
		return false
	}
	if o.PlaceType == PlaceOnline && o.OrderStatus == OrderReady && next == OrderReceived {
		return false
	}
	return true
}

// StatusUpdate is a compare-and-swap on an order's status fields. The update
// applies only if the current payment status is in From and, when FromOrder
// is non-empty, the current order status is in FromOrder.
type StatusUpdate struct {
	From      []PaymentStatus
	FromOrder []OrderStatus

	PaymentStatus PaymentStatus
	OrderStatus   OrderStatus

	// Optional fields; zero values leave the stored value untouched.
	TransactionID      string
	Refund             *RefundDetails
	CancellationReason string
	FailureReason      string
	PaidAt             *time.Time
}

// Matches reports whether the update's guard accepts the order's current state.
func (u StatusUpdate) Matches(o *Order) bool {
	if !slices.Contains(u.From, o.PaymentStatus) {
		return false
	}
	if len(u.FromOrder) > 0 && !slices.Contains(u.FromOrder, o.OrderStatus) {
		return false
	}
	return true
}

// Apply writes the update onto o. Callers must check Matches first.
func (u StatusUpdate) Apply(o *Order, now time.Time) {
	o.PaymentStatus = u.PaymentStatus
	o.OrderStatus = u.OrderStatus
	if u.TransactionID != "" {
		o.Payment.TransactionID = u.TransactionID
	}
	if u.Refund != nil {
		r := *u.Refund
		o.Refund = &r
	}
	if u.CancellationReason != "" {
		o.CancellationReason = u.CancellationReason
	}
	if u.FailureReason != "" {
		o.FailureReason = u.FailureReason
	}
	if u.PaidAt != nil {
		t := *u.PaidAt
		o.PaidAt = &t
	}
	o.UpdatedAt = now
}

// Order errors.
var (
	ErrOrderNotFound       = &Error{Code: ENOTFOUND, Message: "Order not found"}
	ErrOrderNotCancellable = &Error{Code: ECONFLICT, Message: "Order can no longer be cancelled"}
	ErrOrderNotRefundable  = &Error{Code: ECONFLICT, Message: "Only completed payments can be refunded"}
	ErrOrderStateChanged   = &Error{Code: ECONFLICT, Message: "Order status changed concurrently, please retry"}
	ErrInvalidTransition   = &Error{Code: ECONFLICT, Message: "Order cannot move to the requested status"}
	ErrEmptyOrder          = &Error{Code: EINVALID, Message: "Order has no items"}
)
