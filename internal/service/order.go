package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xhaelri/qitchen/internal/delivery"
	"github.com/xhaelri/qitchen/internal/domain"
	"github.com/xhaelri/qitchen/internal/events"
	"github.com/xhaelri/qitchen/internal/payment"
	"github.com/xhaelri/qitchen/internal/pricing"
	"github.com/xhaelri/qitchen/internal/telemetry"
)

// OrderService provides business logic for the order lifecycle
type OrderService interface {
	// CreateOrder runs the creation pipeline: validate, price, persist, then
	// start payment. A payment that cannot be started leaves the order Failed.
	CreateOrder(ctx context.Context, params CreateOrderParams) (*CreateOrderResult, error)

	// GetOrder returns an order visible to the caller.
	GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)

	// ListOrders returns the caller's orders, newest first.
	ListOrders(ctx context.Context) ([]*domain.Order, error)

	// GetPaymentStatus returns the normalized payment state of an order.
	GetPaymentStatus(ctx context.Context, orderID uuid.UUID) (*PaymentStatusView, error)

	// CancelOrder cancels an order and runs the provider's compensating action.
	CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (*domain.Order, error)

	// RefundOrder refunds part or all of a completed payment.
	RefundOrder(ctx context.Context, orderID uuid.UUID, params RefundParams) (*RefundSummary, error)

	// CaptureOrder captures an authorized card or aggregator payment.
	CaptureOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)

	// AdvanceStatus moves a paid order through fulfilment. Admin only.
	AdvanceStatus(ctx context.Context, orderID uuid.UUID, next domain.OrderStatus) (*domain.Order, error)

	// ExpireStalePending voids and fails Pending orders created before cutoff.
	ExpireStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// CreateOrderParams selects the order source and placement. Exactly one of
// CartID and Items is set.
type CreateOrderParams struct {
	CartID *uuid.UUID
	Items  []pricing.Line

	// CouponCode overrides the cart's coupon when set.
	CouponCode string

	PlaceType     domain.PlaceType
	PaymentMethod domain.PaymentMethodName

	// Online placement. AddressID loads a saved address; Governorate and
	// City override its location when set.
	AddressID   *uuid.UUID
	Governorate string
	City        string

	// In-Place placement. A nil ReservationDate means the current slot.
	TableID         *uuid.UUID
	ReservationDate *time.Time
}

// CreateOrderResult is returned for a successfully started payment.
type CreateOrderResult struct {
	Order       *domain.Order
	Provider    domain.Provider
	RedirectURL string
	Message     string
}

// RefundParams are the optional inputs of a refund. A nil Amount refunds
// everything not yet refunded.
type RefundParams struct {
	Amount *decimal.Decimal
	Reason string
}

// RefundSummary describes a processed refund.
type RefundSummary struct {
	OrderID       uuid.UUID            `json:"orderId"`
	RefundID      string               `json:"refundId"`
	Amount        decimal.Decimal      `json:"amount"`
	TotalRefunded decimal.Decimal      `json:"totalRefunded"`
	Remaining     decimal.Decimal      `json:"remaining"`
	Status        string               `json:"status"`
	PaymentStatus domain.PaymentStatus `json:"paymentStatus"`
}

// PaymentStatusView is the normalized payment state with provider details.
type PaymentStatusView struct {
	OrderID         uuid.UUID                `json:"orderId"`
	PaymentStatus   domain.PaymentStatus     `json:"paymentStatus"`
	OrderStatus     domain.OrderStatus       `json:"orderStatus"`
	PaymentMethod   domain.PaymentMethodName `json:"paymentMethod"`
	Provider        domain.Provider          `json:"provider"`
	TotalPrice      decimal.Decimal          `json:"totalPrice"`
	Currency        string                   `json:"currency"`
	PaidAt          *time.Time               `json:"paidAt,omitempty"`
	AwaitingCapture bool                     `json:"awaitingCapture"`
	Refund          *domain.RefundDetails    `json:"refundDetails,omitempty"`
	Details         map[string]string        `json:"details,omitempty"`
}

// OrderDeps wires the order service.
type OrderDeps struct {
	Store        domain.Store
	Pricing      *pricing.Engine
	Delivery     *delivery.Resolver
	Methods      *payment.Methods
	Configs      *payment.Configs
	Payments     *payment.Selector
	Reservations *ReservationGate
	Events       events.Publisher
	Metrics      *telemetry.BusinessMetrics
	Logger       *slog.Logger
	Now          func() time.Time
}

type orderService struct {
	store        domain.Store
	pricing      *pricing.Engine
	delivery     *delivery.Resolver
	methods      *payment.Methods
	configs      *payment.Configs
	payments     *payment.Selector
	reservations *ReservationGate
	lifecycle    *lifecycle
	metrics      *telemetry.BusinessMetrics
	logger       *slog.Logger
	now          func() time.Time
}

// NewOrderService creates a new OrderService instance
func NewOrderService(d OrderDeps) OrderService {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	return &orderService{
		store:        d.Store,
		pricing:      d.Pricing,
		delivery:     d.Delivery,
		methods:      d.Methods,
		configs:      d.Configs,
		payments:     d.Payments,
		reservations: d.Reservations,
		lifecycle: &lifecycle{
			store:   d.Store,
			events:  d.Events,
			metrics: d.Metrics,
			logger:  d.Logger,
			now:     d.Now,
		},
		metrics: d.Metrics,
		logger:  d.Logger,
		now:     d.Now,
	}
}

// placement is the validated where-and-how of an order.
type placement struct {
	delivery *domain.DeliveryDetails
	tableID  *uuid.UUID
	slot     time.Time
}

// CreateOrder creates an order and starts its payment.
//
// Steps run strictly in order and stop at the first failure:
//  1. identity
//  2. place-type structural validation
//  3. payment method is active
//  4. table slot is free (In-Place)
//  5. payment method id
//  6. source lines and pricing
//  7. delivery fee
//  8. total against the provider's bounds
//  9. persist the order (and redeem its coupon)
//  10. book the reservation (In-Place)
//  11. start the payment
//  12. on payment failure, mark the order Failed and return the error
//  13. otherwise return the order and redirect
func (s *orderService) CreateOrder(ctx context.Context, params CreateOrderParams) (*CreateOrderResult, error) {
	const op = "order.create"

	// 1. Identity
	user := domain.UserFromContext(ctx)
	if user == nil {
		return nil, domain.WithOp(ErrIdentityRequired, op)
	}

	// 2. Structural validation
	place, err := s.validatePlacement(ctx, user, params)
	if err != nil {
		return nil, err
	}

	// 3. Payment method registry
	method, err := s.methods.Active(ctx, params.PaymentMethod)
	if err != nil {
		return nil, err
	}

	// 4. Table slot
	if params.PlaceType == domain.PlaceInPlace {
		if err := s.reservations.Check(ctx, *place.tableID, place.slot); err != nil {
			return nil, err
		}
	}

	// 5. Method id
	methodID := method.ID

	// 6. Source and pricing
	lines, cartID, couponRef, err := s.resolveSource(ctx, user, params)
	if err != nil {
		return nil, err
	}
	quote, err := s.pricing.Quote(ctx, user.ID, lines, couponRef)
	if err != nil {
		return nil, err
	}

	// 7. Delivery fee
	req := delivery.Request{
		PlaceType:    params.PlaceType,
		Subtotal:     quote.Total,
		FreeDelivery: quote.FreeDelivery,
	}
	if place.delivery != nil {
		req.Governorate = place.delivery.Governorate
		req.City = place.delivery.City
	}
	fee, err := s.delivery.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	total := quote.Total.Add(fee)

	// 8. Provider bounds
	strategy, err := s.payments.For(params.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if err := strategy.ValidateAmount(ctx, params.PaymentMethod, total); err != nil {
		return nil, err
	}

	// 9. Persist
	now := s.now()
	o := &domain.Order{
		ID:              uuid.New(),
		UserID:          user.ID,
		CartID:          cartID,
		Items:           quote.Items,
		Subtotal:        quote.Subtotal,
		ProductDiscount: quote.ProductDiscount,
		CouponDiscount:  quote.CouponDiscount,
		DeliveryFee:     fee,
		TotalPrice:      total,
		Currency:        s.currency(ctx, strategy.Provider()),
		PaymentMethodID: methodID,
		PaymentMethod:   params.PaymentMethod,
		Provider:        strategy.Provider(),
		PaymentStatus:   domain.PaymentPending,
		OrderStatus:     domain.OrderProcessing,
		PlaceType:       params.PlaceType,
		Delivery:        place.delivery,
		TableID:         place.tableID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if quote.Coupon != nil {
		id := quote.Coupon.ID
		o.CouponID = &id
	}
	if err := o.CheckInvariants(); err != nil {
		return nil, err
	}

	if o.CouponID != nil {
		if err := s.store.RedeemCoupon(ctx, *o.CouponID, user.ID); err != nil {
			if errors.Is(err, domain.ErrCouponUsageExceeded) {
				return nil, domain.WithOp(domain.ErrCouponUsageExceeded, op)
			}
			return nil, domain.Internal(err, op, "failed to redeem coupon")
		}
		s.metrics.Coupon("redeem")
	}
	if err := s.store.CreateOrder(ctx, o); err != nil {
		if o.CouponID != nil {
			if relErr := s.store.ReleaseCoupon(ctx, *o.CouponID, user.ID); relErr != nil {
				s.logger.ErrorContext(ctx, "failed to release coupon after order insert failure", "coupon_id", *o.CouponID, "error", relErr)
			}
		}
		return nil, domain.Internal(err, op, "failed to create order")
	}
	s.metrics.OrderCreated(string(o.PaymentMethod), string(o.PlaceType), o.TotalPrice.InexactFloat64())
	s.lifecycle.publish(ctx, events.SubjectOrderCreated, o, "")

	logger := s.logger.With("order_id", o.ID, "user_id", user.ID, "payment_method", o.PaymentMethod)
	logger.InfoContext(ctx, "order created",
		"total", o.TotalPrice.StringFixed(2),
		"place_type", o.PlaceType,
	)

	// 10. Reservation
	if o.PlaceType == domain.PlaceInPlace {
		r, err := s.reservations.Reserve(ctx, user.ID, *o.TableID, place.slot, &o.ID)
		if err != nil {
			if _, failErr := s.lifecycle.markFailed(ctx, o, "Table slot was taken", sourceCreate); failErr != nil {
				logger.ErrorContext(ctx, "failed to mark order failed after reservation conflict", "error", failErr)
			}
			return nil, err
		}
		o.ReservationID = &r.ID
		if err := s.store.SetReservation(ctx, o.ID, r.ID); err != nil {
			logger.ErrorContext(ctx, "failed to link reservation to order", "reservation_id", r.ID, "error", err)
		}
	}

	// 11. Payment
	started := s.now()
	res, err := strategy.CreatePayment(ctx, payment.Request{Order: o, Customer: user})
	s.metrics.GatewayCall(string(o.Provider), "create", started, err)

	// 12. Payment failure leaves the order Failed, not deleted.
	if err != nil {
		logger.ErrorContext(ctx, "payment creation failed", "error", err)
		telemetry.CaptureErrorFromContext(ctx, err, map[string]interface{}{
			"order_id": o.ID.String(),
			"provider": string(o.Provider),
		})
		if _, failErr := s.lifecycle.markFailed(ctx, o, domain.ErrorMessage(err), sourceCreate); failErr != nil {
			logger.ErrorContext(ctx, "failed to mark order failed", "error", failErr)
		}
		return nil, err
	}

	// 13. Success
	if res.Refs != (domain.PaymentRefs{}) {
		if err := s.store.SetPaymentRefs(ctx, o.ID, res.Refs); err != nil {
			return nil, domain.Internal(err, op, "failed to save payment references")
		}
		o.Payment = res.Refs
	}

	result := &CreateOrderResult{
		Order:       o,
		Provider:    o.Provider,
		RedirectURL: res.RedirectURL,
		Message:     "Order created, complete payment to confirm it",
	}
	if res.Settled {
		if _, err := s.lifecycle.markPaid(ctx, o, "", sourceCreate); err != nil {
			return nil, err
		}
		result.Message = "Order placed successfully"
	}
	return result, nil
}

// validatePlacement checks the place-type specific fields.
func (s *orderService) validatePlacement(ctx context.Context, user *domain.User, params CreateOrderParams) (*placement, error) {
	const op = "order.validatePlacement"
	if !params.PlaceType.Valid() {
		return nil, domain.WithOp(ErrInvalidPlaceType, op)
	}
	if params.PlaceType != domain.PlaceInPlace && params.TableID != nil {
		return nil, domain.WithOp(ErrTableNotAllowed, op)
	}

	p := &placement{}
	switch params.PlaceType {
	case domain.PlaceOnline:
		d := &domain.DeliveryDetails{}
		if params.AddressID != nil {
			addr, err := s.store.GetAddress(ctx, *params.AddressID)
			if err != nil {
				if domain.IsCode(err, domain.ENOTFOUND) {
					return nil, domain.WithOp(domain.ErrAddressNotFound, op)
				}
				return nil, domain.Internal(err, op, "failed to load address")
			}
			if addr.UserID != user.ID {
				return nil, domain.WithOp(domain.ErrAddressNotFound, op)
			}
			d.AddressID = addr.ID
			d.Governorate = addr.Governorate
			d.City = addr.City
			d.Street = addr.Street
			d.Phone = addr.Phone
		}
		if g := strings.TrimSpace(params.Governorate); g != "" {
			d.Governorate = g
		}
		if c := strings.TrimSpace(params.City); c != "" {
			d.City = c
		}
		if d.Governorate == "" || d.City == "" {
			return nil, domain.WithOp(ErrAddressRequired, op)
		}
		p.delivery = d
	case domain.PlaceInPlace:
		if params.TableID == nil || *params.TableID == uuid.Nil {
			return nil, domain.WithOp(ErrTableRequired, op)
		}
		id := *params.TableID
		p.tableID = &id
		p.slot = s.reservations.Slot(params.ReservationDate)
	}
	return p, nil
}

// resolveSource returns the lines to price, the source cart and the coupon.
func (s *orderService) resolveSource(ctx context.Context, user *domain.User, params CreateOrderParams) ([]pricing.Line, *uuid.UUID, pricing.CouponRef, error) {
	const op = "order.resolveSource"
	var ref pricing.CouponRef
	if params.CouponCode != "" {
		ref.Code = params.CouponCode
	}

	switch {
	case params.CartID != nil:
		cart, err := s.store.GetCart(ctx, *params.CartID)
		if err != nil {
			if domain.IsCode(err, domain.ENOTFOUND) {
				return nil, nil, ref, domain.WithOp(domain.ErrCartNotFound, op)
			}
			return nil, nil, ref, domain.Internal(err, op, "failed to load cart")
		}
		if cart.UserID != user.ID {
			return nil, nil, ref, domain.WithOp(ErrNotCartOwner, op)
		}
		if cart.Empty() {
			return nil, nil, ref, domain.WithOp(domain.ErrCartEmpty, op)
		}
		lines := make([]pricing.Line, 0, len(cart.Items))
		for _, it := range cart.Items {
			lines = append(lines, pricing.Line{ProductID: it.ProductID, Quantity: it.Quantity})
		}
		if ref.IsZero() && cart.CouponID != nil {
			id := *cart.CouponID
			ref.ID = &id
		}
		id := cart.ID
		return lines, &id, ref, nil

	case len(params.Items) > 0:
		for _, l := range params.Items {
			if l.Quantity < 1 {
				return nil, nil, ref, domain.WithOp(ErrInvalidQuantity, op)
			}
		}
		return params.Items, nil, ref, nil
	}
	return nil, nil, ref, domain.WithOp(ErrSourceRequired, op)
}

// currency returns the order currency: the provider's for gateways, the
// first active gateway's for cash.
func (s *orderService) currency(ctx context.Context, p domain.Provider) string {
	providers := domain.Gateways
	if p != domain.ProviderInternal {
		providers = []domain.Provider{p}
	}
	for _, gp := range providers {
		if cfg, err := s.configs.Get(ctx, gp); err == nil && cfg.Currency != "" {
			return cfg.Currency
		}
	}
	return "EGP"
}

// load fetches an order and checks the caller may act on it.
func (s *orderService) load(ctx context.Context, orderID uuid.UUID, op string) (*domain.Order, *domain.User, error) {
	user := domain.UserFromContext(ctx)
	if user == nil {
		return nil, nil, domain.WithOp(ErrIdentityRequired, op)
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			return nil, nil, domain.WithOp(domain.ErrOrderNotFound, op)
		}
		return nil, nil, domain.Internal(err, op, "failed to load order")
	}
	if o.UserID != user.ID && !user.IsAdmin() {
		return nil, nil, domain.WithOp(ErrNotOrderOwner, op)
	}
	return o, user, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	o, _, err := s.load(ctx, orderID, "order.get")
	return o, err
}

func (s *orderService) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	user := domain.UserFromContext(ctx)
	if user == nil {
		return nil, domain.WithOp(ErrIdentityRequired, "order.list")
	}
	orders, err := s.store.ListOrdersByUser(ctx, user.ID)
	if err != nil {
		return nil, domain.Internal(err, "order.list", "failed to list orders")
	}
	return orders, nil
}

func (s *orderService) GetPaymentStatus(ctx context.Context, orderID uuid.UUID) (*PaymentStatusView, error) {
	o, _, err := s.load(ctx, orderID, "order.paymentStatus")
	if err != nil {
		return nil, err
	}
	v := &PaymentStatusView{
		OrderID:         o.ID,
		PaymentStatus:   o.PaymentStatus,
		OrderStatus:     o.OrderStatus,
		PaymentMethod:   o.PaymentMethod,
		Provider:        o.Provider,
		TotalPrice:      o.TotalPrice,
		Currency:        o.Currency,
		PaidAt:          o.PaidAt,
		AwaitingCapture: o.PaymentStatus == domain.PaymentPending && o.Payment.Authorized,
		Refund:          o.Refund,
		Details:         map[string]string{},
	}
	put := func(k, val string) {
		if val != "" {
			v.Details[k] = val
		}
	}
	switch o.Provider {
	case domain.ProviderStripe:
		put("sessionId", o.Payment.StripeSessionID)
		put("paymentIntentId", o.Payment.StripePaymentIntentID)
	case domain.ProviderPaymob:
		put("correlationId", o.Payment.PaymobCorrelationID)
		put("intentionId", o.Payment.PaymobIntentionID)
		put("paymobOrderId", o.Payment.PaymobOrderID)
	}
	put("transactionId", o.Payment.TransactionID)
	return v, nil
}

// CancelOrder cancels an order. Pending payments are voided first; completed
// gateway payments are refunded in full when the provider auto-refunds on
// cancel, otherwise they are cancelled without a refund.
func (s *orderService) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (*domain.Order, error) {
	const op = "order.cancel"
	o, _, err := s.load(ctx, orderID, op)
	if err != nil {
		return nil, err
	}
	if !o.Cancellable() {
		return nil, domain.WithOp(domain.ErrOrderNotCancellable, op)
	}
	if reason == "" {
		reason = "Cancelled by customer"
	}
	strategy, err := s.payments.For(o.PaymentMethod)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("order_id", o.ID, "provider", o.Provider)

	update := domain.StatusUpdate{
		From:               []domain.PaymentStatus{o.PaymentStatus},
		FromOrder:          []domain.OrderStatus{o.OrderStatus},
		PaymentStatus:      domain.PaymentCancelled,
		OrderStatus:        domain.OrderCancelled,
		CancellationReason: reason,
	}
	action := "none"

	switch {
	case o.PaymentStatus == domain.PaymentPending:
		started := s.now()
		err := strategy.Void(ctx, o)
		s.metrics.GatewayCall(string(o.Provider), "void", started, err)
		if err != nil {
			return nil, err
		}
		action = "void"

	case o.Provider == domain.ProviderInternal:
		// Cash has nothing to reverse.

	default:
		cfg, err := s.configs.Get(ctx, o.Provider)
		if err != nil {
			return nil, err
		}
		if cfg.AutoRefundOnCancel {
			amount := o.Refundable()
			started := s.now()
			res, err := strategy.Refund(ctx, o, amount, reason)
			s.metrics.GatewayCall(string(o.Provider), "refund", started, err)
			if err != nil {
				return nil, err
			}
			update.PaymentStatus = domain.PaymentRefunded
			update.Refund = &domain.RefundDetails{
				RefundID: res.RefundID,
				Amount:   o.RefundedAmount().Add(amount),
				Date:     s.now(),
				Reason:   reason,
				Status:   res.Status,
			}
			s.metrics.Refund(string(o.Provider), o.Currency, false, amount.InexactFloat64())
			action = "refund"
		} else {
			logger.WarnContext(ctx, "paid order cancelled without refund; auto refund is disabled for this provider")
		}
	}

	wasPending := o.PaymentStatus == domain.PaymentPending
	applied, err := s.lifecycle.apply(ctx, o, update, sourceCancel)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, domain.WithOp(domain.ErrOrderStateChanged, op)
	}

	if wasPending {
		s.lifecycle.releaseHolds(ctx, o)
	} else {
		s.lifecycle.cancelReservation(ctx, o)
	}
	s.metrics.Cancelled(string(o.Provider), action)
	s.lifecycle.publish(ctx, events.SubjectOrderCancelled, o, reason)
	logger.InfoContext(ctx, "order cancelled", "action", action, "payment_status", o.PaymentStatus)
	return o, nil
}

// RefundOrder refunds amount, or the whole remainder, of a completed
// payment. Only admins move money back.
func (s *orderService) RefundOrder(ctx context.Context, orderID uuid.UUID, params RefundParams) (*RefundSummary, error) {
	const op = "order.refund"
	o, user, err := s.load(ctx, orderID, op)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin() {
		return nil, domain.WithOp(ErrAdminRequired, op)
	}
	if o.PaymentStatus != domain.PaymentCompleted && o.PaymentStatus != domain.PaymentPartiallyRefunded {
		return nil, domain.WithOp(domain.ErrOrderNotRefundable, op)
	}

	remaining := o.Refundable()
	amount := remaining
	if params.Amount != nil {
		amount = *params.Amount
	}
	if !amount.IsPositive() {
		return nil, domain.WithOp(ErrInvalidRefundAmount, op)
	}
	if amount.GreaterThan(remaining) {
		return nil, &domain.Error{
			Code:    domain.EINVALID,
			Op:      op,
			Message: fmt.Sprintf("Refund amount exceeds the refundable total of %s", remaining.StringFixed(2)),
			Err:     domain.ErrRefundExceedsTotal,
		}
	}

	strategy, err := s.payments.For(o.PaymentMethod)
	if err != nil {
		return nil, err
	}
	started := s.now()
	res, err := strategy.Refund(ctx, o, amount, params.Reason)
	s.metrics.GatewayCall(string(o.Provider), "refund", started, err)
	if err != nil {
		return nil, err
	}

	refunded := o.RefundedAmount().Add(amount)
	status := domain.PaymentPartiallyRefunded
	if refunded.GreaterThanOrEqual(o.TotalPrice) {
		status = domain.PaymentRefunded
	}
	applied, err := s.lifecycle.apply(ctx, o, domain.StatusUpdate{
		From:          []domain.PaymentStatus{o.PaymentStatus},
		FromOrder:     []domain.OrderStatus{o.OrderStatus},
		PaymentStatus: status,
		OrderStatus:   o.OrderStatus,
		Refund: &domain.RefundDetails{
			RefundID: res.RefundID,
			Amount:   refunded,
			Date:     s.now(),
			Reason:   params.Reason,
			Status:   res.Status,
		},
	}, sourceRefund)
	if err != nil {
		return nil, err
	}
	if !applied {
		// The gateway refund went through; the order changed under us.
		s.logger.ErrorContext(ctx, "refund issued but order status changed concurrently",
			"order_id", o.ID,
			"refund_id", res.RefundID,
			"amount", amount.StringFixed(2),
		)
		return nil, domain.WithOp(domain.ErrOrderStateChanged, op)
	}

	s.metrics.Refund(string(o.Provider), o.Currency, status == domain.PaymentPartiallyRefunded, amount.InexactFloat64())
	s.lifecycle.publish(ctx, events.SubjectOrderRefunded, o, params.Reason)
	s.logger.InfoContext(ctx, "order refunded",
		"order_id", o.ID,
		"refund_id", res.RefundID,
		"amount", amount.StringFixed(2),
		"payment_status", status,
	)

	return &RefundSummary{
		OrderID:       o.ID,
		RefundID:      res.RefundID,
		Amount:        amount,
		TotalRefunded: refunded,
		Remaining:     o.TotalPrice.Sub(refunded),
		Status:        res.Status,
		PaymentStatus: status,
	}, nil
}

// CaptureOrder captures the full amount of an authorized payment. Admin only.
func (s *orderService) CaptureOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	const op = "order.capture"
	o, user, err := s.load(ctx, orderID, op)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin() {
		return nil, domain.WithOp(ErrAdminRequired, op)
	}
	strategy, err := s.payments.For(o.PaymentMethod)
	if err != nil {
		return nil, err
	}
	capturer, ok := strategy.(payment.Capturer)
	if !ok {
		return nil, domain.WithOp(domain.ErrCaptureNotSupported, op)
	}
	if o.PaymentStatus != domain.PaymentPending || !o.Payment.Authorized {
		return nil, domain.WithOp(domain.ErrNothingToCapture, op)
	}

	started := s.now()
	res, err := capturer.Capture(ctx, o)
	s.metrics.GatewayCall(string(o.Provider), "capture", started, err)
	if err != nil {
		return nil, err
	}

	applied, err := s.lifecycle.markPaid(ctx, o, res.TransactionID, sourceCapture)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, domain.WithOp(domain.ErrOrderStateChanged, op)
	}
	return o, nil
}

func (s *orderService) AdvanceStatus(ctx context.Context, orderID uuid.UUID, next domain.OrderStatus) (*domain.Order, error) {
	const op = "order.advance"
	o, user, err := s.load(ctx, orderID, op)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin() {
		return nil, domain.WithOp(ErrAdminRequired, op)
	}
	if !o.CanAdvanceTo(next) {
		return nil, domain.Errorf(domain.ECONFLICT, op, "Order cannot move from %s to %s", o.OrderStatus, next)
	}
	applied, err := s.lifecycle.apply(ctx, o, domain.StatusUpdate{
		From:          []domain.PaymentStatus{domain.PaymentCompleted},
		FromOrder:     []domain.OrderStatus{o.OrderStatus},
		PaymentStatus: domain.PaymentCompleted,
		OrderStatus:   next,
	}, sourceAdmin)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, domain.WithOp(domain.ErrOrderStateChanged, op)
	}
	s.metrics.Fulfilment(string(next))
	s.lifecycle.publish(ctx, events.SubjectOrderStatus, o, "")
	return o, nil
}

// ExpireStalePending fails Pending orders whose payment never arrived. An
// order whose gateway session cannot be voided is left for the next sweep so
// a late payment is never orphaned, and an authorized hold is never failed:
// it waits for an admin to capture or cancel it.
func (s *orderService) ExpireStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	orders, err := s.store.ListStalePendingOrders(ctx, cutoff, limit)
	if err != nil {
		return 0, domain.Internal(err, "order.expireStale", "failed to list stale orders")
	}

	expired := 0
	for _, o := range orders {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		logger := s.logger.With("order_id", o.ID, "provider", o.Provider)
		if o.Payment.Authorized {
			logger.WarnContext(ctx, "stale order holds an authorized payment, leaving it for capture or cancel")
			s.metrics.Swept("held")
			continue
		}

		strategy, err := s.payments.For(o.PaymentMethod)
		if err != nil {
			logger.ErrorContext(ctx, "stale order has unknown payment method", "error", err)
			s.metrics.Swept("error")
			continue
		}
		if err := strategy.Void(ctx, o); err != nil && !errors.Is(err, domain.ErrVoidNotAllowed) && !errors.Is(err, domain.ErrGatewayNotConfigured) {
			logger.WarnContext(ctx, "could not void stale order, will retry", "error", err)
			s.metrics.Swept("error")
			continue
		}

		applied, err := s.lifecycle.markFailed(ctx, o, "Payment window expired", sourceSweeper)
		if err != nil {
			logger.ErrorContext(ctx, "failed to expire stale order", "error", err)
			s.metrics.Swept("error")
			continue
		}
		if !applied {
			s.metrics.Swept("skipped")
			continue
		}
		s.metrics.Swept("failed")
		expired++
	}
	return expired, nil
}
