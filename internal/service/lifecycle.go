package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/xhaelri/qitchen/internal/domain"
	"github.com/xhaelri/qitchen/internal/events"
	"github.com/xhaelri/qitchen/internal/telemetry"
)

// Transition sources, used as metric labels and in logs.
const (
	sourceCreate  = "create"
	sourceWebhook = "webhook"
	sourceCancel  = "cancel"
	sourceRefund  = "refund"
	sourceCapture = "capture"
	sourceSweeper = "sweeper"
	sourceAdmin   = "admin"
)

// lifecycle applies guarded status transitions and their side effects. Both
// the order service and the webhook reconciler drive orders through it, so
// every path into Completed or Failed honours the same Pending guard.
type lifecycle struct {
	store   domain.Store
	events  events.Publisher
	metrics *telemetry.BusinessMetrics
	logger  *slog.Logger
	now     func() time.Time
}

// apply runs a conditional status update. It reports false when the order
// had already left the guarded state; o is updated in place when it applied.
func (l *lifecycle) apply(ctx context.Context, o *domain.Order, u domain.StatusUpdate, source string) (bool, error) {
	ok, err := l.store.UpdateStatus(ctx, o.ID, u)
	if err != nil {
		return false, domain.Internal(err, "order.transition", "failed to update order status")
	}
	if !ok {
		l.logger.InfoContext(ctx, "order transition skipped",
			"order_id", o.ID,
			"payment_status", o.PaymentStatus,
			"target", u.PaymentStatus,
			"source", source,
		)
		return false, nil
	}
	u.Apply(o, l.now())
	l.metrics.Transition(string(u.PaymentStatus), source)
	return true, nil
}

// markPaid moves a Pending order to Completed/Paid and clears the cart it
// came from. The cart is cleared only on this transition.
func (l *lifecycle) markPaid(ctx context.Context, o *domain.Order, transactionID, source string) (bool, error) {
	now := l.now()
	applied, err := l.apply(ctx, o, domain.StatusUpdate{
		From:          []domain.PaymentStatus{domain.PaymentPending},
		PaymentStatus: domain.PaymentCompleted,
		OrderStatus:   domain.OrderPaid,
		TransactionID: transactionID,
		PaidAt:        &now,
	}, source)
	if err != nil || !applied {
		return applied, err
	}

	l.clearCart(ctx, o)
	l.metrics.PaymentOutcome(string(o.Provider), true, "")
	l.publish(ctx, events.SubjectOrderPaid, o, "")
	l.logger.InfoContext(ctx, "order paid",
		"order_id", o.ID,
		"provider", o.Provider,
		"transaction_id", transactionID,
		"source", source,
	)
	return true, nil
}

// markFailed moves a Pending order to Failed/Failed and gives back what the
// order held: its coupon redemption and its reservation.
func (l *lifecycle) markFailed(ctx context.Context, o *domain.Order, reason, source string) (bool, error) {
	applied, err := l.apply(ctx, o, domain.StatusUpdate{
		From:          []domain.PaymentStatus{domain.PaymentPending},
		PaymentStatus: domain.PaymentFailed,
		OrderStatus:   domain.OrderFailed,
		FailureReason: reason,
	}, source)
	if err != nil || !applied {
		return applied, err
	}

	l.releaseHolds(ctx, o)
	l.metrics.PaymentOutcome(string(o.Provider), false, source)
	l.publish(ctx, events.SubjectOrderFailed, o, reason)
	l.logger.WarnContext(ctx, "order failed",
		"order_id", o.ID,
		"provider", o.Provider,
		"reason", reason,
		"source", source,
	)
	return true, nil
}

// releaseHolds returns the coupon use and cancels the reservation of an
// order that will never be paid. Failures are logged.
func (l *lifecycle) releaseHolds(ctx context.Context, o *domain.Order) {
	if o.CouponID != nil {
		if err := l.store.ReleaseCoupon(ctx, *o.CouponID, o.UserID); err != nil {
			l.logger.ErrorContext(ctx, "failed to release coupon", "order_id", o.ID, "coupon_id", *o.CouponID, "error", err)
		} else {
			l.metrics.Coupon("release")
		}
	}
	l.cancelReservation(ctx, o)
}

func (l *lifecycle) cancelReservation(ctx context.Context, o *domain.Order) {
	if o.ReservationID == nil {
		return
	}
	if err := l.store.UpdateReservationStatus(ctx, *o.ReservationID, domain.ReservationCancelled); err != nil {
		l.logger.ErrorContext(ctx, "failed to cancel reservation", "order_id", o.ID, "reservation_id", *o.ReservationID, "error", err)
	}
}

// clearCart empties the order's source cart. A failure here never undoes
// the payment transition.
func (l *lifecycle) clearCart(ctx context.Context, o *domain.Order) {
	if o.CartID == nil {
		return
	}
	if err := l.store.ClearCart(ctx, *o.CartID); err != nil {
		l.logger.ErrorContext(ctx, "failed to clear cart after payment", "order_id", o.ID, "cart_id", *o.CartID, "error", err)
		return
	}
	l.metrics.Cart("clear")
}

func (l *lifecycle) publish(ctx context.Context, subject string, o *domain.Order, reason string) {
	if err := l.events.Publish(ctx, subject, events.NewOrderEvent(o, reason)); err != nil {
		l.logger.WarnContext(ctx, "failed to publish order event", "order_id", o.ID, "subject", subject, "error", err)
	}
}
