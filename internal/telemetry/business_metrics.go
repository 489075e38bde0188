package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics holds Prometheus metrics for order and payment observability.
// Every recording method is safe to call on a nil receiver so services can run
// without metrics in tests.
type BusinessMetrics struct {
	// Orders
	OrdersCreated     *prometheus.CounterVec
	OrderValue        *prometheus.HistogramVec
	OrderTransitions  *prometheus.CounterVec
	OrdersCancelled   *prometheus.CounterVec
	OrderFulfillment  *prometheus.CounterVec
	StaleOrdersSwept  *prometheus.CounterVec
	CouponRedemptions *prometheus.CounterVec

	// Payments
	PaymentAttempts  *prometheus.CounterVec
	PaymentSucceeded *prometheus.CounterVec
	PaymentFailed    *prometheus.CounterVec
	RefundsIssued    *prometheus.CounterVec
	RefundAmount     *prometheus.CounterVec

	// Webhooks
	WebhookReceived  *prometheus.CounterVec
	WebhookProcessed *prometheus.CounterVec
	WebhookFailed    *prometheus.CounterVec
	WebhookLatency   *prometheus.HistogramVec

	// Reservations
	ReservationsCreated  *prometheus.CounterVec
	ReservationConflicts prometheus.Counter

	// Cart
	CartUpdated *prometheus.CounterVec

	// External API performance
	GatewayLatency *prometheus.HistogramVec
	GatewayErrors  *prometheus.CounterVec
}

// NewBusinessMetrics creates business metrics registered on reg. A nil reg
// registers on the default registry.
func NewBusinessMetrics(namespace string, reg prometheus.Registerer) *BusinessMetrics {
	if namespace == "" {
		namespace = "qitchen"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	subsystem := "business"

	return &BusinessMetrics{
		// =======================================================================
		// Orders
		// =======================================================================
		OrdersCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_created_total",
				Help:      "Total orders persisted",
			},
			[]string{"payment_method", "place_type"},
		),
		OrderValue: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_value",
				Help:      "Order total in the order currency",
				Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
			},
			[]string{"payment_method"},
		),
		OrderTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_transitions_total",
				Help:      "Applied payment status transitions by source",
			},
			[]string{"payment_status", "source"}, // source: create, webhook, cancel, refund, capture, sweeper
		),
		OrdersCancelled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_cancelled_total",
				Help:      "Cancelled orders by compensating action",
			},
			[]string{"provider", "action"}, // action: void, refund, none
		),
		OrderFulfillment: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_fulfillment_total",
				Help:      "Fulfilment status changes",
			},
			[]string{"order_status"},
		),
		StaleOrdersSwept: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "stale_orders_swept_total",
				Help:      "Pending orders expired by the sweeper",
			},
			[]string{"outcome"}, // outcome: failed, skipped, error
		),
		CouponRedemptions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "coupon_redemptions_total",
				Help:      "Coupon ledger changes",
			},
			[]string{"action"}, // action: redeem, release
		),

		// =======================================================================
		// Payments
		// =======================================================================
		PaymentAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_attempts_total",
				Help:      "Total payment attempts",
			},
			[]string{"payment_method"},
		),
		PaymentSucceeded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_succeeded_total",
				Help:      "Total successful payments",
			},
			[]string{"provider"},
		),
		PaymentFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_failed_total",
				Help:      "Total failed payments",
			},
			[]string{"provider", "failure_reason"},
		),
		RefundsIssued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "refunds_issued_total",
				Help:      "Total refunds issued",
			},
			[]string{"provider", "kind"}, // kind: full, partial
		),
		RefundAmount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "refund_amount_total",
				Help:      "Total amount refunded",
			},
			[]string{"provider", "currency"},
		),

		// =======================================================================
		// Webhooks
		// =======================================================================
		WebhookReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhooks_received_total",
				Help:      "Total webhooks received",
			},
			[]string{"provider", "event_type"},
		),
		WebhookProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhooks_processed_total",
				Help:      "Total webhooks processed by outcome",
			},
			[]string{"provider", "outcome"}, // outcome: applied, duplicate, ignored
		),
		WebhookFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhooks_failed_total",
				Help:      "Total webhook processing failures",
			},
			[]string{"provider", "reason"}, // reason: signature, processing
		),
		WebhookLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_processing_seconds",
				Help:      "Webhook processing duration",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"provider"},
		),

		// =======================================================================
		// Reservations
		// =======================================================================
		ReservationsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reservations_created_total",
				Help:      "Total reservations created",
			},
			[]string{"source"}, // source: direct, order
		),
		ReservationConflicts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reservation_conflicts_total",
				Help:      "Reservation attempts rejected because the slot was taken",
			},
		),

		// =======================================================================
		// Cart
		// =======================================================================
		CartUpdated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cart_updates_total",
				Help:      "Cart mutations",
			},
			[]string{"action"}, // action: add, set, remove, coupon, clear
		),

		// =======================================================================
		// External API Performance
		// =======================================================================
		GatewayLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "gateway_api_duration_seconds",
				Help:      "Payment gateway call duration (helps differentiate app slowness from gateway issues)",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider", "operation"}, // operation: create, refund, void, capture
		),
		GatewayErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "gateway_api_errors_total",
				Help:      "Payment gateway call failures",
			},
			[]string{"provider", "operation"},
		),
	}
}

// OrderCreated records a persisted order.
func (m *BusinessMetrics) OrderCreated(method, placeType string, total float64) {
	if m == nil {
		return
	}
	m.OrdersCreated.WithLabelValues(method, placeType).Inc()
	m.OrderValue.WithLabelValues(method).Observe(total)
	m.PaymentAttempts.WithLabelValues(method).Inc()
}

// Transition records an applied payment status change.
func (m *BusinessMetrics) Transition(paymentStatus, source string) {
	if m == nil {
		return
	}
	m.OrderTransitions.WithLabelValues(paymentStatus, source).Inc()
}

// PaymentOutcome records a terminal payment result for provider.
func (m *BusinessMetrics) PaymentOutcome(provider string, succeeded bool, reason string) {
	if m == nil {
		return
	}
	if succeeded {
		m.PaymentSucceeded.WithLabelValues(provider).Inc()
		return
	}
	m.PaymentFailed.WithLabelValues(provider, reason).Inc()
}

// Refund records an issued refund.
func (m *BusinessMetrics) Refund(provider, currency string, partial bool, amount float64) {
	if m == nil {
		return
	}
	kind := "full"
	if partial {
		kind = "partial"
	}
	m.RefundsIssued.WithLabelValues(provider, kind).Inc()
	m.RefundAmount.WithLabelValues(provider, currency).Add(amount)
}

// Cancelled records a cancellation and its compensating action.
func (m *BusinessMetrics) Cancelled(provider, action string) {
	if m == nil {
		return
	}
	m.OrdersCancelled.WithLabelValues(provider, action).Inc()
}

// Fulfilment records an admin status change.
func (m *BusinessMetrics) Fulfilment(orderStatus string) {
	if m == nil {
		return
	}
	m.OrderFulfillment.WithLabelValues(orderStatus).Inc()
}

// Swept records one sweeper decision.
func (m *BusinessMetrics) Swept(outcome string) {
	if m == nil {
		return
	}
	m.StaleOrdersSwept.WithLabelValues(outcome).Inc()
}

// Coupon records a coupon ledger change.
func (m *BusinessMetrics) Coupon(action string) {
	if m == nil {
		return
	}
	m.CouponRedemptions.WithLabelValues(action).Inc()
}

// Webhook records a webhook outcome and how long it took.
func (m *BusinessMetrics) Webhook(provider, eventType, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.WebhookReceived.WithLabelValues(provider, eventType).Inc()
	m.WebhookProcessed.WithLabelValues(provider, outcome).Inc()
	m.WebhookLatency.WithLabelValues(provider).Observe(time.Since(started).Seconds())
}

// WebhookError records a webhook that was rejected or failed.
func (m *BusinessMetrics) WebhookError(provider, reason string) {
	if m == nil {
		return
	}
	m.WebhookFailed.WithLabelValues(provider, reason).Inc()
}

// Reservation records a reservation attempt; conflict marks a taken slot.
func (m *BusinessMetrics) Reservation(source string, conflict bool) {
	if m == nil {
		return
	}
	if conflict {
		m.ReservationConflicts.Inc()
		return
	}
	m.ReservationsCreated.WithLabelValues(source).Inc()
}

// Cart records a cart mutation.
func (m *BusinessMetrics) Cart(action string) {
	if m == nil {
		return
	}
	m.CartUpdated.WithLabelValues(action).Inc()
}

// GatewayCall records the duration of a gateway call and whether it failed.
func (m *BusinessMetrics) GatewayCall(provider, operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.GatewayLatency.WithLabelValues(provider, operation).Observe(time.Since(started).Seconds())
	if err != nil {
		m.GatewayErrors.WithLabelValues(provider, operation).Inc()
	}
}
