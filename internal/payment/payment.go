// Package payment implements the payment strategies selected by payment
// method: hosted card checkout, the regional aggregator and cash on delivery.
//
// Strategies talk to gateways and return references; they never write order
// state. The order service persists refs and drives status transitions.
package payment

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xhaelri/qitchen/internal/billing"
	"github.com/xhaelri/qitchen/internal/domain"
)

// Request is what a strategy needs to start a payment.
type Request struct {
	Order    *domain.Order
	Customer *domain.User
}

// CreateResult is the outcome of CreatePayment.
type CreateResult struct {
	// RedirectURL is where the client completes payment; empty for COD.
	RedirectURL string

	// Refs are the gateway identifiers to persist on the order.
	Refs domain.PaymentRefs

	// Settled is true when no asynchronous confirmation will follow.
	Settled bool
}

// RefundResult is the outcome of Refund.
type RefundResult struct {
	RefundID string
	Amount   decimal.Decimal
	Status   string
}

// CaptureResult is the outcome of Capture.
type CaptureResult struct {
	TransactionID string
	Amount        decimal.Decimal
}

// Strategy is one way of taking payment.
type Strategy interface {
	Provider() domain.Provider

	// ValidateAmount checks total against the provider's order bounds.
	ValidateAmount(ctx context.Context, method domain.PaymentMethodName, total decimal.Decimal) error

	// CreatePayment starts a payment for a persisted Pending order.
	CreatePayment(ctx context.Context, req Request) (*CreateResult, error)

	// Refund returns amount of a completed payment to the customer.
	Refund(ctx context.Context, o *domain.Order, amount decimal.Decimal, reason string) (*RefundResult, error)

	// Void abandons a payment that has not completed.
	Void(ctx context.Context, o *domain.Order) error
}

// Capturer is implemented by strategies that support auth-then-capture.
type Capturer interface {
	Capture(ctx context.Context, o *domain.Order) (*CaptureResult, error)
}

// URLs are the absolute callback and redirect targets given to gateways.
type URLs struct {
	// FrontendURL receives the customer after checkout.
	FrontendURL string

	// BaseURL is this service's public URL, for gateway notifications.
	BaseURL string
}

func (u URLs) success(orderID string) string {
	return u.FrontendURL + "/payment/success?orderId=" + orderID
}

func (u URLs) cancel(orderID string) string {
	return u.FrontendURL + "/payment/cancel?orderId=" + orderID
}

// Result is the frontend page the customer lands on after an aggregator
// checkout. An unknown order leaves the query empty.
func (u URLs) Result(orderID string, success bool) string {
	if success {
		return u.success(orderID)
	}
	return u.FrontendURL + "/payment/failed?orderId=" + orderID
}

func (u URLs) aggregatorNotification() string {
	return u.BaseURL + "/webhooks/aggregator"
}

func (u URLs) aggregatorRedirect() string {
	return u.BaseURL + "/webhooks/aggregator/redirect"
}

// Deps wires the strategies.
type Deps struct {
	Configs *Configs
	Stripe  billing.StripeGateway
	Paymob  billing.PaymobGateway
	URLs    URLs
	Logger  *slog.Logger
	Now     func() time.Time
}

// Selector picks the strategy for a payment method.
type Selector struct {
	strategies map[domain.Provider]Strategy
}

// NewSelector builds the three strategies from deps.
func NewSelector(d Deps) *Selector {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return NewSelectorWith(
		NewCardStrategy(d),
		NewAggregatorStrategy(d),
		NewCODStrategy(d),
	)
}

// NewSelectorWith builds a selector from explicit strategies, keyed by provider.
func NewSelectorWith(strategies ...Strategy) *Selector {
	s := &Selector{strategies: make(map[domain.Provider]Strategy, len(strategies))}
	for _, st := range strategies {
		s.strategies[st.Provider()] = st
	}
	return s
}

// For returns the strategy that settles method.
func (s *Selector) For(method domain.PaymentMethodName) (Strategy, error) {
	st, ok := s.strategies[method.Provider()]
	if !ok {
		return nil, domain.WithOp(domain.ErrUnsupportedPaymentMethod, "payment.select")
	}
	return st, nil
}
