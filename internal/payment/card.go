package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xhaelri/qitchen/internal/billing"
	"github.com/xhaelri/qitchen/internal/domain"
)

const defaultSessionExpiry = 60 * time.Minute

// CardStrategy takes card payments through Stripe hosted checkout.
type CardStrategy struct {
	configs *Configs
	gateway billing.StripeGateway
	urls    URLs
	logger  *slog.Logger
	now     func() time.Time
}

// NewCardStrategy creates the card strategy.
func NewCardStrategy(d Deps) *CardStrategy {
	return &CardStrategy{configs: d.Configs, gateway: d.Stripe, urls: d.URLs, logger: d.Logger, now: d.Now}
}

func (s *CardStrategy) Provider() domain.Provider { return domain.ProviderStripe }

// ValidateAmount checks total against the Stripe config bounds.
func (s *CardStrategy) ValidateAmount(ctx context.Context, method domain.PaymentMethodName, total decimal.Decimal) error {
	cfg, err := s.configs.Get(ctx, domain.ProviderStripe)
	if err != nil {
		return err
	}
	return checkGatewayAmount(cfg, total)
}

// CreatePayment opens a checkout session for the order.
func (s *CardStrategy) CreatePayment(ctx context.Context, req Request) (*CreateResult, error) {
	const op = "payment.card.create"
	if s.gateway == nil {
		return nil, domain.WithOp(domain.ErrGatewayNotConfigured, op)
	}
	cfg, err := s.configs.Get(ctx, domain.ProviderStripe)
	if err != nil {
		return nil, err
	}

	o := req.Order
	orderID := o.ID.String()
	params := billing.CheckoutSessionParams{
		Currency:          strings.ToLower(cfg.Currency),
		SuccessURL:        s.urls.success(orderID),
		CancelURL:         s.urls.cancel(orderID),
		ClientReferenceID: orderID,
		Metadata: map[string]string{
			"orderId": orderID,
			"userId":  o.UserID.String(),
		},
		IdempotencyKey: "checkout-" + orderID,
	}
	for _, l := range gatewayLines(o) {
		params.LineItems = append(params.LineItems, billing.LineItem{Name: l.name, UnitAmount: l.unit, Quantity: l.quantity})
	}
	if req.Customer != nil {
		params.CustomerEmail = req.Customer.Email
	}

	expiry := defaultSessionExpiry
	if opts := cfg.Stripe; opts != nil {
		params.PaymentMethodTypes = opts.PaymentMethodTypes
		params.StatementDescriptor = opts.StatementDescriptor
		params.ManualCapture = opts.ManualCapture
		params.SaveCards = opts.SaveCards
		params.AllowPromotionCodes = opts.AllowPromotionCodes
		params.AutomaticTax = opts.AutomaticTax
		if opts.SessionExpiryMinutes > 0 {
			expiry = time.Duration(opts.SessionExpiryMinutes) * time.Minute
		}
	}
	params.ExpiresAt = s.now().Add(expiry)

	sess, err := s.gateway.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, domain.Gateway(err, op, "Failed to create checkout session")
	}

	s.logger.InfoContext(ctx, "checkout session created",
		"order_id", orderID,
		"session_id", sess.ID,
		"expires_at", params.ExpiresAt,
	)

	return &CreateResult{
		RedirectURL: sess.URL,
		Refs:        domain.PaymentRefs{StripeSessionID: sess.ID},
	}, nil
}

// Refund refunds amount of the session's payment intent.
func (s *CardStrategy) Refund(ctx context.Context, o *domain.Order, amount decimal.Decimal, reason string) (*RefundResult, error) {
	const op = "payment.card.refund"
	if s.gateway == nil {
		return nil, domain.WithOp(domain.ErrGatewayNotConfigured, op)
	}
	cfg, err := s.configs.Get(ctx, domain.ProviderStripe)
	if err != nil {
		return nil, err
	}
	if err := CheckRefundPolicy(cfg, o, amount, s.now()); err != nil {
		return nil, err
	}

	intentID := o.Payment.StripePaymentIntentID
	if intentID == "" {
		if o.Payment.StripeSessionID == "" {
			return nil, domain.Errorf(domain.ECONFLICT, op, "order has no checkout session")
		}
		sess, err := s.gateway.GetCheckoutSession(ctx, o.Payment.StripeSessionID)
		if err != nil {
			return nil, domain.Gateway(err, op, "Failed to load checkout session")
		}
		intentID = sess.PaymentIntentID
	}
	if intentID == "" {
		return nil, domain.Errorf(domain.ECONFLICT, op, "checkout session has no payment to refund")
	}

	cents := billing.ToMinorUnits(amount)
	r, err := s.gateway.CreateRefund(ctx, billing.RefundParams{
		PaymentIntentID: intentID,
		AmountCents:     cents,
		Reason:          reason,
		Metadata:        map[string]string{"orderId": o.ID.String()},
		IdempotencyKey:  fmt.Sprintf("refund-%s-%d-%d", o.ID, billing.ToMinorUnits(o.RefundedAmount()), cents),
	})
	if err != nil {
		return nil, domain.Gateway(err, op, "Refund was rejected by the card processor")
	}

	return &RefundResult{RefundID: r.ID, Amount: billing.FromMinorUnits(r.AmountCents), Status: r.Status}, nil
}

// Capture charges a card authorization taken with manual capture enabled.
func (s *CardStrategy) Capture(ctx context.Context, o *domain.Order) (*CaptureResult, error) {
	const op = "payment.card.capture"
	if s.gateway == nil {
		return nil, domain.WithOp(domain.ErrGatewayNotConfigured, op)
	}
	if !o.Payment.Authorized || o.Payment.StripePaymentIntentID == "" {
		return nil, domain.WithOp(domain.ErrNothingToCapture, op)
	}
	if _, err := s.configs.Get(ctx, domain.ProviderStripe); err != nil {
		return nil, err
	}

	pi, err := s.gateway.CapturePaymentIntent(ctx, billing.CaptureParams{
		PaymentIntentID: o.Payment.StripePaymentIntentID,
		AmountCents:     billing.ToMinorUnits(o.TotalPrice),
		IdempotencyKey:  "capture-" + o.ID.String(),
	})
	if err != nil {
		return nil, domain.Gateway(err, op, "Capture was rejected by the card processor")
	}
	return &CaptureResult{TransactionID: pi.ID, Amount: o.TotalPrice}, nil
}

// Void releases the order's card payment. An authorized hold is canceled on
// its payment intent; otherwise the checkout session is expired, and a
// session that is already expired or complete counts as voided.
func (s *CardStrategy) Void(ctx context.Context, o *domain.Order) error {
	const op = "payment.card.void"
	if s.gateway == nil {
		return domain.WithOp(domain.ErrGatewayNotConfigured, op)
	}
	cfg, err := s.configs.Get(ctx, domain.ProviderStripe)
	if err != nil {
		return err
	}
	if !cfg.AllowVoid {
		return domain.WithOp(domain.ErrVoidNotAllowed, op)
	}
	if o.Payment.Authorized && o.Payment.StripePaymentIntentID != "" {
		if _, err := s.gateway.CancelPaymentIntent(ctx, o.Payment.StripePaymentIntentID); err != nil {
			return domain.Gateway(err, op, "Failed to release card authorization")
		}
		return nil
	}
	if o.Payment.StripeSessionID == "" {
		return nil
	}

	_, err = s.gateway.ExpireCheckoutSession(ctx, o.Payment.StripeSessionID)
	if err == nil {
		return nil
	}

	sess, getErr := s.gateway.GetCheckoutSession(ctx, o.Payment.StripeSessionID)
	if getErr == nil && (sess.Status == billing.SessionStatusExpired || sess.Status == billing.SessionStatusComplete) {
		s.logger.InfoContext(ctx, "checkout session already closed",
			"order_id", o.ID,
			"session_id", sess.ID,
			"status", sess.Status,
		)
		return nil
	}
	if errors.Is(getErr, billing.ErrSessionNotFound) {
		return nil
	}
	return domain.Gateway(err, op, "Failed to void checkout session")
}

// checkGatewayAmount applies provider bounds; gateways cannot charge zero.
func checkGatewayAmount(cfg *domain.ProviderConfig, total decimal.Decimal) error {
	if !total.IsPositive() {
		return domain.Invalid("payment.amount", "Order total must be greater than zero for online payment")
	}
	if err := cfg.CheckAmount(total); err != nil {
		return domain.WithOp(err, "payment.amount")
	}
	return nil
}
