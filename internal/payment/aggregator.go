package payment

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xhaelri/qitchen/internal/billing"
	"github.com/xhaelri/qitchen/internal/domain"
)

// AggregatorStrategy takes card, wallet and installment payments through Paymob.
type AggregatorStrategy struct {
	configs *Configs
	gateway billing.PaymobGateway
	urls    URLs
	logger  *slog.Logger
	now     func() time.Time
}

// NewAggregatorStrategy creates the aggregator strategy.
func NewAggregatorStrategy(d Deps) *AggregatorStrategy {
	return &AggregatorStrategy{configs: d.Configs, gateway: d.Paymob, urls: d.URLs, logger: d.Logger, now: d.Now}
}

func (s *AggregatorStrategy) Provider() domain.Provider { return domain.ProviderPaymob }

// ValidateAmount checks total against the Paymob bounds and the
// sub-method's own minimum.
func (s *AggregatorStrategy) ValidateAmount(ctx context.Context, method domain.PaymentMethodName, total decimal.Decimal) error {
	cfg, err := s.configs.Get(ctx, domain.ProviderPaymob)
	if err != nil {
		return err
	}
	if err := checkGatewayAmount(cfg, total); err != nil {
		return err
	}
	if cfg.Paymob != nil {
		if floor, ok := cfg.Paymob.MethodMinimums[method]; ok && total.LessThan(floor) {
			return domain.Errorf(domain.EINVALID, "payment.amount",
				"%s requires a minimum order of %s %s", method, floor.StringFixed(2), cfg.Currency)
		}
	}
	return nil
}

// CreatePayment registers a payment intention for the order.
func (s *AggregatorStrategy) CreatePayment(ctx context.Context, req Request) (*CreateResult, error) {
	const op = "payment.aggregator.create"
	if s.gateway == nil {
		return nil, domain.WithOp(domain.ErrGatewayNotConfigured, op)
	}
	cfg, err := s.configs.Get(ctx, domain.ProviderPaymob)
	if err != nil {
		return nil, err
	}

	o := req.Order
	var integration int64
	if cfg.Paymob != nil {
		integration = cfg.Paymob.Integrations[o.PaymentMethod]
	}
	if integration == 0 {
		return nil, &domain.Error{
			Code:    domain.EUNAVAILABLE,
			Op:      op,
			Message: fmt.Sprintf("%s is not configured", o.PaymentMethod),
			Err:     domain.ErrGatewayNotConfigured,
		}
	}

	correlationID, err := NewCorrelationID()
	if err != nil {
		return nil, domain.Internal(err, op, "failed to generate correlation id")
	}

	params := billing.IntentionParams{
		AmountCents:     billing.ToMinorUnits(o.TotalPrice),
		Currency:        strings.ToUpper(cfg.Currency),
		IntegrationIDs:  []int64{integration},
		CorrelationID:   correlationID,
		Billing:         billingData(req),
		NotificationURL: s.urls.aggregatorNotification(),
		RedirectionURL:  s.urls.aggregatorRedirect(),
	}
	if cfg.Paymob != nil {
		params.ExpirationSeconds = cfg.Paymob.IntentionExpirySeconds
	}
	for _, l := range gatewayLines(o) {
		params.Items = append(params.Items, billing.IntentionItem{
			Name:        l.name,
			AmountCents: l.unit,
			Quantity:    l.quantity,
		})
	}

	in, err := s.gateway.CreateIntention(ctx, params)
	if err != nil {
		return nil, domain.Gateway(err, op, "Failed to create payment intention")
	}

	s.logger.InfoContext(ctx, "payment intention created",
		"order_id", o.ID,
		"correlation_id", correlationID,
		"intention_id", in.ID,
		"method", o.PaymentMethod,
	)

	return &CreateResult{
		RedirectURL: s.gateway.CheckoutURL(in.ClientSecret),
		Refs: domain.PaymentRefs{
			PaymobCorrelationID: correlationID,
			PaymobIntentionID:   in.ID,
			PaymobOrderID:       strconv.FormatInt(in.OrderID, 10),
		},
	}, nil
}

// Refund refunds amount of the settled transaction.
func (s *AggregatorStrategy) Refund(ctx context.Context, o *domain.Order, amount decimal.Decimal, reason string) (*RefundResult, error) {
	const op = "payment.aggregator.refund"
	if s.gateway == nil {
		return nil, domain.WithOp(domain.ErrGatewayNotConfigured, op)
	}
	cfg, err := s.configs.Get(ctx, domain.ProviderPaymob)
	if err != nil {
		return nil, err
	}
	if err := CheckRefundPolicy(cfg, o, amount, s.now()); err != nil {
		return nil, err
	}
	if o.Payment.TransactionID == "" {
		return nil, domain.Errorf(domain.ECONFLICT, op, "order has no settled transaction")
	}

	tx, err := s.gateway.Refund(ctx, o.Payment.TransactionID, billing.ToMinorUnits(amount))
	if err != nil {
		return nil, domain.Gateway(err, op, "Refund was rejected by the payment aggregator")
	}
	return &RefundResult{
		RefundID: billing.TransactionIDString(tx.ID),
		Amount:   amount,
		Status:   "succeeded",
	}, nil
}

// Void cancels the transaction if one exists. An intention that was never
// paid has nothing to void.
func (s *AggregatorStrategy) Void(ctx context.Context, o *domain.Order) error {
	const op = "payment.aggregator.void"
	if s.gateway == nil {
		return domain.WithOp(domain.ErrGatewayNotConfigured, op)
	}
	cfg, err := s.configs.Get(ctx, domain.ProviderPaymob)
	if err != nil {
		return err
	}
	if !cfg.AllowVoid {
		return domain.WithOp(domain.ErrVoidNotAllowed, op)
	}
	if o.Payment.TransactionID == "" {
		return nil
	}
	if _, err := s.gateway.Void(ctx, o.Payment.TransactionID); err != nil {
		return domain.Gateway(err, op, "Failed to void payment")
	}
	return nil
}

// Capture captures the full order total of an authorized transaction.
func (s *AggregatorStrategy) Capture(ctx context.Context, o *domain.Order) (*CaptureResult, error) {
	const op = "payment.aggregator.capture"
	if s.gateway == nil {
		return nil, domain.WithOp(domain.ErrGatewayNotConfigured, op)
	}
	if !o.Payment.Authorized || o.Payment.TransactionID == "" {
		return nil, domain.WithOp(domain.ErrNothingToCapture, op)
	}
	if _, err := s.configs.Get(ctx, domain.ProviderPaymob); err != nil {
		return nil, err
	}

	tx, err := s.gateway.Capture(ctx, o.Payment.TransactionID, billing.ToMinorUnits(o.TotalPrice))
	if err != nil {
		return nil, domain.Gateway(err, op, "Capture was rejected by the payment aggregator")
	}
	txID := o.Payment.TransactionID
	if tx != nil && tx.ID != 0 {
		txID = billing.TransactionIDString(tx.ID)
	}
	return &CaptureResult{TransactionID: txID, Amount: o.TotalPrice}, nil
}

func billingData(req Request) billing.BillingData {
	var b billing.BillingData
	if u := req.Customer; u != nil {
		first, last, _ := strings.Cut(strings.TrimSpace(u.Name), " ")
		b.FirstName = first
		b.LastName = last
		b.Email = u.Email
		b.PhoneNumber = u.Phone
	}
	if d := req.Order.Delivery; d != nil {
		b.Street = d.Street
		b.City = d.City
		b.State = d.Governorate
		if d.Phone != "" {
			b.PhoneNumber = d.Phone
		}
	}
	return b
}
