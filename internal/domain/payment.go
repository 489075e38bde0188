package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Provider identifies who settles a payment method.
type Provider string

const (
	ProviderStripe   Provider = "stripe"
	ProviderPaymob   Provider = "paymob"
	ProviderInternal Provider = "internal"
)

// Gateways lists the providers that carry a remote configuration record.
var Gateways = []Provider{ProviderStripe, ProviderPaymob}

// PaymentMethodName is the closed set of payment methods a client may request.
type PaymentMethodName string

const (
	MethodCard              PaymentMethodName = "Card"
	MethodPaymobCard        PaymentMethodName = "Paymob-Card"
	MethodPaymobWallet      PaymentMethodName = "Paymob-Wallet"
	MethodPaymobInstallment PaymentMethodName = "Paymob-Installment"
	MethodCOD               PaymentMethodName = "COD"
)

// PaymentMethodNames returns every known method in display order.
func PaymentMethodNames() []PaymentMethodName {
	return []PaymentMethodName{MethodCard, MethodPaymobCard, MethodPaymobWallet, MethodPaymobInstallment, MethodCOD}
}

// Provider maps a method to the provider that settles it.
// Unknown names return the empty provider.
func (m PaymentMethodName) Provider() Provider {
	switch m {
	case MethodCard:
		return ProviderStripe
	case MethodPaymobCard, MethodPaymobWallet, MethodPaymobInstallment:
		return ProviderPaymob
	case MethodCOD:
		return ProviderInternal
	}
	return ""
}

// Valid reports whether m is one of the known method names.
func (m PaymentMethodName) Valid() bool {
	return m.Provider() != ""
}

// PaymentMethod is a registry entry. IsActive is the only switch that decides
// whether clients may pay with the method.
type PaymentMethod struct {
	ID          uuid.UUID         `json:"id"`
	Name        PaymentMethodName `json:"name"`
	Provider    Provider          `json:"provider"`
	IsActive    bool              `json:"isActive"`
	DisplayName string            `json:"displayName"`
	Description string            `json:"description,omitempty"`
	Icon        string            `json:"icon,omitempty"`
	SortOrder   int               `json:"sortOrder"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// DefaultPaymentMethods is the registry content seeded on a fresh store.
func DefaultPaymentMethods() []*PaymentMethod {
	display := map[PaymentMethodName]string{
		MethodCard:              "Credit / Debit Card",
		MethodPaymobCard:        "Card (local)",
		MethodPaymobWallet:      "Mobile Wallet",
		MethodPaymobInstallment: "Installments",
		MethodCOD:               "Cash on Delivery",
	}
	var out []*PaymentMethod
	for i, name := range PaymentMethodNames() {
		out = append(out, &PaymentMethod{
			ID:          uuid.New(),
			Name:        name,
			Provider:    name.Provider(),
			IsActive:    true,
			DisplayName: display[name],
			SortOrder:   i,
		})
	}
	return out
}

// ProviderConfig holds the business policy for one gateway. Each provider has
// exactly one record, keyed by Provider.
type ProviderConfig struct {
	Provider Provider `json:"provider"`
	IsActive bool     `json:"isActive"`
	Currency string   `json:"currency"`

	// MinOrderAmount and MaxOrderAmount bound the order total. A zero
	// MaxOrderAmount means no upper bound.
	MinOrderAmount decimal.Decimal `json:"minOrderAmount"`
	MaxOrderAmount decimal.Decimal `json:"maxOrderAmount"`

	// FreeDeliveryThreshold waives the delivery fee when the order reaches it.
	// Zero disables the waiver.
	FreeDeliveryThreshold decimal.Decimal `json:"freeDeliveryThreshold"`

	// RefundWindowHours is counted from the moment the order was paid.
	// Zero means refunds are accepted at any time.
	RefundWindowHours  int  `json:"refundWindowHours"`
	AllowPartialRefund bool `json:"allowPartialRefund"`
	AutoRefundOnCancel bool `json:"autoRefundOnCancel"`
	AllowVoid          bool `json:"allowVoid"`

	Stripe *StripeOptions `json:"stripe,omitempty"`
	Paymob *PaymobOptions `json:"paymob,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// StripeOptions shape the hosted checkout page.
type StripeOptions struct {
	PaymentMethodTypes  []string `json:"paymentMethodTypes"`
	StatementDescriptor string   `json:"statementDescriptor,omitempty"`
	ManualCapture       bool     `json:"manualCapture"`
	SaveCards           bool     `json:"saveCards"`
	AllowPromotionCodes bool     `json:"allowPromotionCodes"`
	AutomaticTax        bool     `json:"automaticTax"`
	// SessionExpiryMinutes must be between 30 and 1440 when set.
	SessionExpiryMinutes int `json:"sessionExpiryMinutes"`
}

// PaymobOptions hold the aggregator's integration ids and per-method limits.
type PaymobOptions struct {
	// Integrations maps each aggregator sub-method to its integration id.
	Integrations map[PaymentMethodName]int64 `json:"integrations"`

	// MethodMinimums sets an additional floor per sub-method
	// (installments usually require a larger basket).
	MethodMinimums map[PaymentMethodName]decimal.Decimal `json:"methodMinimums,omitempty"`

	// IntentionExpirySeconds is passed to the intention API when non-zero.
	IntentionExpirySeconds int `json:"intentionExpirySeconds,omitempty"`
}

// DefaultProviderConfig returns an inactive config with safe defaults.
func DefaultProviderConfig(p Provider) *ProviderConfig {
	cfg := &ProviderConfig{
		Provider:           p,
		Currency:           "EGP",
		MinOrderAmount:     decimal.Zero,
		MaxOrderAmount:     decimal.Zero,
		RefundWindowHours:  72,
		AllowPartialRefund: true,
		AllowVoid:          true,
	}
	switch p {
	case ProviderStripe:
		cfg.Stripe = &StripeOptions{PaymentMethodTypes: []string{"card"}, SessionExpiryMinutes: 60}
	case ProviderPaymob:
		cfg.Paymob = &PaymobOptions{Integrations: map[PaymentMethodName]int64{}}
	}
	return cfg
}

// Validate checks a config before it is saved.
func (c *ProviderConfig) Validate() error {
	const op = "providerConfig.validate"
	var err error
	if c.Provider != ProviderStripe && c.Provider != ProviderPaymob {
		err = AddFieldError(err, "provider", "must be stripe or paymob")
	}
	if len(c.Currency) != 3 {
		err = AddFieldError(err, "currency", "must be a 3-letter ISO code")
	}
	if c.MinOrderAmount.IsNegative() {
		err = AddFieldError(err, "minOrderAmount", "must not be negative")
	}
	if c.MaxOrderAmount.IsNegative() {
		err = AddFieldError(err, "maxOrderAmount", "must not be negative")
	}
	if c.MaxOrderAmount.IsPositive() && c.MaxOrderAmount.LessThan(c.MinOrderAmount) {
		err = AddFieldError(err, "maxOrderAmount", "must be greater than minOrderAmount")
	}
	if c.FreeDeliveryThreshold.IsNegative() {
		err = AddFieldError(err, "freeDeliveryThreshold", "must not be negative")
	}
	if c.RefundWindowHours < 0 {
		err = AddFieldError(err, "refundWindowHours", "must not be negative")
	}
	if s := c.Stripe; s != nil && s.SessionExpiryMinutes != 0 && (s.SessionExpiryMinutes < 30 || s.SessionExpiryMinutes > 1440) {
		err = AddFieldError(err, "stripe.sessionExpiryMinutes", "must be between 30 and 1440")
	}
	if s := c.Stripe; s != nil && len(s.StatementDescriptor) > 22 {
		err = AddFieldError(err, "stripe.statementDescriptor", "must be at most 22 characters")
	}
	if err != nil {
		err.(*ValidationError).Op = op
	}
	return err
}

// CheckAmount enforces the order amount bounds.
func (c *ProviderConfig) CheckAmount(amount decimal.Decimal) error {
	if amount.LessThan(c.MinOrderAmount) {
		return Errorf(EINVALID, "", "order total %s is below the minimum of %s %s", amount.StringFixed(2), c.MinOrderAmount.StringFixed(2), c.Currency)
	}
	if c.MaxOrderAmount.IsPositive() && amount.GreaterThan(c.MaxOrderAmount) {
		return Errorf(EINVALID, "", "order total %s exceeds the maximum of %s %s", amount.StringFixed(2), c.MaxOrderAmount.StringFixed(2), c.Currency)
	}
	return nil
}

// Payment errors.
var (
	ErrUnsupportedPaymentMethod = &Error{Code: EINVALID, Message: "Unsupported payment method"}
	ErrPaymentMethodDisabled    = &Error{Code: EINVALID, Message: "Payment method is currently disabled"}
	ErrPaymentMethodNotFound    = &Error{Code: ENOTFOUND, Message: "Payment method not found"}
	ErrGatewayNotConfigured     = &Error{Code: EUNAVAILABLE, Message: "Payment gateway is not configured"}
	ErrRefundWindowExpired      = &Error{Code: EINVALID, Message: "Refund window has expired"}
	ErrPartialRefundNotAllowed  = &Error{Code: EINVALID, Message: "Partial refunds are not allowed for this payment method"}
	ErrRefundExceedsTotal       = &Error{Code: EINVALID, Message: "Refund amount exceeds the refundable total"}
	ErrVoidNotAllowed           = &Error{Code: EINVALID, Message: "Voiding payments is disabled for this gateway"}
	ErrCaptureNotSupported      = &Error{Code: EINVALID, Message: "Capture is not supported for this payment method"}
	ErrNothingToCapture         = &Error{Code: ECONFLICT, Message: "Order has no authorized payment awaiting capture"}
	ErrInvalidWebhookSignature  = &Error{Code: EINVALID, Message: "Invalid webhook signature"}
	ErrProviderConfigNotFound   = &Error{Code: ENOTFOUND, Message: "Provider configuration not found"}
)
