// Package billing wraps the external payment gateways: Stripe hosted checkout
// for cards and the Paymob intention API for the aggregator methods.
//
// Types here are gateway-shaped, not order-shaped. Amounts are integers in
// the currency's minor unit. The payment package maps orders onto them.
package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StripeGateway is the subset of the Stripe API the card strategy uses.
type StripeGateway interface {
	// CreateCheckoutSession creates a hosted checkout session and returns its redirect URL.
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error)

	// GetCheckoutSession retrieves a session with its payment intent expanded.
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)

	// ExpireCheckoutSession expires an open session so it can no longer be paid.
	ExpireCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)

	// CreateRefund refunds part or all of a captured payment intent.
	CreateRefund(ctx context.Context, params RefundParams) (*Refund, error)

	// CapturePaymentIntent captures an intent authorized with manual capture.
	CapturePaymentIntent(ctx context.Context, params CaptureParams) (*PaymentIntent, error)

	// CancelPaymentIntent releases an authorization that was never captured.
	CancelPaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error)

	// ParseWebhook verifies the Stripe-Signature header and decodes the event.
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// PaymobGateway is the subset of the Paymob API the aggregator strategy uses.
type PaymobGateway interface {
	// CreateIntention registers a payment intention and returns the client secret.
	CreateIntention(ctx context.Context, params IntentionParams) (*Intention, error)

	// CheckoutURL builds the unified checkout URL for an intention.
	CheckoutURL(clientSecret string) string

	// Refund refunds amountCents of a settled transaction.
	Refund(ctx context.Context, transactionID string, amountCents int64) (*PaymobTransaction, error)

	// Void cancels a same-day transaction before settlement.
	Void(ctx context.Context, transactionID string) (*PaymobTransaction, error)

	// Capture captures amountCents of an auth-only transaction.
	Capture(ctx context.Context, transactionID string, amountCents int64) (*PaymobTransaction, error)

	// VerifyTransaction checks the HMAC of a transaction callback.
	VerifyTransaction(tx *PaymobTransaction, hmac string) error

	// VerifyRedirect checks the HMAC of the customer redirect query.
	VerifyRedirect(query map[string]string, hmac string) error
}

// ToMinorUnits converts a decimal amount to an integer in minor units.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts an integer minor-unit amount back to a decimal.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// =============================================================================
// Stripe types
// =============================================================================

// LineItem is a single priced line on a checkout session.
type LineItem struct {
	Name       string
	UnitAmount int64
	Quantity   int64
}

// CheckoutSessionParams contains parameters for creating a checkout session.
type CheckoutSessionParams struct {
	Currency  string
	LineItems []LineItem

	SuccessURL string
	CancelURL  string

	CustomerEmail     string
	ClientReferenceID string

	// Metadata is copied to both the session and its payment intent.
	// It always carries the order id so webhooks can find the order.
	Metadata map[string]string

	PaymentMethodTypes  []string
	StatementDescriptor string
	ManualCapture       bool
	SaveCards           bool
	AllowPromotionCodes bool
	AutomaticTax        bool

	// ExpiresAt must fall between 30 minutes and 24 hours from now.
	ExpiresAt time.Time

	// IdempotencyKey prevents duplicate sessions when a request is retried.
	IdempotencyKey string
}

// CheckoutSession is the gateway view of a Stripe checkout session.
type CheckoutSession struct {
	ID              string
	URL             string
	Status          string
	PaymentStatus   string
	PaymentIntentID string
	// PaymentIntentStatus is only known when the intent was expanded.
	PaymentIntentStatus string
	AmountTotal         int64
	Currency            string
	Metadata            map[string]string
}

// Checkout session states used by the reconciler.
const (
	SessionStatusOpen     = "open"
	SessionStatusComplete = "complete"
	SessionStatusExpired  = "expired"

	SessionPaymentPaid   = "paid"
	SessionPaymentUnpaid = "unpaid"
)

// Payment intent states used by the card strategy and reconciler.
const (
	IntentStatusRequiresCapture = "requires_capture"
	IntentStatusSucceeded       = "succeeded"
	IntentStatusCanceled        = "canceled"
)

// CaptureParams contains parameters for capturing an authorized intent.
type CaptureParams struct {
	PaymentIntentID string
	// AmountCents of zero captures the full authorized amount.
	AmountCents    int64
	IdempotencyKey string
}

// PaymentIntent is the gateway view of a payment intent after capture or cancel.
type PaymentIntent struct {
	ID               string
	Status           string
	AmountCapturable int64
	AmountReceived   int64
}

// RefundParams contains parameters for a refund.
type RefundParams struct {
	PaymentIntentID string
	AmountCents     int64
	Reason          string
	Metadata        map[string]string
	IdempotencyKey  string
}

// Refund is the gateway view of a refund.
type Refund struct {
	ID          string
	AmountCents int64
	Status      string
	CreatedAt   time.Time
}

// WebhookEvent is a verified Stripe event. Session is set for
// checkout.session.* events, PaymentIntent for payment_intent.* events.
type WebhookEvent struct {
	ID            string
	Type          string
	Session       *CheckoutSession
	PaymentIntent *WebhookPaymentIntent
}

// WebhookPaymentIntent is the part of a payment intent event the reconciler reads.
type WebhookPaymentIntent struct {
	ID               string
	Status           string
	Metadata         map[string]string
	LastErrorMessage string
}

// Stripe event types the reconciler handles.
const (
	EventCheckoutCompleted          = "checkout.session.completed"
	EventCheckoutAsyncSucceeded     = "checkout.session.async_payment_succeeded"
	EventCheckoutAsyncFailed        = "checkout.session.async_payment_failed"
	EventCheckoutExpired            = "checkout.session.expired"
	EventPaymentIntentPaymentFailed = "payment_intent.payment_failed"
	EventPaymentIntentCapturable    = "payment_intent.amount_capturable_updated"
)

// =============================================================================
// Paymob types
// =============================================================================

// IntentionItem is a line on a Paymob intention. Item amounts must sum to
// the intention amount.
type IntentionItem struct {
	Name        string `json:"name"`
	AmountCents int64  `json:"amount"`
	Quantity    int64  `json:"quantity"`
	Description string `json:"description,omitempty"`
}

// BillingData is the customer block Paymob requires on every intention.
type BillingData struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Street      string `json:"street"`
	City        string `json:"city"`
	State       string `json:"state"`
	Country     string `json:"country"`
	Building    string `json:"building"`
	Floor       string `json:"floor"`
	Apartment   string `json:"apartment"`
}

// IntentionParams contains parameters for creating a payment intention.
type IntentionParams struct {
	AmountCents    int64
	Currency       string
	IntegrationIDs []int64
	Items          []IntentionItem
	Billing        BillingData

	// CorrelationID is sent as special_reference and as extras.ee so both the
	// merchant order id and the payment key claims carry it back.
	CorrelationID string

	NotificationURL string
	RedirectionURL  string

	// ExpirationSeconds is how long the intention stays payable; zero keeps the gateway default.
	ExpirationSeconds int
}

// Intention is a created Paymob payment intention.
type Intention struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	OrderID      int64  `json:"intention_order_id"`
}

// PaymobTransaction is the transaction object Paymob posts to the
// notification URL and returns from refund, void and capture calls.
type PaymobTransaction struct {
	ID                   int64  `json:"id"`
	Pending              bool   `json:"pending"`
	AmountCents          int64  `json:"amount_cents"`
	Success              bool   `json:"success"`
	IsAuth               bool   `json:"is_auth"`
	IsCapture            bool   `json:"is_capture"`
	IsStandalonePayment  bool   `json:"is_standalone_payment"`
	IsVoided             bool   `json:"is_voided"`
	IsRefunded           bool   `json:"is_refunded"`
	Is3DSecure           bool   `json:"is_3d_secure"`
	IntegrationID        int64  `json:"integration_id"`
	HasParentTransaction bool   `json:"has_parent_transaction"`
	ErrorOccured         bool   `json:"error_occured"`
	Currency             string `json:"currency"`
	CreatedAt            string `json:"created_at"`
	Owner                int64  `json:"owner"`

	Order struct {
		ID              int64  `json:"id"`
		MerchantOrderID string `json:"merchant_order_id"`
	} `json:"order"`

	SourceData struct {
		Pan     string `json:"pan"`
		Type    string `json:"type"`
		SubType string `json:"sub_type"`
	} `json:"source_data"`

	PaymentKeyClaims struct {
		Extra map[string]any `json:"extra"`
	} `json:"payment_key_claims"`

	Data struct {
		Message string `json:"message"`
	} `json:"data"`
}

// CorrelationID returns the correlation id the transaction carries, from the
// merchant order id or, failing that, from the payment key extras.
func (t *PaymobTransaction) CorrelationID() string {
	if t.Order.MerchantOrderID != "" {
		return t.Order.MerchantOrderID
	}
	if v, ok := t.PaymentKeyClaims.Extra["ee"].(string); ok {
		return v
	}
	return ""
}

// Authorized reports an auth-only success that still needs a capture.
func (t *PaymobTransaction) Authorized() bool {
	return t.Success && !t.Pending && t.IsAuth && !t.IsCapture
}

// PaymobCallback is the envelope of a transaction-processed callback.
type PaymobCallback struct {
	Type string            `json:"type"`
	Obj  PaymobTransaction `json:"obj"`
}
