package billing

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MockStripe is a mock Stripe gateway for testing.
// Simulates successful checkout flows without calling the Stripe API.
type MockStripe struct {
	mu sync.Mutex

	CreateCheckoutSessionFunc func(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error)
	GetCheckoutSessionFunc    func(ctx context.Context, sessionID string) (*CheckoutSession, error)
	ExpireCheckoutSessionFunc func(ctx context.Context, sessionID string) (*CheckoutSession, error)
	CreateRefundFunc          func(ctx context.Context, params RefundParams) (*Refund, error)
	CapturePaymentIntentFunc  func(ctx context.Context, params CaptureParams) (*PaymentIntent, error)
	CancelPaymentIntentFunc   func(ctx context.Context, intentID string) (*PaymentIntent, error)
	ParseWebhookFunc          func(payload []byte, signature string) (*WebhookEvent, error)

	// Sessions stores created sessions for retrieval
	Sessions map[string]*CheckoutSession

	// CallLog tracks method calls for test assertions
	CallLog []string
}

// NewMockStripe creates a new mock Stripe gateway.
func NewMockStripe() *MockStripe {
	return &MockStripe{
		Sessions: make(map[string]*CheckoutSession),
		CallLog:  []string{},
	}
}

func (m *MockStripe) log(format string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallLog = append(m.CallLog, fmt.Sprintf(format, args...))
}

// Calls returns a copy of the call log.
func (m *MockStripe) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.CallLog...)
}

// CreateCheckoutSession creates a mock open session.
func (m *MockStripe) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	m.log("CreateCheckoutSession(%s)", params.ClientReferenceID)

	if m.CreateCheckoutSessionFunc != nil {
		return m.CreateCheckoutSessionFunc(ctx, params)
	}

	var total int64
	for _, li := range params.LineItems {
		total += li.UnitAmount * li.Quantity
	}
	id := "cs_test_" + uuid.New().String()
	sess := &CheckoutSession{
		ID:            id,
		URL:           "https://checkout.stripe.test/c/pay/" + id,
		Status:        SessionStatusOpen,
		PaymentStatus: SessionPaymentUnpaid,
		AmountTotal:   total,
		Currency:      params.Currency,
		Metadata:      params.Metadata,
	}
	m.mu.Lock()
	m.Sessions[id] = sess
	m.mu.Unlock()
	return sess, nil
}

// GetCheckoutSession returns a stored session.
func (m *MockStripe) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	m.log("GetCheckoutSession(%s)", sessionID)

	if m.GetCheckoutSessionFunc != nil {
		return m.GetCheckoutSessionFunc(ctx, sessionID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.Sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

// ExpireCheckoutSession marks a stored session expired.
func (m *MockStripe) ExpireCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	m.log("ExpireCheckoutSession(%s)", sessionID)

	if m.ExpireCheckoutSessionFunc != nil {
		return m.ExpireCheckoutSessionFunc(ctx, sessionID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.Sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.Status != SessionStatusOpen {
		return nil, &StripeError{Message: "session is not open", Code: "checkout_session_not_expirable", StatusCode: 400}
	}
	sess.Status = SessionStatusExpired
	cp := *sess
	return &cp, nil
}

// CreateRefund returns a succeeded refund.
func (m *MockStripe) CreateRefund(ctx context.Context, params RefundParams) (*Refund, error) {
	m.log("CreateRefund(%s, %d)", params.PaymentIntentID, params.AmountCents)

	if m.CreateRefundFunc != nil {
		return m.CreateRefundFunc(ctx, params)
	}
	return &Refund{ID: "re_" + uuid.New().String(), AmountCents: params.AmountCents, Status: "succeeded"}, nil
}

// CapturePaymentIntent returns a succeeded intent for the requested amount.
func (m *MockStripe) CapturePaymentIntent(ctx context.Context, params CaptureParams) (*PaymentIntent, error) {
	m.log("CapturePaymentIntent(%s, %d)", params.PaymentIntentID, params.AmountCents)

	if m.CapturePaymentIntentFunc != nil {
		return m.CapturePaymentIntentFunc(ctx, params)
	}
	return &PaymentIntent{ID: params.PaymentIntentID, Status: IntentStatusSucceeded, AmountReceived: params.AmountCents}, nil
}

// CancelPaymentIntent returns a canceled intent.
func (m *MockStripe) CancelPaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	m.log("CancelPaymentIntent(%s)", intentID)

	if m.CancelPaymentIntentFunc != nil {
		return m.CancelPaymentIntentFunc(ctx, intentID)
	}
	return &PaymentIntent{ID: intentID, Status: IntentStatusCanceled}, nil
}

// ParseWebhook delegates to ParseWebhookFunc; without one every payload is rejected.
func (m *MockStripe) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	m.log("ParseWebhook")

	if m.ParseWebhookFunc != nil {
		return m.ParseWebhookFunc(payload, signature)
	}
	return nil, ErrInvalidWebhookSignature
}

// Complete marks a stored session paid, as Stripe does after a successful checkout.
func (m *MockStripe) Complete(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.Sessions[sessionID]; ok {
		sess.Status = SessionStatusComplete
		sess.PaymentStatus = SessionPaymentPaid
		sess.PaymentIntentID = "pi_" + sessionID
		sess.PaymentIntentStatus = IntentStatusSucceeded
	}
}

// Authorize completes a stored session whose intent uses manual capture: the
// card is authorized but nothing has been charged yet.
func (m *MockStripe) Authorize(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.Sessions[sessionID]; ok {
		sess.Status = SessionStatusComplete
		sess.PaymentStatus = SessionPaymentUnpaid
		sess.PaymentIntentID = "pi_" + sessionID
		sess.PaymentIntentStatus = IntentStatusRequiresCapture
	}
}

// MockPaymob is a mock Paymob gateway for testing.
type MockPaymob struct {
	mu sync.Mutex

	CreateIntentionFunc   func(ctx context.Context, params IntentionParams) (*Intention, error)
	RefundFunc            func(ctx context.Context, transactionID string, amountCents int64) (*PaymobTransaction, error)
	VoidFunc              func(ctx context.Context, transactionID string) (*PaymobTransaction, error)
	CaptureFunc           func(ctx context.Context, transactionID string, amountCents int64) (*PaymobTransaction, error)
	VerifyTransactionFunc func(tx *PaymobTransaction, signature string) error
	VerifyRedirectFunc    func(query map[string]string, signature string) error

	// LastIntention records the most recent CreateIntention params.
	LastIntention *IntentionParams

	// CallLog tracks method calls for test assertions
	CallLog []string

	nextOrderID int64
}

// NewMockPaymob creates a new mock Paymob gateway.
func NewMockPaymob() *MockPaymob {
	return &MockPaymob{CallLog: []string{}, nextOrderID: 1000}
}

func (m *MockPaymob) log(format string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallLog = append(m.CallLog, fmt.Sprintf(format, args...))
}

// Calls returns a copy of the call log.
func (m *MockPaymob) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.CallLog...)
}

// CreateIntention returns a new intention with a fresh Paymob order id.
func (m *MockPaymob) CreateIntention(ctx context.Context, params IntentionParams) (*Intention, error) {
	m.log("CreateIntention(%s, %d)", params.CorrelationID, params.AmountCents)

	m.mu.Lock()
	p := params
	m.LastIntention = &p
	m.nextOrderID++
	orderID := m.nextOrderID
	m.mu.Unlock()

	if m.CreateIntentionFunc != nil {
		return m.CreateIntentionFunc(ctx, params)
	}
	return &Intention{
		ID:           "pi_test_" + params.CorrelationID,
		ClientSecret: "egy_csk_test_" + params.CorrelationID,
		OrderID:      orderID,
	}, nil
}

// CheckoutURL builds a fake checkout URL.
func (m *MockPaymob) CheckoutURL(clientSecret string) string {
	return "https://accept.paymob.test/unifiedcheckout/?clientSecret=" + clientSecret
}

// Refund returns a successful refund transaction.
func (m *MockPaymob) Refund(ctx context.Context, transactionID string, amountCents int64) (*PaymobTransaction, error) {
	m.log("Refund(%s, %d)", transactionID, amountCents)

	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, transactionID, amountCents)
	}
	return &PaymobTransaction{ID: 1, Success: true, IsRefunded: true, AmountCents: amountCents}, nil
}

// Void returns a successful void transaction.
func (m *MockPaymob) Void(ctx context.Context, transactionID string) (*PaymobTransaction, error) {
	m.log("Void(%s)", transactionID)

	if m.VoidFunc != nil {
		return m.VoidFunc(ctx, transactionID)
	}
	return &PaymobTransaction{ID: 2, Success: true, IsVoided: true}, nil
}

// Capture returns a successful capture transaction.
func (m *MockPaymob) Capture(ctx context.Context, transactionID string, amountCents int64) (*PaymobTransaction, error) {
	m.log("Capture(%s, %d)", transactionID, amountCents)

	if m.CaptureFunc != nil {
		return m.CaptureFunc(ctx, transactionID, amountCents)
	}
	return &PaymobTransaction{ID: 3, Success: true, IsCapture: true, AmountCents: amountCents}, nil
}

// VerifyTransaction accepts the literal signature "valid" unless overridden.
func (m *MockPaymob) VerifyTransaction(tx *PaymobTransaction, signature string) error {
	if m.VerifyTransactionFunc != nil {
		return m.VerifyTransactionFunc(tx, signature)
	}
	if signature != "valid" {
		return ErrInvalidWebhookSignature
	}
	return nil
}

// VerifyRedirect accepts the literal signature "valid" unless overridden.
func (m *MockPaymob) VerifyRedirect(query map[string]string, signature string) error {
	if m.VerifyRedirectFunc != nil {
		return m.VerifyRedirectFunc(query, signature)
	}
	if signature != "valid" {
		return ErrInvalidWebhookSignature
	}
	return nil
}

var (
	_ StripeGateway = (*StripeProvider)(nil)
	_ StripeGateway = (*MockStripe)(nil)
	_ PaymobGateway = (*PaymobProvider)(nil)
	_ PaymobGateway = (*MockPaymob)(nil)
)
