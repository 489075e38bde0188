package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func signPayload(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

// TestParseStripeWebhook tests signature verification and event decoding
func TestParseStripeWebhook(t *testing.T) {
	completed := []byte(`{
		"id": "evt_1",
		"object": "event",
		"api_version": "2020-08-27",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_1",
			"object": "checkout.session",
			"status": "complete",
			"payment_status": "paid",
			"amount_total": 11000,
			"currency": "egp",
			"payment_intent": "pi_123",
			"metadata": {"orderId": "8f7d"}
		}}
	}`)

	failed := []byte(`{
		"id": "evt_2",
		"object": "event",
		"type": "payment_intent.payment_failed",
		"data": {"object": {
			"id": "pi_456",
			"object": "payment_intent",
			"status": "requires_payment_method",
			"metadata": {"orderId": "8f7d"},
			"last_payment_error": {"message": "Your card was declined."}
		}}
	}`)

	t.Run("decodes a signed checkout session event", func(t *testing.T) {
		event, err := parseStripeWebhook(completed, signPayload(t, completed, testWebhookSecret), testWebhookSecret)
		require.NoError(t, err)

		assert.Equal(t, "evt_1", event.ID)
		assert.Equal(t, EventCheckoutCompleted, event.Type)
		require.NotNil(t, event.Session)
		assert.Equal(t, "cs_test_1", event.Session.ID)
		assert.Equal(t, SessionPaymentPaid, event.Session.PaymentStatus)
		assert.Equal(t, "pi_123", event.Session.PaymentIntentID)
		assert.Equal(t, int64(11000), event.Session.AmountTotal)
		assert.Equal(t, "8f7d", event.Session.Metadata["orderId"])
	})

	t.Run("decodes a payment intent failure", func(t *testing.T) {
		event, err := parseStripeWebhook(failed, signPayload(t, failed, testWebhookSecret), testWebhookSecret)
		require.NoError(t, err)

		require.NotNil(t, event.PaymentIntent)
		assert.Nil(t, event.Session)
		assert.Equal(t, "pi_456", event.PaymentIntent.ID)
		assert.Equal(t, "Your card was declined.", event.PaymentIntent.LastErrorMessage)
	})

	t.Run("rejects wrong secret", func(t *testing.T) {
		_, err := parseStripeWebhook(completed, signPayload(t, completed, "whsec_other"), testWebhookSecret)
		assert.True(t, errors.Is(err, ErrInvalidWebhookSignature))
	})

	t.Run("rejects tampered payload", func(t *testing.T) {
		sig := signPayload(t, completed, testWebhookSecret)
		tampered := append([]byte{}, completed...)
		tampered[len(tampered)-3] = ' '
		_, err := parseStripeWebhook(tampered, sig, testWebhookSecret)
		assert.True(t, errors.Is(err, ErrInvalidWebhookSignature))
	})

	t.Run("rejects missing signature", func(t *testing.T) {
		_, err := parseStripeWebhook(completed, "", testWebhookSecret)
		assert.True(t, errors.Is(err, ErrInvalidWebhookSignature))
	})
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(11000), ToMinorUnits(decimal.NewFromInt(110)))
	assert.Equal(t, int64(1999), ToMinorUnits(decimal.RequireFromString("19.99")))
	assert.Equal(t, int64(1000), ToMinorUnits(decimal.RequireFromString("9.995")))
	assert.True(t, FromMinorUnits(1999).Equal(decimal.RequireFromString("19.99")))
}

func TestMockStripe_ExpireIsTolerantOnlyWhenOpen(t *testing.T) {
	m := NewMockStripe()
	sess, err := m.CreateCheckoutSession(t.Context(), CheckoutSessionParams{
		Currency:          "egp",
		ClientReferenceID: "order-1",
		LineItems:         []LineItem{{Name: "Burger", UnitAmount: 5000, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), sess.AmountTotal)

	_, err = m.ExpireCheckoutSession(t.Context(), sess.ID)
	require.NoError(t, err)

	_, err = m.ExpireCheckoutSession(t.Context(), sess.ID)
	var se *StripeError
	require.True(t, errors.As(err, &se))
	assert.True(t, se.IsSessionNotExpirable())

	assert.Equal(t, []string{
		"CreateCheckoutSession(order-1)",
		"ExpireCheckoutSession(" + sess.ID + ")",
		"ExpireCheckoutSession(" + sess.ID + ")",
	}, m.Calls())
}

// TestStripeConfig_Validation tests configuration validation
func TestStripeConfig_Validation(t *testing.T) {
	t.Run("validates required API key", func(t *testing.T) {
		config := StripeConfig{WebhookSecret: "whsec_test"}
		err := config.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "API key is required")
	})

	t.Run("validates required webhook secret", func(t *testing.T) {
		config := StripeConfig{APIKey: "sk_test_123"}
		err := config.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "webhook secret is required")
	})

	t.Run("detects test mode correctly", func(t *testing.T) {
		assert.True(t, (&StripeConfig{APIKey: "sk_test_123456"}).IsTestMode())
		assert.False(t, (&StripeConfig{APIKey: "sk_live_123456"}).IsTestMode())
	})
}

// TestStripeError tests the StripeError type
func TestStripeError(t *testing.T) {
	t.Run("formats error message correctly", func(t *testing.T) {
		err := &StripeError{Message: "Payment failed", Code: "card_declined"}
		assert.Contains(t, err.Error(), "Payment failed")
		assert.Contains(t, err.Error(), "card_declined")
	})

	t.Run("identifies declined cards", func(t *testing.T) {
		assert.True(t, (&StripeError{Code: "card_declined", DeclineCode: "insufficient_funds"}).IsDeclined())
		assert.False(t, (&StripeError{Code: "api_error"}).IsDeclined())
	})

	t.Run("identifies temporary errors", func(t *testing.T) {
		assert.True(t, (&StripeError{Code: "rate_limit"}).IsTemporary())
		assert.True(t, (&StripeError{StatusCode: 503}).IsTemporary())
		assert.False(t, (&StripeError{Code: "invalid_request", StatusCode: 400}).IsTemporary())
	})

	t.Run("wraps non-SDK errors", func(t *testing.T) {
		cause := errors.New("dial tcp: timeout")
		err := wrapStripeError(cause)
		assert.ErrorIs(t, err, cause)
	})
}
