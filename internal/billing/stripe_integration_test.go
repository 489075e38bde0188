//go:build integration
// +build integration

package billing

import (
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadTestConfig loads Stripe test credentials from .env.test
func loadTestConfig(t *testing.T) StripeConfig {
	t.Helper()

	if err := godotenv.Load("../../.env.test"); err != nil {
		t.Skipf("Skipping integration test: .env.test not found (%v)", err)
	}

	apiKey := os.Getenv("STRIPE_SECRET_KEY")
	if apiKey == "" || apiKey == "sk_test_your_key_here" {
		t.Skip("Skipping integration test: STRIPE_SECRET_KEY not set in .env.test")
	}

	webhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if webhookSecret == "" {
		webhookSecret = "whsec_placeholder"
	}

	config := StripeConfig{
		APIKey:        apiKey,
		WebhookSecret: webhookSecret,
		Timeout:       30 * time.Second,
	}

	if !config.IsTestMode() {
		t.Fatal("DANGER: Live Stripe key detected! Integration tests must use test mode keys (sk_test_...)")
	}
	return config
}

func TestStripeIntegration_SessionLifecycle(t *testing.T) {
	provider, err := NewStripeProvider(loadTestConfig(t))
	require.NoError(t, err)

	sess, err := provider.CreateCheckoutSession(t.Context(), CheckoutSessionParams{
		Currency:          "egp",
		ClientReferenceID: "integration-order",
		SuccessURL:        "https://example.com/success",
		CancelURL:         "https://example.com/cancel",
		Metadata:          map[string]string{"orderId": "integration-order"},
		LineItems: []LineItem{
			{Name: "Burger", UnitAmount: 5000, Quantity: 2},
			{Name: "Delivery fee", UnitAmount: 1000, Quantity: 1},
		},
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.URL)
	assert.Equal(t, SessionStatusOpen, sess.Status)
	assert.Equal(t, int64(11000), sess.AmountTotal)

	got, err := provider.GetCheckoutSession(t.Context(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "integration-order", got.Metadata["orderId"])

	expired, err := provider.ExpireCheckoutSession(t.Context(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionStatusExpired, expired.Status)

	_, err = provider.ExpireCheckoutSession(t.Context(), sess.ID)
	var se *StripeError
	require.ErrorAs(t, err, &se)
	assert.False(t, se.IsTemporary())
}
