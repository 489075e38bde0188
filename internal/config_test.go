package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFrom_Defaults(t *testing.T) {
	cfg, err := configFrom(newViper())
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, uint16(3000), cfg.Port)
	assert.Equal(t, 20*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, time.Hour, cfg.ReservationSlot)
	assert.Equal(t, 24*time.Hour, cfg.StaleOrderAfter)
	assert.Empty(t, cfg.DatabaseUrl)
	assert.False(t, cfg.Stripe.Enabled())
	assert.False(t, cfg.Paymob.Enabled())
}

func TestConfigFrom_Overrides(t *testing.T) {
	v := newViper()
	v.Set("PORT", 8080)
	v.Set("BASE_URL", "https://api.qitchen.test/")
	v.Set("LOG_LEVEL", "loud")
	v.Set("ENV", "staging")
	v.Set("DATABASE_URL", "postgres://localhost/qitchen")
	v.Set("STRIPE_SECRET_KEY", "sk_test_1")
	v.Set("STRIPE_WEBHOOK_SECRET", "whsec_1")

	cfg, err := configFrom(v)
	require.NoError(t, err)
	assert.Equal(t, uint16(8080), cfg.Port)
	assert.Equal(t, "https://api.qitchen.test", cfg.BaseURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "prod", cfg.Env)
	assert.True(t, cfg.Stripe.Enabled())
}

func TestConfigFrom_ProductionRequiresDatabase(t *testing.T) {
	v := newViper()
	v.Set("ENV", "prod")

	_, err := configFrom(v)
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestConfigFrom_ProductionRequiresWebhookSecrets(t *testing.T) {
	v := newViper()
	v.Set("ENV", "prod")
	v.Set("DATABASE_URL", "postgres://localhost/qitchen")
	v.Set("PAYMOB_SECRET_KEY", "sk")

	_, err := configFrom(v)
	assert.ErrorContains(t, err, "PAYMOB_HMAC_SECRET")
}

func TestClampGatewayTimeout(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{0, 10 * time.Second},
		{5 * time.Second, 10 * time.Second},
		{15 * time.Second, 15 * time.Second},
		{time.Minute, 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, ClampGatewayTimeout(tt.in))
		})
	}
}
