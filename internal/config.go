package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Gateway call timeouts are clamped to this range.
const (
	MinGatewayTimeout = 10 * time.Second
	MaxGatewayTimeout = 30 * time.Second
)

type Config struct {
	Env         string
	LogLevel    string
	Port        uint16
	BaseURL     string
	FrontendURL string

	// DatabaseUrl selects the Postgres store; empty runs on the in-memory store.
	DatabaseUrl string
	// RedisURL enables the shared cache; empty disables caching and dedupe.
	RedisURL string
	// NatsURL enables order events; empty disables publishing.
	NatsURL string

	Stripe StripeConfig
	Paymob PaymobConfig
	Sentry SentryConfig

	GatewayTimeout  time.Duration
	ReservationSlot time.Duration
	StaleOrderAfter time.Duration
	SweepInterval   time.Duration
	SweepBatch      int
	SweepWorkers    int

	RateLimitRPS   float64
	RateLimitBurst int

	MetricsNamespace string
	CacheNamespace   string
	EventsPrefix     string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// Enabled reports whether the card gateway has credentials.
func (c StripeConfig) Enabled() bool {
	return c.SecretKey != "" && c.WebhookSecret != ""
}

type PaymobConfig struct {
	BaseURL    string
	APIKey     string
	SecretKey  string
	PublicKey  string
	HMACSecret string
}

// Enabled reports whether the aggregator has credentials.
func (c PaymobConfig) Enabled() bool {
	return c.SecretKey != "" && c.PublicKey != "" && c.HMACSecret != ""
}

// SentryConfig holds configuration for Sentry error tracking
type SentryConfig struct {
	DSN              string
	Enabled          bool
	Environment      string
	Release          string
	SampleRate       float64
	TracesSampleRate float64
	Debug            bool
}

func NewConfig() (*Config, error) {
	// Try to load .env from current directory, then walk up to find it (max 2 levels)
	err := godotenv.Load()
	if err != nil {
		dir, _ := os.Getwd()
		found := false
		for i := 0; i < 2; i++ {
			dir = filepath.Join(dir, "..")
			if err := godotenv.Load(filepath.Join(dir, ".env")); err == nil {
				found = true
				break
			}
		}
		if !found {
			slog.Default().Warn("Warning: .env file not found, using environment variables and defaults")
		}
	}

	return configFrom(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("ENV", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PORT", 3000)
	v.SetDefault("BASE_URL", "http://localhost:3000")
	v.SetDefault("FRONTEND_URL", "http://localhost:5173")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("NATS_URL", "")

	v.SetDefault("STRIPE_SECRET_KEY", "")
	v.SetDefault("STRIPE_WEBHOOK_SECRET", "")
	v.SetDefault("PAYMOB_BASE_URL", "https://accept.paymob.com")
	v.SetDefault("PAYMOB_API_KEY", "")
	v.SetDefault("PAYMOB_SECRET_KEY", "")
	v.SetDefault("PAYMOB_PUBLIC_KEY", "")
	v.SetDefault("PAYMOB_HMAC_SECRET", "")

	v.SetDefault("SENTRY_DSN", "")
	v.SetDefault("SENTRY_ENABLED", false)
	v.SetDefault("SENTRY_ENVIRONMENT", "development")
	v.SetDefault("SENTRY_RELEASE", "")
	v.SetDefault("SENTRY_SAMPLE_RATE", 1.0)
	v.SetDefault("SENTRY_TRACES_SAMPLE_RATE", 0.0)
	v.SetDefault("SENTRY_DEBUG", false)

	v.SetDefault("GATEWAY_TIMEOUT", "20s")
	v.SetDefault("RESERVATION_SLOT", "1h")
	v.SetDefault("STALE_ORDER_AFTER", "24h")
	v.SetDefault("SWEEP_INTERVAL", "10m")
	v.SetDefault("SWEEP_BATCH", 100)
	v.SetDefault("SWEEP_WORKERS", 4)
	v.SetDefault("RATE_LIMIT_RPS", 10.0)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("METRICS_NAMESPACE", "qitchen")
	v.SetDefault("CACHE_NAMESPACE", "qitchen")
	v.SetDefault("EVENTS_PREFIX", "")
	return v
}

func configFrom(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Env:         v.GetString("ENV"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		Port:        uint16(v.GetUint("PORT")),
		BaseURL:     strings.TrimRight(v.GetString("BASE_URL"), "/"),
		FrontendURL: strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),
		DatabaseUrl: v.GetString("DATABASE_URL"),
		RedisURL:    v.GetString("REDIS_URL"),
		NatsURL:     v.GetString("NATS_URL"),
		Stripe: StripeConfig{
			SecretKey:     v.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
		},
		Paymob: PaymobConfig{
			BaseURL:    v.GetString("PAYMOB_BASE_URL"),
			APIKey:     v.GetString("PAYMOB_API_KEY"),
			SecretKey:  v.GetString("PAYMOB_SECRET_KEY"),
			PublicKey:  v.GetString("PAYMOB_PUBLIC_KEY"),
			HMACSecret: v.GetString("PAYMOB_HMAC_SECRET"),
		},
		Sentry: SentryConfig{
			DSN:              v.GetString("SENTRY_DSN"),
			Enabled:          v.GetBool("SENTRY_ENABLED"),
			Environment:      v.GetString("SENTRY_ENVIRONMENT"),
			Release:          v.GetString("SENTRY_RELEASE"),
			SampleRate:       v.GetFloat64("SENTRY_SAMPLE_RATE"),
			TracesSampleRate: v.GetFloat64("SENTRY_TRACES_SAMPLE_RATE"),
			Debug:            v.GetBool("SENTRY_DEBUG"),
		},
		GatewayTimeout:   v.GetDuration("GATEWAY_TIMEOUT"),
		ReservationSlot:  v.GetDuration("RESERVATION_SLOT"),
		StaleOrderAfter:  v.GetDuration("STALE_ORDER_AFTER"),
		SweepInterval:    v.GetDuration("SWEEP_INTERVAL"),
		SweepBatch:       v.GetInt("SWEEP_BATCH"),
		SweepWorkers:     v.GetInt("SWEEP_WORKERS"),
		RateLimitRPS:     v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst:   v.GetInt("RATE_LIMIT_BURST"),
		MetricsNamespace: v.GetString("METRICS_NAMESPACE"),
		CacheNamespace:   v.GetString("CACHE_NAMESPACE"),
		EventsPrefix:     v.GetString("EVENTS_PREFIX"),
	}

	// Validate env
	validEnv := cfg.Env == "dev" || cfg.Env == "prod"
	if !validEnv {
		slog.Default().Warn("Invalid environment. Using default: prod", slog.String("env", cfg.Env))
		cfg.Env = "prod"
	}

	// Validate log level
	if _, ok := ParseLevel(cfg.LogLevel); !ok {
		slog.Default().Warn("Invalid log level. Using default: info", slog.String("value", cfg.LogLevel))
		cfg.LogLevel = "info"
	}

	cfg.GatewayTimeout = ClampGatewayTimeout(cfg.GatewayTimeout)

	if cfg.ReservationSlot <= 0 {
		return nil, fmt.Errorf("RESERVATION_SLOT must be positive, got %s", cfg.ReservationSlot)
	}
	if cfg.StaleOrderAfter <= 0 || cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("STALE_ORDER_AFTER and SWEEP_INTERVAL must be positive")
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 100
	}
	if cfg.SweepWorkers <= 0 {
		cfg.SweepWorkers = 1
	}

	if cfg.Env == "prod" {
		if cfg.DatabaseUrl == "" {
			return nil, fmt.Errorf("DATABASE_URL must be set in production environment")
		}
		if cfg.Stripe.SecretKey != "" && cfg.Stripe.WebhookSecret == "" {
			return nil, fmt.Errorf("STRIPE_WEBHOOK_SECRET required when STRIPE_SECRET_KEY is set")
		}
		if cfg.Paymob.SecretKey != "" && cfg.Paymob.HMACSecret == "" {
			return nil, fmt.Errorf("PAYMOB_HMAC_SECRET required when PAYMOB_SECRET_KEY is set")
		}
	}

	return cfg, nil
}

// ClampGatewayTimeout bounds d to [MinGatewayTimeout, MaxGatewayTimeout].
func ClampGatewayTimeout(d time.Duration) time.Duration {
	switch {
	case d < MinGatewayTimeout:
		return MinGatewayTimeout
	case d > MaxGatewayTimeout:
		return MaxGatewayTimeout
	}
	return d
}
