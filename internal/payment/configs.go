package payment

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xhaelri/qitchen/internal/cache"
	"github.com/xhaelri/qitchen/internal/domain"
)

const configCacheTTL = 5 * time.Minute

// ConfigStore is the provider config repository.
type ConfigStore interface {
	GetProviderConfig(ctx context.Context, provider domain.Provider) (*domain.ProviderConfig, error)
	SaveProviderConfig(ctx context.Context, cfg *domain.ProviderConfig) error
}

// Configs loads provider configs through a read-through cache. Cache
// failures are logged and fall back to the store.
type Configs struct {
	store     ConfigStore
	cache     cache.Cache
	namespace string
	logger    *slog.Logger
}

// NewConfigs creates a config source. c may be nil to disable caching.
func NewConfigs(store ConfigStore, c cache.Cache, namespace string, logger *slog.Logger) *Configs {
	if logger == nil {
		logger = slog.Default()
	}
	return &Configs{store: store, cache: c, namespace: namespace, logger: logger}
}

func (c *Configs) key(p domain.Provider) string {
	return cache.Key(c.namespace, "provider-config", string(p))
}

// Lookup returns the stored config for p, or ErrProviderConfigNotFound.
func (c *Configs) Lookup(ctx context.Context, p domain.Provider) (*domain.ProviderConfig, error) {
	if c.cache != nil {
		raw, ok, err := c.cache.Get(ctx, c.key(p))
		if err != nil {
			c.logger.Warn("provider config cache read failed", "provider", p, "error", err)
		} else if ok {
			var cfg domain.ProviderConfig
			if err := json.Unmarshal(raw, &cfg); err == nil {
				return &cfg, nil
			}
		}
	}

	cfg, err := c.store.GetProviderConfig(ctx, p)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if raw, err := json.Marshal(cfg); err == nil {
			if err := c.cache.Set(ctx, c.key(p), raw, configCacheTTL); err != nil {
				c.logger.Warn("provider config cache write failed", "provider", p, "error", err)
			}
		}
	}
	return cfg, nil
}

// Get returns the active config for p. A missing or inactive config is
// ErrGatewayNotConfigured.
func (c *Configs) Get(ctx context.Context, p domain.Provider) (*domain.ProviderConfig, error) {
	const op = "payment.config"
	cfg, err := c.Lookup(ctx, p)
	if err != nil {
		if errors.Is(err, domain.ErrProviderConfigNotFound) || domain.IsCode(err, domain.ENOTFOUND) {
			return nil, domain.WithOp(domain.ErrGatewayNotConfigured, op)
		}
		return nil, domain.Internal(err, op, "failed to load provider config")
	}
	if !cfg.IsActive {
		return nil, domain.WithOp(domain.ErrGatewayNotConfigured, op)
	}
	return cfg, nil
}

// Save validates and stores cfg, then drops the cached copy.
func (c *Configs) Save(ctx context.Context, cfg *domain.ProviderConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := c.store.SaveProviderConfig(ctx, cfg); err != nil {
		return domain.Internal(err, "payment.saveConfig", "failed to save provider config")
	}
	if c.cache != nil {
		if err := c.cache.Delete(ctx, c.key(cfg.Provider)); err != nil {
			c.logger.Warn("provider config cache invalidation failed", "provider", cfg.Provider, "error", err)
		}
	}
	return nil
}

// FreeDeliveryThreshold returns the largest threshold across active gateway
// configs. Zero means no threshold is configured.
func (c *Configs) FreeDeliveryThreshold(ctx context.Context) (decimal.Decimal, error) {
	threshold := decimal.Zero
	for _, p := range domain.Gateways {
		cfg, err := c.Get(ctx, p)
		if err != nil {
			if errors.Is(err, domain.ErrGatewayNotConfigured) {
				continue
			}
			return decimal.Zero, err
		}
		if cfg.FreeDeliveryThreshold.GreaterThan(threshold) {
			threshold = cfg.FreeDeliveryThreshold
		}
	}
	return threshold, nil
}
