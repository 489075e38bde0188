package postgres

import (
	"context"

	"github.com/xhaelri/qitchen/internal/domain"
)

// =============================================================================
// PAYMENT METHODS
// =============================================================================

const paymentMethodColumns = `id, name, provider, is_active, display_name, description, icon, sort_order, updated_at`

func scanPaymentMethod(row scanner) (*domain.PaymentMethod, error) {
	var (
		m              domain.PaymentMethod
		name, provider string
	)
	err := row.Scan(&m.ID, &name, &provider, &m.IsActive, &m.DisplayName, &m.Description, &m.Icon, &m.SortOrder, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Name = domain.PaymentMethodName(name)
	m.Provider = domain.Provider(provider)
	return &m, nil
}

func (s *Store) GetPaymentMethodByName(ctx context.Context, name domain.PaymentMethodName) (*domain.PaymentMethod, error) {
	m, err := scanPaymentMethod(s.db.QueryRow(ctx,
		`SELECT `+paymentMethodColumns+` FROM payment_methods WHERE name = $1`, string(name)))
	if err != nil {
		return nil, mapError(err, "postgres.getPaymentMethodByName", domain.ErrPaymentMethodNotFound)
	}
	return m, nil
}

func (s *Store) ListPaymentMethods(ctx context.Context) ([]*domain.PaymentMethod, error) {
	const op = "postgres.listPaymentMethods"
	rows, err := s.db.Query(ctx, `SELECT `+paymentMethodColumns+` FROM payment_methods ORDER BY sort_order, name`)
	if err != nil {
		return nil, mapError(err, op, nil)
	}
	defer rows.Close()

	var out []*domain.PaymentMethod
	for rows.Next() {
		m, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, mapError(err, op, nil)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, op, nil)
	}
	return out, nil
}

// UpsertPaymentMethod writes m keyed by name. An existing row keeps its id.
func (s *Store) UpsertPaymentMethod(ctx context.Context, m *domain.PaymentMethod) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO payment_methods (`+paymentMethodColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (name) DO UPDATE SET
			provider = EXCLUDED.provider,
			is_active = EXCLUDED.is_active,
			display_name = EXCLUDED.display_name,
			description = EXCLUDED.description,
			icon = EXCLUDED.icon,
			sort_order = EXCLUDED.sort_order,
			updated_at = EXCLUDED.updated_at`,
		m.ID, string(m.Name), string(m.Provider), m.IsActive, m.DisplayName, m.Description, m.Icon, m.SortOrder, s.now())
	return mapError(err, "postgres.upsertPaymentMethod", nil)
}

// =============================================================================
// PROVIDER CONFIGS
// =============================================================================

func (s *Store) GetProviderConfig(ctx context.Context, provider domain.Provider) (*domain.ProviderConfig, error) {
	const op = "postgres.getProviderConfig"
	var raw []byte
	err := s.db.QueryRow(ctx, `SELECT config FROM provider_configs WHERE provider = $1`, string(provider)).Scan(&raw)
	if err != nil {
		return nil, mapError(err, op, domain.ErrProviderConfigNotFound)
	}
	cfg, err := decodeJSON[domain.ProviderConfig](raw)
	if err != nil {
		return nil, domain.Internal(err, op, "decode provider config")
	}
	if cfg == nil {
		return nil, domain.WithOp(domain.ErrProviderConfigNotFound, op)
	}
	cfg.Provider = provider
	return cfg, nil
}

func (s *Store) SaveProviderConfig(ctx context.Context, cfg *domain.ProviderConfig) error {
	const op = "postgres.saveProviderConfig"
	cp := *cfg
	cp.UpdatedAt = s.now()
	raw, err := jsonValue(cp)
	if err != nil {
		return domain.Internal(err, op, "encode provider config")
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO provider_configs (provider, config, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider) DO UPDATE SET config = EXCLUDED.config, updated_at = EXCLUDED.updated_at`,
		string(cfg.Provider), raw, cp.UpdatedAt)
	return mapError(err, op, nil)
}
