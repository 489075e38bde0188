package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/xhaelri/qitchen/internal/domain"
)

// MethodStore is the payment method repository.
type MethodStore interface {
	GetPaymentMethodByName(ctx context.Context, name domain.PaymentMethodName) (*domain.PaymentMethod, error)
	ListPaymentMethods(ctx context.Context) ([]*domain.PaymentMethod, error)
	UpsertPaymentMethod(ctx context.Context, m *domain.PaymentMethod) error
}

// Methods is the payment method registry.
type Methods struct {
	store MethodStore
}

// NewMethods creates a registry over store.
func NewMethods(store MethodStore) *Methods {
	return &Methods{store: store}
}

// Active returns the method named name if it exists and is enabled.
func (m *Methods) Active(ctx context.Context, name domain.PaymentMethodName) (*domain.PaymentMethod, error) {
	const op = "payment.method"
	if !name.Valid() {
		return nil, domain.WithOp(domain.ErrUnsupportedPaymentMethod, op)
	}
	pm, err := m.store.GetPaymentMethodByName(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentMethodNotFound) || domain.IsCode(err, domain.ENOTFOUND) {
			return nil, domain.WithOp(domain.ErrPaymentMethodNotFound, op)
		}
		return nil, domain.Internal(err, op, "failed to load payment method")
	}
	if !pm.IsActive {
		return nil, domain.WithOp(domain.ErrPaymentMethodDisabled, op)
	}
	return pm, nil
}

// IsActive reports whether name may be used for new orders.
func (m *Methods) IsActive(ctx context.Context, name domain.PaymentMethodName) (bool, error) {
	_, err := m.Active(ctx, name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrPaymentMethodDisabled), errors.Is(err, domain.ErrPaymentMethodNotFound):
		return false, nil
	}
	return false, err
}

// ResolveID returns the registry id of an active method.
func (m *Methods) ResolveID(ctx context.Context, name domain.PaymentMethodName) (uuid.UUID, error) {
	pm, err := m.Active(ctx, name)
	if err != nil {
		return uuid.Nil, err
	}
	return pm.ID, nil
}

// List returns registry entries, optionally only the active ones.
func (m *Methods) List(ctx context.Context, activeOnly bool) ([]*domain.PaymentMethod, error) {
	all, err := m.store.ListPaymentMethods(ctx)
	if err != nil {
		return nil, domain.Internal(err, "payment.listMethods", "failed to list payment methods")
	}
	if !activeOnly {
		return all, nil
	}
	out := make([]*domain.PaymentMethod, 0, len(all))
	for _, pm := range all {
		if pm.IsActive {
			out = append(out, pm)
		}
	}
	return out, nil
}

// Update changes the display fields and the active flag of a method.
func (m *Methods) Update(ctx context.Context, pm *domain.PaymentMethod) error {
	const op = "payment.updateMethod"
	if !pm.Name.Valid() {
		return domain.WithOp(domain.ErrUnsupportedPaymentMethod, op)
	}
	pm.Provider = pm.Name.Provider()
	if err := m.store.UpsertPaymentMethod(ctx, pm); err != nil {
		return domain.Internal(err, op, "failed to save payment method")
	}
	return nil
}
