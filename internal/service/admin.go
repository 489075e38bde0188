package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xhaelri/qitchen/internal/domain"
	"github.com/xhaelri/qitchen/internal/payment"
)

// AdminService manages the payment registry, provider policy and the
// catalog data pricing reads. Every method requires an admin caller.
type AdminService interface {
	GetProviderConfig(ctx context.Context, provider domain.Provider) (*domain.ProviderConfig, error)
	SaveProviderConfig(ctx context.Context, cfg *domain.ProviderConfig) (*domain.ProviderConfig, error)

	ListPaymentMethods(ctx context.Context) ([]*domain.PaymentMethod, error)
	UpdatePaymentMethod(ctx context.Context, name domain.PaymentMethodName, params UpdatePaymentMethodParams) (*domain.PaymentMethod, error)

	CreateGlobalDiscount(ctx context.Context, d *domain.GlobalDiscount) (*domain.GlobalDiscount, error)
	CreateCategoryDiscount(ctx context.Context, d *domain.CategoryDiscount) (*domain.CategoryDiscount, error)
	CreateCoupon(ctx context.Context, c *domain.Coupon) (*domain.Coupon, error)

	UpsertProduct(ctx context.Context, p *domain.Product) (*domain.Product, error)
	UpsertTable(ctx context.Context, t *domain.Table) (*domain.Table, error)
	UpsertDeliveryLocation(ctx context.Context, l *domain.DeliveryLocation) (*domain.DeliveryLocation, error)
}

// UpdatePaymentMethodParams are the editable registry fields; nil leaves a
// field unchanged.
type UpdatePaymentMethodParams struct {
	IsActive    *bool
	DisplayName *string
	Description *string
	Icon        *string
	SortOrder   *int
}

type adminService struct {
	store   domain.Store
	configs *payment.Configs
	methods *payment.Methods
	logger  *slog.Logger
	now     func() time.Time
}

// NewAdminService creates a new AdminService instance
func NewAdminService(store domain.Store, configs *payment.Configs, methods *payment.Methods, logger *slog.Logger) AdminService {
	if logger == nil {
		logger = slog.Default()
	}
	return &adminService{
		store:   store,
		configs: configs,
		methods: methods,
		logger:  logger,
		now:     time.Now,
	}
}

func requireAdmin(ctx context.Context, op string) (*domain.User, error) {
	user := domain.UserFromContext(ctx)
	if user == nil {
		return nil, domain.WithOp(ErrIdentityRequired, op)
	}
	if !user.IsAdmin() {
		return nil, domain.WithOp(ErrAdminRequired, op)
	}
	return user, nil
}

// GetProviderConfig returns the stored config, or the inactive defaults when
// none was saved yet.
func (s *adminService) GetProviderConfig(ctx context.Context, provider domain.Provider) (*domain.ProviderConfig, error) {
	const op = "admin.getProviderConfig"
	if _, err := requireAdmin(ctx, op); err != nil {
		return nil, err
	}
	if !isGateway(provider) {
		return nil, domain.Errorf(domain.EINVALID, op, "Unknown provider %q", provider)
	}
	cfg, err := s.configs.Lookup(ctx, provider)
	if err != nil {
		if errors.Is(err, domain.ErrProviderConfigNotFound) || domain.IsCode(err, domain.ENOTFOUND) {
			return domain.DefaultProviderConfig(provider), nil
		}
		return nil, err
	}
	return cfg, nil
}

func (s *adminService) SaveProviderConfig(ctx context.Context, cfg *domain.ProviderConfig) (*domain.ProviderConfig, error) {
	const op = "admin.saveProviderConfig"
	user, err := requireAdmin(ctx, op)
	if err != nil {
		return nil, err
	}
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if err := s.configs.Save(ctx, cfg); err != nil {
		return nil, err
	}
	cfg.UpdatedAt = s.now()
	s.logger.InfoContext(ctx, "provider config updated",
		"provider", cfg.Provider,
		"is_active", cfg.IsActive,
		"admin_id", user.ID,
	)
	return cfg, nil
}

func (s *adminService) ListPaymentMethods(ctx context.Context) ([]*domain.PaymentMethod, error) {
	if _, err := requireAdmin(ctx, "admin.listPaymentMethods"); err != nil {
		return nil, err
	}
	return s.methods.List(ctx, false)
}

func (s *adminService) UpdatePaymentMethod(ctx context.Context, name domain.PaymentMethodName, params UpdatePaymentMethodParams) (*domain.PaymentMethod, error) {
	const op = "admin.updatePaymentMethod"
	user, err := requireAdmin(ctx, op)
	if err != nil {
		return nil, err
	}
	if !name.Valid() {
		return nil, domain.WithOp(domain.ErrUnsupportedPaymentMethod, op)
	}
	pm, err := s.store.GetPaymentMethodByName(ctx, name)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			return nil, domain.WithOp(domain.ErrPaymentMethodNotFound, op)
		}
		return nil, domain.Internal(err, op, "failed to load payment method")
	}

	if params.IsActive != nil {
		pm.IsActive = *params.IsActive
	}
	if params.DisplayName != nil {
		pm.DisplayName = strings.TrimSpace(*params.DisplayName)
	}
	if params.Description != nil {
		pm.Description = *params.Description
	}
	if params.Icon != nil {
		pm.Icon = *params.Icon
	}
	if params.SortOrder != nil {
		pm.SortOrder = *params.SortOrder
	}
	pm.UpdatedAt = s.now()

	if err := s.methods.Update(ctx, pm); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "payment method updated", "method", pm.Name, "is_active", pm.IsActive, "admin_id", user.ID)
	return pm, nil
}

func (s *adminService) CreateGlobalDiscount(ctx context.Context, d *domain.GlobalDiscount) (*domain.GlobalDiscount, error) {
	const op = "admin.createGlobalDiscount"
	if _, err := requireAdmin(ctx, op); err != nil {
		return nil, err
	}
	if err := domain.ValidatePercentage(op, d.Percentage); err != nil {
		return nil, err
	}
	if !d.Window.Valid() {
		return nil, domain.NewValidationError(op, "window", "end must not be before start")
	}
	d.ID = uuid.New()
	d.CreatedAt = s.now()
	if err := s.store.CreateGlobalDiscount(ctx, d); err != nil {
		if errors.Is(err, domain.ErrOverlappingGlobalDiscount) {
			return nil, domain.WithOp(domain.ErrOverlappingGlobalDiscount, op)
		}
		return nil, domain.Internal(err, op, "failed to create global discount")
	}
	return d, nil
}

func (s *adminService) CreateCategoryDiscount(ctx context.Context, d *domain.CategoryDiscount) (*domain.CategoryDiscount, error) {
	const op = "admin.createCategoryDiscount"
	if _, err := requireAdmin(ctx, op); err != nil {
		return nil, err
	}
	if d.CategoryID == uuid.Nil {
		return nil, domain.NewValidationError(op, "categoryId", "is required")
	}
	if err := domain.ValidatePercentage(op, d.Percentage); err != nil {
		return nil, err
	}
	if !d.Window.Valid() {
		return nil, domain.NewValidationError(op, "window", "end must not be before start")
	}
	d.ID = uuid.New()
	d.CreatedAt = s.now()
	if err := s.store.CreateCategoryDiscount(ctx, d); err != nil {
		return nil, domain.Internal(err, op, "failed to create category discount")
	}
	return d, nil
}

func (s *adminService) CreateCoupon(ctx context.Context, c *domain.Coupon) (*domain.Coupon, error) {
	const op = "admin.createCoupon"
	if _, err := requireAdmin(ctx, op); err != nil {
		return nil, err
	}
	c.Code = domain.NormalizeCouponCode(c.Code)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.ID = uuid.New()
	c.UsedCount = 0
	c.CreatedAt = s.now()
	if err := s.store.CreateCoupon(ctx, c); err != nil {
		if errors.Is(err, domain.ErrCouponCodeTaken) {
			return nil, domain.WithOp(domain.ErrCouponCodeTaken, op)
		}
		return nil, domain.Internal(err, op, "failed to create coupon")
	}
	return c, nil
}

func (s *adminService) UpsertProduct(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	const op = "admin.upsertProduct"
	if _, err := requireAdmin(ctx, op); err != nil {
		return nil, err
	}
	var verr error
	if strings.TrimSpace(p.Name) == "" {
		verr = domain.AddFieldError(verr, "name", "is required")
	}
	if !p.Price.IsPositive() {
		verr = domain.AddFieldError(verr, "price", "must be positive")
	}
	if p.IsDiscountActive && (!p.DiscountPercentage.IsPositive() || p.DiscountPercentage.GreaterThan(decimal.NewFromInt(100))) {
		verr = domain.AddFieldError(verr, "discountPercentage", "must be greater than 0 and at most 100")
	}
	if verr != nil {
		return nil, verr
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if err := s.store.UpsertProduct(ctx, p); err != nil {
		return nil, domain.Internal(err, op, "failed to save product")
	}
	return p, nil
}

func (s *adminService) UpsertTable(ctx context.Context, t *domain.Table) (*domain.Table, error) {
	const op = "admin.upsertTable"
	if _, err := requireAdmin(ctx, op); err != nil {
		return nil, err
	}
	if t.Number < 1 {
		return nil, domain.NewValidationError(op, "number", "must be positive")
	}
	if t.Capacity < 1 {
		return nil, domain.NewValidationError(op, "capacity", "must be positive")
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if err := s.store.UpsertTable(ctx, t); err != nil {
		return nil, domain.Internal(err, op, "failed to save table")
	}
	return t, nil
}

func (s *adminService) UpsertDeliveryLocation(ctx context.Context, l *domain.DeliveryLocation) (*domain.DeliveryLocation, error) {
	const op = "admin.upsertDeliveryLocation"
	if _, err := requireAdmin(ctx, op); err != nil {
		return nil, err
	}
	l.Governorate = strings.TrimSpace(l.Governorate)
	l.City = strings.TrimSpace(l.City)
	var verr error
	if l.Governorate == "" {
		verr = domain.AddFieldError(verr, "governorate", "is required")
	}
	if l.City == "" {
		verr = domain.AddFieldError(verr, "city", "is required")
	}
	if l.Fee.IsNegative() {
		verr = domain.AddFieldError(verr, "fee", "must not be negative")
	}
	if verr != nil {
		return nil, verr
	}
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.UpdatedAt = s.now()
	if err := s.store.UpsertDeliveryLocation(ctx, l); err != nil {
		return nil, domain.Internal(err, op, "failed to save delivery location")
	}
	return l, nil
}

func isGateway(p domain.Provider) bool {
	for _, g := range domain.Gateways {
		if g == p {
			return true
		}
	}
	return false
}
