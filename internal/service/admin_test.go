package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhaelri/qitchen/internal/domain"
)

func TestAdminService_RequiresAdmin(t *testing.T) {
	h := newHarness(t)

	_, err := h.admin.ListPaymentMethods(h.as(h.customer))
	assert.ErrorIs(t, err, ErrAdminRequired)

	_, err = h.admin.GetProviderConfig(h.as(h.customer), domain.ProviderStripe)
	assert.ErrorIs(t, err, ErrAdminRequired)
}

func TestAdminService_ProviderConfig(t *testing.T) {
	h := newHarness(t)
	ctx := h.as(h.operator)

	_, err := h.admin.GetProviderConfig(ctx, domain.ProviderInternal)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	cfg, err := h.admin.GetProviderConfig(ctx, domain.ProviderStripe)
	require.NoError(t, err)
	assert.True(t, cfg.IsActive)

	cfg.Currency = " usd "
	cfg.AutoRefundOnCancel = true
	saved, err := h.admin.SaveProviderConfig(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, "USD", saved.Currency)

	reread, err := h.admin.GetProviderConfig(ctx, domain.ProviderStripe)
	require.NoError(t, err)
	assert.Equal(t, "USD", reread.Currency)
	assert.True(t, reread.AutoRefundOnCancel)
}

func TestAdminService_UpdatePaymentMethod(t *testing.T) {
	h := newHarness(t)
	ctx := h.as(h.operator)

	off := false
	name := "Pay at the door"
	pm, err := h.admin.UpdatePaymentMethod(ctx, domain.MethodCOD, UpdatePaymentMethodParams{IsActive: &off, DisplayName: &name})
	require.NoError(t, err)
	assert.False(t, pm.IsActive)
	assert.Equal(t, "Pay at the door", pm.DisplayName)

	all, err := h.admin.ListPaymentMethods(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(domain.PaymentMethodNames()))

	_, err = h.admin.UpdatePaymentMethod(ctx, "Barter", UpdatePaymentMethodParams{IsActive: &off})
	assert.ErrorIs(t, err, domain.ErrUnsupportedPaymentMethod)
}

func TestAdminService_Discounts(t *testing.T) {
	h := newHarness(t)
	ctx := h.as(h.operator)
	start, end := testNow, testNow.Add(48*time.Hour)

	_, err := h.admin.CreateGlobalDiscount(ctx, &domain.GlobalDiscount{
		Percentage: dec("10"),
		IsActive:   true,
		Window:     domain.Window{StartsAt: &start, EndsAt: &end},
	})
	require.NoError(t, err)

	overlapStart := testNow.Add(24 * time.Hour)
	_, err = h.admin.CreateGlobalDiscount(ctx, &domain.GlobalDiscount{
		Percentage: dec("5"),
		IsActive:   true,
		Window:     domain.Window{StartsAt: &overlapStart},
	})
	assert.ErrorIs(t, err, domain.ErrOverlappingGlobalDiscount)

	_, err = h.admin.CreateCategoryDiscount(ctx, &domain.CategoryDiscount{Percentage: dec("10"), IsActive: true})
	assert.True(t, domain.IsValidationError(err))

	_, err = h.admin.CreateCategoryDiscount(ctx, &domain.CategoryDiscount{CategoryID: h.burger.CategoryID, Percentage: dec("150"), IsActive: true})
	assert.Error(t, err)

	d, err := h.admin.CreateCategoryDiscount(ctx, &domain.CategoryDiscount{CategoryID: h.burger.CategoryID, Percentage: dec("25"), IsActive: true})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, d.ID)

	// Category discounts take priority over the global one.
	v, err := h.carts.AddItem(h.as(h.customer), h.burger.ID, 1)
	require.NoError(t, err)
	assert.True(t, dec("30").Equal(v.Total), "total = %s", v.Total)
}

func TestAdminService_CreateCoupon(t *testing.T) {
	h := newHarness(t)
	ctx := h.as(h.operator)

	c, err := h.admin.CreateCoupon(ctx, &domain.Coupon{
		Code:            " welcome ",
		Type:            domain.CouponPercentage,
		Value:           dec("10"),
		MaxUsagePerUser: 1,
		IsActive:        true,
		IsGlobal:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, "WELCOME", c.Code)

	_, err = h.admin.CreateCoupon(ctx, &domain.Coupon{
		Code: "Welcome", Type: domain.CouponFixed, Value: dec("5"), MaxUsagePerUser: 1, IsActive: true, IsGlobal: true,
	})
	assert.ErrorIs(t, err, domain.ErrCouponCodeTaken)

	_, err = h.admin.CreateCoupon(ctx, &domain.Coupon{Code: "BAD", Type: domain.CouponPercentage, Value: dec("120"), IsActive: true})
	assert.Error(t, err)
}

func TestAdminService_Catalog(t *testing.T) {
	h := newHarness(t)
	ctx := h.as(h.operator)

	_, err := h.admin.UpsertProduct(ctx, &domain.Product{Name: "", Price: dec("0")})
	fields := domain.GetValidationFields(err)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "price")

	p, err := h.admin.UpsertProduct(ctx, &domain.Product{Name: "Shawarma", CategoryID: uuid.New(), Price: dec("55"), IsAvailable: true})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, p.ID)

	_, err = h.admin.UpsertTable(ctx, &domain.Table{Number: 0, Capacity: 2})
	assert.True(t, domain.IsValidationError(err))

	tbl, err := h.admin.UpsertTable(ctx, &domain.Table{Number: 12, Capacity: 6, IsActive: true})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, tbl.ID)

	_, err = h.admin.UpsertDeliveryLocation(ctx, &domain.DeliveryLocation{Governorate: "Giza", Fee: dec("-1")})
	fields = domain.GetValidationFields(err)
	assert.Contains(t, fields, "city")
	assert.Contains(t, fields, "fee")

	_, err = h.admin.UpsertDeliveryLocation(ctx, &domain.DeliveryLocation{Governorate: "Giza", City: "Dokki", Fee: dec("25"), IsActive: true})
	require.NoError(t, err)

	params := h.online(domain.MethodCOD)
	params.AddressID = nil
	params.Governorate = "Giza"
	params.City = "Dokki"
	res, err := h.orders.CreateOrder(h.as(h.customer), params)
	require.NoError(t, err)
	assert.True(t, dec("25").Equal(res.Order.DeliveryFee))
}
