package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhaelri/qitchen/internal/billing"
	"github.com/xhaelri/qitchen/internal/cache"
	"github.com/xhaelri/qitchen/internal/domain"
	"github.com/xhaelri/qitchen/internal/memory"
)

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type harness struct {
	store    *memory.Store
	configs  *Configs
	stripe   *billing.MockStripe
	paymob   *billing.MockPaymob
	selector *Selector
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()

	stripeCfg := domain.DefaultProviderConfig(domain.ProviderStripe)
	stripeCfg.IsActive = true
	stripeCfg.MaxOrderAmount = d("10000")
	stripeCfg.FreeDeliveryThreshold = d("300")
	require.NoError(t, store.SaveProviderConfig(ctx, stripeCfg))

	paymobCfg := domain.DefaultProviderConfig(domain.ProviderPaymob)
	paymobCfg.IsActive = true
	paymobCfg.FreeDeliveryThreshold = d("500")
	paymobCfg.Paymob.Integrations = map[domain.PaymentMethodName]int64{
		domain.MethodPaymobCard:        4455,
		domain.MethodPaymobInstallment: 4457,
	}
	paymobCfg.Paymob.MethodMinimums = map[domain.PaymentMethodName]decimal.Decimal{
		domain.MethodPaymobInstallment: d("1000"),
	}
	require.NoError(t, store.SaveProviderConfig(ctx, paymobCfg))

	h := &harness{
		store:   store,
		configs: NewConfigs(store, cache.NewMemory(), "test", logger),
		stripe:  billing.NewMockStripe(),
		paymob:  billing.NewMockPaymob(),
	}
	h.selector = NewSelector(Deps{
		Configs: h.configs,
		Stripe:  h.stripe,
		Paymob:  h.paymob,
		URLs:    URLs{FrontendURL: "https://shop.test", BaseURL: "https://api.shop.test"},
		Logger:  logger,
		Now:     func() time.Time { return testNow },
	})
	return h
}

func sampleOrder(method domain.PaymentMethodName) *domain.Order {
	return &domain.Order{
		ID:     uuid.New(),
		UserID: uuid.New(),
		Items: []domain.OrderItem{
			{ProductID: uuid.New(), Name: "Burger", Quantity: 2, BasePrice: d("50"), UnitPrice: d("45"), LineTotal: d("90")},
			{ProductID: uuid.New(), Name: "Cola", Quantity: 1, BasePrice: d("10"), UnitPrice: d("10"), LineTotal: d("10")},
		},
		Subtotal:        d("110"),
		ProductDiscount: d("10"),
		CouponDiscount:  decimal.Zero,
		DeliveryFee:     d("15"),
		TotalPrice:      d("115"),
		Currency:        "EGP",
		PaymentMethod:   method,
		Provider:        method.Provider(),
		PaymentStatus:   domain.PaymentPending,
		OrderStatus:     domain.OrderProcessing,
		PlaceType:       domain.PlaceOnline,
		Delivery:        &domain.DeliveryDetails{Governorate: "Cairo", City: "Maadi", Street: "9 Road 233", Phone: "+201000000000"},
		CreatedAt:       testNow,
	}
}

func strategy(t *testing.T, h *harness, m domain.PaymentMethodName) Strategy {
	t.Helper()
	s, err := h.selector.For(m)
	require.NoError(t, err)
	return s
}

func TestSelector(t *testing.T) {
	h := newHarness(t)

	for _, m := range domain.PaymentMethodNames() {
		s, err := h.selector.For(m)
		require.NoError(t, err, m)
		assert.Equal(t, m.Provider(), s.Provider())
	}

	_, err := h.selector.For("Bitcoin")
	assert.ErrorIs(t, err, domain.ErrUnsupportedPaymentMethod)
}

func TestMethods(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	methods := NewMethods(store)

	ok, err := methods.IsActive(ctx, domain.MethodCard)
	require.NoError(t, err)
	assert.True(t, ok)

	card, err := store.GetPaymentMethodByName(ctx, domain.MethodCard)
	require.NoError(t, err)
	card.IsActive = false
	require.NoError(t, methods.Update(ctx, card))

	ok, err = methods.IsActive(ctx, domain.MethodCard)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = methods.ResolveID(ctx, domain.MethodCard)
	assert.ErrorIs(t, err, domain.ErrPaymentMethodDisabled)

	_, err = methods.Active(ctx, "Barter")
	assert.ErrorIs(t, err, domain.ErrUnsupportedPaymentMethod)

	id, err := methods.ResolveID(ctx, domain.MethodCOD)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	active, err := methods.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, len(domain.PaymentMethodNames())-1)
}

func TestConfigs(t *testing.T) {
	ctx := context.Background()

	t.Run("missing and inactive configs are not configured", func(t *testing.T) {
		store := memory.New()
		configs := NewConfigs(store, nil, "test", nil)

		_, err := configs.Get(ctx, domain.ProviderStripe)
		assert.ErrorIs(t, err, domain.ErrGatewayNotConfigured)
		assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))

		require.NoError(t, configs.Save(ctx, domain.DefaultProviderConfig(domain.ProviderStripe)))
		_, err = configs.Get(ctx, domain.ProviderStripe)
		assert.ErrorIs(t, err, domain.ErrGatewayNotConfigured)
	})

	t.Run("save invalidates the cached copy", func(t *testing.T) {
		h := newHarness(t)

		cfg, err := h.configs.Get(ctx, domain.ProviderStripe)
		require.NoError(t, err)
		assert.True(t, cfg.MaxOrderAmount.Equal(d("10000")))

		cfg.MaxOrderAmount = d("500")
		require.NoError(t, h.configs.Save(ctx, cfg))

		cfg, err = h.configs.Get(ctx, domain.ProviderStripe)
		require.NoError(t, err)
		assert.True(t, cfg.MaxOrderAmount.Equal(d("500")))
	})

	t.Run("save rejects invalid configs", func(t *testing.T) {
		h := newHarness(t)
		cfg := domain.DefaultProviderConfig(domain.ProviderStripe)
		cfg.Currency = "EURO"
		err := h.configs.Save(ctx, cfg)
		assert.True(t, domain.IsValidationError(err))
	})

	t.Run("free delivery threshold is the max across gateways", func(t *testing.T) {
		h := newHarness(t)
		threshold, err := h.configs.FreeDeliveryThreshold(ctx)
		require.NoError(t, err)
		assert.True(t, threshold.Equal(d("500")))

		empty := NewConfigs(memory.New(), nil, "test", nil)
		threshold, err = empty.FreeDeliveryThreshold(ctx)
		require.NoError(t, err)
		assert.True(t, threshold.IsZero())
	})
}

func TestCheckRefundPolicy(t *testing.T) {
	paid := testNow.Add(-48 * time.Hour)
	o := sampleOrder(domain.MethodCard)
	o.PaidAt = &paid

	cfg := domain.DefaultProviderConfig(domain.ProviderStripe)

	cfg.RefundWindowHours = 72
	assert.NoError(t, CheckRefundPolicy(cfg, o, o.TotalPrice, testNow))

	cfg.RefundWindowHours = 24
	assert.ErrorIs(t, CheckRefundPolicy(cfg, o, o.TotalPrice, testNow), domain.ErrRefundWindowExpired)

	cfg.RefundWindowHours = 0
	assert.NoError(t, CheckRefundPolicy(cfg, o, o.TotalPrice, testNow))

	cfg.AllowPartialRefund = false
	assert.ErrorIs(t, CheckRefundPolicy(cfg, o, d("10"), testNow), domain.ErrPartialRefundNotAllowed)
	assert.NoError(t, CheckRefundPolicy(cfg, o, o.TotalPrice, testNow))
}

func TestNewCorrelationID(t *testing.T) {
	re := regexp.MustCompile(`^[A-Z0-9]{8}$`)
	seen := map[string]bool{}
	for range 50 {
		id, err := NewCorrelationID()
		require.NoError(t, err)
		assert.Regexp(t, re, id)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 45)
}

func TestGatewayLines(t *testing.T) {
	o := sampleOrder(domain.MethodCard)
	lines := gatewayLines(o)
	require.Len(t, lines, 3)
	assert.Equal(t, gatewayLine{name: "Burger", unit: 4500, quantity: 2}, lines[0])
	assert.Equal(t, gatewayLine{name: "Delivery fee", unit: 1500, quantity: 1}, lines[2])

	o.CouponDiscount = d("20")
	o.TotalPrice = d("95")
	lines = gatewayLines(o)
	require.Len(t, lines, 2)
	assert.Equal(t, int64(8000), lines[0].unit)
	assert.Equal(t, int64(1), lines[0].quantity)
}

func TestCardStrategy_CreatePayment(t *testing.T) {
	h := newHarness(t)
	s := strategy(t, h, domain.MethodCard)
	o := sampleOrder(domain.MethodCard)

	var got billing.CheckoutSessionParams
	h.stripe.CreateCheckoutSessionFunc = func(ctx context.Context, p billing.CheckoutSessionParams) (*billing.CheckoutSession, error) {
		got = p
		return &billing.CheckoutSession{ID: "cs_1", URL: "https://checkout.test/cs_1", Status: billing.SessionStatusOpen}, nil
	}

	res, err := s.CreatePayment(context.Background(), Request{Order: o, Customer: &domain.User{Email: "a@b.test"}})
	require.NoError(t, err)

	assert.Equal(t, "https://checkout.test/cs_1", res.RedirectURL)
	assert.Equal(t, "cs_1", res.Refs.StripeSessionID)
	assert.False(t, res.Settled)

	assert.Equal(t, "egp", got.Currency)
	assert.Equal(t, o.ID.String(), got.Metadata["orderId"])
	assert.Equal(t, "a@b.test", got.CustomerEmail)
	assert.Equal(t, []string{"card"}, got.PaymentMethodTypes)
	assert.Equal(t, testNow.Add(60*time.Minute), got.ExpiresAt)
	assert.Len(t, got.LineItems, 3)
	assert.Contains(t, got.SuccessURL, "https://shop.test/payment/success")
}

func TestCardStrategy_ValidateAmount(t *testing.T) {
	h := newHarness(t)
	s := strategy(t, h, domain.MethodCard)
	ctx := context.Background()

	assert.NoError(t, s.ValidateAmount(ctx, domain.MethodCard, d("110")))
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(s.ValidateAmount(ctx, domain.MethodCard, d("10000.01"))))
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(s.ValidateAmount(ctx, domain.MethodCard, decimal.Zero)))
}

func TestCardStrategy_Void(t *testing.T) {
	ctx := context.Background()

	t.Run("tolerates an already completed session", func(t *testing.T) {
		h := newHarness(t)
		s := strategy(t, h, domain.MethodCard)
		o := sampleOrder(domain.MethodCard)
		o.Payment.StripeSessionID = "cs_done"

		h.stripe.ExpireCheckoutSessionFunc = func(ctx context.Context, id string) (*billing.CheckoutSession, error) {
			return nil, &billing.StripeError{Message: "not open", StatusCode: 400}
		}
		h.stripe.GetCheckoutSessionFunc = func(ctx context.Context, id string) (*billing.CheckoutSession, error) {
			return &billing.CheckoutSession{ID: id, Status: billing.SessionStatusComplete}, nil
		}

		assert.NoError(t, s.Void(ctx, o))
	})

	t.Run("surfaces other failures as gateway errors", func(t *testing.T) {
		h := newHarness(t)
		s := strategy(t, h, domain.MethodCard)
		o := sampleOrder(domain.MethodCard)
		o.Payment.StripeSessionID = "cs_open"

		h.stripe.ExpireCheckoutSessionFunc = func(ctx context.Context, id string) (*billing.CheckoutSession, error) {
			return nil, errors.New("connection reset")
		}
		h.stripe.GetCheckoutSessionFunc = func(ctx context.Context, id string) (*billing.CheckoutSession, error) {
			return &billing.CheckoutSession{ID: id, Status: billing.SessionStatusOpen}, nil
		}

		assert.Equal(t, domain.EGATEWAY, domain.ErrorCode(s.Void(ctx, o)))
	})

	t.Run("respects allowVoid", func(t *testing.T) {
		h := newHarness(t)
		cfg, err := h.configs.Lookup(ctx, domain.ProviderStripe)
		require.NoError(t, err)
		cfg.AllowVoid = false
		require.NoError(t, h.configs.Save(ctx, cfg))

		s := strategy(t, h, domain.MethodCard)
		assert.ErrorIs(t, s.Void(ctx, sampleOrder(domain.MethodCard)), domain.ErrVoidNotAllowed)
	})
}

func TestCardStrategy_ManualCapture(t *testing.T) {
	ctx := context.Background()

	held := func() *domain.Order {
		o := sampleOrder(domain.MethodCard)
		o.Payment.StripeSessionID = "cs_held"
		o.Payment.StripePaymentIntentID = "pi_held"
		o.Payment.TransactionID = "pi_held"
		o.Payment.Authorized = true
		return o
	}

	t.Run("captures the authorized intent for the order total", func(t *testing.T) {
		h := newHarness(t)
		capturer, ok := strategy(t, h, domain.MethodCard).(Capturer)
		require.True(t, ok)

		res, err := capturer.Capture(ctx, held())
		require.NoError(t, err)
		assert.Equal(t, "pi_held", res.TransactionID)
		assert.True(t, d("115").Equal(res.Amount))
		assert.Contains(t, h.stripe.Calls(), "CapturePaymentIntent(pi_held, 11500)")
	})

	t.Run("requires an authorization", func(t *testing.T) {
		h := newHarness(t)
		capturer := strategy(t, h, domain.MethodCard).(Capturer)
		_, err := capturer.Capture(ctx, sampleOrder(domain.MethodCard))
		assert.ErrorIs(t, err, domain.ErrNothingToCapture)
	})

	t.Run("surfaces processor rejections", func(t *testing.T) {
		h := newHarness(t)
		h.stripe.CapturePaymentIntentFunc = func(ctx context.Context, params billing.CaptureParams) (*billing.PaymentIntent, error) {
			return nil, &billing.StripeError{Message: "authorization expired", StatusCode: 400}
		}
		capturer := strategy(t, h, domain.MethodCard).(Capturer)
		_, err := capturer.Capture(ctx, held())
		assert.Equal(t, domain.EGATEWAY, domain.ErrorCode(err))
	})

	t.Run("void cancels the hold instead of expiring the session", func(t *testing.T) {
		h := newHarness(t)
		s := strategy(t, h, domain.MethodCard)
		require.NoError(t, s.Void(ctx, held()))
		assert.Contains(t, h.stripe.Calls(), "CancelPaymentIntent(pi_held)")
		assert.NotContains(t, h.stripe.Calls(), "ExpireCheckoutSession(cs_held)")
	})
}

func TestCardStrategy_Refund(t *testing.T) {
	h := newHarness(t)
	s := strategy(t, h, domain.MethodCard)
	ctx := context.Background()

	sess, err := h.stripe.CreateCheckoutSession(ctx, billing.CheckoutSessionParams{})
	require.NoError(t, err)
	h.stripe.Complete(sess.ID)

	o := sampleOrder(domain.MethodCard)
	paid := testNow.Add(-time.Hour)
	o.PaidAt = &paid
	o.PaymentStatus = domain.PaymentCompleted
	o.Payment.StripeSessionID = sess.ID

	res, err := s.Refund(ctx, o, d("40"), "cold food")
	require.NoError(t, err)
	assert.True(t, res.Amount.Equal(d("40")))
	assert.Contains(t, h.stripe.Calls(), "CreateRefund(pi_"+sess.ID+", 4000)")

	old := testNow.Add(-100 * time.Hour)
	o.PaidAt = &old
	_, err = s.Refund(ctx, o, d("40"), "")
	assert.ErrorIs(t, err, domain.ErrRefundWindowExpired)
}

func TestAggregatorStrategy(t *testing.T) {
	ctx := context.Background()

	t.Run("creates an intention with a correlation id", func(t *testing.T) {
		h := newHarness(t)
		s := strategy(t, h, domain.MethodPaymobCard)
		o := sampleOrder(domain.MethodPaymobCard)

		res, err := s.CreatePayment(ctx, Request{Order: o, Customer: &domain.User{Name: "Mona Zaki", Email: "m@z.test"}})
		require.NoError(t, err)

		sent := h.paymob.LastIntention
		require.NotNil(t, sent)
		assert.Equal(t, res.Refs.PaymobCorrelationID, sent.CorrelationID)
		assert.Equal(t, []int64{4455}, sent.IntegrationIDs)
		assert.Equal(t, int64(11500), sent.AmountCents)
		assert.Equal(t, "Mona", sent.Billing.FirstName)
		assert.Equal(t, "Zaki", sent.Billing.LastName)
		assert.Equal(t, "Cairo", sent.Billing.State)
		assert.Equal(t, "https://api.shop.test/webhooks/aggregator", sent.NotificationURL)

		var sum int64
		for _, it := range sent.Items {
			sum += it.AmountCents * it.Quantity
		}
		assert.Equal(t, sent.AmountCents, sum)

		assert.NotEmpty(t, res.Refs.PaymobOrderID)
		assert.Contains(t, res.RedirectURL, "clientSecret=")
	})

	t.Run("sub-method without integration is unavailable", func(t *testing.T) {
		h := newHarness(t)
		s := strategy(t, h, domain.MethodPaymobWallet)
		_, err := s.CreatePayment(ctx, Request{Order: sampleOrder(domain.MethodPaymobWallet)})
		assert.ErrorIs(t, err, domain.ErrGatewayNotConfigured)
	})

	t.Run("installments enforce their own minimum", func(t *testing.T) {
		h := newHarness(t)
		s := strategy(t, h, domain.MethodPaymobInstallment)
		err := s.ValidateAmount(ctx, domain.MethodPaymobInstallment, d("999"))
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
		assert.NoError(t, s.ValidateAmount(ctx, domain.MethodPaymobCard, d("999")))
	})

	t.Run("capture requires an authorization", func(t *testing.T) {
		h := newHarness(t)
		s := strategy(t, h, domain.MethodPaymobCard)
		capturer, ok := s.(Capturer)
		require.True(t, ok)

		o := sampleOrder(domain.MethodPaymobCard)
		_, err := capturer.Capture(ctx, o)
		assert.ErrorIs(t, err, domain.ErrNothingToCapture)

		o.Payment.Authorized = true
		o.Payment.TransactionID = "777"
		res, err := capturer.Capture(ctx, o)
		require.NoError(t, err)
		assert.True(t, res.Amount.Equal(d("115")))
		assert.Contains(t, h.paymob.Calls(), "Capture(777, 11500)")
	})

	t.Run("void without a transaction is a no-op", func(t *testing.T) {
		h := newHarness(t)
		s := strategy(t, h, domain.MethodPaymobCard)
		require.NoError(t, s.Void(ctx, sampleOrder(domain.MethodPaymobCard)))
		assert.NotContains(t, h.paymob.Calls(), "Void()")
	})

	t.Run("rejected refund is a gateway error", func(t *testing.T) {
		h := newHarness(t)
		h.paymob.RefundFunc = func(ctx context.Context, id string, cents int64) (*billing.PaymobTransaction, error) {
			return nil, billing.ErrTransactionRejected
		}
		s := strategy(t, h, domain.MethodPaymobCard)
		o := sampleOrder(domain.MethodPaymobCard)
		o.Payment.TransactionID = "777"
		_, err := s.Refund(ctx, o, d("15"), "")
		assert.Equal(t, domain.EGATEWAY, domain.ErrorCode(err))
	})
}

func TestCODStrategy(t *testing.T) {
	h := newHarness(t)
	s := strategy(t, h, domain.MethodCOD)
	ctx := context.Background()
	o := sampleOrder(domain.MethodCOD)

	assert.NoError(t, s.ValidateAmount(ctx, domain.MethodCOD, d("1000000")))

	res, err := s.CreatePayment(ctx, Request{Order: o})
	require.NoError(t, err)
	assert.True(t, res.Settled)
	assert.Empty(t, res.RedirectURL)

	refund, err := s.Refund(ctx, o, d("5"), "")
	require.NoError(t, err)
	assert.True(t, refund.Amount.Equal(d("5")))

	assert.NoError(t, s.Void(ctx, o))
}
