package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/xhaelri/qitchen/internal/billing"
	"github.com/xhaelri/qitchen/internal/cache"
	"github.com/xhaelri/qitchen/internal/delivery"
	"github.com/xhaelri/qitchen/internal/domain"
	"github.com/xhaelri/qitchen/internal/events"
	"github.com/xhaelri/qitchen/internal/memory"
	"github.com/xhaelri/qitchen/internal/payment"
	"github.com/xhaelri/qitchen/internal/pricing"
)

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// countingStore counts applied status transitions and cart clears so tests
// can assert exactly-once side effects.
type countingStore struct {
	*memory.Store

	mu          sync.Mutex
	transitions map[uuid.UUID]int
	cartClears  map[uuid.UUID]int
	getOrderErr error
}

func newCountingStore() *countingStore {
	return &countingStore{
		Store:       memory.New(),
		transitions: make(map[uuid.UUID]int),
		cartClears:  make(map[uuid.UUID]int),
	}
}

func (s *countingStore) UpdateStatus(ctx context.Context, id uuid.UUID, u domain.StatusUpdate) (bool, error) {
	ok, err := s.Store.UpdateStatus(ctx, id, u)
	if ok {
		s.mu.Lock()
		s.transitions[id]++
		s.mu.Unlock()
	}
	return ok, err
}

func (s *countingStore) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	s.mu.Lock()
	err := s.getOrderErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.Store.GetOrder(ctx, id)
}

// FailGetOrder makes GetOrder return err until called again with nil.
func (s *countingStore) FailGetOrder(err error) {
	s.mu.Lock()
	s.getOrderErr = err
	s.mu.Unlock()
}

func (s *countingStore) ClearCart(ctx context.Context, id uuid.UUID) error {
	err := s.Store.ClearCart(ctx, id)
	if err == nil {
		s.mu.Lock()
		s.cartClears[id]++
		s.mu.Unlock()
	}
	return err
}

func (s *countingStore) Transitions(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitions[id]
}

func (s *countingStore) CartClears(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartClears[id]
}

type harness struct {
	store   *countingStore
	stripe  *billing.MockStripe
	paymob  *billing.MockPaymob
	events  *events.Recorder
	cache   *cache.Memory
	configs *payment.Configs
	gate    *ReservationGate

	orders       OrderService
	reconciler   *Reconciler
	carts        CartService
	reservations ReservationService
	admin        AdminService

	customer *domain.User
	other    *domain.User
	operator *domain.User

	burger *domain.Product // 40
	fries  *domain.Product // 20
	table  *domain.Table
	home   *domain.Address
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := func() time.Time { return testNow }

	h := &harness{
		store:    newCountingStore(),
		stripe:   billing.NewMockStripe(),
		paymob:   billing.NewMockPaymob(),
		events:   &events.Recorder{},
		cache:    cache.NewMemory(),
		customer: &domain.User{ID: uuid.New(), Email: "mona@example.com", Name: "Mona Adel", Phone: "+201001112223", Role: domain.RoleCustomer},
		other:    &domain.User{ID: uuid.New(), Email: "karim@example.com", Name: "Karim Said", Role: domain.RoleCustomer},
		operator: &domain.User{ID: uuid.New(), Email: "ops@example.com", Name: "Ops", Role: domain.RoleAdmin},
	}

	stripeCfg := domain.DefaultProviderConfig(domain.ProviderStripe)
	stripeCfg.IsActive = true
	stripeCfg.MaxOrderAmount = dec("10000")
	stripeCfg.FreeDeliveryThreshold = dec("300")
	require.NoError(t, h.store.SaveProviderConfig(ctx, stripeCfg))

	paymobCfg := domain.DefaultProviderConfig(domain.ProviderPaymob)
	paymobCfg.IsActive = true
	paymobCfg.FreeDeliveryThreshold = dec("500")
	paymobCfg.Paymob.Integrations = map[domain.PaymentMethodName]int64{
		domain.MethodPaymobCard:   4455,
		domain.MethodPaymobWallet: 4456,
	}
	require.NoError(t, h.store.SaveProviderConfig(ctx, paymobCfg))

	cat := uuid.New()
	h.burger = &domain.Product{ID: uuid.New(), Name: "Burger", CategoryID: cat, Price: dec("40"), IsAvailable: true}
	h.fries = &domain.Product{ID: uuid.New(), Name: "Fries", CategoryID: cat, Price: dec("20"), IsAvailable: true}
	require.NoError(t, h.store.UpsertProduct(ctx, h.burger))
	require.NoError(t, h.store.UpsertProduct(ctx, h.fries))

	require.NoError(t, h.store.UpsertDeliveryLocation(ctx, &domain.DeliveryLocation{
		ID: uuid.New(), Governorate: "Cairo", City: "Maadi", Fee: dec("10"), IsActive: true,
	}))
	h.home = &domain.Address{ID: uuid.New(), UserID: h.customer.ID, Governorate: "Cairo", City: "Maadi", Street: "9 Road 233", Phone: "+201001112223"}
	require.NoError(t, h.store.UpsertAddress(ctx, h.home))

	h.table = &domain.Table{ID: uuid.New(), Number: 4, Capacity: 4, IsActive: true}
	require.NoError(t, h.store.UpsertTable(ctx, h.table))

	h.configs = payment.NewConfigs(h.store, h.cache, "test", logger)
	methods := payment.NewMethods(h.store)
	selector := payment.NewSelector(payment.Deps{
		Configs: h.configs,
		Stripe:  h.stripe,
		Paymob:  h.paymob,
		URLs:    payment.URLs{FrontendURL: "https://shop.test", BaseURL: "https://api.shop.test"},
		Logger:  logger,
		Now:     now,
	})
	engine := pricing.NewEngine(h.store, h.store).WithClock(now)
	h.gate = NewReservationGate(h.store, time.Hour, nil).WithClock(now)

	h.orders = NewOrderService(OrderDeps{
		Store:        h.store,
		Pricing:      engine,
		Delivery:     delivery.NewResolver(h.store, h.configs),
		Methods:      methods,
		Configs:      h.configs,
		Payments:     selector,
		Reservations: h.gate,
		Events:       h.events,
		Logger:       logger,
		Now:          now,
	})
	h.reconciler = NewReconciler(ReconcilerDeps{
		Store:     h.store,
		Stripe:    h.stripe,
		Paymob:    h.paymob,
		Cache:     h.cache,
		Namespace: "test",
		Events:    h.events,
		Logger:    logger,
		Now:       now,
	})
	h.carts = NewCartService(h.store, engine, nil, logger)
	h.reservations = NewReservationService(h.gate, h.store, logger)
	h.admin = NewAdminService(h.store, h.configs, methods, logger)
	return h
}

func (h *harness) as(u *domain.User) context.Context {
	return domain.NewContextWithUser(context.Background(), u)
}

// lines returns two burgers and one fries: 100 before discounts.
func (h *harness) lines() []pricing.Line {
	return []pricing.Line{
		{ProductID: h.burger.ID, Quantity: 2},
		{ProductID: h.fries.ID, Quantity: 1},
	}
}

func (h *harness) online(method domain.PaymentMethodName) CreateOrderParams {
	addr := h.home.ID
	return CreateOrderParams{
		Items:         h.lines(),
		PlaceType:     domain.PlaceOnline,
		PaymentMethod: method,
		AddressID:     &addr,
	}
}

func (h *harness) addCoupon(t *testing.T, c *domain.Coupon) *domain.Coupon {
	t.Helper()
	c.ID = uuid.New()
	c.Code = domain.NormalizeCouponCode(c.Code)
	c.IsActive = true
	if c.MaxUsagePerUser == 0 {
		c.MaxUsagePerUser = 1
	}
	require.NoError(t, h.store.CreateCoupon(context.Background(), c))
	return c
}

func (h *harness) order(t *testing.T, id uuid.UUID) *domain.Order {
	t.Helper()
	o, err := h.store.GetOrder(context.Background(), id)
	require.NoError(t, err)
	return o
}

// createCardOrder places a Card order and returns it Pending with its session.
func (h *harness) createCardOrder(t *testing.T) *domain.Order {
	t.Helper()
	res, err := h.orders.CreateOrder(h.as(h.customer), h.online(domain.MethodCard))
	require.NoError(t, err)
	require.Equal(t, domain.PaymentPending, res.Order.PaymentStatus)
	return res.Order
}

// stripeEvent makes the mock gateway return event for the next delivery.
func (h *harness) stripeEvent(event *billing.WebhookEvent) {
	h.stripe.ParseWebhookFunc = func(payload []byte, signature string) (*billing.WebhookEvent, error) {
		if signature != "t=1,v1=good" {
			return nil, billing.ErrInvalidWebhookSignature
		}
		return event, nil
	}
}

func sessionEvent(id, eventType string, o *domain.Order, paid bool) *billing.WebhookEvent {
	sess := &billing.CheckoutSession{
		ID:              o.Payment.StripeSessionID,
		Status:          billing.SessionStatusComplete,
		PaymentStatus:   billing.SessionPaymentUnpaid,
		AmountTotal:     billing.ToMinorUnits(o.TotalPrice),
		PaymentIntentID: "pi_" + o.Payment.StripeSessionID,
		Metadata:        map[string]string{"orderId": o.ID.String()},
	}
	if paid {
		sess.PaymentStatus = billing.SessionPaymentPaid
	}
	return &billing.WebhookEvent{ID: id, Type: eventType, Session: sess}
}
