// Package memory implements domain.Store in process memory. It backs local
// development without a database and serves as the data-store fake in tests.
// Every method takes the store lock, so conditional writes are atomic in the
// same way the Postgres implementation's single statements are.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xhaelri/qitchen/internal/domain"
)

var _ domain.Store = (*Store)(nil)

type slotKey struct {
	table uuid.UUID
	date  int64
}

type usageKey struct {
	coupon uuid.UUID
	user   uuid.UUID
}

// Store is a mutex-guarded in-memory data store.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	orders       map[uuid.UUID]*domain.Order
	carts        map[uuid.UUID]*domain.Cart
	products     map[uuid.UUID]*domain.Product
	catDiscounts map[uuid.UUID]*domain.CategoryDiscount
	gDiscounts   map[uuid.UUID]*domain.GlobalDiscount
	coupons      map[uuid.UUID]*domain.Coupon
	usage        map[usageKey]int
	tables       map[uuid.UUID]*domain.Table
	reservations map[uuid.UUID]*domain.Reservation
	slots        map[slotKey]uuid.UUID
	methods      map[domain.PaymentMethodName]*domain.PaymentMethod
	configs      map[domain.Provider]*domain.ProviderConfig
	locations    map[string]*domain.DeliveryLocation
	addresses    map[uuid.UUID]*domain.Address
}

// New returns an empty store seeded with the default payment methods.
func New() *Store {
	s := &Store{
		now:          time.Now,
		orders:       make(map[uuid.UUID]*domain.Order),
		carts:        make(map[uuid.UUID]*domain.Cart),
		products:     make(map[uuid.UUID]*domain.Product),
		catDiscounts: make(map[uuid.UUID]*domain.CategoryDiscount),
		gDiscounts:   make(map[uuid.UUID]*domain.GlobalDiscount),
		coupons:      make(map[uuid.UUID]*domain.Coupon),
		usage:        make(map[usageKey]int),
		tables:       make(map[uuid.UUID]*domain.Table),
		reservations: make(map[uuid.UUID]*domain.Reservation),
		slots:        make(map[slotKey]uuid.UUID),
		methods:      make(map[domain.PaymentMethodName]*domain.PaymentMethod),
		configs:      make(map[domain.Provider]*domain.ProviderConfig),
		locations:    make(map[string]*domain.DeliveryLocation),
		addresses:    make(map[uuid.UUID]*domain.Address),
	}
	for _, m := range domain.DefaultPaymentMethods() {
		s.methods[m.Name] = m
	}
	return s
}

// =============================================================================
// Orders
// =============================================================================

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = slices.Clone(o.Items)
	if o.Delivery != nil {
		d := *o.Delivery
		cp.Delivery = &d
	}
	if o.Refund != nil {
		r := *o.Refund
		cp.Refund = &r
	}
	return &cp
}

func (s *Store) CreateOrder(ctx context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return domain.Conflict("memory.createOrder", "order already exists")
	}
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *Store) findOrder(match func(*domain.Order) bool) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if match(o) {
			return cloneOrder(o), nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (s *Store) GetOrderByCorrelationID(ctx context.Context, correlationID string) (*domain.Order, error) {
	return s.findOrder(func(o *domain.Order) bool {
		return correlationID != "" && o.Payment.PaymobCorrelationID == correlationID
	})
}

func (s *Store) GetOrderByPaymobOrderID(ctx context.Context, paymobOrderID string) (*domain.Order, error) {
	return s.findOrder(func(o *domain.Order) bool {
		return paymobOrderID != "" && o.Payment.PaymobOrderID == paymobOrderID
	})
}

func (s *Store) GetOrderByStripeSessionID(ctx context.Context, sessionID string) (*domain.Order, error) {
	return s.findOrder(func(o *domain.Order) bool {
		return sessionID != "" && o.Payment.StripeSessionID == sessionID
	})
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListStalePendingOrders(ctx context.Context, createdBefore time.Time, limit int) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Order
	for _, o := range s.orders {
		if o.PaymentStatus == domain.PaymentPending && !o.Payment.Authorized && o.CreatedAt.Before(createdBefore) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SetPaymentRefs(ctx context.Context, id uuid.UUID, refs domain.PaymentRefs) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.Payment = refs
	o.UpdatedAt = s.now()
	return nil
}

func (s *Store) SetReservation(ctx context.Context, id, reservationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.ReservationID = &reservationID
	o.UpdatedAt = s.now()
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, u domain.StatusUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return false, domain.ErrOrderNotFound
	}
	if !u.Matches(o) {
		return false, nil
	}
	u.Apply(o, s.now())
	return true, nil
}

// =============================================================================
// Carts
// =============================================================================

func cloneCart(c *domain.Cart) *domain.Cart {
	cp := *c
	cp.Items = slices.Clone(c.Items)
	if c.CouponID != nil {
		id := *c.CouponID
		cp.CouponID = &id
	}
	return &cp
}

func (s *Store) GetCart(ctx context.Context, id uuid.UUID) (*domain.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.carts[id]
	if !ok {
		return nil, domain.ErrCartNotFound
	}
	return cloneCart(c), nil
}

func (s *Store) GetCartByUser(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.carts {
		if c.UserID == userID {
			return cloneCart(c), nil
		}
	}
	return nil, domain.ErrCartNotFound
}

func (s *Store) CreateCart(ctx context.Context, c *domain.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.carts {
		if existing.UserID == c.UserID {
			return domain.ErrCartExists
		}
	}
	s.carts[c.ID] = cloneCart(c)
	return nil
}

func (s *Store) SaveCart(ctx context.Context, c *domain.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.carts[c.ID]; !ok {
		return domain.ErrCartNotFound
	}
	cp := cloneCart(c)
	cp.UpdatedAt = s.now()
	s.carts[c.ID] = cp
	return nil
}

func (s *Store) ClearCart(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[id]
	if !ok {
		return domain.ErrCartNotFound
	}
	c.Items = []domain.CartItem{}
	c.CouponID = nil
	c.UpdatedAt = s.now()
	return nil
}

// =============================================================================
// Catalog
// =============================================================================

func (s *Store) GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]*domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (s *Store) UpsertProduct(ctx context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.products[p.ID] = &cp
	return nil
}

func (s *Store) ListCategoryDiscounts(ctx context.Context, categoryIDs []uuid.UUID) ([]*domain.CategoryDiscount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.CategoryDiscount
	for _, d := range s.catDiscounts {
		if slices.Contains(categoryIDs, d.CategoryID) {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListGlobalDiscounts(ctx context.Context) ([]*domain.GlobalDiscount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.GlobalDiscount
	for _, d := range s.gDiscounts {
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateCategoryDiscount(ctx context.Context, d *domain.CategoryDiscount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.catDiscounts[d.ID] = &cp
	return nil
}

func (s *Store) CreateGlobalDiscount(ctx context.Context, d *domain.GlobalDiscount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.IsActive {
		for _, other := range s.gDiscounts {
			if other.IsActive && other.Window.Overlaps(d.Window) {
				return domain.ErrOverlappingGlobalDiscount
			}
		}
	}
	cp := *d
	s.gDiscounts[d.ID] = &cp
	return nil
}

// =============================================================================
// Coupons
// =============================================================================

func (s *Store) GetCoupon(ctx context.Context, id uuid.UUID) (*domain.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.coupons[id]
	if !ok {
		return nil, domain.ErrCouponNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	code = domain.NormalizeCouponCode(code)
	for _, c := range s.coupons {
		if c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrCouponNotFound
}

func (s *Store) CreateCoupon(ctx context.Context, c *domain.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.coupons {
		if existing.Code == c.Code {
			return domain.ErrCouponCodeTaken
		}
	}
	cp := *c
	s.coupons[c.ID] = &cp
	return nil
}

func (s *Store) CountUserRedemptions(ctx context.Context, couponID, userID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage[usageKey{couponID, userID}], nil
}

func (s *Store) RedeemCoupon(ctx context.Context, couponID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[couponID]
	if !ok {
		return domain.ErrCouponNotFound
	}
	key := usageKey{couponID, userID}
	if c.MaxUsageCount > 0 && c.UsedCount >= c.MaxUsageCount {
		return domain.ErrCouponUsageExceeded
	}
	if c.MaxUsagePerUser > 0 && s.usage[key] >= c.MaxUsagePerUser {
		return domain.ErrCouponUsageExceeded
	}
	c.UsedCount++
	s.usage[key]++
	return nil
}

func (s *Store) ReleaseCoupon(ctx context.Context, couponID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[couponID]
	if !ok {
		return domain.ErrCouponNotFound
	}
	key := usageKey{couponID, userID}
	if s.usage[key] > 0 {
		s.usage[key]--
		if c.UsedCount > 0 {
			c.UsedCount--
		}
	}
	return nil
}

// =============================================================================
// Tables & reservations
// =============================================================================

func (s *Store) GetTable(ctx context.Context, id uuid.UUID) (*domain.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[id]
	if !ok {
		return nil, domain.ErrTableNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) UpsertTable(ctx context.Context, t *domain.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tables[t.ID] = &cp
	return nil
}

func (s *Store) SlotTaken(ctx context.Context, tableID uuid.UUID, date time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, taken := s.slots[slotKey{tableID, date.UTC().UnixNano()}]
	return taken, nil
}

func (s *Store) CreateReservation(ctx context.Context, r *domain.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := slotKey{r.TableID, r.Date.UTC().UnixNano()}
	if r.Status != domain.ReservationCancelled {
		if _, taken := s.slots[key]; taken {
			return domain.ErrSlotUnavailable
		}
		s.slots[key] = r.ID
	}
	cp := *r
	s.reservations[r.ID] = &cp
	return nil
}

func (s *Store) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) ListReservationsByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Reservation
	for _, r := range s.reservations {
		if r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) UpdateReservationStatus(ctx context.Context, id uuid.UUID, status domain.ReservationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return domain.ErrReservationNotFound
	}
	key := slotKey{r.TableID, r.Date.UTC().UnixNano()}
	if status == domain.ReservationCancelled {
		if s.slots[key] == r.ID {
			delete(s.slots, key)
		}
	} else if r.Status == domain.ReservationCancelled {
		if _, taken := s.slots[key]; taken {
			return domain.ErrSlotUnavailable
		}
		s.slots[key] = r.ID
	}
	r.Status = status
	return nil
}

// =============================================================================
// Payment methods & provider configs
// =============================================================================

func (s *Store) GetPaymentMethodByName(ctx context.Context, name domain.PaymentMethodName) (*domain.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.methods[name]
	if !ok {
		return nil, domain.ErrPaymentMethodNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *Store) ListPaymentMethods(ctx context.Context) ([]*domain.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.PaymentMethod
	for _, m := range s.methods {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (s *Store) UpsertPaymentMethod(ctx context.Context, m *domain.PaymentMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	if existing, ok := s.methods[m.Name]; ok {
		cp.ID = existing.ID
	}
	cp.UpdatedAt = s.now()
	s.methods[m.Name] = &cp
	return nil
}

func cloneConfig(c *domain.ProviderConfig) *domain.ProviderConfig {
	cp := *c
	if c.Stripe != nil {
		st := *c.Stripe
		st.PaymentMethodTypes = slices.Clone(c.Stripe.PaymentMethodTypes)
		cp.Stripe = &st
	}
	if c.Paymob != nil {
		pm := *c.Paymob
		pm.Integrations = make(map[domain.PaymentMethodName]int64, len(c.Paymob.Integrations))
		for k, v := range c.Paymob.Integrations {
			pm.Integrations[k] = v
		}
		if c.Paymob.MethodMinimums != nil {
			pm.MethodMinimums = make(map[domain.PaymentMethodName]decimal.Decimal, len(c.Paymob.MethodMinimums))
			for k, v := range c.Paymob.MethodMinimums {
				pm.MethodMinimums[k] = v
			}
		}
		cp.Paymob = &pm
	}
	return &cp
}

func (s *Store) GetProviderConfig(ctx context.Context, provider domain.Provider) (*domain.ProviderConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.configs[provider]
	if !ok {
		return nil, domain.ErrProviderConfigNotFound
	}
	return cloneConfig(c), nil
}

func (s *Store) SaveProviderConfig(ctx context.Context, cfg *domain.ProviderConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneConfig(cfg)
	cp.UpdatedAt = s.now()
	s.configs[cfg.Provider] = cp
	return nil
}

// =============================================================================
// Delivery
// =============================================================================

func (s *Store) FindDeliveryLocation(ctx context.Context, governorate, city string) (*domain.DeliveryLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.locations[domain.LocationKey(governorate, city)]
	if !ok {
		return nil, domain.ErrDeliveryUnavailable
	}
	cp := *l
	return &cp, nil
}

func (s *Store) ListDeliveryLocations(ctx context.Context) ([]*domain.DeliveryLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.DeliveryLocation
	for _, l := range s.locations {
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return domain.LocationKey(out[i].Governorate, out[i].City) < domain.LocationKey(out[j].Governorate, out[j].City)
	})
	return out, nil
}

func (s *Store) UpsertDeliveryLocation(ctx context.Context, l *domain.DeliveryLocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	cp.UpdatedAt = s.now()
	s.locations[domain.LocationKey(l.Governorate, l.City)] = &cp
	return nil
}

func (s *Store) GetAddress(ctx context.Context, id uuid.UUID) (*domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.addresses[id]
	if !ok {
		return nil, domain.ErrAddressNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) UpsertAddress(ctx context.Context, a *domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.addresses[a.ID] = &cp
	return nil
}
