package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhaelri/qitchen/internal/domain"
)

func TestCreateReservation_ConcurrentSameSlot(t *testing.T) {
	s := New()
	ctx := context.Background()
	table := uuid.New()
	slot := time.Date(2026, 11, 1, 19, 0, 0, 0, time.UTC)

	const attempts = 20
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.CreateReservation(ctx, &domain.Reservation{
				ID: uuid.New(), UserID: uuid.New(), TableID: table, Date: slot,
				Status: domain.ReservationConfirmed,
			})
		}()
	}
	wg.Wait()
	close(results)

	var ok, taken int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, domain.ErrSlotUnavailable):
			taken++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, taken)
}

func TestReservation_CancelFreesSlot(t *testing.T) {
	s := New()
	ctx := context.Background()
	table := uuid.New()
	slot := time.Date(2026, 11, 1, 19, 0, 0, 0, time.UTC)

	first := &domain.Reservation{ID: uuid.New(), TableID: table, Date: slot, Status: domain.ReservationConfirmed}
	require.NoError(t, s.CreateReservation(ctx, first))

	taken, err := s.SlotTaken(ctx, table, slot)
	require.NoError(t, err)
	assert.True(t, taken)

	require.NoError(t, s.UpdateReservationStatus(ctx, first.ID, domain.ReservationCancelled))

	second := &domain.Reservation{ID: uuid.New(), TableID: table, Date: slot, Status: domain.ReservationConfirmed}
	require.NoError(t, s.CreateReservation(ctx, second))
}

func TestUpdateStatus_CompareAndSwap(t *testing.T) {
	s := New()
	ctx := context.Background()
	o := &domain.Order{ID: uuid.New(), PaymentStatus: domain.PaymentPending, OrderStatus: domain.OrderProcessing}
	require.NoError(t, s.CreateOrder(ctx, o))

	toPaid := domain.StatusUpdate{
		From:          []domain.PaymentStatus{domain.PaymentPending},
		PaymentStatus: domain.PaymentCompleted,
		OrderStatus:   domain.OrderPaid,
	}
	toFailed := domain.StatusUpdate{
		From:          []domain.PaymentStatus{domain.PaymentPending},
		PaymentStatus: domain.PaymentFailed,
		OrderStatus:   domain.OrderFailed,
	}

	var wg sync.WaitGroup
	applied := make(chan bool, 2)
	for _, u := range []domain.StatusUpdate{toPaid, toFailed} {
		wg.Add(1)
		go func(u domain.StatusUpdate) {
			defer wg.Done()
			ok, err := s.UpdateStatus(ctx, o.ID, u)
			assert.NoError(t, err)
			applied <- ok
		}(u)
	}
	wg.Wait()
	close(applied)

	var wins int
	for ok := range applied {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one transition out of Pending must win")
}

func TestListStalePendingOrders_SkipsAuthorizedHolds(t *testing.T) {
	s := New()
	ctx := context.Background()
	created := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

	stale := &domain.Order{ID: uuid.New(), PaymentStatus: domain.PaymentPending, CreatedAt: created}
	held := &domain.Order{ID: uuid.New(), PaymentStatus: domain.PaymentPending, CreatedAt: created,
		Payment: domain.PaymentRefs{Authorized: true, TransactionID: "7001"}}
	fresh := &domain.Order{ID: uuid.New(), PaymentStatus: domain.PaymentPending, CreatedAt: created.Add(2 * time.Hour)}
	for _, o := range []*domain.Order{stale, held, fresh} {
		require.NoError(t, s.CreateOrder(ctx, o))
	}

	got, err := s.ListStalePendingOrders(ctx, created.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, stale.ID, got[0].ID)
}

func TestRedeemCoupon_Caps(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := &domain.Coupon{ID: uuid.New(), Code: "WELCOME", MaxUsageCount: 2, MaxUsagePerUser: 1}
	require.NoError(t, s.CreateCoupon(ctx, c))

	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, s.RedeemCoupon(ctx, c.ID, alice))
	assert.ErrorIs(t, s.RedeemCoupon(ctx, c.ID, alice), domain.ErrCouponUsageExceeded)
	require.NoError(t, s.RedeemCoupon(ctx, c.ID, bob))
	assert.ErrorIs(t, s.RedeemCoupon(ctx, c.ID, carol), domain.ErrCouponUsageExceeded)

	require.NoError(t, s.ReleaseCoupon(ctx, c.ID, bob))
	require.NoError(t, s.RedeemCoupon(ctx, c.ID, carol))

	n, err := s.CountUserRedemptions(ctx, c.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCreateGlobalDiscount_RejectsOverlap(t *testing.T) {
	s := New()
	ctx := context.Background()
	start := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(7 * 24 * time.Hour)

	first := &domain.GlobalDiscount{ID: uuid.New(), IsActive: true, Window: domain.Window{StartsAt: &start, EndsAt: &end}}
	require.NoError(t, s.CreateGlobalDiscount(ctx, first))

	mid := start.Add(3 * 24 * time.Hour)
	overlapping := &domain.GlobalDiscount{ID: uuid.New(), IsActive: true, Window: domain.Window{StartsAt: &mid}}
	assert.ErrorIs(t, s.CreateGlobalDiscount(ctx, overlapping), domain.ErrOverlappingGlobalDiscount)

	inactive := &domain.GlobalDiscount{ID: uuid.New(), IsActive: false, Window: domain.Window{StartsAt: &mid}}
	assert.NoError(t, s.CreateGlobalDiscount(ctx, inactive))

	later := end.Add(time.Hour)
	after := &domain.GlobalDiscount{ID: uuid.New(), IsActive: true, Window: domain.Window{StartsAt: &later}}
	assert.NoError(t, s.CreateGlobalDiscount(ctx, after))
}

func TestCreateCart_OnePerUser(t *testing.T) {
	s := New()
	ctx := context.Background()
	user := uuid.New()

	require.NoError(t, s.CreateCart(ctx, domain.NewCart(user, time.Now())))
	assert.ErrorIs(t, s.CreateCart(ctx, domain.NewCart(user, time.Now())), domain.ErrCartExists)
}
