package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/xhaelri/qitchen/internal/domain"
	"github.com/xhaelri/qitchen/internal/telemetry"
)

// DefaultReservationSlot is the booking granularity when none is configured.
const DefaultReservationSlot = time.Hour

// ReservationGate checks and books table slots. The data store's uniqueness
// constraint on (table, date) is the final arbiter; Check only gives an early,
// friendlier answer before any order is persisted.
type ReservationGate struct {
	store   domain.ReservationRepository
	slot    time.Duration
	metrics *telemetry.BusinessMetrics
	now     func() time.Time
}

// NewReservationGate creates a gate that books in units of slot.
func NewReservationGate(store domain.ReservationRepository, slot time.Duration, metrics *telemetry.BusinessMetrics) *ReservationGate {
	if slot <= 0 {
		slot = DefaultReservationSlot
	}
	return &ReservationGate{store: store, slot: slot, metrics: metrics, now: time.Now}
}

// WithClock overrides the gate's clock, for tests.
func (g *ReservationGate) WithClock(now func() time.Time) *ReservationGate {
	g.now = now
	return g
}

// Slot normalizes a requested date to the start of its slot. A nil date
// means the current slot.
func (g *ReservationGate) Slot(date *time.Time) time.Time {
	if date == nil {
		return g.now().UTC().Truncate(g.slot)
	}
	return date.UTC().Truncate(g.slot)
}

// Check validates the table and reports whether slot is free.
func (g *ReservationGate) Check(ctx context.Context, tableID uuid.UUID, slot time.Time) error {
	const op = "reservation.check"
	t, err := g.store.GetTable(ctx, tableID)
	if err != nil {
		if errors.Is(err, domain.ErrTableNotFound) || domain.IsCode(err, domain.ENOTFOUND) {
			return domain.WithOp(domain.ErrTableNotFound, op)
		}
		return domain.Internal(err, op, "failed to load table")
	}
	if !t.IsActive {
		return domain.WithOp(domain.ErrTableInactive, op)
	}
	if slot.Before(g.now().UTC().Truncate(g.slot)) {
		return domain.WithOp(domain.ErrReservationInPast, op)
	}
	taken, err := g.store.SlotTaken(ctx, tableID, slot)
	if err != nil {
		return domain.Internal(err, op, "failed to check table availability")
	}
	if taken {
		g.metrics.Reservation("", true)
		return domain.WithOp(domain.ErrSlotUnavailable, op)
	}
	return nil
}

// Reserve books slot for userID. A concurrent booking of the same slot fails
// with ErrSlotUnavailable.
func (g *ReservationGate) Reserve(ctx context.Context, userID, tableID uuid.UUID, slot time.Time, orderID *uuid.UUID) (*domain.Reservation, error) {
	const op = "reservation.reserve"
	r := &domain.Reservation{
		ID:        uuid.New(),
		UserID:    userID,
		TableID:   tableID,
		Date:      slot,
		Status:    domain.ReservationPending,
		OrderID:   orderID,
		CreatedAt: g.now(),
	}
	source := "direct"
	if orderID != nil {
		r.Status = domain.ReservationConfirmed
		source = "order"
	}
	if err := g.store.CreateReservation(ctx, r); err != nil {
		if errors.Is(err, domain.ErrSlotUnavailable) {
			g.metrics.Reservation(source, true)
			return nil, domain.WithOp(domain.ErrSlotUnavailable, op)
		}
		return nil, domain.Internal(err, op, "failed to create reservation")
	}
	g.metrics.Reservation(source, false)
	return r, nil
}

// ReservationService is the customer-facing reservation API.
type ReservationService interface {
	Create(ctx context.Context, params CreateReservationParams) (*domain.Reservation, error)
	List(ctx context.Context) ([]*domain.Reservation, error)
	Cancel(ctx context.Context, reservationID uuid.UUID) (*domain.Reservation, error)
}

// CreateReservationParams books a table without an order.
type CreateReservationParams struct {
	TableID uuid.UUID
	Date    *time.Time
}

type reservationService struct {
	gate   *ReservationGate
	store  domain.ReservationRepository
	logger *slog.Logger
}

// NewReservationService creates a ReservationService.
func NewReservationService(gate *ReservationGate, store domain.ReservationRepository, logger *slog.Logger) ReservationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &reservationService{gate: gate, store: store, logger: logger}
}

func (s *reservationService) Create(ctx context.Context, params CreateReservationParams) (*domain.Reservation, error) {
	user := domain.UserFromContext(ctx)
	if user == nil {
		return nil, domain.WithOp(ErrIdentityRequired, "reservation.create")
	}
	slot := s.gate.Slot(params.Date)
	if err := s.gate.Check(ctx, params.TableID, slot); err != nil {
		return nil, err
	}
	r, err := s.gate.Reserve(ctx, user.ID, params.TableID, slot, nil)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "reservation created", "reservation_id", r.ID, "table_id", r.TableID, "date", r.Date)
	return r, nil
}

func (s *reservationService) List(ctx context.Context) ([]*domain.Reservation, error) {
	user := domain.UserFromContext(ctx)
	if user == nil {
		return nil, domain.WithOp(ErrIdentityRequired, "reservation.list")
	}
	out, err := s.store.ListReservationsByUser(ctx, user.ID)
	if err != nil {
		return nil, domain.Internal(err, "reservation.list", "failed to list reservations")
	}
	return out, nil
}

func (s *reservationService) Cancel(ctx context.Context, reservationID uuid.UUID) (*domain.Reservation, error) {
	const op = "reservation.cancel"
	user := domain.UserFromContext(ctx)
	if user == nil {
		return nil, domain.WithOp(ErrIdentityRequired, op)
	}
	r, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			return nil, domain.WithOp(domain.ErrReservationNotFound, op)
		}
		return nil, domain.Internal(err, op, "failed to load reservation")
	}
	if r.UserID != user.ID && !user.IsAdmin() {
		return nil, domain.WithOp(domain.ErrReservationNotFound, op)
	}
	if r.Status == domain.ReservationCancelled {
		return nil, domain.WithOp(ErrReservationNotActive, op)
	}
	if err := s.store.UpdateReservationStatus(ctx, r.ID, domain.ReservationCancelled); err != nil {
		return nil, domain.Internal(err, op, "failed to cancel reservation")
	}
	r.Status = domain.ReservationCancelled
	return r, nil
}
