package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/xhaelri/qitchen/internal/domain"
)

// =============================================================================
// TABLES
// =============================================================================

func (s *Store) GetTable(ctx context.Context, id uuid.UUID) (*domain.Table, error) {
	var t domain.Table
	err := s.db.QueryRow(ctx, `SELECT id, number, capacity, is_active FROM restaurant_tables WHERE id = $1`, id).
		Scan(&t.ID, &t.Number, &t.Capacity, &t.IsActive)
	if err != nil {
		return nil, mapError(err, "postgres.getTable", domain.ErrTableNotFound)
	}
	return &t, nil
}

func (s *Store) UpsertTable(ctx context.Context, t *domain.Table) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO restaurant_tables (id, number, capacity, is_active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			number = EXCLUDED.number,
			capacity = EXCLUDED.capacity,
			is_active = EXCLUDED.is_active`,
		t.ID, t.Number, t.Capacity, t.IsActive)
	return mapError(err, "postgres.upsertTable", nil)
}

// =============================================================================
// RESERVATIONS
// =============================================================================

const reservationColumns = `id, user_id, table_id, reservation_date, status, order_id, created_at`

func scanReservation(row scanner) (*domain.Reservation, error) {
	var (
		r      domain.Reservation
		status string
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.TableID, &r.Date, &status, &r.OrderID, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Status = domain.ReservationStatus(status)
	return &r, nil
}

func (s *Store) SlotTaken(ctx context.Context, tableID uuid.UUID, date time.Time) (bool, error) {
	var taken bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reservations
			WHERE table_id = $1 AND reservation_date = $2 AND status <> $3
		)`, tableID, date, string(domain.ReservationCancelled)).Scan(&taken)
	if err != nil {
		return false, mapError(err, "postgres.slotTaken", nil)
	}
	return taken, nil
}

// CreateReservation relies on reservations_table_slot_key; a concurrent insert
// for the same live slot fails with ErrSlotUnavailable.
func (s *Store) CreateReservation(ctx context.Context, r *domain.Reservation) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.UserID, r.TableID, r.Date, string(r.Status), r.OrderID, r.CreatedAt)
	return mapError(err, "postgres.createReservation", nil)
}

func (s *Store) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	r, err := scanReservation(s.db.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "postgres.getReservation", domain.ErrReservationNotFound)
	}
	return r, nil
}

func (s *Store) ListReservationsByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Reservation, error) {
	const op = "postgres.listReservationsByUser"
	rows, err := s.db.Query(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE user_id = $1 ORDER BY reservation_date ASC`, userID)
	if err != nil {
		return nil, mapError(err, op, nil)
	}
	defer rows.Close()

	var out []*domain.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, mapError(err, op, nil)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, op, nil)
	}
	return out, nil
}

// UpdateReservationStatus fails with ErrSlotUnavailable when reviving a
// cancelled reservation whose slot has since been taken.
func (s *Store) UpdateReservationStatus(ctx context.Context, id uuid.UUID, status domain.ReservationStatus) error {
	const op = "postgres.updateReservationStatus"
	tag, err := s.db.Exec(ctx, `UPDATE reservations SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return mapError(err, op, nil)
	}
	if tag.RowsAffected() == 0 {
		return domain.WithOp(domain.ErrReservationNotFound, op)
	}
	return nil
}
