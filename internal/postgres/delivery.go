package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/xhaelri/qitchen/internal/domain"
)

// =============================================================================
// DELIVERY LOCATIONS
// =============================================================================

const locationColumns = `id, governorate, city, fee, is_active, updated_at`

func scanLocation(row scanner) (*domain.DeliveryLocation, error) {
	var l domain.DeliveryLocation
	if err := row.Scan(&l.ID, &l.Governorate, &l.City, &l.Fee, &l.IsActive, &l.UpdatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

// FindDeliveryLocation matches governorate and city case-insensitively,
// ignoring surrounding whitespace.
func (s *Store) FindDeliveryLocation(ctx context.Context, governorate, city string) (*domain.DeliveryLocation, error) {
	l, err := scanLocation(s.db.QueryRow(ctx, `
		SELECT `+locationColumns+` FROM delivery_locations
		WHERE LOWER(TRIM(governorate)) = LOWER(TRIM($1)) AND LOWER(TRIM(city)) = LOWER(TRIM($2))`,
		governorate, city))
	if err != nil {
		return nil, mapError(err, "postgres.findDeliveryLocation", domain.ErrDeliveryUnavailable)
	}
	return l, nil
}

func (s *Store) ListDeliveryLocations(ctx context.Context) ([]*domain.DeliveryLocation, error) {
	const op = "postgres.listDeliveryLocations"
	rows, err := s.db.Query(ctx, `
		SELECT `+locationColumns+` FROM delivery_locations
		ORDER BY LOWER(TRIM(governorate)), LOWER(TRIM(city))`)
	if err != nil {
		return nil, mapError(err, op, nil)
	}
	defer rows.Close()

	var out []*domain.DeliveryLocation
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, mapError(err, op, nil)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, op, nil)
	}
	return out, nil
}

// UpsertDeliveryLocation writes l keyed by its normalized (governorate, city)
// pair. An existing row keeps its id.
func (s *Store) UpsertDeliveryLocation(ctx context.Context, l *domain.DeliveryLocation) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO delivery_locations (`+locationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ((LOWER(TRIM(governorate))), (LOWER(TRIM(city)))) DO UPDATE SET
			governorate = EXCLUDED.governorate,
			city = EXCLUDED.city,
			fee = EXCLUDED.fee,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`,
		l.ID, l.Governorate, l.City, l.Fee, l.IsActive, s.now())
	return mapError(err, "postgres.upsertDeliveryLocation", nil)
}

// =============================================================================
// ADDRESSES
// =============================================================================

func (s *Store) GetAddress(ctx context.Context, id uuid.UUID) (*domain.Address, error) {
	var a domain.Address
	err := s.db.QueryRow(ctx, `SELECT id, user_id, governorate, city, street, phone FROM addresses WHERE id = $1`, id).
		Scan(&a.ID, &a.UserID, &a.Governorate, &a.City, &a.Street, &a.Phone)
	if err != nil {
		return nil, mapError(err, "postgres.getAddress", domain.ErrAddressNotFound)
	}
	return &a, nil
}

func (s *Store) UpsertAddress(ctx context.Context, a *domain.Address) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO addresses (id, user_id, governorate, city, street, phone)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			governorate = EXCLUDED.governorate,
			city = EXCLUDED.city,
			street = EXCLUDED.street,
			phone = EXCLUDED.phone`,
		a.ID, a.UserID, a.Governorate, a.City, a.Street, a.Phone)
	return mapError(err, "postgres.upsertAddress", nil)
}
