package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/xhaelri/qitchen/internal/domain"
)

// =============================================================================
// PRODUCTS
// =============================================================================

// GetProducts returns the products with the given ids; missing ids are absent
// from the map.
func (s *Store) GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	const op = "postgres.getProducts"
	out := make(map[uuid.UUID]*domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, name, category_id, price, is_available,
		       discount_percentage, is_discount_active, discount_starts_at, discount_ends_at
		FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, mapError(err, op, nil)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.CategoryID, &p.Price, &p.IsAvailable,
			&p.DiscountPercentage, &p.IsDiscountActive, &p.DiscountWindow.StartsAt, &p.DiscountWindow.EndsAt); err != nil {
			return nil, mapError(err, op, nil)
		}
		out[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, op, nil)
	}
	return out, nil
}

func (s *Store) UpsertProduct(ctx context.Context, p *domain.Product) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO products (id, name, category_id, price, is_available,
		                      discount_percentage, is_discount_active, discount_starts_at, discount_ends_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category_id = EXCLUDED.category_id,
			price = EXCLUDED.price,
			is_available = EXCLUDED.is_available,
			discount_percentage = EXCLUDED.discount_percentage,
			is_discount_active = EXCLUDED.is_discount_active,
			discount_starts_at = EXCLUDED.discount_starts_at,
			discount_ends_at = EXCLUDED.discount_ends_at,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.Name, p.CategoryID, p.Price, p.IsAvailable,
		p.DiscountPercentage, p.IsDiscountActive, p.DiscountWindow.StartsAt, p.DiscountWindow.EndsAt, s.now())
	return mapError(err, "postgres.upsertProduct", nil)
}

// =============================================================================
// DISCOUNTS
// =============================================================================

// ListCategoryDiscounts returns discounts for the given categories, newest first.
func (s *Store) ListCategoryDiscounts(ctx context.Context, categoryIDs []uuid.UUID) ([]*domain.CategoryDiscount, error) {
	const op = "postgres.listCategoryDiscounts"
	if len(categoryIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, category_id, percentage, is_active, starts_at, ends_at, excluded_products, created_at
		FROM category_discounts
		WHERE category_id = ANY($1)
		ORDER BY created_at DESC`, categoryIDs)
	if err != nil {
		return nil, mapError(err, op, nil)
	}
	defer rows.Close()

	var out []*domain.CategoryDiscount
	for rows.Next() {
		var d domain.CategoryDiscount
		if err := rows.Scan(&d.ID, &d.CategoryID, &d.Percentage, &d.IsActive,
			&d.Window.StartsAt, &d.Window.EndsAt, &d.ExcludedProducts, &d.CreatedAt); err != nil {
			return nil, mapError(err, op, nil)
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, op, nil)
	}
	return out, nil
}

// ListGlobalDiscounts returns every global discount, newest first.
func (s *Store) ListGlobalDiscounts(ctx context.Context) ([]*domain.GlobalDiscount, error) {
	const op = "postgres.listGlobalDiscounts"
	rows, err := s.db.Query(ctx, `
		SELECT id, name, percentage, is_active, starts_at, ends_at, excluded_products, excluded_categories, created_at
		FROM global_discounts
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, mapError(err, op, nil)
	}
	defer rows.Close()

	var out []*domain.GlobalDiscount
	for rows.Next() {
		var d domain.GlobalDiscount
		if err := rows.Scan(&d.ID, &d.Name, &d.Percentage, &d.IsActive, &d.Window.StartsAt, &d.Window.EndsAt,
			&d.ExcludedProducts, &d.ExcludedCategories, &d.CreatedAt); err != nil {
			return nil, mapError(err, op, nil)
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, op, nil)
	}
	return out, nil
}

func (s *Store) CreateCategoryDiscount(ctx context.Context, d *domain.CategoryDiscount) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO category_discounts (id, category_id, percentage, is_active, starts_at, ends_at, excluded_products, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.CategoryID, d.Percentage, d.IsActive, d.Window.StartsAt, d.Window.EndsAt, uuidArray(d.ExcludedProducts), d.CreatedAt)
	return mapError(err, "postgres.createCategoryDiscount", nil)
}

// CreateGlobalDiscount relies on the global_discounts_no_overlap exclusion
// constraint to reject a second active discount over the same period.
func (s *Store) CreateGlobalDiscount(ctx context.Context, d *domain.GlobalDiscount) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO global_discounts (id, name, percentage, is_active, starts_at, ends_at, excluded_products, excluded_categories, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.Name, d.Percentage, d.IsActive, d.Window.StartsAt, d.Window.EndsAt,
		uuidArray(d.ExcludedProducts), uuidArray(d.ExcludedCategories), d.CreatedAt)
	return mapError(err, "postgres.createGlobalDiscount", nil)
}

// uuidArray keeps NOT NULL array columns from receiving SQL NULL.
func uuidArray(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}
