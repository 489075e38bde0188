package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/xhaelri/qitchen/internal/domain"
)

func scanCart(row scanner) (*domain.Cart, error) {
	var (
		c     domain.Cart
		items []byte
	)
	if err := row.Scan(&c.ID, &c.UserID, &items, &c.CouponID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	lines, err := decodeJSON[[]domain.CartItem](items)
	if err != nil {
		return nil, err
	}
	c.Items = []domain.CartItem{}
	if lines != nil {
		c.Items = *lines
	}
	return &c, nil
}

func (s *Store) GetCart(ctx context.Context, id uuid.UUID) (*domain.Cart, error) {
	c, err := scanCart(s.db.QueryRow(ctx,
		`SELECT id, user_id, items, coupon_id, created_at, updated_at FROM carts WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "postgres.getCart", domain.ErrCartNotFound)
	}
	return c, nil
}

func (s *Store) GetCartByUser(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	c, err := scanCart(s.db.QueryRow(ctx,
		`SELECT id, user_id, items, coupon_id, created_at, updated_at FROM carts WHERE user_id = $1`, userID))
	if err != nil {
		return nil, mapError(err, "postgres.getCartByUser", domain.ErrCartNotFound)
	}
	return c, nil
}

func (s *Store) CreateCart(ctx context.Context, c *domain.Cart) error {
	const op = "postgres.createCart"
	items, err := jsonValue(c.Items)
	if err != nil {
		return domain.Internal(err, op, "encode items")
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO carts (id, user_id, items, coupon_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.UserID, items, c.CouponID, c.CreatedAt, c.UpdatedAt)
	return mapError(err, op, nil)
}

func (s *Store) SaveCart(ctx context.Context, c *domain.Cart) error {
	const op = "postgres.saveCart"
	items, err := jsonValue(c.Items)
	if err != nil {
		return domain.Internal(err, op, "encode items")
	}
	tag, err := s.db.Exec(ctx, `UPDATE carts SET items = $2, coupon_id = $3, updated_at = $4 WHERE id = $1`,
		c.ID, items, c.CouponID, s.now())
	if err != nil {
		return mapError(err, op, nil)
	}
	if tag.RowsAffected() == 0 {
		return domain.WithOp(domain.ErrCartNotFound, op)
	}
	return nil
}

func (s *Store) ClearCart(ctx context.Context, id uuid.UUID) error {
	const op = "postgres.clearCart"
	tag, err := s.db.Exec(ctx, `UPDATE carts SET items = '[]', coupon_id = NULL, updated_at = $2 WHERE id = $1`, id, s.now())
	if err != nil {
		return mapError(err, op, nil)
	}
	if tag.RowsAffected() == 0 {
		return domain.WithOp(domain.ErrCartNotFound, op)
	}
	return nil
}
