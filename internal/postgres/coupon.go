package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xhaelri/qitchen/internal/domain"
)

const couponColumns = `
	id, code, type, value, max_discount, min_order, max_usage_count, max_usage_per_user,
	used_count, is_active, starts_at, ends_at, is_global, applicable_products,
	applicable_categories, created_at`

func scanCoupon(row scanner) (*domain.Coupon, error) {
	var (
		c   domain.Coupon
		typ string
	)
	err := row.Scan(&c.ID, &c.Code, &typ, &c.Value, &c.MaxDiscount, &c.MinOrder, &c.MaxUsageCount,
		&c.MaxUsagePerUser, &c.UsedCount, &c.IsActive, &c.Window.StartsAt, &c.Window.EndsAt,
		&c.IsGlobal, &c.ApplicableProducts, &c.ApplicableCategories, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.Type = domain.CouponType(typ)
	return &c, nil
}

func (s *Store) GetCoupon(ctx context.Context, id uuid.UUID) (*domain.Coupon, error) {
	c, err := scanCoupon(s.db.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "postgres.getCoupon", domain.ErrCouponNotFound)
	}
	return c, nil
}

func (s *Store) GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	c, err := scanCoupon(s.db.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`,
		domain.NormalizeCouponCode(code)))
	if err != nil {
		return nil, mapError(err, "postgres.getCouponByCode", domain.ErrCouponNotFound)
	}
	return c, nil
}

func (s *Store) CreateCoupon(ctx context.Context, c *domain.Coupon) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO coupons (`+couponColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		c.ID, c.Code, string(c.Type), c.Value, c.MaxDiscount, c.MinOrder, c.MaxUsageCount, c.MaxUsagePerUser,
		c.UsedCount, c.IsActive, c.Window.StartsAt, c.Window.EndsAt, c.IsGlobal,
		uuidArray(c.ApplicableProducts), uuidArray(c.ApplicableCategories), c.CreatedAt)
	return mapError(err, "postgres.createCoupon", nil)
}

func (s *Store) CountUserRedemptions(ctx context.Context, couponID, userID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE((SELECT count FROM coupon_redemptions WHERE coupon_id = $1 AND user_id = $2), 0)`,
		couponID, userID).Scan(&n)
	if err != nil {
		return 0, mapError(err, "postgres.countUserRedemptions", nil)
	}
	return n, nil
}

// RedeemCoupon locks the coupon row, checks both usage caps and records the
// use. Concurrent redemptions of the same coupon serialize on the lock.
func (s *Store) RedeemCoupon(ctx context.Context, couponID, userID uuid.UUID) error {
	const op = "postgres.redeemCoupon"
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var maxTotal, maxPerUser, used, userCount int
		err := tx.QueryRow(ctx, `
			SELECT c.max_usage_count, c.max_usage_per_user, c.used_count,
			       COALESCE(r.count, 0)
			FROM coupons c
			LEFT JOIN coupon_redemptions r ON r.coupon_id = c.id AND r.user_id = $2
			WHERE c.id = $1
			FOR UPDATE OF c`, couponID, userID).Scan(&maxTotal, &maxPerUser, &used, &userCount)
		if err != nil {
			return err
		}
		if maxTotal > 0 && used >= maxTotal {
			return domain.ErrCouponUsageExceeded
		}
		if maxPerUser > 0 && userCount >= maxPerUser {
			return domain.ErrCouponUsageExceeded
		}

		if _, err := tx.Exec(ctx, `UPDATE coupons SET used_count = used_count + 1 WHERE id = $1`, couponID); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO coupon_redemptions (coupon_id, user_id, count) VALUES ($1, $2, 1)
			ON CONFLICT (coupon_id, user_id) DO UPDATE SET count = coupon_redemptions.count + 1`,
			couponID, userID)
		return err
	})
	if errors.Is(err, domain.ErrCouponUsageExceeded) {
		return domain.WithOp(domain.ErrCouponUsageExceeded, op)
	}
	return mapError(err, op, domain.ErrCouponNotFound)
}

// ReleaseCoupon returns one use recorded by RedeemCoupon. Releasing a coupon
// the user never redeemed is a no-op.
func (s *Store) ReleaseCoupon(ctx context.Context, couponID, userID uuid.UUID) error {
	const op = "postgres.releaseCoupon"
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var id uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT id FROM coupons WHERE id = $1 FOR UPDATE`, couponID).Scan(&id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			UPDATE coupon_redemptions SET count = count - 1
			WHERE coupon_id = $1 AND user_id = $2 AND count > 0`, couponID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `UPDATE coupons SET used_count = GREATEST(used_count - 1, 0) WHERE id = $1`, couponID)
		return err
	})
	return mapError(err, op, domain.ErrCouponNotFound)
}
