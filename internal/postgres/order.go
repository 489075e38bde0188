package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/xhaelri/qitchen/internal/domain"
)

const orderColumns = `
	id, user_id, cart_id, items, subtotal, product_discount, coupon_discount,
	delivery_fee, total_price, currency, coupon_id, payment_method_id,
	payment_method, provider, payment_status, order_status, place_type,
	delivery, table_id, reservation_id, payment, refund, cancellation_reason,
	failure_reason, paid_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*domain.Order, error) {
	var (
		o                                      domain.Order
		items, delivery, payment, refund       []byte
		method, provider, payStatus, ordStatus string
		placeType                              string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.CartID, &items, &o.Subtotal, &o.ProductDiscount, &o.CouponDiscount,
		&o.DeliveryFee, &o.TotalPrice, &o.Currency, &o.CouponID, &o.PaymentMethodID,
		&method, &provider, &payStatus, &ordStatus, &placeType,
		&delivery, &o.TableID, &o.ReservationID, &payment, &refund, &o.CancellationReason,
		&o.FailureReason, &o.PaidAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.PaymentMethod = domain.PaymentMethodName(method)
	o.Provider = domain.Provider(provider)
	o.PaymentStatus = domain.PaymentStatus(payStatus)
	o.OrderStatus = domain.OrderStatus(ordStatus)
	o.PlaceType = domain.PlaceType(placeType)

	lines, err := decodeJSON[[]domain.OrderItem](items)
	if err != nil {
		return nil, err
	}
	if lines != nil {
		o.Items = *lines
	}
	if o.Delivery, err = decodeJSON[domain.DeliveryDetails](delivery); err != nil {
		return nil, err
	}
	refs, err := decodeJSON[domain.PaymentRefs](payment)
	if err != nil {
		return nil, err
	}
	if refs != nil {
		o.Payment = *refs
	}
	if o.Refund, err = decodeJSON[domain.RefundDetails](refund); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) queryOrders(ctx context.Context, op, sql string, args ...any) ([]*domain.Order, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, op, nil)
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, mapError(err, op, nil)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, op, nil)
	}
	return out, nil
}

func (s *Store) CreateOrder(ctx context.Context, o *domain.Order) error {
	const op = "postgres.createOrder"
	items, err := jsonValue(o.Items)
	if err != nil {
		return domain.Internal(err, op, "encode items")
	}
	payment, err := jsonValue(o.Payment)
	if err != nil {
		return domain.Internal(err, op, "encode payment refs")
	}
	delivery, err := jsonArg(o.Delivery)
	if err != nil {
		return domain.Internal(err, op, "encode delivery")
	}
	refund, err := jsonArg(o.Refund)
	if err != nil {
		return domain.Internal(err, op, "encode refund")
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
		        $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)`,
		o.ID, o.UserID, o.CartID, items, o.Subtotal, o.ProductDiscount, o.CouponDiscount,
		o.DeliveryFee, o.TotalPrice, o.Currency, o.CouponID, o.PaymentMethodID,
		string(o.PaymentMethod), string(o.Provider), string(o.PaymentStatus), string(o.OrderStatus), string(o.PlaceType),
		delivery, o.TableID, o.ReservationID, payment, refund, o.CancellationReason,
		o.FailureReason, o.PaidAt, o.CreatedAt, o.UpdatedAt,
	)
	return mapError(err, op, nil)
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "postgres.getOrder", domain.ErrOrderNotFound)
	}
	return o, nil
}

func (s *Store) getOrderByRef(ctx context.Context, op, field, value string) (*domain.Order, error) {
	if value == "" {
		return nil, domain.WithOp(domain.ErrOrderNotFound, op)
	}
	o, err := scanOrder(s.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE payment ->> '`+field+`' = $1 ORDER BY created_at DESC LIMIT 1`, value))
	if err != nil {
		return nil, mapError(err, op, domain.ErrOrderNotFound)
	}
	return o, nil
}

func (s *Store) GetOrderByCorrelationID(ctx context.Context, correlationID string) (*domain.Order, error) {
	return s.getOrderByRef(ctx, "postgres.getOrderByCorrelationID", "paymobCorrelationId", correlationID)
}

func (s *Store) GetOrderByPaymobOrderID(ctx context.Context, paymobOrderID string) (*domain.Order, error) {
	return s.getOrderByRef(ctx, "postgres.getOrderByPaymobOrderID", "paymobOrderId", paymobOrderID)
}

func (s *Store) GetOrderByStripeSessionID(ctx context.Context, sessionID string) (*domain.Order, error) {
	return s.getOrderByRef(ctx, "postgres.getOrderByStripeSessionID", "stripeSessionId", sessionID)
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	return s.queryOrders(ctx, "postgres.listOrdersByUser",
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (s *Store) ListStalePendingOrders(ctx context.Context, createdBefore time.Time, limit int) ([]*domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryOrders(ctx, "postgres.listStalePendingOrders",
		`SELECT `+orderColumns+` FROM orders
		 WHERE payment_status = $1 AND created_at < $2
		   AND NOT COALESCE((payment->>'authorized')::boolean, false)
		 ORDER BY created_at ASC LIMIT $3`,
		string(domain.PaymentPending), createdBefore, limit)
}

func (s *Store) SetPaymentRefs(ctx context.Context, id uuid.UUID, refs domain.PaymentRefs) error {
	const op = "postgres.setPaymentRefs"
	payment, err := jsonValue(refs)
	if err != nil {
		return domain.Internal(err, op, "encode payment refs")
	}
	tag, err := s.db.Exec(ctx, `UPDATE orders SET payment = $2, updated_at = $3 WHERE id = $1`, id, payment, s.now())
	if err != nil {
		return mapError(err, op, nil)
	}
	if tag.RowsAffected() == 0 {
		return domain.WithOp(domain.ErrOrderNotFound, op)
	}
	return nil
}

func (s *Store) SetReservation(ctx context.Context, id, reservationID uuid.UUID) error {
	const op = "postgres.setReservation"
	tag, err := s.db.Exec(ctx, `UPDATE orders SET reservation_id = $2, updated_at = $3 WHERE id = $1`, id, reservationID, s.now())
	if err != nil {
		return mapError(err, op, nil)
	}
	if tag.RowsAffected() == 0 {
		return domain.WithOp(domain.ErrOrderNotFound, op)
	}
	return nil
}

// UpdateStatus applies u only while the stored status still matches its
// guard. The guard and the write are one statement.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, u domain.StatusUpdate) (bool, error) {
	const op = "postgres.updateStatus"
	refund, err := jsonArg(u.Refund)
	if err != nil {
		return false, domain.Internal(err, op, "encode refund")
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE orders SET
			payment_status      = $2,
			order_status        = $3,
			payment             = CASE WHEN $4 = '' THEN payment
			                           ELSE jsonb_set(payment, '{transactionId}', to_jsonb($4::text)) END,
			refund              = COALESCE($5::jsonb, refund),
			cancellation_reason = COALESCE(NULLIF($6, ''), cancellation_reason),
			failure_reason      = COALESCE(NULLIF($7, ''), failure_reason),
			paid_at             = COALESCE($8, paid_at),
			updated_at          = $9
		WHERE id = $1
		  AND payment_status = ANY($10)
		  AND (cardinality($11::text[]) = 0 OR order_status = ANY($11))`,
		id, string(u.PaymentStatus), string(u.OrderStatus),
		u.TransactionID, refund, u.CancellationReason, u.FailureReason, u.PaidAt, s.now(),
		stringSlice(u.From), stringSlice(u.FromOrder),
	)
	if err != nil {
		return false, mapError(err, op, nil)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, mapError(err, op, nil)
	}
	if !exists {
		return false, domain.WithOp(domain.ErrOrderNotFound, op)
	}
	return false, nil
}
