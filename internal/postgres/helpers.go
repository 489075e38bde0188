package postgres

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xhaelri/qitchen/internal/domain"
)

// Postgres error codes the store translates.
const (
	codeUniqueViolation    = "23505"
	codeExclusionViolation = "23P01"
)

// constraintErrors maps named constraints to the domain error they signal.
var constraintErrors = map[string]error{
	"reservations_table_slot_key":  domain.ErrSlotUnavailable,
	"carts_user_id_key":            domain.ErrCartExists,
	"coupons_code_key":             domain.ErrCouponCodeTaken,
	"global_discounts_no_overlap":  domain.ErrOverlappingGlobalDiscount,
	"restaurant_tables_number_key": domain.Errorf(domain.ECONFLICT, "", "Table number already exists"),
	"idx_delivery_locations_key":   domain.Errorf(domain.ECONFLICT, "", "Delivery location already exists"),
}

// mapError converts driver errors into domain errors. notFound is returned for
// pgx.ErrNoRows; any other unrecognised error becomes an internal error.
func mapError(err error, op string, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) && notFound != nil {
		return domain.WithOp(notFound, op)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation, codeExclusionViolation:
			if mapped, ok := constraintErrors[pgErr.ConstraintName]; ok {
				return domain.WithOp(mapped, op)
			}
			return domain.WrapError(err, domain.ECONFLICT, op, "Record already exists")
		}
	}
	return domain.Internal(err, op, "database error")
}

// jsonArg marshals v for a JSONB column. A nil pointer becomes SQL NULL.
func jsonArg[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	return b, nil
}

// jsonValue marshals v for a NOT NULL JSONB column.
func jsonValue(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	return b, nil
}

// decodeJSON unmarshals a nullable JSONB column into a new T.
func decodeJSON[T any](b []byte) (*T, error) {
	if len(b) == 0 {
		return nil, nil
	}
	v := new(T)
	if err := json.Unmarshal(b, v); err != nil {
		return nil, fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return v, nil
}

// stringSlice converts a slice of string-kinded values for ANY($n) parameters.
func stringSlice[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}
