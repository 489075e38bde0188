// Package postgres implements domain.Store on PostgreSQL through pgx.
// Conditional writes (order status, coupon redemption, table slots) are
// single statements or row-locked transactions so concurrent requests
// cannot both succeed.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xhaelri/qitchen/internal/domain"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var (
	_ domain.Store = (*Store)(nil)
	_ DB           = (*pgxpool.Pool)(nil)
)

// Store is the PostgreSQL data store.
type Store struct {
	db     DB
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Store on db.
func New(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger, now: time.Now}
}

// Connect opens and pings a connection pool.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// SeedPaymentMethods inserts the default registry entries that are missing.
// Existing rows, including their active flags, are left untouched.
func (s *Store) SeedPaymentMethods(ctx context.Context) error {
	const op = "postgres.seedPaymentMethods"
	for _, m := range domain.DefaultPaymentMethods() {
		_, err := s.db.Exec(ctx, `
			INSERT INTO payment_methods (id, name, provider, is_active, display_name, description, icon, sort_order, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (name) DO NOTHING`,
			m.ID, string(m.Name), string(m.Provider), m.IsActive, m.DisplayName, m.Description, m.Icon, m.SortOrder, s.now())
		if err != nil {
			return mapError(err, op, nil)
		}
	}
	return nil
}

// withTx runs fn in a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
