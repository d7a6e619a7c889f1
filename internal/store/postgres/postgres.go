// Package postgres is the production store implementation on pgx. The
// invariant-bearing writes (coupon reservation, refund balance, status
// transitions) are single conditional statements so the database, not the
// application, decides every race.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dvrhoads/njord/internal/store"
)

// Store implements store.Store against a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool

	carts    *CartStore
	coupons  *CouponStore
	orders   *OrderStore
	payments *PaymentStore
}

var _ store.Store = (*Store)(nil)

// NewStore connects a store to an existing pool.
func NewStore(pool *pgxpool.Pool) *Store {
	s := &Store{pool: pool}
	s.carts = &CartStore{pool: pool}
	s.coupons = &CouponStore{pool: pool}
	s.orders = &OrderStore{pool: pool, coupons: s.coupons}
	s.payments = &PaymentStore{pool: pool}
	return s
}

// Connect opens a pool, verifies connectivity, and returns a Store.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewStore(pool), nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks database connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Carts() store.CartStore       { return s.carts }
func (s *Store) Coupons() store.CouponStore   { return s.coupons }
func (s *Store) Orders() store.OrderStore     { return s.orders }
func (s *Store) Payments() store.PaymentStore { return s.payments }
