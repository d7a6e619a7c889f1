package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dvrhoads/njord/internal/domain"
)

// CartStore implements store.CartStore. The cart is a checkout staging
// area, not a queried aggregate, so its lines live as one jsonb document.
type CartStore struct {
	pool *pgxpool.Pool
}

const getCartSQL = `SELECT user_id, items, updated_at FROM carts WHERE user_id = $1`

const saveCartSQL = `
	INSERT INTO carts (user_id, items, updated_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (user_id) DO UPDATE SET items = EXCLUDED.items, updated_at = EXCLUDED.updated_at`

const deleteCartSQL = `DELETE FROM carts WHERE user_id = $1`

func (s *CartStore) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	var (
		cart      domain.Cart
		itemsJSON []byte
	)
	err := s.pool.QueryRow(ctx, getCartSQL, userID).Scan(&cart.UserID, &itemsJSON, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCartNotFound
		}
		return nil, domain.Internal(err, "cart.get", "failed to load cart")
	}
	if err := json.Unmarshal(itemsJSON, &cart.Items); err != nil {
		return nil, domain.Internal(err, "cart.get", "invalid cart items")
	}
	return &cart, nil
}

func (s *CartStore) SaveCart(ctx context.Context, cart *domain.Cart) error {
	itemsJSON, err := json.Marshal(cart.Items)
	if err != nil {
		return domain.Internal(err, "cart.save", "failed to encode cart items")
	}
	if _, err := s.pool.Exec(ctx, saveCartSQL, cart.UserID, itemsJSON, cart.UpdatedAt); err != nil {
		return domain.Internal(err, "cart.save", "failed to save cart")
	}
	return nil
}

func (s *CartStore) DeleteCart(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, deleteCartSQL, userID); err != nil {
		return domain.Internal(err, "cart.delete", "failed to delete cart")
	}
	return nil
}
