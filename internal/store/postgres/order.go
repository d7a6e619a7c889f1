package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dvrhoads/njord/internal/domain"
	"github.com/dvrhoads/njord/internal/store"
)

// OrderStore implements store.OrderStore.
type OrderStore struct {
	pool    *pgxpool.Pool
	coupons *CouponStore
}

const insertOrderSQL = `
	INSERT INTO orders (
		id, user_id, subtotal_cents, discount_cents, tax_cents, shipping_cents,
		total_cents, currency, status, applied_coupon_id, shipping_address, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

const insertOrderItemSQL = `
	INSERT INTO order_items (id, order_id, product_id, product_name, category, unit_price_cents, quantity)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

const insertPaymentSQL = `
	INSERT INTO payments (
		id, order_id, method, amount_cents, currency, status, refunded_cents,
		gateway_order_id, external_transaction_id, idempotency_key, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

const getOrderSQL = `
	SELECT id, user_id, subtotal_cents, discount_cents, tax_cents, shipping_cents,
		total_cents, currency, status, applied_coupon_id, shipping_address,
		created_at, confirmed_at, processed_at, shipped_at, delivered_at,
		cancelled_at, returned_at, refunded_at
	FROM orders WHERE id = $1`

const getOrderItemsSQL = `
	SELECT id, order_id, product_id, product_name, category, unit_price_cents, quantity
	FROM order_items WHERE order_id = $1 ORDER BY product_id`

// transitionStampColumns maps each reachable status to its timestamp
// column. Keys are trusted: callers pass domain.OrderStatus constants.
var transitionStampColumns = map[domain.OrderStatus]string{
	domain.OrderConfirmed:  "confirmed_at",
	domain.OrderProcessing: "processed_at",
	domain.OrderShipped:    "shipped_at",
	domain.OrderDelivered:  "delivered_at",
	domain.OrderCancelled:  "cancelled_at",
	domain.OrderReturned:   "returned_at",
	domain.OrderRefunded:   "refunded_at",
}

func (s *OrderStore) CreateOrder(ctx context.Context, params store.CreateOrderParams) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Internal(err, "order.create", "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	// Reservation participates in the same transaction: if the coupon
	// limit was taken concurrently, the rollback erases the whole order.
	if params.Usage != nil {
		if err := reserveUsageTx(ctx, tx, params.Usage); err != nil {
			return err
		}
	}

	o := params.Order
	_, err = tx.Exec(ctx, insertOrderSQL,
		o.ID, o.UserID, o.SubtotalCents, o.DiscountCents, o.TaxCents, o.ShippingCents,
		o.TotalCents, o.Currency, o.Status, o.AppliedCouponID, o.ShippingAddress, o.CreatedAt)
	if err != nil {
		return domain.Internal(err, "order.create", "failed to insert order")
	}

	for _, item := range o.Items {
		_, err = tx.Exec(ctx, insertOrderItemSQL,
			item.ID, o.ID, item.ProductID, item.ProductName, item.Category, item.UnitPriceCents, item.Quantity)
		if err != nil {
			return domain.Internal(err, "order.create", "failed to insert order item")
		}
	}

	p := params.Payment
	_, err = tx.Exec(ctx, insertPaymentSQL,
		p.ID, p.OrderID, p.Method, p.AmountCents, p.Currency, p.Status, p.RefundedCents,
		p.GatewayOrderID, p.ExternalTransactionID, p.IdempotencyKey, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return domain.Internal(err, "order.create", "failed to insert payment")
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Internal(err, "order.create", "failed to commit order")
	}
	return nil
}

func (s *OrderStore) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var o domain.Order
	err := s.pool.QueryRow(ctx, getOrderSQL, id).Scan(
		&o.ID, &o.UserID, &o.SubtotalCents, &o.DiscountCents, &o.TaxCents, &o.ShippingCents,
		&o.TotalCents, &o.Currency, &o.Status, &o.AppliedCouponID, &o.ShippingAddress,
		&o.CreatedAt, &o.ConfirmedAt, &o.ProcessedAt, &o.ShippedAt, &o.DeliveredAt,
		&o.CancelledAt, &o.ReturnedAt, &o.RefundedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, domain.Internal(err, "order.get", "failed to load order")
	}

	rows, err := s.pool.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, domain.Internal(err, "order.get", "failed to load order items")
	}
	o.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OrderItem, error) {
		var item domain.OrderItem
		err := row.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName,
			&item.Category, &item.UnitPriceCents, &item.Quantity)
		return item, err
	})
	if err != nil {
		return nil, domain.Internal(err, "order.get", "failed to scan order items")
	}
	return &o, nil
}

func (s *OrderStore) TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus, at time.Time) error {
	col, ok := transitionStampColumns[to]
	if !ok {
		return domain.ErrInvalidTransition
	}

	// Conditional write on the expected prior status linearizes the
	// state machine: concurrent writers from the same state cannot both
	// match the WHERE clause.
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $1, `+col+` = $2 WHERE id = $3 AND status = $4`,
		to, at, orderID, from)
	if err != nil {
		return domain.Internal(err, "order.transition", "failed to update order status")
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT true FROM orders WHERE id = $1`, orderID).Scan(&exists); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrOrderNotFound
			}
			return domain.Internal(err, "order.transition", "failed to check order")
		}
		return domain.ErrTransitionConflict
	}
	return nil
}

const listStalePendingSQL = `
	SELECT id, user_id, subtotal_cents, discount_cents, tax_cents, shipping_cents,
		total_cents, currency, status, applied_coupon_id, shipping_address,
		created_at, confirmed_at, processed_at, shipped_at, delivered_at,
		cancelled_at, returned_at, refunded_at
	FROM orders
	WHERE status = $1 AND created_at < $2
	ORDER BY created_at
	LIMIT $3`

func (s *OrderStore) ListStalePending(ctx context.Context, cutoff time.Time, limit int32) ([]*domain.Order, error) {
	rows, err := s.pool.Query(ctx, listStalePendingSQL, domain.OrderPending, cutoff, limit)
	if err != nil {
		return nil, domain.Internal(err, "order.list_stale", "failed to query stale orders")
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Order, error) {
		var o domain.Order
		err := row.Scan(
			&o.ID, &o.UserID, &o.SubtotalCents, &o.DiscountCents, &o.TaxCents, &o.ShippingCents,
			&o.TotalCents, &o.Currency, &o.Status, &o.AppliedCouponID, &o.ShippingAddress,
			&o.CreatedAt, &o.ConfirmedAt, &o.ProcessedAt, &o.ShippedAt, &o.DeliveredAt,
			&o.CancelledAt, &o.ReturnedAt, &o.RefundedAt,
		)
		return &o, err
	})
	if err != nil {
		return nil, domain.Internal(err, "order.list_stale", "failed to scan stale orders")
	}
	return orders, nil
}
