// Package store defines the persistence boundary for the checkout
// workflow. Implementations live in store/postgres (production) and
// store/memory (tests and development).
//
// The write operations that guard invariants are deliberately coarse:
// coupon reservation, order creation and status transitions are single
// atomic operations here so no caller can observe or create partial
// state. All cross-request coordination happens through this layer.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dvrhoads/njord/internal/domain"
)

// CartStore persists mutable user carts.
type CartStore interface {
	// GetCart returns the user's cart or domain.ErrCartNotFound.
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)

	// SaveCart upserts the whole cart.
	SaveCart(ctx context.Context, cart *domain.Cart) error

	// DeleteCart removes the user's cart. Missing carts are a no-op.
	DeleteCart(ctx context.Context, userID string) error
}

// CouponStore persists coupons and their usage reservations.
type CouponStore interface {
	// GetCouponByCode returns the coupon or domain.ErrCouponNotFound.
	GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error)

	// GetCoupon returns the coupon by id or domain.ErrCouponNotFound.
	GetCoupon(ctx context.Context, id uuid.UUID) (*domain.Coupon, error)

	// CountUserUsage counts usage rows for (coupon, user).
	CountUserUsage(ctx context.Context, couponID uuid.UUID, userID string) (int32, error)

	// ReserveUsage increments the coupon's usage count and records a
	// usage row in one atomic step. The increment is conditional on the
	// usage limit; losing the race returns domain.ErrUsageLimitReached
	// with nothing written.
	ReserveUsage(ctx context.Context, usage *domain.CouponUsage) error

	// ReleaseUsage undoes a reservation for (coupon, order): decrements
	// the usage count and deletes the usage row. Releasing a reservation
	// that does not exist is a no-op.
	ReleaseUsage(ctx context.Context, couponID, orderID uuid.UUID) error
}

// CreateOrderParams is everything persisted when an order commits. Usage
// is nil when no coupon was applied.
type CreateOrderParams struct {
	Order   *domain.Order
	Payment *domain.Payment
	Usage   *domain.CouponUsage
}

// OrderStore persists orders and linearizes their status transitions.
type OrderStore interface {
	// CreateOrder persists the order, its items, the paired pending
	// payment, and the coupon reservation (if any) all-or-nothing. A
	// failed reservation aborts the whole creation and returns
	// domain.ErrUsageLimitReached.
	CreateOrder(ctx context.Context, params CreateOrderParams) error

	// GetOrder returns the order with items or domain.ErrOrderNotFound.
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)

	// TransitionStatus moves the order from one status to another with a
	// conditional write on the expected prior status. A concurrent
	// writer winning the race surfaces as domain.ErrTransitionConflict;
	// the order is re-readable to find out what happened.
	TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus, at time.Time) error

	// ListStalePending returns up to limit orders still pending that
	// were created before cutoff, oldest first. Items are not loaded.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int32) ([]*domain.Order, error)
}

// PaymentStore persists payments, attempts and refunds.
type PaymentStore interface {
	// GetPayment returns the payment or domain.ErrPaymentNotFound.
	GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error)

	// GetPaymentByOrderID returns the order's payment.
	GetPaymentByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error)

	// GetPaymentByExternalID looks up by gateway transaction id.
	GetPaymentByExternalID(ctx context.Context, externalTxnID string) (*domain.Payment, error)

	// GetPaymentByIdempotencyKey looks up by idempotency key; webhooks
	// fall back to this before a transaction id exists.
	GetPaymentByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error)

	// SetGatewayOrder records the gateway-side order reference issued
	// when the payment order was created.
	SetGatewayOrder(ctx context.Context, paymentID uuid.UUID, gatewayOrderID string) error

	// TransitionPayment moves the payment from one status to another
	// with a conditional write, recording the gateway transaction id.
	// Losing the race returns domain.ErrPaymentStateConflict.
	TransitionPayment(ctx context.Context, paymentID uuid.UUID, from, to domain.PaymentStatus, externalTxnID string, at time.Time) error

	// CreateAttempt appends a gateway interaction record.
	CreateAttempt(ctx context.Context, attempt *domain.PaymentAttempt) error

	// ListAttempts returns all attempts for a payment, oldest first.
	ListAttempts(ctx context.Context, paymentID uuid.UUID) ([]domain.PaymentAttempt, error)

	// ApplyRefund records the refund and increments the payment's
	// refunded amount in one atomic step, conditional on
	// refunded + amount <= payment amount. Returns the refunded total
	// after the increment; callers deciding full-refund must use that
	// value, not a snapshot read earlier. Exceeding the balance returns
	// domain.ErrRefundExceedsAvailable with nothing written.
	ApplyRefund(ctx context.Context, refund *domain.Refund) (int64, error)
}

// Store bundles the per-aggregate stores an implementation provides.
type Store interface {
	Carts() CartStore
	Coupons() CouponStore
	Orders() OrderStore
	Payments() PaymentStore
}
