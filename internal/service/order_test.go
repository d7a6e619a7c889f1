package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvrhoads/njord/internal/domain"
	"github.com/dvrhoads/njord/internal/notify"
	"github.com/dvrhoads/njord/internal/store"
	"github.com/dvrhoads/njord/internal/store/memory"
)

type orderEnv struct {
	store  *memory.Store
	events *notify.MockDispatcher
	orders *OrderService
}

func newOrderEnv() *orderEnv {
	mem := memory.NewStore()
	events := notify.NewMockDispatcher()
	return &orderEnv{
		store:  mem,
		events: events,
		orders: NewOrderService(mem, events, zerolog.Nop()),
	}
}

// seedOrder persists an order in the given status with its pending
// payment, returning the order id.
func (e *orderEnv) seedOrder(t *testing.T, userID string, status domain.OrderStatus, couponID *uuid.UUID) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	orderID := uuid.New()
	order := &domain.Order{
		ID:              orderID,
		UserID:          userID,
		SubtotalCents:   5000,
		TotalCents:      5000,
		Currency:        "USD",
		Status:          domain.OrderPending,
		AppliedCouponID: couponID,
		ShippingAddress: "1 Main St",
		CreatedAt:       now,
	}
	order.Items = []domain.OrderItem{{
		ID:             uuid.New(),
		OrderID:        orderID,
		ProductID:      "sku-1",
		ProductName:    "Widget",
		UnitPriceCents: 5000,
		Quantity:       1,
	}}

	params := store.CreateOrderParams{
		Order: order,
		Payment: &domain.Payment{
			ID:             uuid.New(),
			OrderID:        orderID,
			Method:         domain.PaymentMethodCard,
			AmountCents:    5000,
			Currency:       "USD",
			Status:         domain.PaymentPending,
			IdempotencyKey: uuid.NewString(),
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	}
	if couponID != nil {
		params.Usage = &domain.CouponUsage{
			ID:        uuid.New(),
			CouponID:  *couponID,
			OrderID:   orderID,
			UserID:    userID,
			CreatedAt: now,
		}
	}
	require.NoError(t, e.store.Orders().CreateOrder(ctx, params))

	// Walk the order to the requested starting status.
	path := map[domain.OrderStatus][]domain.OrderStatus{
		domain.OrderPending:    {},
		domain.OrderConfirmed:  {domain.OrderConfirmed},
		domain.OrderProcessing: {domain.OrderConfirmed, domain.OrderProcessing},
		domain.OrderShipped:    {domain.OrderConfirmed, domain.OrderProcessing, domain.OrderShipped},
		domain.OrderDelivered:  {domain.OrderConfirmed, domain.OrderProcessing, domain.OrderShipped, domain.OrderDelivered},
	}
	from := domain.OrderPending
	for _, next := range path[status] {
		require.NoError(t, e.store.Orders().TransitionStatus(ctx, orderID, from, next, now))
		from = next
	}
	return orderID
}

func TestOrderService_TransitionStatus_HappyPath(t *testing.T) {
	env := newOrderEnv()
	ctx := context.Background()
	orderID := env.seedOrder(t, "user-1", domain.OrderPending, nil)

	for _, next := range []domain.OrderStatus{
		domain.OrderConfirmed,
		domain.OrderProcessing,
		domain.OrderShipped,
		domain.OrderDelivered,
	} {
		order, err := env.orders.TransitionStatus(ctx, orderID, next)
		require.NoError(t, err, "transition to %s", next)
		assert.Equal(t, next, order.Status)
	}

	order, err := env.orders.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderDelivered, order.Status)
	assert.NotNil(t, order.ConfirmedAt)
	assert.NotNil(t, order.ShippedAt)
	assert.NotNil(t, order.DeliveredAt)
	assert.Equal(t, 4, env.events.OrderEventCount(notify.SubjectOrderTransition))
}

func TestOrderService_TransitionStatus_Illegal(t *testing.T) {
	env := newOrderEnv()
	ctx := context.Background()

	tests := []struct {
		name string
		from domain.OrderStatus
		to   domain.OrderStatus
	}{
		{"skip ahead", domain.OrderPending, domain.OrderShipped},
		{"backwards", domain.OrderProcessing, domain.OrderConfirmed},
		{"return before delivery", domain.OrderShipped, domain.OrderReturned},
		{"cancel after shipping", domain.OrderShipped, domain.OrderCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orderID := env.seedOrder(t, "user-1", tt.from, nil)
			_, err := env.orders.TransitionStatus(ctx, orderID, tt.to)
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)

			// State is untouched after a rejected transition.
			order, getErr := env.orders.GetOrder(ctx, orderID)
			require.NoError(t, getErr)
			assert.Equal(t, tt.from, order.Status)
		})
	}
}

func TestOrderService_TransitionStatus_UnknownStatus(t *testing.T) {
	env := newOrderEnv()
	orderID := env.seedOrder(t, "user-1", domain.OrderPending, nil)

	_, err := env.orders.TransitionStatus(context.Background(), orderID, "teleported")
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestOrderService_TransitionStatus_ReturnedAfterDelivery(t *testing.T) {
	env := newOrderEnv()
	ctx := context.Background()
	orderID := env.seedOrder(t, "user-1", domain.OrderDelivered, nil)

	order, err := env.orders.TransitionStatus(ctx, orderID, domain.OrderReturned)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderReturned, order.Status)
	assert.NotNil(t, order.ReturnedAt)
}

func TestOrderService_TransitionStatus_Concurrent(t *testing.T) {
	env := newOrderEnv()
	ctx := context.Background()
	orderID := env.seedOrder(t, "user-1", domain.OrderProcessing, nil)

	const workers = 10
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.orders.TransitionStatus(ctx, orderID, domain.OrderShipped)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			// Losers see either the conditional write conflict or, if they
			// read after the winner committed, an illegal transition.
			isConflict := domain.IsCode(err, domain.ECONFLICT)
			isIllegal := domain.IsCode(err, domain.EBUSINESSRULE)
			assert.True(t, isConflict || isIllegal, "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, winners, "exactly one transition may win")
}

func TestOrderService_CancelOrder_ReleasesCoupon(t *testing.T) {
	env := newOrderEnv()
	ctx := context.Background()

	couponID := uuid.New()
	env.store.PutCoupon(&domain.Coupon{
		ID:         couponID,
		Code:       "SAVE10",
		Type:       domain.CouponPercentage,
		UsageLimit: 10,
		Active:     true,
		ValidFrom:  time.Now().Add(-time.Hour),
		ValidTo:    time.Now().Add(time.Hour),
	})
	orderID := env.seedOrder(t, "user-1", domain.OrderConfirmed, &couponID)

	c, err := env.store.Coupons().GetCoupon(ctx, couponID)
	require.NoError(t, err)
	require.Equal(t, int32(1), c.UsageCount)

	order, err := env.orders.CancelOrder(ctx, orderID, domain.Identity{UserID: "user-1", Role: domain.RoleCustomer})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, order.Status)
	assert.NotNil(t, order.CancelledAt)

	// The usage slot is free again for someone else.
	c, err = env.store.Coupons().GetCoupon(ctx, couponID)
	require.NoError(t, err)
	assert.Equal(t, int32(0), c.UsageCount)
	assert.Equal(t, 1, env.events.OrderEventCount(notify.SubjectOrderCancelled))
}

func TestOrderService_CancelOrder_Authorization(t *testing.T) {
	env := newOrderEnv()
	ctx := context.Background()

	t.Run("stranger cannot cancel", func(t *testing.T) {
		orderID := env.seedOrder(t, "user-1", domain.OrderPending, nil)
		_, err := env.orders.CancelOrder(ctx, orderID, domain.Identity{UserID: "user-2", Role: domain.RoleCustomer})
		assert.Equal(t, domain.EFORBIDDEN, domain.ErrorCode(err))
	})

	t.Run("staff can cancel any order", func(t *testing.T) {
		orderID := env.seedOrder(t, "user-1", domain.OrderPending, nil)
		order, err := env.orders.CancelOrder(ctx, orderID, domain.Identity{UserID: "admin-1", Role: domain.RoleAdmin})
		require.NoError(t, err)
		assert.Equal(t, domain.OrderCancelled, order.Status)
	})
}

func TestOrderService_CancelOrder_TooLate(t *testing.T) {
	env := newOrderEnv()
	ctx := context.Background()
	actor := domain.Identity{UserID: "user-1", Role: domain.RoleCustomer}

	for _, status := range []domain.OrderStatus{domain.OrderShipped, domain.OrderDelivered} {
		orderID := env.seedOrder(t, "user-1", status, nil)
		_, err := env.orders.CancelOrder(ctx, orderID, actor)
		assert.ErrorIs(t, err, domain.ErrOrderNotCancellable, "status %s", status)
	}
}

func TestOrderService_GetOrder_NotFound(t *testing.T) {
	env := newOrderEnv()
	_, err := env.orders.GetOrder(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}
