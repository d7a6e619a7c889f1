package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvrhoads/njord/internal/domain"
	"github.com/dvrhoads/njord/internal/notify"
	"github.com/dvrhoads/njord/internal/store"
	"github.com/dvrhoads/njord/internal/telemetry"
)

// OrderService drives the order status state machine. All writes go
// through conditional store transitions, so concurrent updates resolve
// to exactly one winner and the losers get a conflict they can retry
// after re-reading.
type OrderService struct {
	store  store.Store
	events notify.Dispatcher
	logger zerolog.Logger
	now    func() time.Time
}

var _ domain.OrderService = (*OrderService)(nil)

// NewOrderService creates an order service.
func NewOrderService(st store.Store, events notify.Dispatcher, logger zerolog.Logger) *OrderService {
	return &OrderService{store: st, events: events, logger: logger, now: time.Now}
}

// GetOrder retrieves a single order by ID with its items.
func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return s.store.Orders().GetOrder(ctx, orderID)
}

// TransitionStatus moves the order to next if the state machine allows
// it. The write is conditional on the status we read; if another writer
// got there first the caller sees ErrTransitionConflict and can re-read.
func (s *OrderService) TransitionStatus(ctx context.Context, orderID uuid.UUID, next domain.OrderStatus) (*domain.Order, error) {
	const op = "order.transition_status"

	if !domain.ValidOrderStatus(next) {
		return nil, domain.Invalid(op, "unknown order status")
	}

	order, err := s.store.Orders().GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	from := order.Status
	if !domain.CanTransitionOrder(from, next) {
		return nil, domain.ErrInvalidTransition
	}

	at := s.now()
	if err := s.store.Orders().TransitionStatus(ctx, orderID, from, next, at); err != nil {
		if domain.IsCode(err, domain.ECONFLICT) {
			if m := telemetry.Business; m != nil {
				m.TransitionConflict.WithLabelValues(string(next)).Inc()
			}
		}
		return nil, err
	}

	order.Status = next
	order.StampTransition(next, at)

	if m := telemetry.Business; m != nil {
		m.OrderTransitions.WithLabelValues(string(from), string(next)).Inc()
	}
	s.publishTransition(ctx, order, from, next, at)

	s.logger.Info().
		Str("order_id", orderID.String()).
		Str("from", string(from)).
		Str("to", string(next)).
		Msg("order status changed")

	return order, nil
}

// CancelOrder cancels the order if the requester owns it (or is staff)
// and the order has not shipped. Cancellation releases the coupon usage
// the order reserved, freeing the slot for someone else.
func (s *OrderService) CancelOrder(ctx context.Context, orderID uuid.UUID, actor domain.Identity) (*domain.Order, error) {
	const op = "order.cancel"

	order, err := s.store.Orders().GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.UserID != actor.UserID && !actor.Staff() {
		return nil, domain.Errorf(domain.EFORBIDDEN, op, "you cannot cancel this order")
	}
	from := order.Status
	if !from.Cancellable() {
		return nil, domain.ErrOrderNotCancellable
	}

	at := s.now()
	if err := s.store.Orders().TransitionStatus(ctx, orderID, from, domain.OrderCancelled, at); err != nil {
		return nil, err
	}

	order.Status = domain.OrderCancelled
	order.StampTransition(domain.OrderCancelled, at)

	if order.AppliedCouponID != nil {
		s.releaseCoupon(ctx, *order.AppliedCouponID, orderID)
	}

	if m := telemetry.Business; m != nil {
		m.OrdersCancelled.WithLabelValues(string(from)).Inc()
	}
	s.publishTransition(ctx, order, from, domain.OrderCancelled, at)

	s.logger.Info().
		Str("order_id", orderID.String()).
		Str("from", string(from)).
		Str("actor", actor.UserID).
		Msg("order cancelled")

	return order, nil
}

// ExpireOrder cancels a pending order the customer abandoned. It runs
// on behalf of the system, so there is no ownership check. Losing the
// transition race means the order moved on (a late payment confirmed
// it, or the customer cancelled); that is success from the sweeper's
// point of view, so conflicts come back as nil.
func (s *OrderService) ExpireOrder(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.store.Orders().GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != domain.OrderPending {
		return nil
	}

	at := s.now()
	err = s.store.Orders().TransitionStatus(ctx, orderID, domain.OrderPending, domain.OrderCancelled, at)
	if err != nil {
		if domain.IsCode(err, domain.ECONFLICT) {
			return nil
		}
		return err
	}

	order.Status = domain.OrderCancelled
	order.StampTransition(domain.OrderCancelled, at)

	if order.AppliedCouponID != nil {
		s.releaseCoupon(ctx, *order.AppliedCouponID, orderID)
	}

	if m := telemetry.Business; m != nil {
		m.OrdersExpired.Inc()
		m.OrdersCancelled.WithLabelValues(string(domain.OrderPending)).Inc()
	}
	s.publishTransition(ctx, order, domain.OrderPending, domain.OrderCancelled, at)

	s.logger.Info().
		Str("order_id", orderID.String()).
		Time("created_at", order.CreatedAt).
		Msg("pending order expired")

	return nil
}

// releaseCoupon frees the usage slot. The order is already cancelled at
// this point; a release failure is logged for reconciliation rather than
// surfaced, since retrying the cancellation would only conflict.
func (s *OrderService) releaseCoupon(ctx context.Context, couponID, orderID uuid.UUID) {
	if err := s.store.Coupons().ReleaseUsage(ctx, couponID, orderID); err != nil {
		s.logger.Error().Err(err).
			Str("coupon_id", couponID.String()).
			Str("order_id", orderID.String()).
			Msg("failed to release coupon usage")
		return
	}
	if m := telemetry.Business; m != nil {
		couponType := "unknown"
		if c, err := s.store.Coupons().GetCoupon(ctx, couponID); err == nil {
			couponType = string(c.Type)
		}
		m.CouponsReleased.WithLabelValues(couponType).Inc()
	}
}

func (s *OrderService) publishTransition(ctx context.Context, order *domain.Order, from, to domain.OrderStatus, at time.Time) {
	subject := notify.SubjectOrderTransition
	if to == domain.OrderCancelled {
		subject = notify.SubjectOrderCancelled
	}
	err := s.events.PublishOrderEvent(ctx, subject, notify.OrderEvent{
		OrderID:    order.ID,
		UserID:     order.UserID,
		FromStatus: string(from),
		ToStatus:   string(to),
		TotalCents: order.TotalCents,
		OccurredAt: at,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("order_id", order.ID.String()).Msg("failed to publish order event")
	}
}
