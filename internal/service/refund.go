package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvrhoads/njord/internal/domain"
	"github.com/dvrhoads/njord/internal/gateway"
	"github.com/dvrhoads/njord/internal/notify"
	"github.com/dvrhoads/njord/internal/store"
	"github.com/dvrhoads/njord/internal/telemetry"
)

// RefundProcessor issues partial and full refunds against succeeded
// payments. The cumulative refunded amount never exceeds the payment
// amount; the store enforces that with a conditional write, so even
// racing refund requests cannot overdraw.
type RefundProcessor struct {
	store         store.Store
	provider      gateway.Provider
	events        notify.Dispatcher
	logger        zerolog.Logger
	retryAttempts int
	retryDelay    time.Duration
	now           func() time.Time
}

var _ domain.RefundService = (*RefundProcessor)(nil)

// NewRefundProcessor creates a refund processor.
func NewRefundProcessor(st store.Store, provider gateway.Provider, events notify.Dispatcher, logger zerolog.Logger) *RefundProcessor {
	return &RefundProcessor{
		store:         st,
		provider:      provider,
		events:        events,
		logger:        logger,
		retryAttempts: 3,
		retryDelay:    200 * time.Millisecond,
		now:           time.Now,
	}
}

// RequestRefund refunds amountCents against the payment, or the full
// remaining balance when amountCents is 0. A refund that completes the
// full payment amount also moves the delivered order to refunded.
func (s *RefundProcessor) RequestRefund(ctx context.Context, paymentID uuid.UUID, amountCents int64, reason string) (*domain.Refund, error) {
	const op = "refund.request"

	p, err := s.store.Payments().GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.PaymentSucceeded {
		return nil, domain.BusinessRule(op, "only succeeded payments can be refunded")
	}

	available := p.AvailableForRefund()
	if amountCents == 0 {
		amountCents = available
	}
	if amountCents < 0 {
		return nil, domain.Invalid(op, "refund amount cannot be negative")
	}
	if amountCents > available {
		return nil, domain.ErrRefundExceedsAvailable
	}
	if available == 0 {
		return nil, domain.ErrRefundExceedsAvailable
	}
	if p.ExternalTransactionID == nil {
		return nil, domain.Errorf(domain.EINTERNAL, op, "payment %s has no gateway transaction", p.ID)
	}

	refundID := uuid.New()
	var gwResult *gateway.RefundResult
	err = gateway.WithRetry(ctx, s.retryAttempts, s.retryDelay, func() error {
		var callErr error
		gwResult, callErr = s.provider.RefundPayment(ctx, gateway.RefundParams{
			GatewayPaymentID: *p.ExternalTransactionID,
			AmountCents:      amountCents,
			Reason:           reason,
			IdempotencyKey:   refundID.String(),
		})
		return callErr
	})
	if err != nil {
		return nil, mapGatewayError(err, op)
	}

	now := s.now()
	refund := &domain.Refund{
		ID:              refundID,
		PaymentID:       p.ID,
		AmountCents:     amountCents,
		Status:          domain.RefundSucceeded,
		Reason:          reason,
		GatewayRefundID: gwResult.GatewayRefundID,
		CreatedAt:       now,
	}
	refundedCents, err := s.store.Payments().ApplyRefund(ctx, refund)
	if err != nil {
		// The gateway refund went through but a concurrent refund beat us
		// to the balance. This needs a human.
		s.logger.Error().Err(err).
			Str("payment_id", p.ID.String()).
			Str("gateway_refund_id", gwResult.GatewayRefundID).
			Int64("amount_cents", amountCents).
			Msg("gateway refund issued but local apply failed, needs manual reconciliation")
		return nil, err
	}

	// Full-refund is decided on the post-increment total the store
	// returned; the snapshot read before the gateway call can be stale
	// under concurrent refunds.
	fullyRefunded := refundedCents >= p.AmountCents
	if fullyRefunded {
		s.markOrderRefunded(ctx, p.OrderID, now)
	}

	s.recordRefund(ctx, p, refund, fullyRefunded, now)

	s.logger.Info().
		Str("refund_id", refund.ID.String()).
		Str("payment_id", p.ID.String()).
		Int64("amount_cents", amountCents).
		Bool("full", fullyRefunded).
		Msg("refund issued")

	return refund, nil
}

// markOrderRefunded moves the order from delivered to refunded. Orders
// in any other state keep their status; the refund itself stands either
// way.
func (s *RefundProcessor) markOrderRefunded(ctx context.Context, orderID uuid.UUID, at time.Time) {
	err := s.store.Orders().TransitionStatus(ctx, orderID, domain.OrderDelivered, domain.OrderRefunded, at)
	if err == nil {
		return
	}
	if domain.IsCode(err, domain.ECONFLICT) || domain.IsCode(err, domain.ENOTFOUND) {
		s.logger.Warn().Err(err).Str("order_id", orderID.String()).Msg("order not moved to refunded")
		return
	}
	s.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to mark order refunded")
}

func (s *RefundProcessor) recordRefund(ctx context.Context, p *domain.Payment, refund *domain.Refund, full bool, at time.Time) {
	kind := "partial"
	if full {
		kind = "full"
	}
	if m := telemetry.Business; m != nil {
		m.RefundsIssued.WithLabelValues(kind).Inc()
		m.RefundAmount.WithLabelValues(kind).Add(float64(refund.AmountCents))
	}
	err := s.events.PublishPaymentEvent(ctx, notify.SubjectRefundIssued, notify.PaymentEvent{
		PaymentID:   p.ID,
		OrderID:     p.OrderID,
		AmountCents: refund.AmountCents,
		Status:      string(domain.RefundSucceeded),
		OccurredAt:  at,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("payment_id", p.ID.String()).Msg("failed to publish refund event")
	}
}
