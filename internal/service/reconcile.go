package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvrhoads/njord/internal/domain"
	"github.com/dvrhoads/njord/internal/gateway"
	"github.com/dvrhoads/njord/internal/notify"
	"github.com/dvrhoads/njord/internal/store"
	"github.com/dvrhoads/njord/internal/telemetry"
)

// PaymentReconciler owns every path that changes a payment's state:
// creating the gateway order, synchronous client verification and
// asynchronous webhooks. Verification and webhooks converge on one
// idempotent core, so each gateway outcome is applied exactly once no
// matter how many times or through which channel it arrives.
type PaymentReconciler struct {
	store         store.Store
	provider      gateway.Provider
	events        notify.Dispatcher
	logger        zerolog.Logger
	verifyTimeout time.Duration
	retryAttempts int
	retryDelay    time.Duration
	now           func() time.Time
}

var _ domain.PaymentService = (*PaymentReconciler)(nil)

// NewPaymentReconciler creates the reconciler. verifyTimeout bounds the
// synchronous verification call against the gateway.
func NewPaymentReconciler(st store.Store, provider gateway.Provider, events notify.Dispatcher, logger zerolog.Logger, verifyTimeout time.Duration) *PaymentReconciler {
	return &PaymentReconciler{
		store:         st,
		provider:      provider,
		events:        events,
		logger:        logger,
		verifyTimeout: verifyTimeout,
		retryAttempts: 3,
		retryDelay:    200 * time.Millisecond,
		now:           time.Now,
	}
}

// CreatePaymentOrder registers the pending payment with the gateway and
// returns what the client needs to complete payment. Safe to repeat: the
// idempotency key makes the gateway return the same order on retries.
func (r *PaymentReconciler) CreatePaymentOrder(ctx context.Context, paymentID uuid.UUID) (*domain.PaymentOrderResult, error) {
	const op = "payment.create_order"

	p, err := r.store.Payments().GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status.Terminal() {
		return nil, domain.ErrPaymentStateConflict
	}

	var gwOrder *gateway.PaymentOrder
	err = gateway.WithRetry(ctx, r.retryAttempts, r.retryDelay, func() error {
		var callErr error
		gwOrder, callErr = r.provider.CreatePaymentOrder(ctx, gateway.CreatePaymentOrderParams{
			AmountCents:    p.AmountCents,
			Currency:       p.Currency,
			OrderRef:       p.OrderID.String(),
			IdempotencyKey: p.IdempotencyKey,
		})
		return callErr
	})
	r.recordAttempt(ctx, p.ID, "create", p.Status, "", err)
	if err != nil {
		return nil, mapGatewayError(err, op)
	}

	if err := r.store.Payments().SetGatewayOrder(ctx, p.ID, gwOrder.GatewayOrderID); err != nil {
		return nil, domain.WrapError(err, domain.EINTERNAL, op, "failed to record gateway order")
	}

	r.logger.Info().
		Str("payment_id", p.ID.String()).
		Str("gateway_order_id", gwOrder.GatewayOrderID).
		Msg("payment order created")

	return &domain.PaymentOrderResult{
		PaymentID:      p.ID,
		GatewayOrderID: gwOrder.GatewayOrderID,
		ClientSecret:   gwOrder.ClientSecret,
		AmountCents:    p.AmountCents,
		Currency:       p.Currency,
	}, nil
}

// VerifySynchronous confirms a payment right after the client completes
// it. The gateway call is bounded by the verify timeout; a timeout tells
// the client to rely on the webhook instead of retrying blindly.
func (r *PaymentReconciler) VerifySynchronous(ctx context.Context, payload domain.VerificationPayload) (*domain.Payment, error) {
	const op = "payment.verify"

	p, err := r.store.Payments().GetPayment(ctx, payload.PaymentID)
	if err != nil {
		return nil, err
	}

	verifyCtx, cancel := context.WithTimeout(ctx, r.verifyTimeout)
	defer cancel()

	result, err := r.provider.VerifyPayment(verifyCtx, gateway.VerifyPaymentParams{
		TransactionID:  payload.TransactionID,
		GatewayOrderID: payload.GatewayOrderID,
		Signature:      payload.Signature,
	})
	if err != nil {
		r.recordAttempt(ctx, p.ID, "verify", p.Status, payload.TransactionID, err)
		return nil, mapGatewayError(err, op)
	}
	if !result.Valid {
		r.recordAttempt(ctx, p.ID, "verify", p.Status, payload.TransactionID, domain.ErrInvalidSignature)
		return nil, domain.ErrInvalidSignature
	}
	if result.AmountCents > 0 && result.AmountCents != p.AmountCents {
		return nil, domain.Errorf(domain.EINVALID, op,
			"gateway amount %d does not match payment amount %d", result.AmountCents, p.AmountCents)
	}

	// An in-flight gateway state (Stripe processing, requires_action) is
	// not an outcome. The payment stays pending; the client polls and
	// the webhook settles it.
	if result.State == gateway.StatePending {
		r.recordAttempt(ctx, p.ID, "verify", p.Status, payload.TransactionID, nil)
		r.logger.Debug().
			Str("payment_id", p.ID.String()).
			Msg("gateway reports payment still in flight")
		return r.store.Payments().GetPayment(ctx, p.ID)
	}

	err = r.applyOutcome(ctx, p, result.State == gateway.StateSucceeded, result.GatewayPaymentID, "verify")
	if err != nil && !errors.Is(err, domain.ErrPaymentAlreadyProcessed) {
		return nil, err
	}

	return r.store.Payments().GetPayment(ctx, p.ID)
}

// HandleWebhook processes an asynchronous gateway event. Signature
// verification comes before anything else; after that every outcome is
// funneled through the same idempotent core as synchronous verification,
// so at-least-once delivery applies each event at most once.
func (r *PaymentReconciler) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	const op = "payment.webhook"

	event, err := r.provider.VerifyWebhookSignature(body, signature)
	if err != nil {
		if m := telemetry.Business; m != nil {
			m.WebhookFailed.WithLabelValues("signature").Inc()
		}
		return domain.WrapError(err, domain.ESIGNATURE, op, "Signature verification failed")
	}

	if m := telemetry.Business; m != nil {
		m.WebhookReceived.WithLabelValues(string(event.Kind)).Inc()
	}
	if event.Kind == gateway.EventIgnored {
		return nil
	}

	started := r.now()
	p, err := r.resolvePayment(ctx, event)
	if err != nil {
		if m := telemetry.Business; m != nil {
			m.WebhookFailed.WithLabelValues("processing").Inc()
		}
		return err
	}

	succeeded := event.Kind == gateway.EventPaymentSucceeded
	err = r.applyOutcome(ctx, p, succeeded, event.TransactionID, "webhook")
	if err != nil {
		// A duplicate delivery is the expected at-least-once case and
		// must acknowledge cleanly.
		if errors.Is(err, domain.ErrPaymentAlreadyProcessed) {
			r.logger.Debug().
				Str("payment_id", p.ID.String()).
				Str("event", string(event.Kind)).
				Msg("webhook event already applied")
			return nil
		}
		if m := telemetry.Business; m != nil {
			m.WebhookFailed.WithLabelValues("processing").Inc()
		}
		return err
	}

	if m := telemetry.Business; m != nil {
		m.WebhookProcessed.WithLabelValues(string(event.Kind)).Inc()
		m.WebhookLatency.WithLabelValues(string(event.Kind)).Observe(r.now().Sub(started).Seconds())
	}
	return nil
}

// resolvePayment finds the payment a webhook refers to: by gateway
// transaction id first, falling back to the idempotency key for events
// that arrive before verification stored the transaction id.
func (r *PaymentReconciler) resolvePayment(ctx context.Context, event *gateway.WebhookEvent) (*domain.Payment, error) {
	if event.TransactionID != "" {
		p, err := r.store.Payments().GetPaymentByExternalID(ctx, event.TransactionID)
		if err == nil {
			return p, nil
		}
		if !domain.IsCode(err, domain.ENOTFOUND) {
			return nil, err
		}
	}
	if event.IdempotencyKey != "" {
		return r.store.Payments().GetPaymentByIdempotencyKey(ctx, event.IdempotencyKey)
	}
	return nil, domain.ErrPaymentNotFound
}

// applyOutcome is the idempotent core shared by synchronous verification
// and webhooks. The conditional pending->terminal store write is the
// linearization point: exactly one caller wins it, and everyone arriving
// after sees either "already applied" (same outcome, treated as success)
// or a genuine conflict (contradictory outcome).
func (r *PaymentReconciler) applyOutcome(ctx context.Context, p *domain.Payment, succeeded bool, txnID, source string) error {
	target := domain.PaymentFailed
	if succeeded {
		target = domain.PaymentSucceeded
	}

	if p.Status == target {
		return domain.ErrPaymentAlreadyProcessed
	}
	if p.Status.Terminal() {
		return domain.ErrPaymentStateConflict
	}

	at := r.now()
	err := r.store.Payments().TransitionPayment(ctx, p.ID, domain.PaymentPending, target, txnID, at)
	if err != nil {
		if !domain.IsCode(err, domain.ECONFLICT) {
			return err
		}
		// Lost the race. Re-read to find out whether the winner applied
		// the same outcome.
		current, readErr := r.store.Payments().GetPayment(ctx, p.ID)
		if readErr != nil {
			return readErr
		}
		if current.Status == target {
			return domain.ErrPaymentAlreadyProcessed
		}
		return domain.ErrPaymentStateConflict
	}

	r.recordAttempt(ctx, p.ID, source, target, txnID, nil)
	if m := telemetry.Business; m != nil {
		if succeeded {
			m.PaymentSucceeded.WithLabelValues(source).Inc()
		} else {
			m.PaymentFailed.WithLabelValues(source).Inc()
		}
	}

	if succeeded {
		r.confirmOrder(ctx, p.OrderID, at)
	}
	r.publishPaymentEvent(ctx, p, target, at)

	r.logger.Info().
		Str("payment_id", p.ID.String()).
		Str("status", string(target)).
		Str("source", source).
		Msg("payment outcome applied")

	return nil
}

// confirmOrder moves the paid order from pending to confirmed. Losing
// the transition race means someone else already confirmed or cancelled
// the order; a cancelled order with a successful payment is logged for
// manual reconciliation.
func (r *PaymentReconciler) confirmOrder(ctx context.Context, orderID uuid.UUID, at time.Time) {
	err := r.store.Orders().TransitionStatus(ctx, orderID, domain.OrderPending, domain.OrderConfirmed, at)
	if err == nil {
		if m := telemetry.Business; m != nil {
			m.OrderTransitions.WithLabelValues(string(domain.OrderPending), string(domain.OrderConfirmed)).Inc()
		}
		return
	}
	if domain.IsCode(err, domain.ECONFLICT) {
		order, readErr := r.store.Orders().GetOrder(ctx, orderID)
		if readErr == nil && order.Status == domain.OrderCancelled {
			r.logger.Error().
				Str("order_id", orderID.String()).
				Msg("payment succeeded for a cancelled order, needs manual reconciliation")
		}
		return
	}
	r.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to confirm paid order")
}

func (r *PaymentReconciler) publishPaymentEvent(ctx context.Context, p *domain.Payment, status domain.PaymentStatus, at time.Time) {
	subject := notify.SubjectPaymentFailed
	if status == domain.PaymentSucceeded {
		subject = notify.SubjectPaymentSucceeded
	}
	err := r.events.PublishPaymentEvent(ctx, subject, notify.PaymentEvent{
		PaymentID:   p.ID,
		OrderID:     p.OrderID,
		AmountCents: p.AmountCents,
		Status:      string(status),
		OccurredAt:  at,
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("payment_id", p.ID.String()).Msg("failed to publish payment event")
	}
}

// recordAttempt appends an audit row for a gateway interaction. Audit
// failures are logged, never surfaced.
func (r *PaymentReconciler) recordAttempt(ctx context.Context, paymentID uuid.UUID, kind string, status domain.PaymentStatus, txnID string, callErr error) {
	attempt := &domain.PaymentAttempt{
		ID:                   uuid.New(),
		PaymentID:            paymentID,
		Kind:                 kind,
		Status:               status,
		GatewayTransactionID: txnID,
		CreatedAt:            r.now(),
	}
	if callErr != nil {
		attempt.ErrorMessage = callErr.Error()
	}
	if err := r.store.Payments().CreateAttempt(ctx, attempt); err != nil {
		r.logger.Warn().Err(err).Str("payment_id", paymentID.String()).Msg("failed to record payment attempt")
	}
	if m := telemetry.Business; m != nil {
		m.PaymentAttempts.WithLabelValues(kind).Inc()
	}
}

// mapGatewayError translates gateway transport failures into the coded
// errors the HTTP layer understands. Unavailability is the only
// retryable outcome; a timeout means the result is unknown and the
// caller should wait for the webhook.
func mapGatewayError(err error, op string) error {
	switch {
	case errors.Is(err, gateway.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return domain.WrapError(err, domain.EGATEWAYTIMEOUT, op, "Payment gateway timed out")
	case errors.Is(err, gateway.ErrUnavailable):
		return domain.WrapError(err, domain.EGATEWAY, op, "Payment gateway unavailable")
	case errors.Is(err, gateway.ErrSignatureInvalid):
		return domain.WrapError(err, domain.ESIGNATURE, op, "Signature verification failed")
	case errors.Is(err, gateway.ErrPaymentNotFound):
		return domain.WrapError(err, domain.ENOTFOUND, op, "Payment not found at gateway")
	default:
		return domain.WrapError(err, domain.EINTERNAL, op, "Payment gateway call failed")
	}
}
