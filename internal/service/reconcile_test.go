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
	"github.com/dvrhoads/njord/internal/gateway"
	"github.com/dvrhoads/njord/internal/notify"
	"github.com/dvrhoads/njord/internal/store"
	"github.com/dvrhoads/njord/internal/store/memory"
)

type reconcileEnv struct {
	store      *memory.Store
	provider   *gateway.MockProvider
	events     *notify.MockDispatcher
	reconciler *PaymentReconciler
}

func newReconcileEnv() *reconcileEnv {
	mem := memory.NewStore()
	provider := gateway.NewMockProvider("whsec_test")
	events := notify.NewMockDispatcher()
	return &reconcileEnv{
		store:      mem,
		provider:   provider,
		events:     events,
		reconciler: NewPaymentReconciler(mem, provider, events, zerolog.Nop(), 5*time.Second),
	}
}

// seedPendingPayment creates a pending order with its pending payment
// and returns both ids.
func (e *reconcileEnv) seedPendingPayment(t *testing.T, amountCents int64) (orderID, paymentID uuid.UUID) {
	t.Helper()
	now := time.Now()
	orderID = uuid.New()
	paymentID = uuid.New()

	err := e.store.Orders().CreateOrder(context.Background(), store.CreateOrderParams{
		Order: &domain.Order{
			ID:            orderID,
			UserID:        "user-1",
			SubtotalCents: amountCents,
			TotalCents:    amountCents,
			Currency:      "USD",
			Status:        domain.OrderPending,
			Items: []domain.OrderItem{{
				ID:             uuid.New(),
				OrderID:        orderID,
				ProductID:      "sku-1",
				UnitPriceCents: amountCents,
				Quantity:       1,
			}},
			ShippingAddress: "1 Main St",
			CreatedAt:       now,
		},
		Payment: &domain.Payment{
			ID:             paymentID,
			OrderID:        orderID,
			Method:         domain.PaymentMethodCard,
			AmountCents:    amountCents,
			Currency:       "USD",
			Status:         domain.PaymentPending,
			IdempotencyKey: uuid.NewString(),
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	})
	require.NoError(t, err)
	return orderID, paymentID
}

func TestCreatePaymentOrder(t *testing.T) {
	env := newReconcileEnv()
	ctx := context.Background()
	_, paymentID := env.seedPendingPayment(t, 9900)

	result, err := env.reconciler.CreatePaymentOrder(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, paymentID, result.PaymentID)
	assert.NotEmpty(t, result.GatewayOrderID)
	assert.NotEmpty(t, result.ClientSecret)
	assert.Equal(t, int64(9900), result.AmountCents)

	p, err := env.store.Payments().GetPayment(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, result.GatewayOrderID, p.GatewayOrderID)
	assert.Equal(t, domain.PaymentPending, p.Status)
}

func TestCreatePaymentOrder_GatewayDown(t *testing.T) {
	env := newReconcileEnv()
	_, paymentID := env.seedPendingPayment(t, 9900)

	env.reconciler.retryDelay = time.Millisecond
	env.provider.CreatePaymentOrderFunc = func(ctx context.Context, params gateway.CreatePaymentOrderParams) (*gateway.PaymentOrder, error) {
		return nil, gateway.ErrUnavailable
	}

	_, err := env.reconciler.CreatePaymentOrder(context.Background(), paymentID)
	assert.Equal(t, domain.EGATEWAY, domain.ErrorCode(err))
	assert.True(t, domain.Retryable(err), "gateway unavailability is the one retryable failure")
}

func TestVerifySynchronous_Success(t *testing.T) {
	env := newReconcileEnv()
	ctx := context.Background()
	orderID, paymentID := env.seedPendingPayment(t, 9900)

	created, err := env.reconciler.CreatePaymentOrder(ctx, paymentID)
	require.NoError(t, err)

	txn := "txn_abc123"
	p, err := env.reconciler.VerifySynchronous(ctx, domain.VerificationPayload{
		PaymentID:      paymentID,
		TransactionID:  txn,
		GatewayOrderID: created.GatewayOrderID,
		Signature:      env.provider.Sign([]byte(txn)),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentSucceeded, p.Status)
	require.NotNil(t, p.ExternalTransactionID)
	assert.Equal(t, txn, *p.ExternalTransactionID)

	// A successful payment confirms the order.
	order, err := env.store.Orders().GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderConfirmed, order.Status)
	assert.Equal(t, 1, env.events.PaymentEventCount(notify.SubjectPaymentSucceeded))
}

func TestVerifySynchronous_BadSignature(t *testing.T) {
	env := newReconcileEnv()
	ctx := context.Background()
	orderID, paymentID := env.seedPendingPayment(t, 9900)

	created, err := env.reconciler.CreatePaymentOrder(ctx, paymentID)
	require.NoError(t, err)

	_, err = env.reconciler.VerifySynchronous(ctx, domain.VerificationPayload{
		PaymentID:      paymentID,
		TransactionID:  "txn_abc123",
		GatewayOrderID: created.GatewayOrderID,
		Signature:      "forged",
	})
	assert.Equal(t, domain.ESIGNATURE, domain.ErrorCode(err))
	assert.False(t, domain.Retryable(err), "signature failures must never be retried")

	// Nothing moved.
	p, err := env.store.Payments().GetPayment(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, p.Status)
	order, err := env.store.Orders().GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, order.Status)
}

func TestVerifySynchronous_Timeout(t *testing.T) {
	env := newReconcileEnv()
	_, paymentID := env.seedPendingPayment(t, 9900)

	env.provider.VerifyPaymentFunc = func(ctx context.Context, params gateway.VerifyPaymentParams) (*gateway.VerificationResult, error) {
		return nil, gateway.ErrTimeout
	}

	_, err := env.reconciler.VerifySynchronous(context.Background(), domain.VerificationPayload{
		PaymentID:     paymentID,
		TransactionID: "txn_abc123",
	})
	assert.Equal(t, domain.EGATEWAYTIMEOUT, domain.ErrorCode(err))

	// Payment stays pending: the webhook will settle it.
	p, getErr := env.store.Payments().GetPayment(context.Background(), paymentID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.PaymentPending, p.Status)
}

func TestVerifySynchronous_InFlightStaysPending(t *testing.T) {
	env := newReconcileEnv()
	ctx := context.Background()
	orderID, paymentID := env.seedPendingPayment(t, 9900)

	// The intent is still processing at the gateway (bank debit, 3DS).
	env.provider.VerifyPaymentFunc = func(ctx context.Context, params gateway.VerifyPaymentParams) (*gateway.VerificationResult, error) {
		return &gateway.VerificationResult{
			Valid:            true,
			GatewayPaymentID: params.TransactionID,
			AmountCents:      9900,
			State:            gateway.StatePending,
		}, nil
	}

	txn := "txn_inflight"
	p, err := env.reconciler.VerifySynchronous(ctx, domain.VerificationPayload{
		PaymentID:     paymentID,
		TransactionID: txn,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, p.Status, "in-flight is not failure")

	order, err := env.store.Orders().GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, order.Status)

	// The capture lands later through the webhook and must still apply.
	payload, sig := env.provider.SignedWebhook(gateway.WebhookEvent{
		Kind:           gateway.EventPaymentSucceeded,
		TransactionID:  txn,
		IdempotencyKey: p.IdempotencyKey,
		AmountCents:    9900,
	})
	require.NoError(t, env.reconciler.HandleWebhook(ctx, payload, sig))

	p, err = env.store.Payments().GetPayment(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentSucceeded, p.Status)

	order, err = env.store.Orders().GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderConfirmed, order.Status)
}

func TestVerifySynchronous_RepeatIsIdempotent(t *testing.T) {
	env := newReconcileEnv()
	ctx := context.Background()
	_, paymentID := env.seedPendingPayment(t, 9900)

	created, err := env.reconciler.CreatePaymentOrder(ctx, paymentID)
	require.NoError(t, err)

	txn := "txn_abc123"
	payload := domain.VerificationPayload{
		PaymentID:      paymentID,
		TransactionID:  txn,
		GatewayOrderID: created.GatewayOrderID,
		Signature:      env.provider.Sign([]byte(txn)),
	}

	first, err := env.reconciler.VerifySynchronous(ctx, payload)
	require.NoError(t, err)
	second, err := env.reconciler.VerifySynchronous(ctx, payload)
	require.NoError(t, err, "re-verifying a settled payment is a success, not an error")

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, 1, env.events.PaymentEventCount(notify.SubjectPaymentSucceeded),
		"side effects applied exactly once")
}

func TestHandleWebhook_Success(t *testing.T) {
	env := newReconcileEnv()
	ctx := context.Background()
	orderID, paymentID := env.seedPendingPayment(t, 9900)

	p, err := env.store.Payments().GetPayment(ctx, paymentID)
	require.NoError(t, err)

	payload, sig := env.provider.SignedWebhook(gateway.WebhookEvent{
		Kind:           gateway.EventPaymentSucceeded,
		TransactionID:  "txn_hook1",
		IdempotencyKey: p.IdempotencyKey,
		AmountCents:    9900,
	})
	require.NoError(t, env.reconciler.HandleWebhook(ctx, payload, sig))

	p, err = env.store.Payments().GetPayment(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentSucceeded, p.Status)

	order, err := env.store.Orders().GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderConfirmed, order.Status)
}

func TestHandleWebhook_BadSignature(t *testing.T) {
	env := newReconcileEnv()
	_, paymentID := env.seedPendingPayment(t, 9900)

	p, err := env.store.Payments().GetPayment(context.Background(), paymentID)
	require.NoError(t, err)

	payload, _ := env.provider.SignedWebhook(gateway.WebhookEvent{
		Kind:           gateway.EventPaymentSucceeded,
		TransactionID:  "txn_hook1",
		IdempotencyKey: p.IdempotencyKey,
	})

	err = env.reconciler.HandleWebhook(context.Background(), payload, "forged")
	assert.Equal(t, domain.ESIGNATURE, domain.ErrorCode(err))

	// An unsigned delivery changes nothing.
	p, getErr := env.store.Payments().GetPayment(context.Background(), paymentID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.PaymentPending, p.Status)
}

func TestHandleWebhook_DuplicateDelivery(t *testing.T) {
	env := newReconcileEnv()
	ctx := context.Background()
	_, paymentID := env.seedPendingPayment(t, 9900)

	p, err := env.store.Payments().GetPayment(ctx, paymentID)
	require.NoError(t, err)

	payload, sig := env.provider.SignedWebhook(gateway.WebhookEvent{
		Kind:           gateway.EventPaymentSucceeded,
		TransactionID:  "txn_hook1",
		IdempotencyKey: p.IdempotencyKey,
		AmountCents:    9900,
	})

	require.NoError(t, env.reconciler.HandleWebhook(ctx, payload, sig))
	require.NoError(t, env.reconciler.HandleWebhook(ctx, payload, sig),
		"at-least-once delivery: the duplicate acknowledges cleanly")

	assert.Equal(t, 1, env.events.PaymentEventCount(notify.SubjectPaymentSucceeded),
		"the event's side effects applied exactly once")

	attempts, err := env.store.Payments().ListAttempts(ctx, paymentID)
	require.NoError(t, err)
	webhookAttempts := 0
	for _, a := range attempts {
		if a.Kind == "webhook" {
			webhookAttempts++
		}
	}
	assert.Equal(t, 1, webhookAttempts)
}

func TestHandleWebhook_ConcurrentDeliveries(t *testing.T) {
	env := newReconcileEnv()
	ctx := context.Background()
	_, paymentID := env.seedPendingPayment(t, 9900)

	p, err := env.store.Payments().GetPayment(ctx, paymentID)
	require.NoError(t, err)

	payload, sig := env.provider.SignedWebhook(gateway.WebhookEvent{
		Kind:           gateway.EventPaymentSucceeded,
		TransactionID:  "txn_hook1",
		IdempotencyKey: p.IdempotencyKey,
	})

	const workers = 10
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = env.reconciler.HandleWebhook(ctx, payload, sig)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "delivery %d", i)
	}
	assert.Equal(t, 1, env.events.PaymentEventCount(notify.SubjectPaymentSucceeded))
}

func TestHandleWebhook_FailedPayment(t *testing.T) {
	env := newReconcileEnv()
	ctx := context.Background()
	orderID, paymentID := env.seedPendingPayment(t, 9900)

	p, err := env.store.Payments().GetPayment(ctx, paymentID)
	require.NoError(t, err)

	payload, sig := env.provider.SignedWebhook(gateway.WebhookEvent{
		Kind:           gateway.EventPaymentFailed,
		TransactionID:  "txn_hook1",
		IdempotencyKey: p.IdempotencyKey,
		FailureMessage: "card declined",
	})
	require.NoError(t, env.reconciler.HandleWebhook(ctx, payload, sig))

	p, err = env.store.Payments().GetPayment(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFailed, p.Status)

	// A failed payment leaves the order pending for another attempt.
	order, err := env.store.Orders().GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, order.Status)
	assert.Equal(t, 1, env.events.PaymentEventCount(notify.SubjectPaymentFailed))
}

func TestHandleWebhook_IgnoredEvent(t *testing.T) {
	env := newReconcileEnv()

	payload, sig := env.provider.SignedWebhook(gateway.WebhookEvent{
		Kind: gateway.EventIgnored,
	})
	assert.NoError(t, env.reconciler.HandleWebhook(context.Background(), payload, sig))
}

func TestHandleWebhook_UnknownPayment(t *testing.T) {
	env := newReconcileEnv()

	payload, sig := env.provider.SignedWebhook(gateway.WebhookEvent{
		Kind:           gateway.EventPaymentSucceeded,
		TransactionID:  "txn_unknown",
		IdempotencyKey: "key_unknown",
	})
	err := env.reconciler.HandleWebhook(context.Background(), payload, sig)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestWebhookAfterVerify_ContradictoryOutcome(t *testing.T) {
	env := newReconcileEnv()
	ctx := context.Background()
	_, paymentID := env.seedPendingPayment(t, 9900)

	created, err := env.reconciler.CreatePaymentOrder(ctx, paymentID)
	require.NoError(t, err)

	txn := "txn_abc123"
	_, err = env.reconciler.VerifySynchronous(ctx, domain.VerificationPayload{
		PaymentID:      paymentID,
		TransactionID:  txn,
		GatewayOrderID: created.GatewayOrderID,
		Signature:      env.provider.Sign([]byte(txn)),
	})
	require.NoError(t, err)

	// A late "failed" webhook contradicting the settled success is a
	// conflict, not an overwrite.
	payload, sig := env.provider.SignedWebhook(gateway.WebhookEvent{
		Kind:          gateway.EventPaymentFailed,
		TransactionID: txn,
	})
	err = env.reconciler.HandleWebhook(ctx, payload, sig)
	assert.ErrorIs(t, err, domain.ErrPaymentStateConflict)

	p, err := env.store.Payments().GetPayment(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentSucceeded, p.Status, "terminal state wins")
}
