// Package gateway is the payment gateway boundary. Everything
// processor-specific (authentication, signatures, event formats) stays
// behind the Provider interface; the rest of the system only sees
// success or failure plus opaque reference strings.
package gateway

import (
	"context"
	"errors"
	"time"
)

// Provider is implemented per payment processor. StripeProvider is the
// production implementation; MockProvider backs tests and development.
type Provider interface {
	// CreatePaymentOrder registers a payment with the gateway and
	// returns the gateway order reference plus the client secret the
	// frontend needs to complete payment.
	CreatePaymentOrder(ctx context.Context, params CreatePaymentOrderParams) (*PaymentOrder, error)

	// VerifyPayment checks a client-presented verification payload
	// against the gateway and reports the payment's actual outcome.
	// A bad signature returns ErrSignatureInvalid.
	VerifyPayment(ctx context.Context, params VerifyPaymentParams) (*VerificationResult, error)

	// VerifyWebhookSignature authenticates a raw webhook delivery and
	// decodes it into a gateway-neutral event. Returns
	// ErrSignatureInvalid when authentication fails; no event is
	// processed in that case.
	VerifyWebhookSignature(payload []byte, signature string) (*WebhookEvent, error)

	// RefundPayment refunds part or all of a captured payment.
	RefundPayment(ctx context.Context, params RefundParams) (*RefundResult, error)
}

// CreatePaymentOrderParams describes the payment to register.
type CreatePaymentOrderParams struct {
	AmountCents    int64
	Currency       string
	OrderRef       string
	IdempotencyKey string
	CustomerEmail  string
	Metadata       map[string]string
}

// PaymentOrder is the gateway's handle for a registered payment.
type PaymentOrder struct {
	GatewayOrderID string
	ClientSecret   string
}

// VerifyPaymentParams carries the client-presented proof of payment.
type VerifyPaymentParams struct {
	TransactionID  string
	GatewayOrderID string
	Signature      string
}

// PaymentState is the gateway's view of a payment at verification time.
// StateFailed is reserved for genuinely terminal outcomes; a payment the
// customer can still complete or retry reports StatePending.
type PaymentState string

const (
	StateSucceeded PaymentState = "succeeded"
	StatePending   PaymentState = "pending"
	StateFailed    PaymentState = "failed"
)

// VerificationResult is the gateway's answer to a verification call.
type VerificationResult struct {
	Valid            bool
	GatewayPaymentID string
	AmountCents      int64
	State            PaymentState
}

// EventKind classifies webhook events into the outcomes the reconciler
// acts on. Everything else is EventIgnored and acknowledged untouched.
type EventKind string

const (
	EventPaymentSucceeded EventKind = "payment.succeeded"
	EventPaymentFailed    EventKind = "payment.failed"
	EventIgnored          EventKind = "ignored"
)

// WebhookEvent is a gateway-neutral decoded webhook delivery.
type WebhookEvent struct {
	Kind           EventKind
	TransactionID  string
	GatewayOrderID string
	IdempotencyKey string
	AmountCents    int64
	FailureMessage string
}

// RefundParams describes a refund against a gateway payment.
type RefundParams struct {
	GatewayPaymentID string
	AmountCents      int64
	Reason           string
	IdempotencyKey   string
}

// RefundResult is the gateway's handle for an issued refund.
type RefundResult struct {
	GatewayRefundID string
	Succeeded       bool
}

// WithRetry runs fn up to attempts times, backing off between tries.
// Only ErrUnavailable is retried: timeouts tell the caller to poll, and
// signature failures must never be retried.
func WithRetry(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	delay := baseDelay
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !errors.Is(err, ErrUnavailable) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
