package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// metadataIdempotencyKey is the metadata slot that lets webhook events
// find their internal payment before a transaction id is recorded.
const metadataIdempotencyKey = "idempotency_key"

// StripeProvider implements Provider against the Stripe API. A payment
// order maps to a PaymentIntent; the intent id doubles as the gateway
// transaction reference.
type StripeProvider struct {
	client        *client.API
	webhookSecret string
}

var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider creates a Stripe-backed provider.
func NewStripeProvider(apiKey, webhookSecret string) *StripeProvider {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &StripeProvider{
		client:        sc,
		webhookSecret: webhookSecret,
	}
}

func (p *StripeProvider) CreatePaymentOrder(ctx context.Context, params CreatePaymentOrderParams) (*PaymentOrder, error) {
	piParams := &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context:        ctx,
			IdempotencyKey: stripe.String(params.IdempotencyKey),
		},
		Amount:   stripe.Int64(params.AmountCents),
		Currency: stripe.String(params.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if params.CustomerEmail != "" {
		piParams.ReceiptEmail = stripe.String(params.CustomerEmail)
	}
	piParams.AddMetadata("order_ref", params.OrderRef)
	piParams.AddMetadata(metadataIdempotencyKey, params.IdempotencyKey)
	for k, v := range params.Metadata {
		piParams.AddMetadata(k, v)
	}

	pi, err := p.client.PaymentIntents.New(piParams)
	if err != nil {
		return nil, mapStripeError(ctx, err, "create payment intent")
	}

	return &PaymentOrder{
		GatewayOrderID: pi.ID,
		ClientSecret:   pi.ClientSecret,
	}, nil
}

func (p *StripeProvider) VerifyPayment(ctx context.Context, params VerifyPaymentParams) (*VerificationResult, error) {
	// Stripe has no client-side signature to check; the source of truth
	// is the intent's server-side status.
	pi, err := p.client.PaymentIntents.Get(params.TransactionID, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, mapStripeError(ctx, err, "get payment intent")
	}

	return &VerificationResult{
		Valid:            true,
		GatewayPaymentID: pi.ID,
		AmountCents:      pi.Amount,
		State:            intentState(pi.Status),
	}, nil
}

// intentState folds Stripe's intent statuses into the three outcomes the
// reconciler acts on. Only canceled is terminal; processing,
// requires_action and the other in-flight statuses stay pending until
// the webhook settles them.
func intentState(status stripe.PaymentIntentStatus) PaymentState {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StateSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return StateFailed
	default:
		return StatePending
	}
}

func (p *StripeProvider) VerifyWebhookSignature(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, p.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
	default:
		return &WebhookEvent{Kind: EventIgnored}, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent event: %w", err)
	}

	we := &WebhookEvent{
		TransactionID:  pi.ID,
		GatewayOrderID: pi.ID,
		IdempotencyKey: pi.Metadata[metadataIdempotencyKey],
		AmountCents:    pi.Amount,
	}
	if event.Type == "payment_intent.succeeded" {
		we.Kind = EventPaymentSucceeded
	} else {
		we.Kind = EventPaymentFailed
		if pi.LastPaymentError != nil {
			we.FailureMessage = pi.LastPaymentError.Msg
		}
	}
	return we, nil
}

func (p *StripeProvider) RefundPayment(ctx context.Context, params RefundParams) (*RefundResult, error) {
	refundParams := &stripe.RefundParams{
		Params: stripe.Params{
			Context:        ctx,
			IdempotencyKey: stripe.String(params.IdempotencyKey),
		},
		PaymentIntent: stripe.String(params.GatewayPaymentID),
		Amount:        stripe.Int64(params.AmountCents),
	}

	refund, err := p.client.Refunds.New(refundParams)
	if err != nil {
		return nil, mapStripeError(ctx, err, "create refund")
	}

	return &RefundResult{
		GatewayRefundID: refund.ID,
		Succeeded:       refund.Status != stripe.RefundStatusFailed,
	}, nil
}

// mapStripeError folds SDK errors into the package sentinels so callers
// never branch on Stripe types.
func mapStripeError(ctx context.Context, err error, op string) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %s", ErrTimeout, op)
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.HTTPStatusCode == 404:
			return fmt.Errorf("%w: %s", ErrPaymentNotFound, op)
		case stripeErr.HTTPStatusCode >= 500, stripeErr.Type == stripe.ErrorTypeAPI:
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
		}
		return fmt.Errorf("stripe: %s: %w", op, err)
	}

	// Non-API errors from the SDK are connectivity problems.
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
