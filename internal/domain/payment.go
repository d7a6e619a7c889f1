package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the closed set of payment states.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// Terminal reports whether s is a final payment state.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentSucceeded || s == PaymentFailed
}

// PaymentMethodType is the closed set of accepted payment instruments.
// Dispatch over it must be exhaustive; adding a variant is a
// compile-surfaced change, never a silent default branch.
type PaymentMethodType string

const (
	PaymentMethodCard         PaymentMethodType = "card"
	PaymentMethodBankTransfer PaymentMethodType = "bank_transfer"
	PaymentMethodWallet       PaymentMethodType = "wallet"
)

// ValidPaymentMethod reports whether m is a known payment method.
func ValidPaymentMethod(m PaymentMethodType) bool {
	switch m {
	case PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodWallet:
		return true
	}
	return false
}

// Payment-related domain errors.
var (
	ErrPaymentNotFound = &Error{Code: ENOTFOUND, Message: "Payment not found"}

	// ErrPaymentAlreadyProcessed signals the idempotency path: the payment
	// already sits in the terminal state this event describes. Callers
	// treat it as success without re-applying side effects.
	ErrPaymentAlreadyProcessed = &Error{Code: ECONFLICT, Message: "Payment already processed"}

	// ErrPaymentStateConflict indicates the payment is in a terminal state
	// that contradicts the requested transition.
	ErrPaymentStateConflict = &Error{Code: ECONFLICT, Message: "Payment is in a conflicting state"}

	// ErrRefundExceedsAvailable rejects a refund larger than
	// amount - refundedAmount. Nothing is mutated.
	ErrRefundExceedsAvailable = &Error{Code: EBUSINESSRULE, Message: "Refund amount exceeds available balance"}

	ErrInvalidSignature = &Error{Code: ESIGNATURE, Message: "Signature verification failed"}
)

// Payment belongs to exactly one order and is created alongside it in
// pending state. It carries the order id as a plain foreign key; the order
// never embeds a payment.
type Payment struct {
	ID      uuid.UUID         `json:"id"`
	OrderID uuid.UUID         `json:"order_id"`
	Method  PaymentMethodType `json:"method"`

	AmountCents   int64         `json:"amount_cents"`
	Currency      string        `json:"currency"`
	Status        PaymentStatus `json:"status"`
	RefundedCents int64         `json:"refunded_cents"`

	// GatewayOrderID is the gateway-side order/intent reference handed out
	// when the payment order is created.
	GatewayOrderID string `json:"gateway_order_id,omitempty"`

	// ExternalTransactionID is the gateway transaction reference, nil
	// until the gateway confirms the payment.
	ExternalTransactionID *string `json:"external_transaction_id,omitempty"`

	// IdempotencyKey deduplicates gateway calls and lets webhooks find
	// this payment before a transaction id exists.
	IdempotencyKey string `json:"idempotency_key"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AvailableForRefund returns the balance still refundable.
func (p *Payment) AvailableForRefund() int64 {
	return p.AmountCents - p.RefundedCents
}

// PaymentAttempt records one gateway interaction, success or failure.
type PaymentAttempt struct {
	ID                   uuid.UUID     `json:"id"`
	PaymentID            uuid.UUID     `json:"payment_id"`
	Kind                 string        `json:"kind"` // create, verify, webhook, refund
	Status               PaymentStatus `json:"status"`
	GatewayTransactionID string        `json:"gateway_transaction_id,omitempty"`
	ErrorMessage         string        `json:"error_message,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
}

// RefundStatus is the closed set of refund states.
type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundSucceeded RefundStatus = "succeeded"
	RefundFailed    RefundStatus = "failed"
)

// Refund belongs to one payment. Its amount never exceeds the payment's
// available balance at creation time.
type Refund struct {
	ID              uuid.UUID    `json:"id"`
	PaymentID       uuid.UUID    `json:"payment_id"`
	AmountCents     int64        `json:"amount_cents"`
	Status          RefundStatus `json:"status"`
	Reason          string       `json:"reason"`
	GatewayRefundID string       `json:"gateway_refund_id,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// PaymentService exposes the gateway-facing payment flows.
type PaymentService interface {
	// CreatePaymentOrder registers the pending payment with the gateway
	// and returns the gateway order id plus the client secret the
	// frontend needs to complete payment out-of-band.
	CreatePaymentOrder(ctx context.Context, paymentID uuid.UUID) (*PaymentOrderResult, error)

	// VerifySynchronous confirms a payment right after the client
	// completes it, with a bounded gateway timeout.
	VerifySynchronous(ctx context.Context, payload VerificationPayload) (*Payment, error)

	// HandleWebhook processes an asynchronous gateway event. Safe under
	// at-least-once delivery.
	HandleWebhook(ctx context.Context, body []byte, signature string) error
}

// PaymentOrderResult is what the client needs to complete payment.
type PaymentOrderResult struct {
	PaymentID      uuid.UUID `json:"payment_id"`
	GatewayOrderID string    `json:"gateway_order_id"`
	ClientSecret   string    `json:"client_secret"`
	AmountCents    int64     `json:"amount_cents"`
	Currency       string    `json:"currency"`
}

// VerificationPayload carries the gateway-specific fields the client
// presents after completing payment. The adapter interprets them.
type VerificationPayload struct {
	PaymentID      uuid.UUID `json:"payment_id"`
	TransactionID  string    `json:"transaction_id"`
	GatewayOrderID string    `json:"gateway_order_id,omitempty"`
	Signature      string    `json:"signature"`
}

// RefundService processes partial and full refunds.
type RefundService interface {
	// RequestRefund refunds amountCents (full remaining balance when 0)
	// against the payment. A full cumulative refund also moves the order
	// from delivered to refunded.
	RequestRefund(ctx context.Context, paymentID uuid.UUID, amountCents int64, reason string) (*Refund, error)
}
