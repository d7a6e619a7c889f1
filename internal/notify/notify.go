package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Subjects published by the dispatcher. Consumers subscribe to
// njord.orders.> or njord.payments.> for the full stream.
const (
	SubjectOrderCreated     = "njord.orders.created"
	SubjectOrderTransition  = "njord.orders.transitioned"
	SubjectOrderCancelled   = "njord.orders.cancelled"
	SubjectPaymentSucceeded = "njord.payments.succeeded"
	SubjectPaymentFailed    = "njord.payments.failed"
	SubjectRefundIssued     = "njord.payments.refunded"
)

// OrderEvent is published on order lifecycle changes.
type OrderEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	UserID     string    `json:"user_id"`
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status"`
	TotalCents int64     `json:"total_cents"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PaymentEvent is published on payment and refund outcomes.
type PaymentEvent struct {
	PaymentID   uuid.UUID `json:"payment_id"`
	OrderID     uuid.UUID `json:"order_id"`
	AmountCents int64     `json:"amount_cents"`
	Status      string    `json:"status"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Dispatcher publishes domain events. Publishing is best effort:
// callers must not fail or roll back their own work when Publish
// returns an error.
type Dispatcher interface {
	PublishOrderEvent(ctx context.Context, subject string, event OrderEvent) error
	PublishPaymentEvent(ctx context.Context, subject string, event PaymentEvent) error
	Close()
}

// NopDispatcher drops every event. It backs deployments that have no
// broker configured.
type NopDispatcher struct{}

var _ Dispatcher = NopDispatcher{}

func (NopDispatcher) PublishOrderEvent(context.Context, string, OrderEvent) error     { return nil }
func (NopDispatcher) PublishPaymentEvent(context.Context, string, PaymentEvent) error { return nil }
func (NopDispatcher) Close()                                                          {}
