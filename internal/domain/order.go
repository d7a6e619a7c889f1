package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the closed set of order states.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
	OrderReturned   OrderStatus = "returned"
	OrderRefunded   OrderStatus = "refunded"
)

// orderTransitions is the adjacency table for the order state machine.
// Happy path runs pending -> confirmed -> processing -> shipped -> delivered.
// Cancellation is allowed from the first three states only; returns and
// refunds only ever follow delivery. Anything not listed here is illegal.
var orderTransitions = map[OrderStatus]map[OrderStatus]bool{
	OrderPending: {
		OrderConfirmed: true,
		OrderCancelled: true,
	},
	OrderConfirmed: {
		OrderProcessing: true,
		OrderCancelled:  true,
	},
	OrderProcessing: {
		OrderShipped:   true,
		OrderCancelled: true,
	},
	OrderShipped: {
		OrderDelivered: true,
	},
	OrderDelivered: {
		OrderReturned: true,
		OrderRefunded: true,
	},
	OrderCancelled: {},
	OrderReturned:  {},
	OrderRefunded:  {},
}

// ValidOrderStatus reports whether s is a known order status.
func ValidOrderStatus(s OrderStatus) bool {
	_, ok := orderTransitions[s]
	return ok
}

// CanTransitionOrder reports whether from -> to is a legal transition.
func CanTransitionOrder(from, to OrderStatus) bool {
	return orderTransitions[from][to]
}

// Cancellable reports whether an order in status s may still be cancelled.
func (s OrderStatus) Cancellable() bool {
	return orderTransitions[s][OrderCancelled]
}

// Terminal reports whether no further transitions leave status s.
func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

// Order-related domain errors.
var (
	ErrOrderNotFound = &Error{Code: ENOTFOUND, Message: "Order not found"}

	// ErrInvalidTransition indicates a requested status change that is not
	// in the adjacency table. State is left untouched.
	ErrInvalidTransition = &Error{Code: EBUSINESSRULE, Message: "Order status transition not allowed"}

	// ErrTransitionConflict indicates the order moved under us: the
	// expected prior status no longer matched at write time.
	ErrTransitionConflict = &Error{Code: ECONFLICT, Message: "Order was modified concurrently"}

	// ErrOrderNotCancellable indicates cancellation was requested after
	// the order already shipped or reached a terminal state.
	ErrOrderNotCancellable = &Error{Code: EBUSINESSRULE, Message: "Order can no longer be cancelled"}

	ErrEmptyCart = &Error{Code: EBUSINESSRULE, Message: "Cart is empty"}

	// ErrNegativeTotal indicates the computed order total fell below zero.
	ErrNegativeTotal = &Error{Code: EINTERNAL, Message: "Computed order total is negative"}
)

// OrderItem is one immutable line of an order, priced at snapshot time.
type OrderItem struct {
	ID             uuid.UUID `json:"id"`
	OrderID        uuid.UUID `json:"order_id"`
	ProductID      string    `json:"product_id"`
	ProductName    string    `json:"product_name"`
	Category       string    `json:"category"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	Quantity       int32     `json:"quantity"`
}

// LineSubtotal returns unit price times quantity for this line.
func (i OrderItem) LineSubtotal() int64 {
	return i.UnitPriceCents * int64(i.Quantity)
}

// Order is the aggregate root for a purchase. The item list and the money
// breakdown are immutable after creation; only Status (and its paired
// timestamp) changes, and only through the transition table above.
// Cancellation is a terminal status, never a deletion.
type Order struct {
	ID              uuid.UUID   `json:"id"`
	UserID          string      `json:"user_id"`
	Items           []OrderItem `json:"items"`
	SubtotalCents   int64       `json:"subtotal_cents"`
	DiscountCents   int64       `json:"discount_cents"`
	TaxCents        int64       `json:"tax_cents"`
	ShippingCents   int64       `json:"shipping_cents"`
	TotalCents      int64       `json:"total_cents"`
	Currency        string      `json:"currency"`
	Status          OrderStatus `json:"status"`
	AppliedCouponID *uuid.UUID  `json:"applied_coupon_id,omitempty"`
	ShippingAddress string      `json:"shipping_address"`

	CreatedAt   time.Time  `json:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	ShippedAt   *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	ReturnedAt  *time.Time `json:"returned_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`
}

// CheckTotal verifies the money invariant:
// total = subtotal - discount + tax + shipping, and total >= 0.
func (o *Order) CheckTotal() error {
	want := o.SubtotalCents - o.DiscountCents + o.TaxCents + o.ShippingCents
	if o.TotalCents != want {
		return Errorf(EINTERNAL, "order.check_total",
			"order %s total %d does not match breakdown %d", o.ID, o.TotalCents, want)
	}
	if o.TotalCents < 0 {
		return ErrNegativeTotal
	}
	return nil
}

// StampTransition records the timestamp for a status the order just
// reached. Pending is covered by CreatedAt.
func (o *Order) StampTransition(to OrderStatus, at time.Time) {
	switch to {
	case OrderConfirmed:
		o.ConfirmedAt = &at
	case OrderProcessing:
		o.ProcessedAt = &at
	case OrderShipped:
		o.ShippedAt = &at
	case OrderDelivered:
		o.DeliveredAt = &at
	case OrderCancelled:
		o.CancelledAt = &at
	case OrderReturned:
		o.ReturnedAt = &at
	case OrderRefunded:
		o.RefundedAt = &at
	}
}

// OrderService drives the order status state machine. It is the only
// component allowed to change Order.Status.
type OrderService interface {
	// GetOrder retrieves a single order by ID with its items.
	GetOrder(ctx context.Context, orderID uuid.UUID) (*Order, error)

	// TransitionStatus moves the order to next if the adjacency table
	// allows it, stamping the transition timestamp. Returns
	// ErrInvalidTransition for illegal moves and ErrTransitionConflict
	// when a concurrent writer got there first.
	TransitionStatus(ctx context.Context, orderID uuid.UUID, next OrderStatus) (*Order, error)

	// CancelOrder cancels the order if it is still cancellable and
	// releases any coupon usage reserved for it.
	CancelOrder(ctx context.Context, orderID uuid.UUID, actor Identity) (*Order, error)
}
