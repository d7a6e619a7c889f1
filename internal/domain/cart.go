package domain

import (
	"context"
	"time"
)

// =============================================================================
// CART DOMAIN ERRORS
// =============================================================================

var (
	ErrCartNotFound     = &Error{Code: ENOTFOUND, Message: "Cart not found"}
	ErrCartItemNotFound = &Error{Code: ENOTFOUND, Message: "Cart item not found"}
	ErrInvalidQuantity  = &Error{Code: EINVALID, Message: "Quantity must be greater than 0"}
	ErrQuantityTooLarge = &Error{Code: EINVALID, Message: "Quantity exceeds the per-line maximum"}
)

// MaxLineQuantity bounds a single cart line. Orders past this size do
// not come through the storefront checkout, and the bound keeps
// quantity-proportional work (discount math, line totals) trivially
// cheap.
const MaxLineQuantity = 1000

// CartService provides shopping cart operations. The cart stays mutable
// until checkout takes a snapshot; the order never reads it again.
type CartService interface {
	// GetCart retrieves the user's cart, empty if none exists yet.
	GetCart(ctx context.Context, userID string) (*Cart, error)

	// AddItem adds a product to the cart or bumps quantity if present.
	AddItem(ctx context.Context, userID string, item CartItem) (*Cart, error)

	// UpdateItemQuantity sets the quantity of a cart line.
	// A quantity of 0 removes the line.
	UpdateItemQuantity(ctx context.Context, userID, productID string, quantity int32) (*Cart, error)

	// RemoveItem removes a product from the cart.
	RemoveItem(ctx context.Context, userID, productID string) (*Cart, error)

	// ClearCart removes all items from the cart.
	ClearCart(ctx context.Context, userID string) error

	// Snapshot freezes the current cart contents for checkout.
	Snapshot(ctx context.Context, userID string) (*CartSnapshot, error)
}

// CartItem is one mutable cart line. Unit price is captured at add time.
type CartItem struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Category       string `json:"category"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int32  `json:"quantity"`
}

// LineSubtotal returns unit price times quantity for this line.
func (i CartItem) LineSubtotal() int64 {
	return i.UnitPriceCents * int64(i.Quantity)
}

// Cart is a user's mutable cart.
type Cart struct {
	UserID    string     `json:"user_id"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Subtotal sums the line subtotals.
func (c *Cart) Subtotal() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.LineSubtotal()
	}
	return total
}

// CartSnapshot is the immutable projection of a cart taken at the instant
// of checkout. Later cart mutations never reach the order built from it.
type CartSnapshot struct {
	UserID        string     `json:"user_id"`
	Lines         []CartItem `json:"lines"`
	SubtotalCents int64      `json:"subtotal_cents"`
	TakenAt       time.Time  `json:"taken_at"`
}

// SnapshotCart copies the cart's lines into an immutable snapshot.
func SnapshotCart(c *Cart, at time.Time) *CartSnapshot {
	lines := make([]CartItem, len(c.Items))
	copy(lines, c.Items)
	return &CartSnapshot{
		UserID:        c.UserID,
		Lines:         lines,
		SubtotalCents: c.Subtotal(),
		TakenAt:       at,
	}
}
