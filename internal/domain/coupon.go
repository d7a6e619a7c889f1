package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CouponType is the closed set of discount families. Discount computation
// dispatches exhaustively over it; an unknown type is an internal error,
// never a silently skipped branch.
type CouponType string

const (
	CouponPercentage   CouponType = "percentage"
	CouponFixedAmount  CouponType = "fixed_amount"
	CouponFreeShipping CouponType = "free_shipping"
	CouponBuyXGetY     CouponType = "buy_x_get_y"
	CouponBulkDiscount CouponType = "bulk_discount"
)

// ValidCouponType reports whether t is a known coupon type.
func ValidCouponType(t CouponType) bool {
	switch t {
	case CouponPercentage, CouponFixedAmount, CouponFreeShipping, CouponBuyXGetY, CouponBulkDiscount:
		return true
	}
	return false
}

// Coupon-related domain errors.
var (
	ErrCouponNotFound = &Error{Code: ENOTFOUND, Message: "Coupon not found"}

	ErrCouponInactive    = &Error{Code: EBUSINESSRULE, Message: "Coupon is not active"}
	ErrCouponNotYetValid = &Error{Code: EBUSINESSRULE, Message: "Coupon is not yet valid"}
	ErrCouponExpired     = &Error{Code: EBUSINESSRULE, Message: "Coupon has expired"}

	// ErrUsageLimitReached covers both the validation-time check and the
	// atomic reservation losing the race at order commit.
	ErrUsageLimitReached     = &Error{Code: EBUSINESSRULE, Message: "Coupon usage limit reached"}
	ErrUserUsageLimitReached = &Error{Code: EBUSINESSRULE, Message: "You have already used this coupon the maximum number of times"}

	ErrMinOrderNotMet = &Error{Code: EBUSINESSRULE, Message: "Order subtotal is below the coupon minimum"}

	// ErrCouponNotApplicable means no cart line survives the coupon's
	// include/exclude filters.
	ErrCouponNotApplicable = &Error{Code: EBUSINESSRULE, Message: "Coupon does not apply to any item in the cart"}
)

// BulkTier is one threshold of a bulk-discount coupon: once the total
// eligible quantity reaches MinQuantity, Percent comes off the eligible
// subtotal. Tiers are kept sorted ascending and the highest reached tier
// wins.
type BulkTier struct {
	MinQuantity int32           `json:"min_quantity"`
	Percent     decimal.Decimal `json:"percent"`
}

// Coupon is an admin-managed discount. UsageCount is mutated only through
// the store's atomic reservation and release operations; it never exceeds
// UsageLimit and (outside release) never decreases.
type Coupon struct {
	ID   uuid.UUID  `json:"id"`
	Code string     `json:"code"`
	Type CouponType `json:"type"`

	// DiscountValue is interpreted per type: a percent for percentage
	// coupons, an amount in minor units for fixed_amount. Unused for the
	// remaining types.
	DiscountValue decimal.Decimal `json:"discount_value"`

	MinOrderCents    int64 `json:"min_order_cents"`    // 0 = no minimum
	MaxDiscountCents int64 `json:"max_discount_cents"` // 0 = uncapped

	UsageLimit     int32 `json:"usage_limit"`      // 0 = unlimited
	UserUsageLimit int32 `json:"user_usage_limit"` // 0 = unlimited
	UsageCount     int32 `json:"usage_count"`

	ValidFrom time.Time `json:"valid_from"`
	ValidTo   time.Time `json:"valid_to"`

	// Applicability filters. Empty include sets mean "everything";
	// exclusions are removed afterwards. Products are matched by id,
	// categories by name.
	IncludedProducts   []string `json:"included_products,omitempty"`
	ExcludedProducts   []string `json:"excluded_products,omitempty"`
	IncludedCategories []string `json:"included_categories,omitempty"`
	ExcludedCategories []string `json:"excluded_categories,omitempty"`

	// buy_x_get_y configuration: for every BuyQuantity eligible units,
	// GetQuantity of the cheapest eligible units are free.
	BuyQuantity int32 `json:"buy_quantity,omitempty"`
	GetQuantity int32 `json:"get_quantity,omitempty"`

	// bulk_discount tiers, ascending by MinQuantity.
	BulkTiers []BulkTier `json:"bulk_tiers,omitempty"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// AppliesToLine reports whether a cart line passes the coupon's
// include/exclude filters.
func (c *Coupon) AppliesToLine(productID, category string) bool {
	for _, p := range c.ExcludedProducts {
		if p == productID {
			return false
		}
	}
	for _, cat := range c.ExcludedCategories {
		if cat == category {
			return false
		}
	}
	if len(c.IncludedProducts) == 0 && len(c.IncludedCategories) == 0 {
		return true
	}
	for _, p := range c.IncludedProducts {
		if p == productID {
			return true
		}
	}
	for _, cat := range c.IncludedCategories {
		if cat == category {
			return true
		}
	}
	return false
}

// CouponUsage is one reservation of a coupon by an order. One row per
// (coupon, order); removed again if the order is cancelled.
type CouponUsage struct {
	ID            uuid.UUID `json:"id"`
	CouponID      uuid.UUID `json:"coupon_id"`
	OrderID       uuid.UUID `json:"order_id"`
	UserID        string    `json:"user_id"`
	DiscountCents int64     `json:"discount_cents"`
	CreatedAt     time.Time `json:"created_at"`
}

// CouponResult is the outcome of validating a coupon against a cart
// snapshot. SubtotalOffCents discounts the item subtotal;
// ShippingOffCents discounts shipping (free_shipping only).
type CouponResult struct {
	CouponID         uuid.UUID  `json:"coupon_id"`
	Code             string     `json:"code"`
	Type             CouponType `json:"type"`
	SubtotalOffCents int64      `json:"subtotal_off_cents"`
	ShippingOffCents int64      `json:"shipping_off_cents"`
}

// TotalDiscountCents is the combined discount across subtotal and shipping.
func (r *CouponResult) TotalDiscountCents() int64 {
	return r.SubtotalOffCents + r.ShippingOffCents
}

// CouponService validates coupons against cart snapshots. Validation never
// consumes usage; reservation happens only when an order commits.
type CouponService interface {
	// Validate runs the eligibility checks in order (first failure wins)
	// and computes the discount for the given shipping quote. The
	// returned error is one of the coupon business-rule sentinels.
	Validate(ctx context.Context, code string, snap *CartSnapshot, userID string, shippingCents int64) (*CouponResult, error)
}
