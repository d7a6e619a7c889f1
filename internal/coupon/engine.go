// Package coupon implements coupon validation and discount computation.
//
// Validation is a pure read: it never touches the usage counter. Usage is
// reserved by the order store at commit time so abandoned checkouts never
// burn a slot.
package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/dvrhoads/njord/internal/domain"
	"github.com/dvrhoads/njord/internal/store"
)

const maxCodeLength = 64

// Engine evaluates coupon codes against cart snapshots.
type Engine struct {
	coupons store.CouponStore

	// now is swappable for tests.
	now func() time.Time
}

var _ domain.CouponService = (*Engine)(nil)

// NewEngine creates a coupon engine over the given store.
func NewEngine(coupons store.CouponStore) *Engine {
	return &Engine{coupons: coupons, now: time.Now}
}

// Validate runs the eligibility checks in a fixed order, first failure
// wins: exists and active, validity window, global limit, per-user limit,
// order minimum, applicability. Then it computes the discount for the
// coupon's type.
func (e *Engine) Validate(ctx context.Context, code string, snap *domain.CartSnapshot, userID string, shippingCents int64) (*domain.CouponResult, error) {
	code = strings.TrimSpace(code)
	if code == "" || len(code) > maxCodeLength {
		return nil, domain.Invalid("coupon.validate", "invalid coupon code format")
	}
	if snap == nil || len(snap.Lines) == 0 {
		return nil, domain.ErrEmptyCart
	}

	c, err := e.coupons.GetCouponByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !c.Active {
		return nil, domain.ErrCouponInactive
	}

	now := e.now()
	if now.Before(c.ValidFrom) {
		return nil, domain.ErrCouponNotYetValid
	}
	if now.After(c.ValidTo) {
		return nil, domain.ErrCouponExpired
	}

	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return nil, domain.ErrUsageLimitReached
	}
	if c.UserUsageLimit > 0 {
		used, err := e.coupons.CountUserUsage(ctx, c.ID, userID)
		if err != nil {
			return nil, err
		}
		if used >= c.UserUsageLimit {
			return nil, domain.ErrUserUsageLimitReached
		}
	}

	if c.MinOrderCents > 0 && snap.SubtotalCents < c.MinOrderCents {
		return nil, domain.ErrMinOrderNotMet
	}

	eligible := eligibleLines(c, snap.Lines)
	if len(eligible) == 0 {
		return nil, domain.ErrCouponNotApplicable
	}

	subtotalOff, shippingOff, err := computeDiscount(c, eligible, shippingCents)
	if err != nil {
		return nil, err
	}

	return &domain.CouponResult{
		CouponID:         c.ID,
		Code:             c.Code,
		Type:             c.Type,
		SubtotalOffCents: subtotalOff,
		ShippingOffCents: shippingOff,
	}, nil
}

// eligibleLines applies the coupon's include/exclude filters. An empty
// result means the coupon has no line to act on.
func eligibleLines(c *domain.Coupon, lines []domain.CartItem) []domain.CartItem {
	out := make([]domain.CartItem, 0, len(lines))
	for _, l := range lines {
		if c.AppliesToLine(l.ProductID, l.Category) {
			out = append(out, l)
		}
	}
	return out
}
