package coupon

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/dvrhoads/njord/internal/domain"
)

var oneHundred = decimal.NewFromInt(100)

// computeDiscount dispatches on the coupon type. The switch is exhaustive
// over domain.CouponType; an unknown type is an internal error so a new
// variant cannot silently compute zero.
//
// Whatever the type, the subtotal discount never exceeds the eligible
// subtotal and the shipping discount never exceeds the shipping quote.
func computeDiscount(c *domain.Coupon, eligible []domain.CartItem, shippingCents int64) (subtotalOff, shippingOff int64, err error) {
	subtotal := lineSubtotal(eligible)

	switch c.Type {
	case domain.CouponPercentage:
		subtotalOff = capDiscount(c, percentOf(subtotal, c.DiscountValue), subtotal)
	case domain.CouponFixedAmount:
		subtotalOff = capDiscount(c, c.DiscountValue.IntPart(), subtotal)
	case domain.CouponFreeShipping:
		shippingOff = shippingCents
	case domain.CouponBuyXGetY:
		subtotalOff = capDiscount(c, buyXGetY(c, eligible), subtotal)
	case domain.CouponBulkDiscount:
		subtotalOff = capDiscount(c, bulkDiscount(c, eligible, subtotal), subtotal)
	default:
		return 0, 0, domain.Errorf(domain.EINTERNAL, "coupon.discount", "unknown coupon type: %s", c.Type)
	}
	return subtotalOff, shippingOff, nil
}

func lineSubtotal(lines []domain.CartItem) int64 {
	var total int64
	for _, l := range lines {
		total += l.LineSubtotal()
	}
	return total
}

// percentOf computes percent of an amount in cents, rounded to the
// nearest cent.
func percentOf(amountCents int64, percent decimal.Decimal) int64 {
	return decimal.NewFromInt(amountCents).Mul(percent).Div(oneHundred).Round(0).IntPart()
}

// capDiscount clamps a raw discount to the coupon's cap (when set), the
// eligible subtotal, and zero.
func capDiscount(c *domain.Coupon, raw, subtotal int64) int64 {
	if c.MaxDiscountCents > 0 && raw > c.MaxDiscountCents {
		raw = c.MaxDiscountCents
	}
	if raw > subtotal {
		raw = subtotal
	}
	if raw < 0 {
		return 0
	}
	return raw
}

// buyXGetY groups the eligible units into bundles of X+Y. Each complete
// bundle gives Y units free; a trailing partial bundle gives whatever it
// holds beyond its X paid units. The freebies are always the cheapest
// units in the cart, so the discount is deterministic regardless of line
// order.
func buyXGetY(c *domain.Coupon, eligible []domain.CartItem) int64 {
	if c.BuyQuantity <= 0 || c.GetQuantity <= 0 {
		return 0
	}

	lines := append([]domain.CartItem(nil), eligible...)
	sort.Slice(lines, func(i, j int) bool { return lines[i].UnitPriceCents < lines[j].UnitPriceCents })

	var total int64
	for _, l := range lines {
		total += int64(l.Quantity)
	}
	bundle := int64(c.BuyQuantity + c.GetQuantity)

	free := (total / bundle) * int64(c.GetQuantity)
	if rem := total % bundle; rem > int64(c.BuyQuantity) {
		free += rem - int64(c.BuyQuantity)
	}

	// Consume free units from the cheapest lines, whole lines at a
	// time. Quantities are summed per line, never expanded per unit.
	var discount int64
	for _, l := range lines {
		if free == 0 {
			break
		}
		n := int64(l.Quantity)
		if n > free {
			n = free
		}
		discount += n * l.UnitPriceCents
		free -= n
	}
	return discount
}

// bulkDiscount picks the highest tier whose threshold the total eligible
// quantity reaches and applies its percentage to the eligible subtotal.
func bulkDiscount(c *domain.Coupon, eligible []domain.CartItem, subtotal int64) int64 {
	var quantity int32
	for _, l := range eligible {
		quantity += l.Quantity
	}

	tiers := append([]domain.BulkTier(nil), c.BulkTiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinQuantity < tiers[j].MinQuantity })

	var percent decimal.Decimal
	matched := false
	for _, t := range tiers {
		if quantity >= t.MinQuantity {
			percent = t.Percent
			matched = true
		}
	}
	if !matched {
		return 0
	}
	return percentOf(subtotal, percent)
}
