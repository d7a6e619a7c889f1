package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dvrhoads/njord/internal/domain"
	"github.com/dvrhoads/njord/internal/shipping"
	"github.com/dvrhoads/njord/internal/telemetry"
)

// CouponHandler exposes coupon validation. Validation is a dry run
// against the caller's current cart; it never consumes a usage slot.
type CouponHandler struct {
	coupons  domain.CouponService
	carts    domain.CartService
	shipping shipping.Provider
}

// NewCouponHandler creates a coupon handler.
func NewCouponHandler(coupons domain.CouponService, carts domain.CartService, ship shipping.Provider) *CouponHandler {
	return &CouponHandler{coupons: coupons, carts: carts, shipping: ship}
}

type validateCouponRequest struct {
	Code string `json:"code" validate:"required"`
}

type validateCouponResponse struct {
	Valid    bool                 `json:"valid"`
	Discount *domain.CouponResult `json:"discount,omitempty"`
}

// Validate handles POST /coupons/validate
func (h *CouponHandler) Validate(c echo.Context) error {
	id, _ := domain.IdentityFromContext(c.Request().Context())
	ctx := c.Request().Context()

	var req validateCouponRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, domain.Invalid("coupon.validate", "invalid request body"))
	}
	if err := c.Validate(&req); err != nil {
		return ErrorResponse(c, err)
	}

	snap, err := h.carts.Snapshot(ctx, id.UserID)
	if err != nil {
		return ErrorResponse(c, err)
	}

	var itemCount int32
	for _, l := range snap.Lines {
		itemCount += l.Quantity
	}
	quote, err := h.shipping.Quote(ctx, shipping.QuoteParams{
		SubtotalCents: snap.SubtotalCents,
		ItemCount:     itemCount,
	})
	if err != nil {
		return ErrorResponse(c, err)
	}

	result, err := h.coupons.Validate(ctx, req.Code, snap, id.UserID, quote.CostCents)
	if err != nil {
		if m := telemetry.Business; m != nil {
			m.CouponsValidated.WithLabelValues("invalid").Inc()
		}
		return ErrorResponse(c, err)
	}

	if m := telemetry.Business; m != nil {
		m.CouponsValidated.WithLabelValues("valid").Inc()
	}
	return c.JSON(http.StatusOK, validateCouponResponse{Valid: true, Discount: result})
}
