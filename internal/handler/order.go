package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dvrhoads/njord/internal/domain"
	"github.com/dvrhoads/njord/internal/service"
)

// OrderHandler exposes order creation and the status state machine.
type OrderHandler struct {
	checkout *service.CheckoutService
	orders   domain.OrderService
}

// NewOrderHandler creates an order handler.
func NewOrderHandler(checkout *service.CheckoutService, orders domain.OrderService) *OrderHandler {
	return &OrderHandler{checkout: checkout, orders: orders}
}

type createOrderRequest struct {
	CouponCode      string `json:"coupon_code"`
	PaymentMethod   string `json:"payment_method" validate:"required"`
	ShippingAddress string `json:"shipping_address" validate:"required"`
	Country         string `json:"country"`
	Region          string `json:"region"`
	PostalCode      string `json:"postal_code"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// Create handles POST /orders
func (h *OrderHandler) Create(c echo.Context) error {
	id, _ := domain.IdentityFromContext(c.Request().Context())

	var req createOrderRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, domain.Invalid("order.create", "invalid request body"))
	}
	if err := c.Validate(&req); err != nil {
		return ErrorResponse(c, err)
	}

	order, err := h.checkout.CreateOrder(c.Request().Context(), service.CheckoutParams{
		UserID:          id.UserID,
		CouponCode:      req.CouponCode,
		PaymentMethod:   domain.PaymentMethodType(req.PaymentMethod),
		ShippingAddress: req.ShippingAddress,
		Country:         req.Country,
		Region:          req.Region,
		PostalCode:      req.PostalCode,
	})
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, order)
}

// Get handles GET /orders/:id
func (h *OrderHandler) Get(c echo.Context) error {
	id, _ := domain.IdentityFromContext(c.Request().Context())

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return ErrorResponse(c, domain.Invalid("order.get", "invalid order id"))
	}

	order, err := h.orders.GetOrder(c.Request().Context(), orderID)
	if err != nil {
		return ErrorResponse(c, err)
	}
	if order.UserID != id.UserID && !id.Staff() {
		// Hide the order's existence from strangers.
		return ErrorResponse(c, domain.ErrOrderNotFound)
	}
	return c.JSON(http.StatusOK, order)
}

// UpdateStatus handles PUT /orders/:id/status (staff only)
func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return ErrorResponse(c, domain.Invalid("order.update_status", "invalid order id"))
	}

	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, domain.Invalid("order.update_status", "invalid request body"))
	}
	if err := c.Validate(&req); err != nil {
		return ErrorResponse(c, err)
	}

	order, err := h.orders.TransitionStatus(c.Request().Context(), orderID, domain.OrderStatus(req.Status))
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// Cancel handles POST /orders/:id/cancel
func (h *OrderHandler) Cancel(c echo.Context) error {
	id, _ := domain.IdentityFromContext(c.Request().Context())

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return ErrorResponse(c, domain.Invalid("order.cancel", "invalid order id"))
	}

	order, err := h.orders.CancelOrder(c.Request().Context(), orderID, id)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, order)
}
