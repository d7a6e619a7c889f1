package handler

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dvrhoads/njord/internal/middleware"
)

// Handlers bundles everything RegisterRoutes needs.
type Handlers struct {
	Cart    *CartHandler
	Coupon  *CouponHandler
	Order   *OrderHandler
	Payment *PaymentHandler
	Health  *HealthHandler
}

// RegisterRoutes wires the REST surface onto e.
func RegisterRoutes(e *echo.Echo, h Handlers, logger zerolog.Logger, metrics *middleware.Metrics) {
	e.Validator = NewRequestValidator()

	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.WithIdentity())
	if metrics != nil {
		e.Use(metrics.Middleware())
	}
	e.Use(middleware.RequestLogger(logger))

	// Probes and metrics carry no identity requirements.
	e.GET("/healthz", h.Health.Healthz)
	e.GET("/readyz", h.Health.Readyz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// The gateway calls the webhook; it authenticates with its
	// signature, not with proxy identity headers.
	e.POST("/payments/webhook", h.Payment.Webhook)

	auth := e.Group("", middleware.RequireAuth)

	auth.GET("/cart", h.Cart.Get)
	auth.DELETE("/cart", h.Cart.Clear)
	auth.POST("/cart/items", h.Cart.AddItem)
	auth.PUT("/cart/items/:productID", h.Cart.UpdateItem)
	auth.DELETE("/cart/items/:productID", h.Cart.RemoveItem)

	auth.POST("/coupons/validate", h.Coupon.Validate)

	auth.POST("/orders", h.Order.Create)
	auth.GET("/orders/:id", h.Order.Get)
	auth.POST("/orders/:id/cancel", h.Order.Cancel)
	auth.PUT("/orders/:id/status", h.Order.UpdateStatus, middleware.RequireStaff)

	auth.POST("/payments/create-order", h.Payment.CreateOrder)
	auth.POST("/payments/verify", h.Payment.Verify)
	auth.POST("/payments/refund", h.Payment.Refund, middleware.RequireStaff)
}
