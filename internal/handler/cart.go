package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dvrhoads/njord/internal/domain"
)

// CartHandler exposes the cart CRUD surface.
type CartHandler struct {
	carts domain.CartService
}

// NewCartHandler creates a cart handler.
func NewCartHandler(carts domain.CartService) *CartHandler {
	return &CartHandler{carts: carts}
}

type addItemRequest struct {
	ProductID      string `json:"product_id" validate:"required"`
	ProductName    string `json:"product_name" validate:"required"`
	Category       string `json:"category"`
	UnitPriceCents int64  `json:"unit_price_cents" validate:"gte=0"`
	Quantity       int32  `json:"quantity" validate:"gt=0,lte=1000"`
}

type updateItemRequest struct {
	Quantity int32 `json:"quantity" validate:"gte=0,lte=1000"`
}

// Get handles GET /cart
func (h *CartHandler) Get(c echo.Context) error {
	id, _ := domain.IdentityFromContext(c.Request().Context())

	cart, err := h.carts.GetCart(c.Request().Context(), id.UserID)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, cart)
}

// AddItem handles POST /cart/items
func (h *CartHandler) AddItem(c echo.Context) error {
	id, _ := domain.IdentityFromContext(c.Request().Context())

	var req addItemRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, domain.Invalid("cart.add_item", "invalid request body"))
	}
	if err := c.Validate(&req); err != nil {
		return ErrorResponse(c, err)
	}

	cart, err := h.carts.AddItem(c.Request().Context(), id.UserID, domain.CartItem{
		ProductID:      req.ProductID,
		ProductName:    req.ProductName,
		Category:       req.Category,
		UnitPriceCents: req.UnitPriceCents,
		Quantity:       req.Quantity,
	})
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, cart)
}

// UpdateItem handles PUT /cart/items/:productID
func (h *CartHandler) UpdateItem(c echo.Context) error {
	id, _ := domain.IdentityFromContext(c.Request().Context())

	var req updateItemRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, domain.Invalid("cart.update_item", "invalid request body"))
	}
	if err := c.Validate(&req); err != nil {
		return ErrorResponse(c, err)
	}

	cart, err := h.carts.UpdateItemQuantity(c.Request().Context(), id.UserID, c.Param("productID"), req.Quantity)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, cart)
}

// RemoveItem handles DELETE /cart/items/:productID
func (h *CartHandler) RemoveItem(c echo.Context) error {
	id, _ := domain.IdentityFromContext(c.Request().Context())

	cart, err := h.carts.RemoveItem(c.Request().Context(), id.UserID, c.Param("productID"))
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, cart)
}

// Clear handles DELETE /cart
func (h *CartHandler) Clear(c echo.Context) error {
	id, _ := domain.IdentityFromContext(c.Request().Context())

	if err := h.carts.ClearCart(c.Request().Context(), id.UserID); err != nil {
		return ErrorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
