package handler

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dvrhoads/njord/internal/domain"
)

// maxWebhookBody bounds webhook payload reads.
const maxWebhookBody = 1 << 20

// SignatureHeader carries the gateway's webhook signature.
const SignatureHeader = "X-Gateway-Signature"

// PaymentHandler exposes the payment lifecycle endpoints.
type PaymentHandler struct {
	payments domain.PaymentService
	refunds  domain.RefundService
	logger   zerolog.Logger
}

// NewPaymentHandler creates a payment handler.
func NewPaymentHandler(payments domain.PaymentService, refunds domain.RefundService, logger zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, refunds: refunds, logger: logger}
}

type createPaymentOrderRequest struct {
	PaymentID string `json:"payment_id" validate:"required,uuid"`
}

type verifyPaymentRequest struct {
	PaymentID      string `json:"payment_id" validate:"required,uuid"`
	TransactionID  string `json:"transaction_id" validate:"required"`
	GatewayOrderID string `json:"gateway_order_id"`
	Signature      string `json:"signature" validate:"required"`
}

type refundRequest struct {
	PaymentID   string `json:"payment_id" validate:"required,uuid"`
	AmountCents int64  `json:"amount_cents" validate:"gte=0"`
	Reason      string `json:"reason"`
}

// CreateOrder handles POST /payments/create-order
func (h *PaymentHandler) CreateOrder(c echo.Context) error {
	var req createPaymentOrderRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, domain.Invalid("payment.create_order", "invalid request body"))
	}
	if err := c.Validate(&req); err != nil {
		return ErrorResponse(c, err)
	}

	paymentID, err := uuid.Parse(req.PaymentID)
	if err != nil {
		return ErrorResponse(c, domain.Invalid("payment.create_order", "invalid payment id"))
	}

	result, err := h.payments.CreatePaymentOrder(c.Request().Context(), paymentID)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// Verify handles POST /payments/verify
func (h *PaymentHandler) Verify(c echo.Context) error {
	var req verifyPaymentRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, domain.Invalid("payment.verify", "invalid request body"))
	}
	if err := c.Validate(&req); err != nil {
		return ErrorResponse(c, err)
	}

	paymentID, err := uuid.Parse(req.PaymentID)
	if err != nil {
		return ErrorResponse(c, domain.Invalid("payment.verify", "invalid payment id"))
	}

	payment, err := h.payments.VerifySynchronous(c.Request().Context(), domain.VerificationPayload{
		PaymentID:      paymentID,
		TransactionID:  req.TransactionID,
		GatewayOrderID: req.GatewayOrderID,
		Signature:      req.Signature,
	})
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, payment)
}

// Refund handles POST /payments/refund (staff only)
func (h *PaymentHandler) Refund(c echo.Context) error {
	var req refundRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, domain.Invalid("refund.request", "invalid request body"))
	}
	if err := c.Validate(&req); err != nil {
		return ErrorResponse(c, err)
	}

	paymentID, err := uuid.Parse(req.PaymentID)
	if err != nil {
		return ErrorResponse(c, domain.Invalid("refund.request", "invalid payment id"))
	}

	refund, err := h.refunds.RequestRefund(c.Request().Context(), paymentID, req.AmountCents, req.Reason)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, refund)
}

// Webhook handles POST /payments/webhook. Signature failures are 401;
// after a valid signature the gateway always gets a 200 so it stops
// redelivering, with processing failures logged for reconciliation.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return ErrorResponse(c, domain.Invalid("payment.webhook", "error reading request body"))
	}
	signature := c.Request().Header.Get(SignatureHeader)

	err = h.payments.HandleWebhook(c.Request().Context(), body, signature)
	if err != nil {
		if domain.IsCode(err, domain.ESIGNATURE) {
			return ErrorResponse(c, err)
		}
		h.logger.Error().Err(err).Msg("webhook processing failed")
	}
	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}
