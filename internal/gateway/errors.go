package gateway

import "errors"

var (
	// ErrUnavailable is returned when the gateway cannot be reached or
	// answers with a server error. Retryable with backoff.
	ErrUnavailable = errors.New("gateway: unavailable")

	// ErrTimeout is returned when a gateway call exceeds its deadline.
	// Not retried blindly; callers should poll for the final status.
	ErrTimeout = errors.New("gateway: timed out")

	// ErrSignatureInvalid is returned when signature verification fails.
	// Never retried; callers treat it as a security event.
	ErrSignatureInvalid = errors.New("gateway: invalid signature")

	// ErrPaymentNotFound is returned when the referenced payment does
	// not exist at the gateway.
	ErrPaymentNotFound = errors.New("gateway: payment not found")

	// ErrRefundRejected is returned when the gateway declines a refund.
	ErrRefundRejected = errors.New("gateway: refund rejected")
)
