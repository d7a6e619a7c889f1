// Package handler implements the REST surface. Handlers translate HTTP
// to service calls and map the coded error taxonomy onto status codes;
// they never contain business rules themselves.
package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/dvrhoads/njord/internal/domain"
)

// ErrorCodeToHTTPStatus maps a domain error code to an HTTP status code.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest
	case domain.EUNAUTHORIZED, domain.ESIGNATURE:
		return http.StatusUnauthorized
	case domain.EFORBIDDEN:
		return http.StatusForbidden
	case domain.ENOTFOUND:
		return http.StatusNotFound
	case domain.ECONFLICT:
		return http.StatusConflict
	case domain.EBUSINESSRULE:
		return http.StatusUnprocessableEntity
	case domain.EGATEWAY:
		return http.StatusBadGateway
	case domain.EGATEWAYTIMEOUT:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the JSON error envelope every failure returns.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// ErrorResponse writes err as a JSON error response. Internal errors
// are logged with their full chain but reach the client as a generic
// message.
func ErrorResponse(c echo.Context, err error) error {
	code := domain.ErrorCode(err)
	message := domain.ErrorMessage(err)

	if code == domain.EINTERNAL {
		log.Error().Err(err).
			Str("path", c.Request().URL.Path).
			Str("request_id", domain.RequestIDFromContext(c.Request().Context())).
			Msg("internal error")
		message = "An internal error has occurred."
	}

	return c.JSON(ErrorCodeToHTTPStatus(code), ErrorBody{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: domain.Retryable(err),
		},
	})
}
