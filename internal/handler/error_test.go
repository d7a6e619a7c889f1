package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/dvrhoads/njord/internal/domain"
)

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{domain.EINVALID, http.StatusBadRequest},
		{domain.EUNAUTHORIZED, http.StatusUnauthorized},
		{domain.ESIGNATURE, http.StatusUnauthorized},
		{domain.EFORBIDDEN, http.StatusForbidden},
		{domain.ENOTFOUND, http.StatusNotFound},
		{domain.ECONFLICT, http.StatusConflict},
		{domain.EBUSINESSRULE, http.StatusUnprocessableEntity},
		{domain.EGATEWAY, http.StatusBadGateway},
		{domain.EGATEWAYTIMEOUT, http.StatusGatewayTimeout},
		{domain.EINTERNAL, http.StatusInternalServerError},
		{"unknown_code", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := ErrorCodeToHTTPStatus(tt.code); got != tt.expected {
				t.Errorf("ErrorCodeToHTTPStatus(%q) = %d, want %d", tt.code, got, tt.expected)
			}
		})
	}
}

func newErrorTestContext() (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
		retryable      bool
	}{
		{
			name:           "not found error",
			err:            domain.ErrOrderNotFound,
			expectedStatus: http.StatusNotFound,
			expectedCode:   domain.ENOTFOUND,
		},
		{
			name:           "validation error",
			err:            domain.Invalid("order.create", "quantity must be positive"),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   domain.EINVALID,
		},
		{
			name:           "business rule error",
			err:            domain.ErrCouponExpired,
			expectedStatus: http.StatusUnprocessableEntity,
			expectedCode:   domain.EBUSINESSRULE,
		},
		{
			name:           "conflict error",
			err:            domain.ErrTransitionConflict,
			expectedStatus: http.StatusConflict,
			expectedCode:   domain.ECONFLICT,
		},
		{
			name:           "gateway unavailable is retryable",
			err:            domain.Errorf(domain.EGATEWAY, "payment.create_order", "Payment gateway unavailable"),
			expectedStatus: http.StatusBadGateway,
			expectedCode:   domain.EGATEWAY,
			retryable:      true,
		},
		{
			name:           "gateway timeout is not retryable",
			err:            domain.Errorf(domain.EGATEWAYTIMEOUT, "payment.verify", "Payment gateway timed out"),
			expectedStatus: http.StatusGatewayTimeout,
			expectedCode:   domain.EGATEWAYTIMEOUT,
		},
		{
			name:           "signature error",
			err:            domain.ErrInvalidSignature,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   domain.ESIGNATURE,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newErrorTestContext()

			if err := ErrorResponse(c, tt.err); err != nil {
				t.Fatalf("ErrorResponse returned error: %v", err)
			}
			if rec.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.expectedStatus)
			}

			var body ErrorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON body: %v", err)
			}
			if body.Error.Code != tt.expectedCode {
				t.Errorf("code = %q, want %q", body.Error.Code, tt.expectedCode)
			}
			if body.Error.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", body.Error.Retryable, tt.retryable)
			}
		})
	}
}

func TestErrorResponse_InternalHidesDetails(t *testing.T) {
	c, rec := newErrorTestContext()

	err := domain.Internal(json.Unmarshal(nil, (*int)(nil)), "order.create", "database exploded: host=10.0.0.5")
	if respErr := ErrorResponse(c, err); respErr != nil {
		t.Fatalf("ErrorResponse returned error: %v", respErr)
	}

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}

	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body.Error.Message != "An internal error has occurred." {
		t.Errorf("internal error leaked details: %q", body.Error.Message)
	}
}
