// Package middleware provides the echo middleware chain: request ids,
// request-scoped logging, HTTP metrics and caller identity.
//
// Authentication happens upstream. A trusted proxy terminates auth and
// forwards the verified identity in headers; this service never sees
// credentials. Direct access to the service must not be possible in
// production, as these headers can be spoofed.
package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dvrhoads/njord/internal/domain"
)

const (
	// UserIDHeader carries the verified user id set by the auth proxy.
	UserIDHeader = "X-User-ID"

	// UserRoleHeader carries the caller's role set by the auth proxy.
	UserRoleHeader = "X-User-Role"
)

// WithIdentity extracts the proxy-asserted identity into the request
// context. Requests without the headers proceed anonymously; RequireAuth
// decides which routes need more.
func WithIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := c.Request().Header.Get(UserIDHeader)
			if userID == "" {
				return next(c)
			}

			role := domain.Role(c.Request().Header.Get(UserRoleHeader))
			switch role {
			case domain.RoleCustomer, domain.RoleManager, domain.RoleAdmin:
			default:
				role = domain.RoleCustomer
			}

			ctx := domain.NewContextWithIdentity(c.Request().Context(), domain.Identity{
				UserID: userID,
				Role:   role,
			})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// RequireAuth rejects requests that carry no identity.
func RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !domain.IsAuthenticated(c.Request().Context()) {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
		return next(c)
	}
}

// RequireStaff rejects requests from callers without a back-office role.
func RequireStaff(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := domain.IdentityFromContext(c.Request().Context())
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
		if !id.Staff() {
			return echo.NewHTTPError(http.StatusForbidden, "staff role required")
		}
		return next(c)
	}
}
