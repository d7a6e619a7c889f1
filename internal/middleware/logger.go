package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dvrhoads/njord/internal/domain"
)

// RequestLogger logs one structured line per request. Should be placed
// after RequestID and WithIdentity in the chain so both show up.
func RequestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			event := logger.Info()
			if c.Response().Status >= 500 {
				event = logger.Error()
			}

			event = event.
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Dur("duration", time.Since(start))

			if requestID := domain.RequestIDFromContext(req.Context()); requestID != "" {
				event = event.Str("request_id", requestID)
			}
			if id, ok := domain.IdentityFromContext(req.Context()); ok {
				event = event.Str("user_id", id.UserID)
			}

			event.Msg("request")
			return nil
		}
	}
}
