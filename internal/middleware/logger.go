package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parkmate/internal/logging"
)

// RequestLogger attaches a request-scoped zerolog logger to the request
// context and writes one access line per request.  It must run after echo's
// RequestID middleware to pick up the request id.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = req.Header.Get(echo.HeaderXRequestID)
			}
			l := logging.Logger().With().
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Logger()
			c.SetRequest(req.WithContext(logging.NewContext(req.Context(), l)))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			ev := logging.Info(c.Request().Context())
			if status >= 500 {
				ev = logging.Error(c.Request().Context()).Err(err)
			}
			ev.Int("status", status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")
			return nil
		}
	}
}
