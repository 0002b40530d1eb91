package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/auth"
)

// Logger attaches a request-scoped logger to the request context, so
// zerolog.Ctx(ctx) in handlers carries the request id, and writes one access
// line per request. Errors are handed to the error handler first so the
// logged status is the one the client saw.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			rid, _ := c.Get("request_id").(string)
			reqLogger := logger.With().Str("request_id", rid).Logger()
			c.SetRequest(c.Request().WithContext(reqLogger.WithContext(c.Request().Context())))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			status := c.Response().Status
			level := zerolog.InfoLevel
			switch {
			case status >= 500:
				level = zerolog.ErrorLevel
			case status >= 400:
				level = zerolog.WarnLevel
			}

			reqLogger.WithLevel(level).
				Err(err).
				Str("tenant", stringValue(c.Get("tenant_id"))).
				Str("user_id", auth.UserIDFromContext(req.Context())).
				Str("method", req.Method).
				Str("route", c.Path()).
				Str("path", req.URL.Path).
				Int("status", status).
				Int64("bytes_out", c.Response().Size).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return nil
		}
	}
}
