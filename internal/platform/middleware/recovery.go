package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Recovery converts a handler panic into a 500 answered through the error
// envelope. metrics may be nil; when set, recovered panics are counted by
// route. http.ErrAbortHandler is re-raised so net/http can drop the
// connection as intended.
func Recovery(logger zerolog.Logger, metrics *HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}

				route := c.Path()
				if metrics != nil {
					metrics.panics.WithLabelValues(routeLabel(route)).Inc()
				}
				logger.Error().
					Interface("request_id", c.Get("request_id")).
					Str("method", c.Request().Method).
					Str("route", route).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", debug.Stack()).
					Bool("committed", c.Response().Committed).
					Msg("handler panicked")

				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}
