package middleware

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// SecurityHeaders wraps echo's Secure middleware with the dashboard's
// policy. HSTS is only sent on TLS or X-Forwarded-Proto: https requests.
// Every reply, errors included, is marked no-store because it may carry
// patient data.
func SecurityHeaders() echo.MiddlewareFunc {
	secure := echomw.SecureWithConfig(echomw.SecureConfig{
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	})
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		inner := secure(next)
		return func(c echo.Context) error {
			c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
			return inner(c)
		}
	}
}
