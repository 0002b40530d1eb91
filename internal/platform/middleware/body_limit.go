package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// isVitalsUpload matches POST .../vitals, which may carry a base64 monitor
// photo for OCR capture.
func isVitalsUpload(c echo.Context) bool {
	req := c.Request()
	return req.Method == http.MethodPost && strings.HasSuffix(req.URL.Path, "/vitals")
}

// BodyLimit caps request bodies with echo's limiter: vitals uploads get
// imageLimit and everything else defaultLimit. Sizes use echo's notation
// ("512K", "1M", "2G"); an invalid size panics at startup.
func BodyLimit(defaultLimit, imageLimit string) echo.MiddlewareFunc {
	regular := echomw.BodyLimitWithConfig(echomw.BodyLimitConfig{
		Limit:   defaultLimit,
		Skipper: isVitalsUpload,
	})
	images := echomw.BodyLimitWithConfig(echomw.BodyLimitConfig{
		Limit:   imageLimit,
		Skipper: func(c echo.Context) bool { return !isVitalsUpload(c) },
	})
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return regular(images(next))
	}
}
