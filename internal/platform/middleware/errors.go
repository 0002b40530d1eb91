package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/learnlegits-ceo/er-command-center-sub001/pkg/envelope"
)

// ErrorBody is the error half of the API envelope.
type ErrorBody = envelope.Error

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

var statusCodes = map[int]string{
	http.StatusBadRequest:            "VALIDATION_ERROR",
	http.StatusUnauthorized:          "UNAUTHORIZED",
	http.StatusForbidden:             "FORBIDDEN",
	http.StatusNotFound:              "NOT_FOUND",
	http.StatusConflict:              "CONFLICT",
	http.StatusRequestEntityTooLarge: "PAYLOAD_TOO_LARGE",
	http.StatusTooManyRequests:       "RATE_LIMITED",
	http.StatusServiceUnavailable:    "SERVICE_UNAVAILABLE",
	http.StatusGatewayTimeout:        "TIMEOUT",
}

// ErrorHandler renders every error as {success:false, error:{code,message}}.
// Internal errors are logged and replaced by a generic message.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := "internal server error"

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			message = fmt.Sprint(he.Message)
		}

		if status >= 500 && status != http.StatusServiceUnavailable && status != http.StatusGatewayTimeout {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).Str("request_id", rid).Msg("unhandled error")
			message = "internal server error"
		}

		code, ok := statusCodes[status]
		if !ok {
			code = strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
		}

		body := errorEnvelope{Error: ErrorBody{Code: code, Message: message}}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, body)
	}
}
