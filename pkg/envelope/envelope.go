// Package envelope is the {success, data, error} wrapper every API response
// uses. The server writes it and the dashboard client decodes it.
package envelope

import (
	"encoding/json"

	"github.com/labstack/echo/v4"
)

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type okBody struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

// JSON writes data wrapped in a success envelope.
func JSON(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, okBody{Success: true, Data: data})
}
