package pagination

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Params is a limit/offset window over a list endpoint.
type Params struct {
	Limit  int
	Offset int
}

// Parse binds ?limit= and ?offset=. Absent values take def and 0; a limit
// above MaxLimit is clamped. Non-numeric or negative values are a 400.
func Parse(c echo.Context, def int) (Params, error) {
	p := Params{Limit: def}
	err := echo.QueryParamsBinder(c).
		Int("limit", &p.Limit).
		Int("offset", &p.Offset).
		BindError()
	if err != nil {
		return Params{}, echo.NewHTTPError(http.StatusBadRequest, "limit and offset must be integers")
	}
	if p.Limit < 0 || p.Offset < 0 {
		return Params{}, echo.NewHTTPError(http.StatusBadRequest, "limit and offset must not be negative")
	}
	if p.Limit == 0 {
		p.Limit = def
	}
	p.Limit = min(p.Limit, MaxLimit)
	return p, nil
}
