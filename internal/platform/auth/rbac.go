package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// RequirePermission guards a route with one flag of the caller's permission
// set. A request carrying no roles was never authenticated and gets a 401;
// a known role lacking the flag gets a 403 naming it.
func RequirePermission(name string, allowed func(Permissions) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			roles := RolesFromContext(ctx)
			if len(roles) == 0 {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if !allowed(PermissionsForRoles(roles)) {
				zerolog.Ctx(ctx).Debug().Strs("roles", roles).Str("permission", name).Msg("permission denied")
				return echo.NewHTTPError(http.StatusForbidden, "missing permission: "+name)
			}
			return next(c)
		}
	}
}
