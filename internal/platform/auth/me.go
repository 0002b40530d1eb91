package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/learnlegits-ceo/er-command-center-sub001/pkg/envelope"
)

// Profile is the signed-in staff member as the dashboard sees it.
type Profile struct {
	Actor
	Email       string      `json:"email,omitempty"`
	Roles       []string    `json:"roles"`
	Permissions Permissions `json:"permissions"`
}

// LoginResponse is what the auth service returns from POST /auth/login.
type LoginResponse struct {
	Token string  `json:"token"`
	User  Profile `json:"user"`
}

// RegisterMe mounts GET /auth/me, which echoes the identity carried by the
// bearer token. Login itself is served by the external auth service.
func RegisterMe(api *echo.Group) {
	api.GET("/auth/me", func(c echo.Context) error {
		actor, ok := ActorFromContext(c.Request().Context())
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
		}
		roles := RolesFromContext(c.Request().Context())
		return envelope.JSON(c, http.StatusOK, Profile{
			Actor:       actor,
			Roles:       roles,
			Permissions: PermissionsForRoles(roles),
		})
	})
}
