package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/learnlegits-ceo/er-command-center-sub001/pkg/envelope"
)

// tokenRevocationTTL bounds how long a revocation is kept for a token that
// carries no expiry.
const tokenRevocationTTL = 24 * time.Hour

type logoutResponse struct {
	Revoked bool `json:"revoked"`
}

// RegisterLogout mounts POST /auth/logout, which revokes the bearer token
// the request was made with. Later requests with that token get a 401.
func RegisterLogout(api *echo.Group, store *RevocationStore) {
	api.POST("/auth/logout", func(c echo.Context) error {
		ctx := c.Request().Context()
		jti, _ := ctx.Value(TokenIDKey).(string)
		if jti == "" {
			return envelope.JSON(c, http.StatusOK, logoutResponse{Revoked: false})
		}
		exp, _ := ctx.Value(TokenExpiryKey).(time.Time)
		if exp.IsZero() {
			exp = time.Now().Add(tokenRevocationTTL)
		}
		store.Revoke(jti, exp)
		return envelope.JSON(c, http.StatusOK, logoutResponse{Revoked: true})
	})
}
