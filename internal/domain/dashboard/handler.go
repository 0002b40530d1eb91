package dashboard

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/auth"
	"github.com/learnlegits-ceo/er-command-center-sub001/pkg/envelope"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/dashboard/stats", h.Stats,
		auth.RequirePermission("canViewPatients", func(p auth.Permissions) bool { return p.CanViewPatients }))
}

func (h *Handler) Stats(c echo.Context) error {
	s, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return envelope.JSON(c, http.StatusOK, s)
}
