package alert

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/auth"
	"github.com/learnlegits-ceo/er-command-center-sub001/pkg/envelope"
	"github.com/learnlegits-ceo/er-command-center-sub001/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequirePermission("canViewPatients", func(p auth.Permissions) bool { return p.CanViewPatients }))
	read.GET("/alerts", h.List)

	ack := api.Group("", auth.RequirePermission("canAcknowledgeAlerts", func(p auth.Permissions) bool { return p.CanAcknowledgeAlerts }))
	ack.PUT("/alerts/:id/acknowledge", h.Acknowledge)
}

func (h *Handler) List(c echo.Context) error {
	pg, err := pagination.Parse(c, pagination.DefaultLimit)
	if err != nil {
		return err
	}
	f := Filter{Status: Status(c.QueryParam("status")), Limit: pg.Limit, Offset: pg.Offset}
	if f.Status != "" && !validStatus(f.Status) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	ctx := c.Request().Context()
	if role := auth.PrimaryRole(auth.RolesFromContext(ctx)); role != auth.RoleAdmin {
		f.Role = role
	}
	if pid := c.QueryParam("patientId"); pid != "" {
		id, err := uuid.Parse(pid)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patientId")
		}
		f.PatientID = &id
	}

	items, err := h.svc.List(ctx, f)
	if err != nil {
		return err
	}
	return envelope.JSON(c, http.StatusOK, map[string]interface{}{"alerts": items})
}

func (h *Handler) Acknowledge(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing user")
	}
	a, err := h.svc.Acknowledge(c.Request().Context(), id, actor.ID)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "alert not found")
	}
	if err != nil {
		return err
	}
	return envelope.JSON(c, http.StatusOK, a)
}
