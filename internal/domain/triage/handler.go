package triage

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/auth"
	"github.com/learnlegits-ceo/er-command-center-sub001/pkg/envelope"
	"github.com/learnlegits-ceo/er-command-center-sub001/pkg/pagination"
)

// vitalsHistoryLimit is the default page for GET /patients/:id/vitals.
const vitalsHistoryLimit = 20

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func guard(name string, allowed func(auth.Permissions) bool) echo.MiddlewareFunc {
	return auth.RequirePermission(name, allowed)
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", guard("canViewPatients", func(p auth.Permissions) bool { return p.CanViewPatients }))
	read.GET("/patients", h.ListPatients)
	read.GET("/patients/:id", h.GetPatient)
	read.GET("/patients/:id/vitals", h.VitalsHistory)
	read.GET("/patients/:id/triage-timeline", h.Timeline)
	read.GET("/patients/:id/notes", h.ListNotes)

	api.POST("/patients/:id/vitals", h.ApplyVitals,
		guard("canRecordVitals", func(p auth.Permissions) bool { return p.CanRecordVitals }))
	api.POST("/patients/:id/shift-triage", h.ShiftTriage,
		guard("canShiftTriage", func(p auth.Permissions) bool { return p.CanShiftTriage }))
	api.POST("/patients/:id/recommend-triage-shift", h.RecommendTriageShift,
		guard("canRequestRecommendation", func(p auth.Permissions) bool { return p.CanRequestRecommendation }))
	api.POST("/patients/:id/discharge", h.Discharge,
		guard("canDischarge", func(p auth.Permissions) bool { return p.CanDischarge }))
	api.POST("/patients/:id/transfer-to-opd", h.TransferToOPD,
		guard("canTransfer", func(p auth.Permissions) bool { return p.CanTransfer }))
	api.POST("/patients/:id/notes", h.AddNote,
		guard("canWriteNotes", func(p auth.Permissions) bool { return p.CanWriteNotes }))
}

// httpError maps service errors onto API status codes. Anything unknown is
// returned as is and rendered as a 500 by the error handler.
func httpError(err error) error {
	var (
		ve *ValidationError
		ce *ConflictError
	)
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.As(err, &ce):
		return echo.NewHTTPError(http.StatusConflict, ce.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrAdvisorUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "triage recommendation is temporarily unavailable")
	}
	return err
}

func patientID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	return id, nil
}

func actor(c echo.Context) (auth.Actor, error) {
	a, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return auth.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "missing user")
	}
	return a, nil
}

// -- Reads --

func (h *Handler) ListPatients(c echo.Context) error {
	pg, err := pagination.Parse(c, pagination.DefaultLimit)
	if err != nil {
		return err
	}
	f := Filter{Status: Status(c.QueryParam("status")), Limit: pg.Limit, Offset: pg.Offset}
	if raw := c.QueryParam("priority"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid priority")
		}
		f.Priority = &p
	}
	items, err := h.svc.ListPatients(c.Request().Context(), f)
	if err != nil {
		return httpError(err)
	}
	return envelope.JSON(c, http.StatusOK, map[string]interface{}{"patients": items})
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return envelope.JSON(c, http.StatusOK, p)
}

func (h *Handler) VitalsHistory(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	pg, err := pagination.Parse(c, vitalsHistoryLimit)
	if err != nil {
		return err
	}
	items, err := h.svc.VitalsHistory(c.Request().Context(), id, pg.Limit)
	if err != nil {
		return httpError(err)
	}
	return envelope.JSON(c, http.StatusOK, map[string]interface{}{"vitals": items})
}

func (h *Handler) Timeline(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Timeline(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return envelope.JSON(c, http.StatusOK, map[string]interface{}{"timeline": items})
}

func (h *Handler) ListNotes(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	perms := auth.PermissionsForRoles(auth.RolesFromContext(ctx))
	items, err := h.svc.ListNotes(ctx, id, perms.CanViewConfidentialNotes)
	if err != nil {
		return httpError(err)
	}
	return envelope.JSON(c, http.StatusOK, map[string]interface{}{"notes": items})
}

// -- Writes --

func (h *Handler) ApplyVitals(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	by, err := actor(c)
	if err != nil {
		return err
	}
	var in VitalsInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.ApplyVitals(c.Request().Context(), id, in, by)
	if err != nil {
		return httpError(err)
	}
	return envelope.JSON(c, http.StatusCreated, res)
}

func (h *Handler) ShiftTriage(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	by, err := actor(c)
	if err != nil {
		return err
	}
	var in ShiftInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	in.IdempotencyKey = c.Request().Header.Get("Idempotency-Key")
	res, err := h.svc.ShiftTriage(c.Request().Context(), id, in, by)
	if err != nil {
		return httpError(err)
	}
	return envelope.JSON(c, http.StatusOK, res)
}

func (h *Handler) RecommendTriageShift(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	var rc RecommendContext
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&rc); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	rec, err := h.svc.RecommendTriageShift(c.Request().Context(), id, rc)
	if err != nil {
		return httpError(err)
	}
	return envelope.JSON(c, http.StatusOK, rec)
}

func (h *Handler) Discharge(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	by, err := actor(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Discharge(c.Request().Context(), id, by)
	if err != nil {
		return httpError(err)
	}
	return envelope.JSON(c, http.StatusOK, p)
}

func (h *Handler) TransferToOPD(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	by, err := actor(c)
	if err != nil {
		return err
	}
	p, err := h.svc.TransferToOPD(c.Request().Context(), id, by)
	if err != nil {
		return httpError(err)
	}
	return envelope.JSON(c, http.StatusOK, p)
}

func (h *Handler) AddNote(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	by, err := actor(c)
	if err != nil {
		return err
	}
	var in NoteInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	n, err := h.svc.AddNote(c.Request().Context(), id, in, by)
	if err != nil {
		return httpError(err)
	}
	return envelope.JSON(c, http.StatusCreated, n)
}
