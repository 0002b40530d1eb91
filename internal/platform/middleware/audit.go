package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/auth"
)

const apiPrefix = "/api/v1"

// clinicalActions names the routes that change a patient's record. Anything
// else is logged as a read or by its HTTP verb.
var clinicalActions = map[string]string{
	"POST /patients/:id/vitals":                 "record_vitals",
	"POST /patients/:id/shift-triage":           "shift_triage",
	"POST /patients/:id/recommend-triage-shift": "request_recommendation",
	"POST /patients/:id/discharge":              "discharge",
	"POST /patients/:id/transfer-to-opd":        "transfer_to_opd",
	"POST /patients/:id/notes":                  "add_note",
	"PUT /alerts/:id/acknowledge":               "acknowledge_alert",
	"POST /auth/logout":                         "logout",
}

// auditAction maps a matched route to the action recorded for it.
func auditAction(method, route string) string {
	if a, ok := clinicalActions[method+" "+strings.TrimPrefix(route, apiPrefix)]; ok {
		return a
	}
	if method == http.MethodGet || method == http.MethodHead {
		return "read"
	}
	return strings.ToLower(method)
}

// auditResource is the first segment of the route after /api/v1.
func auditResource(route string) string {
	rest := strings.TrimPrefix(strings.TrimPrefix(route, apiPrefix), "/")
	resource, _, _ := strings.Cut(rest, "/")
	if resource == "" {
		return "unknown"
	}
	return resource
}

// Audit writes one "patient_access" line per /api/v1 request once the
// handler has finished. It runs inside the API group, so the route pattern
// and path params are already resolved; unmatched paths never reach it.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			req := c.Request()
			ctx := req.Context()
			route := c.Path()
			resource := auditResource(route)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil {
				status = http.StatusInternalServerError
			}

			evt := logger.Info().
				Str("type", "audit").
				Interface("request_id", c.Get("request_id")).
				Str("tenant", stringValue(c.Get("tenant_id"))).
				Str("user_id", auth.UserIDFromContext(ctx)).
				Strs("user_roles", auth.RolesFromContext(ctx)).
				Str("resource", resource).
				Str("action", auditAction(req.Method, route)).
				Str("route", route).
				Int("status", status).
				Bool("denied", status == http.StatusUnauthorized || status == http.StatusForbidden)
			if id := c.Param("id"); id != "" {
				if resource == "patients" {
					evt = evt.Str("patient_id", id)
				} else {
					evt = evt.Str("resource_id", id)
				}
			}
			evt.Msg("patient_access")

			return err
		}
	}
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}
