package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/triage"
)

func writeEnvelope(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}

func newTestAPI(t *testing.T, mux *http.ServeMux, view string) (*API, *ViewTracker) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	nav := NewViewTracker(view)
	return NewAPI(srv.URL+"/", zerolog.Nop(), WithNavigator(nav)), nav
}

func TestAPI_SendsBearerAndDecodesEnvelope(t *testing.T) {
	id := uuid.New()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/patients", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		writeEnvelope(w, http.StatusOK, map[string]interface{}{
			"patients": []map[string]interface{}{{"id": id, "name": "Asha Rao", "status": "active", "priority": 2}},
		})
	})
	api, _ := newTestAPI(t, mux, "/board")
	api.SetToken("tok-123")

	patients, err := api.ListPatients(context.Background())
	require.NoError(t, err)
	require.Len(t, patients, 1)
	assert.Equal(t, id, patients[0].ID)
	assert.Equal(t, 2, *patients[0].Priority)
}

func TestAPI_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		code   string
		want   error
	}{
		{http.StatusBadRequest, "VALIDATION_ERROR", ErrValidation},
		{http.StatusUnprocessableEntity, "VALIDATION_ERROR", ErrValidation},
		{http.StatusForbidden, "FORBIDDEN", ErrForbidden},
		{http.StatusNotFound, "NOT_FOUND", ErrNotFound},
		{http.StatusConflict, "CONFLICT", ErrConflict},
		{http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", ErrAdvisorUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("POST /api/v1/patients/{id}/shift-triage", func(w http.ResponseWriter, r *http.Request) {
				writeError(w, tt.status, tt.code, "nope")
			})
			api, _ := newTestAPI(t, mux, "/board")

			_, err := api.ShiftTriage(context.Background(), uuid.New(), triage.ShiftInput{Priority: 2})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, "nope", apiErr.Message)
		})
	}
}

func TestAPI_ShiftSendsIdempotencyKey(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/patients/{id}/shift-triage", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "retry-1", r.Header.Get("Idempotency-Key"))
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(1), body["priority"])
		assert.NotContains(t, body, "idempotencyKey")
		writeEnvelope(w, http.StatusOK, map[string]interface{}{"toPriority": 1, "message": "Triage shifted from L3 to L1"})
	})
	api, _ := newTestAPI(t, mux, "/board")

	res, err := api.ShiftTriage(context.Background(), uuid.New(), triage.ShiftInput{Priority: 1, IdempotencyKey: "retry-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ToPriority)
}

func TestAPI_401EndsSessionAndRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/dashboard/stats", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
	})
	api, nav := newTestAPI(t, mux, "/board")
	var teardowns atomic.Int32
	api.SetOnExpired(func() { teardowns.Add(1) })

	_, err := api.DashboardStats(context.Background())
	assert.ErrorIs(t, err, ErrAuthExpired)
	assert.Equal(t, int32(1), teardowns.Load())
	assert.Equal(t, LoginView, nav.CurrentView())
	assert.Equal(t, 1, nav.Redirects())
}

func TestAPI_401OnLoginViewDoesNotRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/alerts", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
	})
	api, nav := newTestAPI(t, mux, LoginView)
	var teardowns atomic.Int32
	api.SetOnExpired(func() { teardowns.Add(1) })

	_, err := api.Alerts(context.Background(), "")
	assert.ErrorIs(t, err, ErrAuthExpired)
	assert.Zero(t, teardowns.Load())
	assert.Zero(t, nav.Redirects())
}

func TestAPI_401OnAuthPathDoesNotRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "bad credentials")
	})
	mux.HandleFunc("GET /api/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
	})
	api, nav := newTestAPI(t, mux, "/board")
	var teardowns atomic.Int32
	api.SetOnExpired(func() { teardowns.Add(1) })

	_, err := api.Login(context.Background(), "priya@er.local", "wrong")
	assert.ErrorIs(t, err, ErrAuthExpired)
	_, err = api.Me(context.Background())
	assert.ErrorIs(t, err, ErrAuthExpired)

	assert.Zero(t, teardowns.Load())
	assert.Zero(t, nav.Redirects())
	assert.Equal(t, "/board", nav.CurrentView())
}

func TestAPI_MalformedEnvelope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/patients", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>gateway</html>"))
	})
	api, _ := newTestAPI(t, mux, "/board")

	_, err := api.ListPatients(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode envelope")
}

func TestAPI_SuccessStatusWithoutEnvelope(t *testing.T) {
	for name, body := range map[string]string{
		"empty object": `{}`,
		"bare payload": `{"patients": []}`,
	} {
		t.Run(name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /api/v1/patients", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(body))
			})
			api, nav := newTestAPI(t, mux, "/board")

			_, err := api.ListPatients(context.Background())
			require.Error(t, err)
			var apiErr *APIError
			assert.False(t, errors.As(err, &apiErr), "got APIError %+v", apiErr)
			assert.Contains(t, err.Error(), "unexpected response envelope")
			assert.Zero(t, nav.Redirects())
		})
	}
}

func TestAPI_SuccessStatusWithErrorBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/patients", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusOK, "CONFLICT", "stale version")
	})
	api, _ := newTestAPI(t, mux, "/board")

	_, err := api.ListPatients(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "CONFLICT", apiErr.Code)
	assert.Equal(t, "stale version", apiErr.Message)
}
