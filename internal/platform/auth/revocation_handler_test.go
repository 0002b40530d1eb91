package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func TestLogout_RevokesCurrentToken(t *testing.T) {
	store := NewRevocationStore(0)
	defer store.Close()
	cfg := JWTConfig{SigningKey: testSigningKey, Revoked: store}

	token, err := IssueToken(cfg, Actor{ID: uuid.New(), Name: "Nurse Priya", Role: RoleNurse}, "general", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	e := echo.New()
	api := e.Group("/api/v1", JWTMiddleware(cfg))
	RegisterMe(api)
	RegisterLogout(api, store)

	call := func(method, path string) int {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := call(http.MethodGet, "/api/v1/auth/me"); code != http.StatusOK {
		t.Fatalf("expected 200 before logout, got %d", code)
	}
	if code := call(http.MethodPost, "/api/v1/auth/logout"); code != http.StatusOK {
		t.Fatalf("expected 200 from logout, got %d", code)
	}
	if store.Count() != 1 {
		t.Errorf("expected one revoked token, got %d", store.Count())
	}
	if code := call(http.MethodGet, "/api/v1/auth/me"); code != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", code)
	}
}

func TestLogout_TokenWithoutID(t *testing.T) {
	store := NewRevocationStore(0)
	defer store.Close()
	cfg := JWTConfig{SigningKey: testSigningKey, Revoked: store}
	token := createTestToken(t, validClaims(uuid.New()), testSigningKey)

	e := echo.New()
	RegisterLogout(e.Group("/api/v1", JWTMiddleware(cfg)), store)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if store.Count() != 0 {
		t.Error("a token without an id cannot be revoked")
	}
}
