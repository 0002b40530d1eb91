package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestRequestTimeout_CompletesWithinDeadline(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	h := RequestTimeout(5 * time.Second)(func(c echo.Context) error {
		called = true
		if _, ok := c.Request().Context().Deadline(); !ok {
			t.Error("expected a deadline on the request context")
		}
		return c.String(http.StatusOK, "ok")
	})

	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
}

func TestRequestTimeout_ReturnsGatewayTimeout(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zerolog.Nop())
	release := make(chan struct{})
	defer close(release)
	e.GET("/api/v1/patients/:id/recommend-triage", func(c echo.Context) error {
		select {
		case <-release:
		case <-c.Request().Context().Done():
		}
		return c.Request().Context().Err()
	}, RequestTimeout(50*time.Millisecond))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients/p1/recommend-triage", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}
	var body errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Success || body.Error.Code != "TIMEOUT" {
		t.Errorf("unexpected envelope: %+v", body)
	}
}

func TestRequestTimeout_SkipsMetrics(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	h := RequestTimeout(time.Millisecond)(func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); ok {
			t.Error("metrics scrapes should not get a deadline")
		}
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequestTimeout_PropagatesHandlerError(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil), httptest.NewRecorder())
	want := errors.New("boom")

	err := RequestTimeout(time.Second)(func(echo.Context) error { return want })(c)
	if !errors.Is(err, want) {
		t.Errorf("expected handler error, got %v", err)
	}
}

func TestRequestTimeout_ZeroDisables(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil), httptest.NewRecorder())

	err := RequestTimeout(0)(func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); ok {
			t.Error("a zero timeout should not set a deadline")
		}
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequestTimeout_WrappedDeadline(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil), httptest.NewRecorder())

	err := RequestTimeout(time.Second)(func(echo.Context) error {
		return fmt.Errorf("list patients: %w", context.DeadlineExceeded)
	})(c)

	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %v", err)
	}
}
