package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newTestContext(method, path string, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRequestID_GeneratesNew(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/", "")

	err := RequestID()(func(c echo.Context) error {
		if rid, _ := c.Get("request_id").(string); rid == "" {
			t.Error("expected request_id to be generated")
		}
		return okHandler(c)
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/", "")
	c.Request().Header.Set(RequestIDHeader, "my-custom-id")

	_ = RequestID()(okHandler)(c)

	if got := rec.Header().Get(RequestIDHeader); got != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", got)
	}
}

func TestLogger_WritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	c, _ := newTestContext(http.MethodGet, "/api/v1/patients", "")
	c.Set("request_id", "rid-1")

	var scoped bool
	h := func(c echo.Context) error {
		zerolog.Ctx(c.Request().Context()).Debug().Msg("inside handler")
		scoped = zerolog.Ctx(c.Request().Context()).GetLevel() != zerolog.Disabled
		return okHandler(c)
	}
	if err := Logger(logger)(h)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !scoped {
		t.Error("expected a request logger on the context")
	}
	// The debug line from the handler comes first.
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	buf.Reset()
	buf.Write(lines[len(lines)-1])

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if line["request_id"] != "rid-1" || line["path"] != "/api/v1/patients" {
		t.Errorf("unexpected log line: %v", line)
	}
	if line["status"] != float64(200) {
		t.Errorf("expected status 200, got %v", line["status"])
	}
}

func TestLogger_HandlesError(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(logger)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := Logger(logger)(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	})(c)
	if err != nil {
		t.Fatalf("logger should consume the error, got %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Errorf("expected warn level for 4xx, got %s", buf.String())
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/", "")

	err := Recovery(zerolog.Nop(), nil)(func(c echo.Context) error {
		panic("boom")
	})(c)

	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 HTTPError, got %v", err)
	}
}

func TestErrorHandler_Envelope(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		code     string
		message  string
	}{
		{"validation", echo.NewHTTPError(http.StatusBadRequest, "priority must be between 1 and 5"), 400, "VALIDATION_ERROR", "priority must be between 1 and 5"},
		{"conflict", echo.NewHTTPError(http.StatusConflict, "patient was updated concurrently"), 409, "CONFLICT", "patient was updated concurrently"},
		{"advisor", echo.NewHTTPError(http.StatusServiceUnavailable, "recommendation advisor unavailable"), 503, "SERVICE_UNAVAILABLE", "recommendation advisor unavailable"},
		{"internal", errors.New("pq: connection reset"), 500, "INTERNAL_SERVER_ERROR", "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newTestContext(http.MethodPost, "/", "")
			ErrorHandler(zerolog.Nop())(tt.err, c)

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			var body struct {
				Success bool      `json:"success"`
				Error   ErrorBody `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Success {
				t.Error("expected success=false")
			}
			if body.Error.Code != tt.code || body.Error.Message != tt.message {
				t.Errorf("unexpected error body: %+v", body.Error)
			}
		})
	}
}
