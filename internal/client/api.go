// Package client is the dashboard side of the ER command center: the REST
// client, the signed-in session and (in package cache) the local copy of
// server state the board renders from.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/advisor"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/alert"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/dashboard"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/triage"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/auth"
	"github.com/learnlegits-ceo/er-command-center-sub001/pkg/envelope"
)

// Errors returned by API calls, matched with errors.Is. The server-side
// sentinels are reused so callers can classify errors the same way on both
// ends.
var (
	ErrValidation         = errors.New("validation error")
	ErrAuthExpired        = errors.New("session expired")
	ErrConflict           = triage.ErrConflict
	ErrNotFound           = triage.ErrNotFound
	ErrForbidden          = triage.ErrForbidden
	ErrAdvisorUnavailable = triage.ErrAdvisorUnavailable
)

// LoginView is the view the dashboard shows signed-out users.
const LoginView = "/login"

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Code    string
	Message string
	Path    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Path, e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrValidation
	case http.StatusUnauthorized:
		return ErrAuthExpired
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusServiceUnavailable:
		return ErrAdvisorUnavailable
	}
	return nil
}

// Navigator is the part of the UI the client may steer: it reads the current
// view and sends the user elsewhere when their session ends.
type Navigator interface {
	CurrentView() string
	Redirect(view string)
}

// ViewTracker is a Navigator that only remembers where it is.
type ViewTracker struct {
	mu        sync.Mutex
	view      string
	redirects int
}

func NewViewTracker(view string) *ViewTracker {
	return &ViewTracker{view: view}
}

func (v *ViewTracker) CurrentView() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.view
}

func (v *ViewTracker) Redirect(view string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.view = view
	v.redirects++
}

// Redirects counts Redirect calls.
func (v *ViewTracker) Redirects() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.redirects
}

// API talks to the command center REST API under /api/v1.
type API struct {
	baseURL    string
	httpClient *http.Client
	nav        Navigator
	logger     zerolog.Logger

	mu        sync.RWMutex
	token     string
	onExpired func()
}

type Option func(*API)

func WithHTTPClient(c *http.Client) Option {
	return func(a *API) {
		a.httpClient = c
	}
}

func WithNavigator(n Navigator) Option {
	return func(a *API) {
		a.nav = n
	}
}

func NewAPI(baseURL string, logger zerolog.Logger, opts ...Option) *API {
	a := &API{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api/v1",
		httpClient: &http.Client{Timeout: 15 * time.Second},
		nav:        NewViewTracker("/"),
		logger:     logger.With().Str("component", "api").Logger(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *API) SetToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
}

func (a *API) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// SetOnExpired registers the teardown run when an authenticated call comes
// back 401.
func (a *API) SetOnExpired(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onExpired = fn
}

func (a *API) Navigator() Navigator {
	return a.nav
}

// authExpired handles a 401. Calls to /auth endpoints and anything issued
// while the login view is showing are left alone so a failed login cannot
// bounce the user back to the page they are already on.
func (a *API) authExpired(path string) {
	if strings.HasPrefix(path, "/auth") {
		return
	}
	if a.nav.CurrentView() == LoginView {
		return
	}
	a.logger.Info().Str("path", path).Msg("token rejected, ending session")

	a.mu.RLock()
	teardown := a.onExpired
	a.mu.RUnlock()
	if teardown != nil {
		teardown()
	}
	a.nav.Redirect(LoginView)
}

func (a *API) do(ctx context.Context, method, path string, body interface{}, header http.Header, out interface{}) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode body: %w", method, path, err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := a.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read response: %w", method, path, err)
	}
	a.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("api call")

	var env envelope.Envelope
	decodeErr := json.Unmarshal(raw, &env)

	// A 2xx body that decodes but carries neither success nor an error
	// object ({} or a bare payload) did not come from the ER API.
	if resp.StatusCode < 400 && decodeErr == nil && !env.Success && env.Error == nil {
		return fmt.Errorf("%s %s: unexpected response envelope", method, path)
	}
	if resp.StatusCode >= 400 || (decodeErr == nil && !env.Success) {
		apiErr := &APIError{Status: resp.StatusCode, Path: path, Message: http.StatusText(resp.StatusCode)}
		if decodeErr == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		if resp.StatusCode == http.StatusUnauthorized {
			a.authExpired(path)
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("%s %s: decode envelope: %w", method, path, decodeErr)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s %s: decode data: %w", method, path, err)
	}
	return nil
}

func patientPath(id uuid.UUID, rest string) string {
	return "/patients/" + id.String() + rest
}

func (a *API) Login(ctx context.Context, email, password string) (*auth.LoginResponse, error) {
	var out auth.LoginResponse
	body := map[string]string{"email": email, "password": password}
	if err := a.do(ctx, http.MethodPost, "/auth/login", body, nil, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, fmt.Errorf("login: response carried no token")
	}
	return &out, nil
}

func (a *API) Me(ctx context.Context) (*auth.Profile, error) {
	var out auth.Profile
	if err := a.do(ctx, http.MethodGet, "/auth/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout asks the server to revoke the current token.
func (a *API) Logout(ctx context.Context) error {
	return a.do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil)
}

func (a *API) ListPatients(ctx context.Context) ([]triage.Patient, error) {
	var out struct {
		Patients []triage.Patient `json:"patients"`
	}
	if err := a.do(ctx, http.MethodGet, "/patients", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Patients, nil
}

func (a *API) GetPatient(ctx context.Context, id uuid.UUID) (*triage.Patient, error) {
	var out triage.Patient
	if err := a.do(ctx, http.MethodGet, patientPath(id, ""), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Timeline(ctx context.Context, id uuid.UUID) ([]triage.TriageTransition, error) {
	var out struct {
		Timeline []triage.TriageTransition `json:"timeline"`
	}
	if err := a.do(ctx, http.MethodGet, patientPath(id, "/triage-timeline"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Timeline, nil
}

func (a *API) VitalsHistory(ctx context.Context, id uuid.UUID) ([]triage.VitalsRecord, error) {
	var out struct {
		Vitals []triage.VitalsRecord `json:"vitals"`
	}
	if err := a.do(ctx, http.MethodGet, patientPath(id, "/vitals"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Vitals, nil
}

func (a *API) ApplyVitals(ctx context.Context, id uuid.UUID, in triage.VitalsInput) (*triage.VitalsResult, error) {
	var out triage.VitalsResult
	if err := a.do(ctx, http.MethodPost, patientPath(id, "/vitals"), in, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ShiftTriage sends a manual shift. A non-empty in.IdempotencyKey is sent as
// the Idempotency-Key header so a retried request is not recorded twice.
func (a *API) ShiftTriage(ctx context.Context, id uuid.UUID, in triage.ShiftInput) (*triage.ShiftResult, error) {
	var header http.Header
	if in.IdempotencyKey != "" {
		header = http.Header{"Idempotency-Key": []string{in.IdempotencyKey}}
	}
	var out triage.ShiftResult
	if err := a.do(ctx, http.MethodPost, patientPath(id, "/shift-triage"), in, header, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) RecommendTriageShift(ctx context.Context, id uuid.UUID, rc triage.RecommendContext) (*advisor.Recommendation, error) {
	var out advisor.Recommendation
	if err := a.do(ctx, http.MethodPost, patientPath(id, "/recommend-triage-shift"), rc, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Alerts(ctx context.Context, status alert.Status) ([]alert.Alert, error) {
	path := "/alerts"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}
	var out struct {
		Alerts []alert.Alert `json:"alerts"`
	}
	if err := a.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Alerts, nil
}

func (a *API) AcknowledgeAlert(ctx context.Context, id uuid.UUID) (*alert.Alert, error) {
	var out alert.Alert
	if err := a.do(ctx, http.MethodPut, "/alerts/"+id.String()+"/acknowledge", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) DashboardStats(ctx context.Context) (*dashboard.Stats, error) {
	var out dashboard.Stats
	if err := a.do(ctx, http.MethodGet, "/dashboard/stats", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
