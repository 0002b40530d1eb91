package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// HTTPRunner triggers jobs on a Trigger-style job API:
// POST {base}/api/v1/jobs/{name}/trigger with {"payload":..., "options":...}.
// Without an API key it runs in mock mode and returns "mock-{name}-{millis}".
type HTTPRunner struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
	now        func() time.Time
}

func NewHTTPRunner(baseURL, apiKey string, logger zerolog.Logger) *HTTPRunner {
	return &HTTPRunner{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With().Str("component", "jobs").Str("backend", "http").Logger(),
		now:        time.Now,
	}
}

type triggerRequest struct {
	Payload any            `json:"payload"`
	Options map[string]any `json:"options"`
}

type triggerResponse struct {
	ID string `json:"id"`
}

func (r *HTTPRunner) Trigger(ctx context.Context, name string, payload any) (string, error) {
	if r.apiKey == "" {
		id := fmt.Sprintf("mock-%s-%d", name, r.now().UnixMilli())
		r.logger.Debug().Str("job", name).Str("job_id", id).Msg("job api key not set, job not sent")
		return id, nil
	}

	body, err := json.Marshal(triggerRequest{Payload: payload, Options: map[string]any{}})
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", name, err)
	}

	url := fmt.Sprintf("%s/api/v1/jobs/%s/trigger", r.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("trigger %s: %w", name, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("trigger %s: status %d: %s", name, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out triggerResponse
	if err := json.Unmarshal(raw, &out); err != nil || out.ID == "" {
		return "", fmt.Errorf("trigger %s: response has no job id", name)
	}
	r.logger.Info().Str("job", name).Str("job_id", out.ID).Msg("job triggered")
	return out.ID, nil
}
