package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/acuity"
)

// LLMConfig configures an OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// LLMClient asks a hosted language model for a recommendation.
type LLMClient struct {
	cfg        LLMConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// LLMOption configures an LLMClient.
type LLMOption func(*LLMClient)

// WithHTTPClient overrides the HTTP client used for completions.
func WithHTTPClient(c *http.Client) LLMOption {
	return func(l *LLMClient) {
		l.httpClient = c
	}
}

func NewLLMClient(cfg LLMConfig, logger zerolog.Logger, opts ...LLMOption) *LLMClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &LLMClient{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger.With().Str("component", "advisor").Str("model", cfg.Model).Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// modelOutput is the JSON object the model is asked to produce. Numbers are
// accepted as JSON numbers or strings since models are not consistent.
type modelOutput struct {
	RecommendedPriority *flexNumber `json:"recommendedPriority"`
	Reasoning           string      `json:"reasoning"`
	Recommendations     []string    `json:"recommendations"`
	Confidence          *flexNumber `json:"confidence"`
	EstimatedWaitTime   string      `json:"estimatedWaitTime"`
	SuggestedDepartment string      `json:"suggestedDepartment"`
}

type flexNumber float64

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	s = strings.TrimPrefix(strings.ToUpper(s), "L")
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("not a number: %s", b)
	}
	*f = flexNumber(v)
	return nil
}

const systemPrompt = `You are an emergency department triage assistant. Use a five-level scale:
1 = Critical (immediate), 2 = Emergent (10 minutes), 3 = Urgent (30-60 minutes),
4 = Non-Urgent (1-2 hours), 5 = Stable (2-4 hours).
Respond with a single JSON object with keys:
recommendedPriority (integer 1-5), reasoning (string), recommendations (array of strings),
confidence (number 0-1), estimatedWaitTime (string), suggestedDepartment (string).
Your answer is advisory; a clinician makes the final decision.`

func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Patient: %s", req.PatientName)
	if req.Age != nil {
		fmt.Fprintf(&b, ", age %d", *req.Age)
	}
	if req.Gender != "" {
		fmt.Fprintf(&b, ", %s", req.Gender)
	}
	fmt.Fprintf(&b, "\nChief complaint: %s\n", req.Complaint)
	fmt.Fprintf(&b, "Current priority: %s\n", acuity.Short(req.CurrentPriority))
	if req.Vitals != nil {
		fmt.Fprintf(&b, "Latest vitals: %s\n", req.Vitals.Summary())
	}
	if req.Assessment.Severity != "" && req.Assessment.Severity != acuity.SeverityNormal {
		fmt.Fprintf(&b, "Vitals assessment: %s (%s)\n", req.Assessment.Severity, strings.Join(req.Assessment.Findings, ", "))
	}
	if len(req.History) > 0 {
		fmt.Fprintf(&b, "Triage history (newest first):\n- %s\n", strings.Join(req.History, "\n- "))
	}
	if len(req.Treatments) > 0 {
		fmt.Fprintf(&b, "Active treatments: %s\n", strings.Join(req.Treatments, ", "))
	}
	if req.Procedure != "" {
		fmt.Fprintf(&b, "Procedure: %s\n", req.Procedure)
	}
	if req.ConditionChange != "" {
		fmt.Fprintf(&b, "Condition change: %s\n", req.ConditionChange)
	}
	if req.Notes != "" {
		fmt.Fprintf(&b, "Clinician notes: %s\n", req.Notes)
	}
	b.WriteString("Should this patient's triage priority change? Answer in JSON.")
	return b.String()
}

func (c *LLMClient) Recommend(ctx context.Context, req Request) (*Recommendation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(req)},
		},
		Temperature:    c.cfg.Temperature,
		MaxTokens:      c.cfg.MaxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrUnavailable, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn().Int("status", resp.StatusCode).Str("patient_id", req.PatientID.String()).Msg("advisor returned error status")
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil || len(chat.Choices) == 0 {
		return nil, fmt.Errorf("%w: malformed completion", ErrUnavailable)
	}

	rec, err := parseModelOutput(chat.Choices[0].Message.Content)
	if err != nil {
		c.logger.Warn().Err(err).Str("patient_id", req.PatientID.String()).Msg("advisor output rejected")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c.logger.Debug().Dur("latency", time.Since(start)).Int("recommended", rec.RecommendedPriority).Msg("advisor answered")
	return normalize(req, rec), nil
}

// parseModelOutput decodes the model's JSON. Unknown keys are ignored; a
// missing priority is an error.
func parseModelOutput(content string) (*Recommendation, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var out modelOutput
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	if out.RecommendedPriority == nil {
		return nil, fmt.Errorf("model output has no recommendedPriority")
	}

	rec := &Recommendation{
		RecommendedPriority: int(*out.RecommendedPriority),
		Reasoning:           strings.TrimSpace(out.Reasoning),
		Recommendations:     out.Recommendations,
		EstimatedWaitTime:   out.EstimatedWaitTime,
		SuggestedDepartment: out.SuggestedDepartment,
	}
	if out.Confidence != nil {
		rec.Confidence = float64(*out.Confidence)
	}
	return rec, nil
}
