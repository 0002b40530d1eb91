// Package jobs triggers named background jobs (notifications, escalation
// fan-out) and consumes them in the worker process. Backends: a log-only
// runner for development, a Trigger-style HTTP API, SQS and Kafka.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Job names raised by the triage workflow.
const (
	JobTriageShift    = "triage-shift"
	JobCriticalVitals = "critical-vitals"
	JobAlertRaised    = "alert-raised"
)

// ErrUnknownJob is returned by a Handler that does not recognise a job name.
// Consumers drop such messages instead of redelivering them forever.
var ErrUnknownJob = errors.New("unknown job")

// Job is the message put on a queue.
type Job struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload"`
	TenantID  string          `json:"tenantId,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Runner accepts a job by name and returns its id.
type Runner interface {
	Trigger(ctx context.Context, name string, payload any) (string, error)
}

// Handler processes one consumed job.
type Handler func(ctx context.Context, job Job) error

// Consumer delivers queued jobs to a Handler until ctx is cancelled.
type Consumer interface {
	Run(ctx context.Context, h Handler) error
}

func newJob(name string, payload any) (Job, error) {
	if name == "" {
		return Job{}, fmt.Errorf("job name is required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("encode %s payload: %w", name, err)
	}
	return Job{
		ID:        uuid.NewString(),
		Name:      name,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// LogRunner only logs. It is the development default.
type LogRunner struct {
	logger zerolog.Logger
}

func NewLogRunner(logger zerolog.Logger) *LogRunner {
	return &LogRunner{logger: logger.With().Str("component", "jobs").Logger()}
}

func (r *LogRunner) Trigger(_ context.Context, name string, payload any) (string, error) {
	job, err := newJob(name, payload)
	if err != nil {
		return "", err
	}
	r.logger.Info().Str("job", name).Str("job_id", job.ID).RawJSON("payload", job.Payload).Msg("job triggered")
	return job.ID, nil
}
