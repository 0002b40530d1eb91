package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/jobs"
)

type Service struct {
	repo   Repository
	jobs   jobs.Runner
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("component", "alerts").Logger(), now: time.Now}
}

// SetJobs attaches a job runner. Critical and high alerts are forwarded to
// it for paging.
func (s *Service) SetJobs(r jobs.Runner) {
	s.jobs = r
}

// Raise validates and stores a new alert.
func (s *Service) Raise(ctx context.Context, a *Alert) error {
	if a.Title == "" {
		return fmt.Errorf("alert title is required")
	}
	if a.Priority == "" {
		a.Priority = PriorityMedium
	}
	if !validPriority(a.Priority) {
		return fmt.Errorf("invalid alert priority %q", a.Priority)
	}
	if a.Status == "" {
		a.Status = StatusUnread
	}
	if a.Category == "" {
		a.Category = CategoryPatient
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return fmt.Errorf("create alert: %w", err)
	}

	if s.jobs != nil && (a.Priority == PriorityCritical || a.Priority == PriorityHigh) {
		payload := map[string]string{
			"title":    a.Title,
			"message":  a.Message,
			"priority": string(a.Priority),
			"alertId":  a.ID.String(),
		}
		if len(a.ForRoles) > 0 {
			payload["recipientRole"] = a.ForRoles[0]
		}
		if _, err := s.jobs.Trigger(ctx, jobs.JobAlertRaised, payload); err != nil {
			s.logger.Warn().Err(err).Str("alert_id", a.ID.String()).Msg("alert notification not queued")
		}
	}
	return nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Alert, error) {
	if f.Status != "" && !validStatus(f.Status) {
		return nil, fmt.Errorf("invalid status %q", f.Status)
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}
	items, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Alert{}
	}
	return items, nil
}

// Acknowledge marks an alert acknowledged. Acknowledging twice keeps the
// first acknowledgement.
func (s *Service) Acknowledge(ctx context.Context, id, by uuid.UUID) (*Alert, error) {
	return s.repo.Acknowledge(ctx, id, by, s.now().UTC())
}

func (s *Service) CountByStatus(ctx context.Context) (map[Status]int, error) {
	return s.repo.CountByStatus(ctx)
}
