package dashboard

import (
	"context"
	"fmt"
	"time"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Stats gathers the counter groups. The queries run one after another: a
// tenant request holds a single pinned connection.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	var (
		out Stats
		err error
	)
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if out.Patients, err = s.repo.PatientStats(ctx); err != nil {
		return nil, fmt.Errorf("patient stats: %w", err)
	}
	if out.Beds, err = s.repo.BedStats(ctx); err != nil {
		return nil, fmt.Errorf("bed stats: %w", err)
	}
	if out.Alerts, err = s.repo.AlertStats(ctx); err != nil {
		return nil, fmt.Errorf("alert stats: %w", err)
	}
	if out.TodayStats, err = s.repo.TodayStats(ctx, today); err != nil {
		return nil, fmt.Errorf("today stats: %w", err)
	}
	if out.Patients.ByPriority == nil {
		out.Patients.ByPriority = map[string]int{}
	}
	return &out, nil
}
