package dashboard

import (
	"context"
	"time"
)

// Repository computes the counters. since is the start of the current day
// used for the today figures.
type Repository interface {
	PatientStats(ctx context.Context) (PatientStats, error)
	BedStats(ctx context.Context) (BedStats, error)
	AlertStats(ctx context.Context) (AlertStats, error)
	TodayStats(ctx context.Context, since time.Time) (TodayStats, error)
}
