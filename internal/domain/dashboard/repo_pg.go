package dashboard

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) PatientStats(ctx context.Context) (PatientStats, error) {
	s := PatientStats{ByPriority: map[string]int{}}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT status, priority, COUNT(*)
		FROM patients
		WHERE status IN ('pending_triage', 'active', 'admitted')
		GROUP BY status, priority`)
	if err != nil {
		return s, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status   string
			priority *int
			n        int
		)
		if err := rows.Scan(&status, &priority, &n); err != nil {
			return s, err
		}
		s.Total += n
		if status == "pending_triage" {
			s.PendingTriage += n
		}
		if priority != nil {
			s.ByPriority[strconv.Itoa(*priority)] += n
			if *priority == 1 && status != "pending_triage" {
				s.Critical += n
			}
		}
	}
	return s, rows.Err()
}

func (r *repoPG) BedStats(ctx context.Context) (BedStats, error) {
	var s BedStats
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'occupied'),
			COUNT(*) FILTER (WHERE status = 'available'),
			COUNT(*) FILTER (WHERE status = 'cleaning')
		FROM beds WHERE is_active`).Scan(&s.Total, &s.Occupied, &s.Available, &s.Cleaning)
	return s, err
}

func (r *repoPG) AlertStats(ctx context.Context) (AlertStats, error) {
	var s AlertStats
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'unread'),
			COUNT(*) FILTER (WHERE priority = 'critical' AND status IN ('unread', 'read'))
		FROM alerts`).Scan(&s.Unread, &s.Critical)
	return s, err
}

func (r *repoPG) TodayStats(ctx context.Context, since time.Time) (TodayStats, error) {
	var s TodayStats
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE admitted_at >= $1),
			COUNT(*) FILTER (WHERE discharged_at >= $1),
			COUNT(*) FILTER (WHERE admitted_at >= $1 AND priority IN (1, 2))
		FROM patients`, since).Scan(&s.Admissions, &s.Discharges, &s.Emergencies)
	return s, err
}
