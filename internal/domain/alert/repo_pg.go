package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const alertCols = `id, title, message, priority, category, status, for_roles, patient_id,
	triggered_by, metadata, acknowledged_at, acknowledged_by, created_at`

func scanAlert(row pgx.Row) (*Alert, error) {
	var (
		a    Alert
		meta []byte
		by   *string
	)
	err := row.Scan(&a.ID, &a.Title, &a.Message, &a.Priority, &a.Category, &a.Status, &a.ForRoles, &a.PatientID,
		&by, &meta, &a.AcknowledgedAt, &a.AcknowledgedBy, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if by != nil {
		a.TriggeredBy = *by
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &a.Metadata); err != nil {
			return nil, fmt.Errorf("decode alert metadata: %w", err)
		}
	}
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Alert) error {
	a.ID = uuid.New()
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("encode alert metadata: %w", err)
	}
	if a.Metadata == nil {
		meta = []byte("{}")
	}
	if a.ForRoles == nil {
		a.ForRoles = []string{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO alerts (id, title, message, priority, category, status, for_roles, patient_id, triggered_by, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9,''),$10)
		RETURNING created_at`,
		a.ID, a.Title, a.Message, a.Priority, a.Category, a.Status, a.ForRoles, a.PatientID, a.TriggeredBy, meta,
	).Scan(&a.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Alert, error) {
	return scanAlert(r.conn(ctx).QueryRow(ctx, `SELECT `+alertCols+` FROM alerts WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, f Filter) ([]*Alert, error) {
	query := `SELECT ` + alertCols + ` FROM alerts WHERE 1=1`
	var args []any
	idx := 1

	if f.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Role != "" {
		query += fmt.Sprintf(` AND (cardinality(for_roles) = 0 OR $%d = ANY(for_roles))`, idx)
		args = append(args, f.Role)
		idx++
	}
	if f.PatientID != nil {
		query += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *repoPG) Acknowledge(ctx context.Context, id, by uuid.UUID, at time.Time) (*Alert, error) {
	return scanAlert(r.conn(ctx).QueryRow(ctx, `
		UPDATE alerts SET status = 'acknowledged',
			acknowledged_at = COALESCE(acknowledged_at, $2),
			acknowledged_by = COALESCE(acknowledged_by, $3)
		WHERE id = $1
		RETURNING `+alertCols, id, at, by))
}

func (r *repoPG) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT status, COUNT(*) FROM alerts GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[Status]int{}
	for rows.Next() {
		var (
			s Status
			n int
		)
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[s] = n
	}
	return out, rows.Err()
}
