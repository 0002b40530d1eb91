package triage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/acuity"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/auth"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/db"
)

const pgUniqueViolation = "23505"

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `p.id, p.name, p.age, p.gender, p.complaint, p.status, p.priority,
	p.priority_label, p.priority_color, p.priority_reasoning, p.bed_id, b.bed_number,
	p.assigned_doctor_id, p.assigned_nurse_id, p.version, p.admitted_at, p.discharged_at,
	p.created_at, p.updated_at`

const patientFrom = ` FROM patients p LEFT JOIN beds b ON b.id = p.bed_id`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Age, &p.Gender, &p.Complaint, &p.Status, &p.Priority,
		&p.PriorityLabel, &p.PriorityColor, &p.PriorityReasoning, &p.BedID, &p.BedNumber,
		&p.AssignedDoctorID, &p.AssignedNurseID, &p.Version, &p.AdmittedAt, &p.DischargedAt,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+patientFrom+` WHERE p.id = $1`, id))
}

func (r *patientRepoPG) List(ctx context.Context, f Filter) ([]*Patient, error) {
	query := `SELECT ` + patientCols + patientFrom + ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Status != "" {
		query += fmt.Sprintf(` AND p.status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	} else {
		query += ` AND p.status NOT IN ('discharged', 'transferred_to_opd')`
	}
	if f.Priority != nil {
		query += fmt.Sprintf(` AND p.priority = $%d`, idx)
		args = append(args, *f.Priority)
		idx++
	}

	query += fmt.Sprintf(` ORDER BY p.priority ASC NULLS FIRST, p.admitted_at ASC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *patientRepoPG) WithLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, p *Patient) error) error {
	return db.InTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		p, err := scanPatient(tx.QueryRow(ctx, `SELECT `+patientCols+patientFrom+` WHERE p.id = $1 FOR UPDATE OF p`, id))
		if err != nil {
			return err
		}
		return fn(ctx, p)
	})
}

func (r *patientRepoPG) UpdatePriority(ctx context.Context, p *Patient) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET priority=$2, priority_label=$3, priority_color=$4,
			priority_reasoning=$5, status=$6, version=$7, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Priority, p.PriorityLabel, p.PriorityColor,
		p.PriorityReasoning, p.Status, p.Version).Scan(&p.UpdatedAt)
}

func (r *patientRepoPG) UpdateStatus(ctx context.Context, p *Patient) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET status=$2, discharged_at=$3, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Status, p.DischargedAt).Scan(&p.UpdatedAt)
}

// =========== Transition Repository ===========

type transitionRepoPG struct{ pool *pgxpool.Pool }

func NewTransitionRepoPG(pool *pgxpool.Pool) TransitionRepository {
	return &transitionRepoPG{pool: pool}
}

func (r *transitionRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const transitionCols = `id, patient_id, from_priority, to_priority, reasoning, recommendations,
	confidence, estimated_wait_time, suggested_department, is_applied, applied_at,
	applied_by_id, applied_by_name, applied_by_role, source, is_override, idempotency_key, created_at`

func scanTransition(row pgx.Row) (*TriageTransition, error) {
	var (
		t               TriageTransition
		wait, dept, key *string
		byID            *uuid.UUID
		byName, byRole  *string
		toPriority      int
	)
	err := row.Scan(&t.ID, &t.PatientID, &t.FromPriority, &toPriority, &t.Reasoning, &t.Recommendations,
		&t.Confidence, &wait, &dept, &t.IsApplied, &t.AppliedAt,
		&byID, &byName, &byRole, &t.Source, &t.IsOverride, &key, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.setPriority(toPriority)
	t.EstimatedWaitTime = deref(wait)
	t.SuggestedDepartment = deref(dept)
	t.IdempotencyKey = deref(key)
	if byID != nil {
		t.AppliedBy = &auth.Actor{ID: *byID, Name: deref(byName), Role: deref(byRole)}
	}
	if t.Recommendations == nil {
		t.Recommendations = []string{}
	}
	return &t, nil
}

func (r *transitionRepoPG) Create(ctx context.Context, t *TriageTransition) error {
	t.ID = uuid.New()
	if t.Recommendations == nil {
		t.Recommendations = []string{}
	}
	var (
		byID           *uuid.UUID
		byName, byRole *string
	)
	if t.AppliedBy != nil {
		byID, byName, byRole = &t.AppliedBy.ID, nullable(t.AppliedBy.Name), nullable(t.AppliedBy.Role)
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO triage_transitions (id, patient_id, from_priority, to_priority, reasoning,
			recommendations, confidence, estimated_wait_time, suggested_department,
			is_applied, applied_at, applied_by_id, applied_by_name, applied_by_role,
			source, is_override, idempotency_key)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING created_at`,
		t.ID, t.PatientID, t.FromPriority, t.ToPriority, t.Reasoning,
		t.Recommendations, t.Confidence, nullable(t.EstimatedWaitTime), nullable(t.SuggestedDepartment),
		t.IsApplied, t.AppliedAt, byID, byName, byRole,
		t.Source, t.IsOverride, nullable(t.IdempotencyKey)).Scan(&t.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return &ConflictError{Reason: "idempotency key already used"}
	}
	return err
}

func (r *transitionRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*TriageTransition, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+transitionCols+` FROM triage_transitions
		WHERE patient_id = $1 ORDER BY created_at DESC, id DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*TriageTransition{}
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *transitionRepoPG) FindByIdempotencyKey(ctx context.Context, patientID, actorID uuid.UUID, key string) (*TriageTransition, error) {
	return scanTransition(r.conn(ctx).QueryRow(ctx, `SELECT `+transitionCols+` FROM triage_transitions
		WHERE patient_id = $1 AND applied_by_id = $2 AND idempotency_key = $3`, patientID, actorID, key))
}

// =========== Vitals Repository ===========

type vitalsRepoPG struct{ pool *pgxpool.Pool }

func NewVitalsRepoPG(pool *pgxpool.Pool) VitalsRepository { return &vitalsRepoPG{pool: pool} }

func (r *vitalsRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const vitalsCols = `id, patient_id, heart_rate, bp_systolic, bp_diastolic, spo2, temperature,
	respiratory_rate, source, image_key, recorded_by_id, recorded_by_name, recorded_by_role, recorded_at`

func scanVitals(row pgx.Row) (*VitalsRecord, error) {
	var (
		v              VitalsRecord
		sys, dia       *int
		byID           *uuid.UUID
		byName, byRole *string
	)
	err := row.Scan(&v.ID, &v.PatientID, &v.HeartRate, &sys, &dia, &v.SpO2, &v.Temperature,
		&v.RespiratoryRate, &v.Source, &v.ImageKey, &byID, &byName, &byRole, &v.RecordedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	v.BloodPressure = acuity.FormatBloodPressure(sys, dia)
	v.RecordedBy = auth.Actor{Name: deref(byName), Role: deref(byRole)}
	if byID != nil {
		v.RecordedBy.ID = *byID
	}
	return &v, nil
}

func (r *vitalsRepoPG) Create(ctx context.Context, v *VitalsRecord) error {
	v.ID = uuid.New()
	var sys, dia *int
	if v.BloodPressure != nil {
		s, d, err := acuity.ParseBloodPressure(*v.BloodPressure)
		if err != nil {
			return err
		}
		sys, dia = &s, &d
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_vitals (id, patient_id, heart_rate, bp_systolic, bp_diastolic, spo2,
			temperature, respiratory_rate, source, image_key,
			recorded_by_id, recorded_by_name, recorded_by_role)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING recorded_at`,
		v.ID, v.PatientID, v.HeartRate, sys, dia, v.SpO2,
		v.Temperature, v.RespiratoryRate, v.Source, v.ImageKey,
		v.RecordedBy.ID, nullable(v.RecordedBy.Name), nullable(v.RecordedBy.Role)).Scan(&v.RecordedAt)
}

func (r *vitalsRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*VitalsRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+vitalsCols+` FROM patient_vitals
		WHERE patient_id = $1 ORDER BY recorded_at DESC LIMIT $2`, patientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*VitalsRecord{}
	for rows.Next() {
		v, err := scanVitals(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

func (r *vitalsRepoPG) Latest(ctx context.Context, patientID uuid.UUID) (*VitalsRecord, error) {
	return scanVitals(r.conn(ctx).QueryRow(ctx, `SELECT `+vitalsCols+` FROM patient_vitals
		WHERE patient_id = $1 ORDER BY recorded_at DESC LIMIT 1`, patientID))
}

// =========== Note Repository ===========

type noteRepoPG struct{ pool *pgxpool.Pool }

func NewNoteRepoPG(pool *pgxpool.Pool) NoteRepository { return &noteRepoPG{pool: pool} }

func (r *noteRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const noteCols = `id, patient_id, note_type, content, is_confidential,
	created_by_id, created_by_name, created_by_role, created_at`

func scanNote(row pgx.Row) (*PatientNote, error) {
	var (
		n              PatientNote
		byID           *uuid.UUID
		byName, byRole *string
	)
	if err := row.Scan(&n.ID, &n.PatientID, &n.Type, &n.Content, &n.IsConfidential,
		&byID, &byName, &byRole, &n.CreatedAt); err != nil {
		return nil, err
	}
	n.CreatedBy = auth.Actor{Name: deref(byName), Role: deref(byRole)}
	if byID != nil {
		n.CreatedBy.ID = *byID
	}
	return &n, nil
}

func (r *noteRepoPG) Create(ctx context.Context, n *PatientNote) error {
	n.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_notes (id, patient_id, note_type, content, is_confidential,
			created_by_id, created_by_name, created_by_role)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		n.ID, n.PatientID, n.Type, n.Content, n.IsConfidential,
		n.CreatedBy.ID, nullable(n.CreatedBy.Name), nullable(n.CreatedBy.Role)).Scan(&n.CreatedAt)
}

func (r *noteRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, includeConfidential bool) ([]*PatientNote, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+noteCols+` FROM patient_notes
		WHERE patient_id = $1 AND ($2 OR NOT is_confidential)
		ORDER BY created_at DESC`, patientID, includeConfidential)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*PatientNote{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// =========== Bed Repository ===========

type bedRepoPG struct{ pool *pgxpool.Pool }

func NewBedRepoPG(pool *pgxpool.Pool) BedRepository { return &bedRepoPG{pool: pool} }

func (r *bedRepoPG) SetStatus(ctx context.Context, bedID uuid.UUID, status string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE beds SET status = $2, updated_at = NOW() WHERE id = $1`, bedID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// NewRepos wires every Postgres-backed store.
func NewRepos(pool *pgxpool.Pool) Repos {
	return Repos{
		Patients:    NewPatientRepoPG(pool),
		Transitions: NewTransitionRepoPG(pool),
		Vitals:      NewVitalsRepoPG(pool),
		Notes:       NewNoteRepoPG(pool),
		Beds:        NewBedRepoPG(pool),
	}
}
