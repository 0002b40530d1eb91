package triage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/advisor"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/alert"
)

// -- Mock Repositories --

// clock hands out strictly increasing timestamps, standing in for
// clock_timestamp().
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

type mockPatientRepo struct {
	mu       sync.Mutex
	patients map[uuid.UUID]*Patient
	locks    map[uuid.UUID]*sync.Mutex
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[uuid.UUID]*Patient), locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (m *mockPatientRepo) put(p *Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = p.clone()
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.clone(), nil
}

func (m *mockPatientRepo) List(_ context.Context, f Filter) ([]*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Patient
	for _, p := range m.patients {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.Status == "" && p.Status.Terminal() {
			continue
		}
		if f.Priority != nil && (p.Priority == nil || *p.Priority != *f.Priority) {
			continue
		}
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority == nil || out[j].Priority == nil {
			return out[i].Priority == nil && out[j].Priority != nil
		}
		return *out[i].Priority < *out[j].Priority
	})
	return out, nil
}

func (m *mockPatientRepo) lockFor(id uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *mockPatientRepo) WithLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, p *Patient) error) error {
	l := m.lockFor(id)
	l.Lock()
	defer l.Unlock()
	p, err := m.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return fn(ctx, p)
}

func (m *mockPatientRepo) UpdatePriority(_ context.Context, p *Patient) error {
	p.UpdatedAt = time.Now()
	m.put(p)
	return nil
}

func (m *mockPatientRepo) UpdateStatus(_ context.Context, p *Patient) error {
	p.UpdatedAt = time.Now()
	m.put(p)
	return nil
}

type mockTransitionRepo struct {
	mu         sync.Mutex
	items      []*TriageTransition
	clock      *clock
	failCreate error
}

func (m *mockTransitionRepo) Create(_ context.Context, t *TriageTransition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return m.failCreate
	}
	if t.IdempotencyKey != "" && t.AppliedBy != nil {
		for _, e := range m.items {
			if e.PatientID == t.PatientID && e.IdempotencyKey == t.IdempotencyKey && e.AppliedBy != nil && e.AppliedBy.ID == t.AppliedBy.ID {
				return &ConflictError{Reason: "idempotency key already used"}
			}
		}
	}
	t.ID = uuid.New()
	t.CreatedAt = m.clock.next()
	m.items = append(m.items, t)
	return nil
}

func (m *mockTransitionRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*TriageTransition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*TriageTransition{}
	for _, t := range m.items {
		if t.PatientID == patientID {
			out = append(out, t)
		}
	}
	SortNewestFirst(out)
	return out, nil
}

func (m *mockTransitionRepo) FindByIdempotencyKey(_ context.Context, patientID, actorID uuid.UUID, key string) (*TriageTransition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.items {
		if t.PatientID == patientID && t.IdempotencyKey == key && t.AppliedBy != nil && t.AppliedBy.ID == actorID {
			return t, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockTransitionRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

type mockVitalsRepo struct {
	mu    sync.Mutex
	items []*VitalsRecord
	clock *clock
}

func (m *mockVitalsRepo) Create(_ context.Context, v *VitalsRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v.ID = uuid.New()
	v.RecordedAt = m.clock.next()
	m.items = append(m.items, v)
	return nil
}

func (m *mockVitalsRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit int) ([]*VitalsRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*VitalsRecord{}
	for i := len(m.items) - 1; i >= 0 && len(out) < limit; i-- {
		if m.items[i].PatientID == patientID {
			out = append(out, m.items[i])
		}
	}
	return out, nil
}

func (m *mockVitalsRepo) Latest(ctx context.Context, patientID uuid.UUID) (*VitalsRecord, error) {
	items, _ := m.ListByPatient(ctx, patientID, 1)
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return items[0], nil
}

type mockNoteRepo struct {
	mu    sync.Mutex
	items []*PatientNote
	clock *clock
}

func (m *mockNoteRepo) Create(_ context.Context, n *PatientNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = uuid.New()
	n.CreatedAt = m.clock.next()
	m.items = append(m.items, n)
	return nil
}

func (m *mockNoteRepo) ListByPatient(_ context.Context, patientID uuid.UUID, includeConfidential bool) ([]*PatientNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*PatientNote{}
	for i := len(m.items) - 1; i >= 0; i-- {
		n := m.items[i]
		if n.PatientID == patientID && (includeConfidential || !n.IsConfidential) {
			out = append(out, n)
		}
	}
	return out, nil
}

type mockBedRepo struct {
	mu     sync.Mutex
	status map[uuid.UUID]string
}

func (m *mockBedRepo) SetStatus(_ context.Context, bedID uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.status[bedID]; !ok {
		return ErrNotFound
	}
	m.status[bedID] = status
	return nil
}

// -- Collaborators --

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []*alert.Alert
}

func (r *recordingAlerter) Raise(_ context.Context, a *alert.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.ID = uuid.New()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recordingAlerter) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.alerts))
	for i, a := range r.alerts {
		out[i] = a.Title
	}
	return out
}

func (r *recordingAlerter) last() *alert.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.alerts) == 0 {
		return nil
	}
	return r.alerts[len(r.alerts)-1]
}

type triggeredJob struct {
	name    string
	payload map[string]string
}

type recordingRunner struct {
	mu   sync.Mutex
	jobs []triggeredJob
}

func (r *recordingRunner) Trigger(_ context.Context, name string, payload any) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, _ := payload.(map[string]string)
	r.jobs = append(r.jobs, triggeredJob{name: name, payload: m})
	return "job-" + name, nil
}

func (r *recordingRunner) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.jobs))
	for i, j := range r.jobs {
		out[i] = j.name
	}
	return out
}

// advisorFunc adapts a function to advisor.Advisor.
type advisorFunc func(ctx context.Context, req advisor.Request) (*advisor.Recommendation, error)

func (f advisorFunc) Recommend(ctx context.Context, req advisor.Request) (*advisor.Recommendation, error) {
	return f(ctx, req)
}

// recommending always recommends priority p.
func recommending(p int) advisorFunc {
	return func(_ context.Context, req advisor.Request) (*advisor.Recommendation, error) {
		return &advisor.Recommendation{
			CurrentPriority:     req.CurrentPriority,
			RecommendedPriority: p,
			Reasoning:           "vitals trend",
			Recommendations:     []string{"repeat vitals in 15 minutes"},
			Confidence:          0.8,
			ShouldShift:         req.CurrentPriority == nil || *req.CurrentPriority != p,
		}, nil
	}
}
