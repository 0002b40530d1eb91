package alert

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockRepo struct {
	mu     sync.Mutex
	alerts map[uuid.UUID]*Alert
}

func newMockRepo() *mockRepo {
	return &mockRepo{alerts: make(map[uuid.UUID]*Alert)}
}

func (m *mockRepo) Create(_ context.Context, a *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	m.alerts[a.ID] = a
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (m *mockRepo) List(_ context.Context, f Filter) ([]*Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Alert
	for _, a := range m.alerts {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Role != "" && len(a.ForRoles) > 0 && !contains(a.ForRoles, f.Role) {
			continue
		}
		if f.PatientID != nil && (a.PatientID == nil || *a.PatientID != *f.PatientID) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockRepo) Acknowledge(_ context.Context, id, by uuid.UUID, at time.Time) (*Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	a.Status = StatusAcknowledged
	if a.AcknowledgedAt == nil {
		a.AcknowledgedAt = &at
		a.AcknowledgedBy = &by
	}
	return a, nil
}

func (m *mockRepo) CountByStatus(_ context.Context) (map[Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[Status]int{}
	for _, a := range m.alerts {
		out[a.Status]++
	}
	return out, nil
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

type recordingRunner struct {
	mu    sync.Mutex
	names []string
	data  []map[string]string
}

func (r *recordingRunner) Trigger(_ context.Context, name string, payload any) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	if m, ok := payload.(map[string]string); ok {
		r.data = append(r.data, m)
	}
	return "job-" + name, nil
}

func TestRaise_Defaults(t *testing.T) {
	svc := NewService(newMockRepo(), zerolog.Nop())
	a := &Alert{Title: "Vitals Updated - Ravi"}
	if err := svc.Raise(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Priority != PriorityMedium || a.Status != StatusUnread || a.Category != CategoryPatient {
		t.Errorf("unexpected defaults %+v", a)
	}
	if a.ID == uuid.Nil {
		t.Error("expected id to be set")
	}
}

func TestRaise_Validation(t *testing.T) {
	svc := NewService(newMockRepo(), zerolog.Nop())
	if err := svc.Raise(context.Background(), &Alert{}); err == nil {
		t.Error("expected error for missing title")
	}
	if err := svc.Raise(context.Background(), &Alert{Title: "x", Priority: "urgent"}); err == nil {
		t.Error("expected error for invalid priority")
	}
}

func TestRaise_PagesCriticalAndHigh(t *testing.T) {
	runner := &recordingRunner{}
	svc := NewService(newMockRepo(), zerolog.Nop())
	svc.SetJobs(runner)

	_ = svc.Raise(context.Background(), &Alert{Title: "Critical Vitals - Asha", Priority: PriorityCritical, ForRoles: []string{"doctor", "nurse"}})
	_ = svc.Raise(context.Background(), &Alert{Title: "Vitals Updated - Asha", Priority: PriorityLow})

	if len(runner.names) != 1 || runner.names[0] != "alert-raised" {
		t.Fatalf("expected one alert-raised job, got %v", runner.names)
	}
	if runner.data[0]["recipientRole"] != "doctor" || runner.data[0]["priority"] != "critical" {
		t.Errorf("unexpected payload %v", runner.data[0])
	}
}

func TestList_FiltersByRole(t *testing.T) {
	svc := NewService(newMockRepo(), zerolog.Nop())
	ctx := context.Background()
	_ = svc.Raise(ctx, &Alert{Title: "For nurses", ForRoles: []string{"nurse"}})
	_ = svc.Raise(ctx, &Alert{Title: "For doctors", ForRoles: []string{"doctor"}})
	_ = svc.Raise(ctx, &Alert{Title: "For everyone"})

	items, err := svc.List(ctx, Filter{Role: "nurse"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 alerts for nurse, got %d", len(items))
	}

	if _, err := svc.List(ctx, Filter{Status: "bogus"}); err == nil {
		t.Error("expected error for invalid status")
	}
}

func TestList_EmptyIsNotNil(t *testing.T) {
	items, err := NewService(newMockRepo(), zerolog.Nop()).List(context.Background(), Filter{})
	if err != nil || items == nil {
		t.Errorf("expected empty non-nil slice, got %v %v", items, err)
	}
}

func TestAcknowledge_KeepsFirst(t *testing.T) {
	svc := NewService(newMockRepo(), zerolog.Nop())
	ctx := context.Background()
	a := &Alert{Title: "Triage Escalated - Asha"}
	_ = svc.Raise(ctx, a)

	first, second := uuid.New(), uuid.New()
	if _, err := svc.Acknowledge(ctx, a.ID, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := svc.Acknowledge(ctx, a.ID, second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusAcknowledged || *got.AcknowledgedBy != first {
		t.Errorf("expected first acknowledgement to stick, got %+v", got)
	}

	if _, err := svc.Acknowledge(ctx, uuid.New(), first); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
