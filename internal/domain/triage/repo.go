package triage

import (
	"context"

	"github.com/google/uuid"
)

type PatientRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	List(ctx context.Context, f Filter) ([]*Patient, error)
	// WithLock runs fn in a transaction holding the patient's row lock. fn
	// gets the locked row and must use the ctx it is given for every write.
	WithLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, p *Patient) error) error
	// UpdatePriority writes priority, label, color, reasoning, status and
	// version.
	UpdatePriority(ctx context.Context, p *Patient) error
	UpdateStatus(ctx context.Context, p *Patient) error
}

type TransitionRepository interface {
	// Create inserts t and fills ID and CreatedAt from the database clock.
	Create(ctx context.Context, t *TriageTransition) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*TriageTransition, error)
	FindByIdempotencyKey(ctx context.Context, patientID, actorID uuid.UUID, key string) (*TriageTransition, error)
}

type VitalsRepository interface {
	Create(ctx context.Context, v *VitalsRecord) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*VitalsRecord, error)
	Latest(ctx context.Context, patientID uuid.UUID) (*VitalsRecord, error)
}

type NoteRepository interface {
	Create(ctx context.Context, n *PatientNote) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, includeConfidential bool) ([]*PatientNote, error)
}

type BedRepository interface {
	SetStatus(ctx context.Context, bedID uuid.UUID, status string) error
}

// Repos bundles the stores the service needs.
type Repos struct {
	Patients    PatientRepository
	Transitions TransitionRepository
	Vitals      VitalsRepository
	Notes       NoteRepository
	Beds        BedRepository
}
