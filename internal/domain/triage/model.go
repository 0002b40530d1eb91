package triage

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/advisor"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/acuity"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/auth"
)

type Status string

const (
	StatusPendingTriage Status = "pending_triage"
	StatusActive        Status = "active"
	StatusAdmitted      Status = "admitted"
	StatusDischarged    Status = "discharged"
	StatusTransferred   Status = "transferred_to_opd"
)

// Terminal reports whether the patient has left the ER. Terminal patients
// accept no further vitals, shifts or status changes.
func (s Status) Terminal() bool {
	return s == StatusDischarged || s == StatusTransferred
}

func validStatus(s Status) bool {
	switch s {
	case StatusPendingTriage, StatusActive, StatusAdmitted, StatusDischarged, StatusTransferred:
		return true
	}
	return false
}

// Patient maps to the patients table. Priority is nil until the first
// applied transition.
type Patient struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	Age               *int       `json:"age,omitempty"`
	Gender            *string    `json:"gender,omitempty"`
	Complaint         string     `json:"complaint"`
	Status            Status     `json:"status"`
	Priority          *int       `json:"priority"`
	PriorityLabel     *string    `json:"priorityLabel"`
	PriorityColor     *string    `json:"priorityColor"`
	PriorityReasoning *string    `json:"priorityReasoning"`
	BedID             *uuid.UUID `json:"bedId,omitempty"`
	BedNumber         *string    `json:"bedNumber,omitempty"`
	AssignedDoctorID  *uuid.UUID `json:"assignedDoctorId,omitempty"`
	AssignedNurseID   *uuid.UUID `json:"assignedNurseId,omitempty"`
	Version           int        `json:"version"`
	AdmittedAt        time.Time  `json:"admittedAt"`
	DischargedAt      *time.Time `json:"dischargedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func (p *Patient) clone() *Patient {
	cp := *p
	return &cp
}

type Source string

const (
	SourceAdvisory Source = "advisory"
	SourceManual   Source = "manual"
)

// TriageTransition is one entry of a patient's triage log. Entries are never
// updated once written.
type TriageTransition struct {
	ID                  uuid.UUID   `json:"id"`
	PatientID           uuid.UUID   `json:"patientId"`
	FromPriority        *int        `json:"fromPriority"`
	ToPriority          int         `json:"toPriority"`
	PriorityLabel       string      `json:"priorityLabel"`
	PriorityColor       string      `json:"priorityColor"`
	Reasoning           string      `json:"reasoning"`
	Recommendations     []string    `json:"recommendations"`
	Confidence          *float64    `json:"confidence,omitempty"`
	EstimatedWaitTime   string      `json:"estimatedWaitTime,omitempty"`
	SuggestedDepartment string      `json:"suggestedDepartment,omitempty"`
	IsApplied           bool        `json:"isApplied"`
	AppliedAt           *time.Time  `json:"appliedAt,omitempty"`
	AppliedBy           *auth.Actor `json:"appliedBy,omitempty"`
	Source              Source      `json:"source"`
	IsOverride          bool        `json:"isOverride"`
	IdempotencyKey      string      `json:"-"`
	CreatedAt           time.Time   `json:"createdAt"`
}

// setPriority fills ToPriority and the derived label and color.
func (t *TriageTransition) setPriority(p int) {
	level := acuity.MustLookup(p)
	t.ToPriority = level.Priority
	t.PriorityLabel = level.Label
	t.PriorityColor = level.Color
}

// SortNewestFirst orders a timeline by createdAt descending, breaking ties
// by id so the order is total.
func SortNewestFirst(items []*TriageTransition) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID.String() > items[j].ID.String()
	})
}

type VitalsSource string

const (
	VitalsManual VitalsSource = "manual"
	VitalsOCR    VitalsSource = "ocr"
)

// VitalsRecord is an immutable vitals snapshot.
type VitalsRecord struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patientId"`
	acuity.Vitals
	Source     VitalsSource `json:"source"`
	ImageKey   *string      `json:"imageKey,omitempty"`
	RecordedAt time.Time    `json:"recordedAt"`
	RecordedBy auth.Actor   `json:"recordedBy"`
}

type NoteType string

const (
	NoteNurse   NoteType = "nurse"
	NoteDoctor  NoteType = "doctor"
	NoteGeneral NoteType = "general"
)

type PatientNote struct {
	ID             uuid.UUID  `json:"id"`
	PatientID      uuid.UUID  `json:"patientId"`
	Type           NoteType   `json:"type"`
	Content        string     `json:"content"`
	IsConfidential bool       `json:"isConfidential"`
	CreatedAt      time.Time  `json:"createdAt"`
	CreatedBy      auth.Actor `json:"createdBy"`
}

// Bed statuses written by the triage workflow.
const (
	BedAvailable = "available"
	BedOccupied  = "occupied"
	BedCleaning  = "cleaning"
)

// VitalsInput is the body of POST /patients/:id/vitals. Image is an optional
// base64 monitor photo for OCR captures. AutoApply overrides the server
// default for this request.
type VitalsInput struct {
	acuity.Vitals
	Source    VitalsSource `json:"source,omitempty"`
	Image     string       `json:"image,omitempty"`
	AutoApply *bool        `json:"autoApply,omitempty"`
}

// ShiftInput is the body of POST /patients/:id/shift-triage. The
// idempotency key comes from the Idempotency-Key header.
type ShiftInput struct {
	Priority        int    `json:"priority"`
	Reasoning       string `json:"reasoning"`
	IsOverride      bool   `json:"isOverride"`
	ExpectedVersion *int   `json:"expectedVersion,omitempty"`
	IdempotencyKey  string `json:"-"`
}

// RecommendContext is free text the caller adds to a recommendation request.
type RecommendContext struct {
	Notes           string `json:"notes"`
	Procedure       string `json:"procedure"`
	ConditionChange string `json:"conditionChange"`
}

type NoteInput struct {
	Type           NoteType `json:"type"`
	Content        string   `json:"content"`
	IsConfidential bool     `json:"isConfidential"`
}

type Filter struct {
	Status   Status
	Priority *int
	Limit    int
	Offset   int
}

// VitalsResult is returned by ApplyVitals. Transition and Triage are nil when
// the advisor was unavailable or recommended no change.
type VitalsResult struct {
	Vitals     *VitalsRecord           `json:"vitals"`
	Assessment acuity.Assessment       `json:"assessment"`
	Triage     *advisor.Recommendation `json:"triage"`
	Transition *TriageTransition       `json:"transition"`
	Patient    *Patient                `json:"patient"`
}

type ShiftResult struct {
	Patient       *Patient          `json:"patient"`
	Transition    *TriageTransition `json:"transition"`
	FromPriority  *int              `json:"fromPriority"`
	ToPriority    int               `json:"toPriority"`
	PriorityLabel string            `json:"priorityLabel"`
	ShiftedBy     auth.Actor        `json:"shiftedBy"`
	Message       string            `json:"message"`
	Replayed      bool              `json:"replayed,omitempty"`
}
