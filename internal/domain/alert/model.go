package alert

import (
	"time"

	"github.com/google/uuid"
)

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
	PriorityInfo     Priority = "info"
)

type Status string

const (
	StatusUnread       Status = "unread"
	StatusRead         Status = "read"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// Categories used by the triage workflow.
const (
	CategoryTriage  = "Triage"
	CategoryVitals  = "Vitals"
	CategoryNotes   = "Notes"
	CategoryPatient = "Patient"
)

// Alert maps to the alerts table.
type Alert struct {
	ID             uuid.UUID         `json:"id"`
	Title          string            `json:"title"`
	Message        string            `json:"message"`
	Priority       Priority          `json:"priority"`
	Category       string            `json:"category"`
	Status         Status            `json:"status"`
	ForRoles       []string          `json:"forRoles"`
	PatientID      *uuid.UUID        `json:"patientId,omitempty"`
	TriggeredBy    string            `json:"triggeredBy,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	AcknowledgedAt *time.Time        `json:"acknowledgedAt,omitempty"`
	AcknowledgedBy *uuid.UUID        `json:"acknowledgedBy,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// Filter narrows List. Role limits results to alerts addressed to that role
// or to everyone; an empty Role returns all alerts.
type Filter struct {
	Status    Status
	Role      string
	PatientID *uuid.UUID
	Limit     int
	Offset    int
}

func validPriority(p Priority) bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow, PriorityInfo:
		return true
	}
	return false
}

func validStatus(s Status) bool {
	switch s {
	case StatusUnread, StatusRead, StatusAcknowledged, StatusResolved:
		return true
	}
	return false
}
