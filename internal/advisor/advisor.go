// Package advisor produces triage priority recommendations. Advisors are
// read-only: they never change patient state, and their output is treated
// as untrusted advisory text by the caller.
package advisor

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/acuity"
)

// ErrUnavailable is returned when no recommendation could be produced: the
// advisor timed out, failed, or answered with something unusable.
var ErrUnavailable = errors.New("recommendation advisor unavailable")

const defaultDepartment = "Emergency"

// Request is everything an advisor may look at.
type Request struct {
	PatientID       uuid.UUID
	PatientName     string
	Complaint       string
	Age             *int
	Gender          string
	CurrentPriority *int
	Vitals          *acuity.Vitals
	Assessment      acuity.Assessment
	Notes           string
	Procedure       string
	ConditionChange string
	Treatments      []string

	// History is a newest-first summary of earlier transitions.
	History []string
}

// Recommendation is an advisor's answer.
type Recommendation struct {
	CurrentPriority     *int     `json:"currentPriority"`
	RecommendedPriority int      `json:"recommendedPriority"`
	PriorityLabel       string   `json:"priorityLabel"`
	PriorityColor       string   `json:"priorityColor"`
	Reasoning           string   `json:"reasoning"`
	Recommendations     []string `json:"recommendations"`
	Confidence          float64  `json:"confidence"`
	EstimatedWaitTime   string   `json:"estimatedWaitTime"`
	SuggestedDepartment string   `json:"suggestedDepartment"`
	ShouldShift         bool     `json:"shouldShift"`
}

type Advisor interface {
	Recommend(ctx context.Context, req Request) (*Recommendation, error)
}

// normalize forces rec onto the priority scale, fills the derived fields and
// computes ShouldShift against the patient's current priority.
func normalize(req Request, rec *Recommendation) *Recommendation {
	rec.RecommendedPriority = acuity.Clamp(rec.RecommendedPriority)
	level := acuity.MustLookup(rec.RecommendedPriority)
	rec.PriorityLabel = level.Label
	rec.PriorityColor = level.Color

	switch {
	case math.IsNaN(rec.Confidence), rec.Confidence < 0:
		rec.Confidence = 0
	case rec.Confidence > 1:
		rec.Confidence = 1
	}
	if strings.TrimSpace(rec.EstimatedWaitTime) == "" {
		rec.EstimatedWaitTime = level.EstimatedWait
	}
	if strings.TrimSpace(rec.SuggestedDepartment) == "" {
		rec.SuggestedDepartment = defaultDepartment
	}
	if rec.Recommendations == nil {
		rec.Recommendations = []string{}
	}

	rec.CurrentPriority = req.CurrentPriority
	rec.ShouldShift = req.CurrentPriority == nil || *req.CurrentPriority != rec.RecommendedPriority
	return rec
}
