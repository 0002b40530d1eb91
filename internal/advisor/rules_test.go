package advisor

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/acuity"
)

func intp(v int) *int { return &v }

func TestRuleAdvisor_Keywords(t *testing.T) {
	tests := []struct {
		complaint string
		want      int
	}{
		{"Crushing chest pain radiating to left arm", 1},
		{"Suspected STROKE, facial droop", 1},
		{"Found unconscious at home", 1},
		{"Head injury after fall", 2},
		{"Difficulty breathing since morning", 2},
		{"Possible wrist fracture", 2},
		{"High fever and chills", 3},
		{"Persistent vomiting", 3},
		{"Dry cough for a week", 4},
		{"Follow-up wound check", 4},
		{"Twisted ankle", 3},
	}

	a := NewRuleAdvisor()
	for _, tt := range tests {
		t.Run(tt.complaint, func(t *testing.T) {
			rec, err := a.Recommend(context.Background(), Request{Complaint: tt.complaint})
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.RecommendedPriority)
			assert.Equal(t, 0.75, rec.Confidence)
			assert.Equal(t, "Emergency", rec.SuggestedDepartment)
			assert.True(t, rec.ShouldShift, "untriaged patient always shifts")
		})
	}
}

func TestRuleAdvisor_CriticalVitalsForceL1(t *testing.T) {
	rec, err := NewRuleAdvisor().Recommend(context.Background(), Request{
		Complaint:       "cough",
		CurrentPriority: intp(4),
		Assessment:      acuity.Assessment{Severity: acuity.SeverityCritical, Findings: []string{"SpO2 84%"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.RecommendedPriority)
	assert.Equal(t, "L1 - Critical", rec.PriorityLabel)
	assert.Equal(t, "red", rec.PriorityColor)
	assert.Contains(t, rec.Reasoning, "SpO2 84%")
	assert.True(t, rec.ShouldShift)
}

func TestRuleAdvisor_WarningVitalsCapAtL2(t *testing.T) {
	warn := acuity.Assessment{Severity: acuity.SeverityWarning, Findings: []string{"heart rate 110 bpm"}}

	rec, err := NewRuleAdvisor().Recommend(context.Background(), Request{Complaint: "rash", Assessment: warn})
	require.NoError(t, err)
	assert.Equal(t, 2, rec.RecommendedPriority)

	// already more urgent than the cap
	rec, err = NewRuleAdvisor().Recommend(context.Background(), Request{Complaint: "chest pain", Assessment: warn})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.RecommendedPriority)
}

func TestRuleAdvisor_NoShiftWhenUnchanged(t *testing.T) {
	rec, err := NewRuleAdvisor().Recommend(context.Background(), Request{Complaint: "fever", CurrentPriority: intp(3)})
	require.NoError(t, err)
	assert.False(t, rec.ShouldShift)
	require.NotNil(t, rec.CurrentPriority)
	assert.Equal(t, 3, *rec.CurrentPriority)
	assert.Equal(t, "30-60 minutes", rec.EstimatedWaitTime)
}

func TestRuleAdvisor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRuleAdvisor().Recommend(ctx, Request{Complaint: "fever"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNormalize_Clamps(t *testing.T) {
	rec := normalize(Request{CurrentPriority: intp(1)}, &Recommendation{RecommendedPriority: 9, Confidence: 1.7})
	assert.Equal(t, 5, rec.RecommendedPriority)
	assert.Equal(t, 1.0, rec.Confidence)
	assert.Equal(t, "L5 - Stable", rec.PriorityLabel)
	assert.NotNil(t, rec.Recommendations)

	rec = normalize(Request{}, &Recommendation{RecommendedPriority: -2, Confidence: -0.5})
	assert.Equal(t, 1, rec.RecommendedPriority)
	assert.Equal(t, 0.0, rec.Confidence)
}

func TestNormalize_NaNConfidence(t *testing.T) {
	rec := normalize(Request{CurrentPriority: intp(4)}, &Recommendation{RecommendedPriority: 4, Confidence: math.NaN()})
	assert.Equal(t, 0.0, rec.Confidence)
	assert.False(t, rec.ShouldShift)
}
