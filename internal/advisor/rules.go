package advisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/acuity"
)

type keywordTier struct {
	priority int
	keywords []string
	actions  []string
}

var keywordTiers = []keywordTier{
	{1, []string{"chest pain", "stroke", "unconscious", "cardiac", "not breathing"},
		[]string{"Immediate physician assessment", "Continuous cardiac monitoring", "Prepare resuscitation bay"}},
	{2, []string{"severe bleeding", "head injury", "difficulty breathing", "fracture"},
		[]string{"Physician review within 10 minutes", "Repeat vitals every 15 minutes"}},
	{3, []string{"fever", "vomiting", "abdominal pain"},
		[]string{"Repeat vitals every 30 minutes", "Consider labs and analgesia"}},
	{4, []string{"cold", "cough", "rash", "follow-up"},
		[]string{"Routine assessment", "Reassess if symptoms worsen"}},
}

const (
	rulesDefaultPriority = 3
	rulesConfidence      = 0.75
)

// RuleAdvisor is a deterministic keyword advisor used when no model is
// configured. It never fails.
type RuleAdvisor struct{}

func NewRuleAdvisor() *RuleAdvisor { return &RuleAdvisor{} }

func (a *RuleAdvisor) Recommend(ctx context.Context, req Request) (*Recommendation, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	text := strings.ToLower(strings.Join([]string{req.Complaint, req.Notes, req.ConditionChange, req.Procedure}, " "))

	priority := rulesDefaultPriority
	var reasons, actions []string
	matched := false
	for _, tier := range keywordTiers {
		for _, kw := range tier.keywords {
			if strings.Contains(text, kw) {
				priority = tier.priority
				reasons = append(reasons, fmt.Sprintf("presentation mentions %q", kw))
				actions = append(actions, tier.actions...)
				matched = true
				break
			}
		}
		if matched {
			break
		}
	}
	if !matched {
		reasons = append(reasons, "no high-risk keywords in presentation")
		actions = append(actions, "Standard ER assessment")
	}

	switch req.Assessment.Severity {
	case acuity.SeverityCritical:
		priority = acuity.MostCritical
		reasons = append(reasons, "critical vitals: "+strings.Join(req.Assessment.Findings, ", "))
		actions = append([]string{"Escalate to attending physician now"}, actions...)
	case acuity.SeverityWarning:
		if priority > 2 {
			priority = 2
		}
		reasons = append(reasons, "abnormal vitals: "+strings.Join(req.Assessment.Findings, ", "))
	}

	rec := &Recommendation{
		RecommendedPriority: priority,
		Reasoning:           "Rule-based triage: " + strings.Join(reasons, "; "),
		Recommendations:     actions,
		Confidence:          rulesConfidence,
		SuggestedDepartment: defaultDepartment,
	}
	return normalize(req, rec), nil
}
