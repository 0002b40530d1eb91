package triage

import (
	"context"
	"fmt"
	"strings"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/acuity"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/alert"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/auth"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/jobs"
)

var clinicalRoles = []string{auth.RoleDoctor, auth.RoleNurse}

func shiftDirection(from *int, to int) string {
	switch {
	case from == nil || to < *from:
		return "Escalated"
	case to > *from:
		return "De-escalated"
	default:
		return "Reconfirmed"
	}
}

func shiftAlertPriority(to int) alert.Priority {
	if to <= 2 {
		return alert.PriorityHigh
	}
	return alert.PriorityMedium
}

func actorName(a auth.Actor) string {
	if a.Name != "" {
		return a.Name
	}
	if a.Role != "" {
		return a.Role
	}
	return "unknown staff"
}

func (s *Service) announceShift(ctx context.Context, r *ShiftResult) {
	p, t := r.Patient, r.Transition
	direction := shiftDirection(t.FromPriority, t.ToPriority)
	message := fmt.Sprintf("%s moved from %s to %s by %s. Reason: %s",
		p.Name, acuity.Short(t.FromPriority), t.PriorityLabel, actorName(r.ShiftedBy), t.Reasoning)
	s.raise(ctx, &alert.Alert{
		Title:       fmt.Sprintf("Triage %s - %s", direction, p.Name),
		Message:     message,
		Priority:    shiftAlertPriority(t.ToPriority),
		Category:    alert.CategoryTriage,
		ForRoles:    clinicalRoles,
		PatientID:   &p.ID,
		TriggeredBy: "triage_shift",
		Metadata:    map[string]string{"transitionId": t.ID.String(), "source": string(t.Source)},
	})
	s.trigger(ctx, jobs.JobTriageShift, map[string]string{
		"patientId":    p.ID.String(),
		"patientName":  p.Name,
		"direction":    direction,
		"fromPriority": acuity.Short(t.FromPriority),
		"toPriority":   fmt.Sprintf("L%d", t.ToPriority),
		"toLabel":      t.PriorityLabel,
		"shiftedBy":    actorName(r.ShiftedBy),
		"reasoning":    t.Reasoning,
	})
}

// announceVitals raises the alerts for a vitals entry: critical readings
// page the team, an applied re-triage is reported, and anything else gets a
// low-priority update.
func (s *Service) announceVitals(ctx context.Context, r *VitalsResult, actor auth.Actor) {
	p := r.Patient
	critical := r.Assessment.Critical()

	if critical {
		findings := strings.Join(r.Assessment.Findings, ", ")
		s.raise(ctx, &alert.Alert{
			Title:       "Critical Vitals - " + p.Name,
			Message:     fmt.Sprintf("Critical vitals recorded for %s: %s", p.Name, findings),
			Priority:    alert.PriorityCritical,
			Category:    alert.CategoryVitals,
			ForRoles:    clinicalRoles,
			PatientID:   &p.ID,
			TriggeredBy: "vitals_critical",
			Metadata:    map[string]string{"vitalsId": r.Vitals.ID.String()},
		})
		s.trigger(ctx, jobs.JobCriticalVitals, map[string]string{
			"patientId":   p.ID.String(),
			"patientName": p.Name,
			"findings":    findings,
			"recordedBy":  actorName(actor),
			"priority":    acuity.Short(p.Priority),
		})
	}

	if t := r.Transition; t != nil && t.IsApplied {
		message := fmt.Sprintf("Vitals re-triage moved %s from %s to %s. %s",
			p.Name, acuity.Short(t.FromPriority), t.PriorityLabel, t.Reasoning)
		s.raise(ctx, &alert.Alert{
			Title:       "Triage Changed - " + p.Name,
			Message:     message,
			Priority:    shiftAlertPriority(t.ToPriority),
			Category:    alert.CategoryTriage,
			ForRoles:    clinicalRoles,
			PatientID:   &p.ID,
			TriggeredBy: "vitals_retriage",
			Metadata:    map[string]string{"transitionId": t.ID.String(), "source": string(t.Source)},
		})
		return
	}

	if !critical {
		s.raise(ctx, &alert.Alert{
			Title:       "Vitals Updated - " + p.Name,
			Message:     fmt.Sprintf("%s recorded %s for %s.", actorName(actor), r.Vitals.Summary(), p.Name),
			Priority:    alert.PriorityLow,
			Category:    alert.CategoryVitals,
			ForRoles:    clinicalRoles,
			PatientID:   &p.ID,
			TriggeredBy: "vitals_update",
		})
	}
}

// announceNote tells the other discipline about a new note. General notes
// raise nothing.
func (s *Service) announceNote(ctx context.Context, p *Patient, n *PatientNote) {
	var audience, title string
	switch n.Type {
	case NoteDoctor:
		audience, title = auth.RoleNurse, "New Doctor Note - "
	case NoteNurse:
		audience, title = auth.RoleDoctor, "New Nurse Note - "
	default:
		return
	}
	message := n.Content
	if n.IsConfidential {
		message = "A confidential note was added."
	}
	s.raise(ctx, &alert.Alert{
		Title:       title + p.Name,
		Message:     message,
		Priority:    alert.PriorityMedium,
		Category:    alert.CategoryNotes,
		ForRoles:    []string{audience},
		PatientID:   &p.ID,
		TriggeredBy: "note_added",
		Metadata:    map[string]string{"noteId": n.ID.String()},
	})
}

// raise stores an alert. Failures are logged; the triage change that caused
// the alert has already been committed.
func (s *Service) raise(ctx context.Context, a *alert.Alert) {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.Raise(ctx, a); err != nil {
		s.logger.Warn().Err(err).Str("title", a.Title).Msg("failed to raise alert")
	}
}

func (s *Service) trigger(ctx context.Context, name string, payload map[string]string) {
	if s.jobs == nil {
		return
	}
	id, err := s.jobs.Trigger(ctx, name, payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("job", name).Msg("failed to trigger job")
		return
	}
	s.logger.Debug().Str("job", name).Str("job_id", id).Msg("job triggered")
}
