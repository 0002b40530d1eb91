package triage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/advisor"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/acuity"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/alert"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/auth"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/blobstore"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/jobs"
)

const (
	defaultAdvisorTimeout = 8 * time.Second
	defaultListLimit      = 50
	advisorHistory        = 5
	maxIdempotencyKey     = 100
)

// Alerter is the part of the alert service the triage workflow raises
// alerts through.
type Alerter interface {
	Raise(ctx context.Context, a *alert.Alert) error
}

type Service struct {
	repos          Repos
	advisor        advisor.Advisor
	alerts         Alerter
	jobs           jobs.Runner
	images         blobstore.Store
	metrics        *Metrics
	logger         zerolog.Logger
	bounds         VitalsBounds
	autoApply      bool
	advisorTimeout time.Duration
	now            func() time.Time
}

func NewService(repos Repos, adv advisor.Advisor, logger zerolog.Logger) *Service {
	return &Service{
		repos:          repos,
		advisor:        adv,
		logger:         logger.With().Str("component", "triage").Logger(),
		bounds:         DefaultBounds(),
		autoApply:      true,
		advisorTimeout: defaultAdvisorTimeout,
		now:            time.Now,
	}
}

// SetAlerter attaches the alert service. Without one no alerts are raised.
func (s *Service) SetAlerter(a Alerter) { s.alerts = a }

// SetJobs attaches the notification job runner.
func (s *Service) SetJobs(r jobs.Runner) { s.jobs = r }

// SetImageStore enables OCR monitor image uploads.
func (s *Service) SetImageStore(store blobstore.Store) { s.images = store }

func (s *Service) SetMetrics(m *Metrics) { s.metrics = m }

// SetAutoApply sets the default for applying vitals-driven recommendations.
func (s *Service) SetAutoApply(v bool) { s.autoApply = v }

func (s *Service) SetBounds(b VitalsBounds) { s.bounds = b }

func (s *Service) SetAdvisorTimeout(d time.Duration) {
	if d > 0 {
		s.advisorTimeout = d
	}
}

// -- Patients --

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repos.Patients.GetByID(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, f Filter) ([]*Patient, error) {
	if f.Status != "" && !validStatus(f.Status) {
		return nil, invalid("status", "unknown status %q", f.Status)
	}
	if f.Priority != nil && !acuity.Valid(*f.Priority) {
		return nil, invalid("priority", "must be between %d and %d", acuity.MostCritical, acuity.LeastCritical)
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	items, err := s.repos.Patients.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Patient{}
	}
	return items, nil
}

// Timeline returns the patient's transition log, newest first.
func (s *Service) Timeline(ctx context.Context, patientID uuid.UUID) ([]*TriageTransition, error) {
	if _, err := s.repos.Patients.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	items, err := s.repos.Transitions.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*TriageTransition{}
	}
	SortNewestFirst(items)
	return items, nil
}

func (s *Service) VitalsHistory(ctx context.Context, patientID uuid.UUID, limit int) ([]*VitalsRecord, error) {
	if _, err := s.repos.Patients.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	items, err := s.repos.Vitals.ListByPatient(ctx, patientID, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*VitalsRecord{}
	}
	return items, nil
}

// -- Vitals --

// ApplyVitals records a vitals snapshot and asks the advisor whether the
// patient's priority should change. An unavailable advisor does not fail
// the call: the vitals stay recorded and Triage is nil.
func (s *Service) ApplyVitals(ctx context.Context, patientID uuid.UUID, in VitalsInput, actor auth.Actor) (*VitalsResult, error) {
	if err := s.bounds.Validate(in.Vitals); err != nil {
		return nil, err
	}
	if in.Source == "" {
		in.Source = VitalsManual
	}
	if in.Source != VitalsManual && in.Source != VitalsOCR {
		return nil, invalid("source", "must be %q or %q", VitalsManual, VitalsOCR)
	}
	var image []byte
	if in.Image != "" {
		if s.images == nil {
			return nil, invalid("image", "monitor image uploads are not enabled")
		}
		var err error
		if image, err = decodeImage(in.Image); err != nil {
			return nil, err
		}
	}

	patient, err := s.repos.Patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if patient.Status.Terminal() {
		return nil, terminal(patient)
	}

	rec := &VitalsRecord{PatientID: patientID, Vitals: in.Vitals, Source: in.Source, RecordedBy: actor}
	if image != nil {
		meta, err := s.images.Put(ctx, blobstore.Metadata{PatientID: patientID.String(), CreatedBy: actor.ID.String()}, image)
		switch {
		case errors.Is(err, blobstore.ErrFileTooLarge), errors.Is(err, blobstore.ErrInvalidContentType), errors.Is(err, blobstore.ErrEmptyContent):
			return nil, invalid("image", "%s", err.Error())
		case err != nil:
			return nil, fmt.Errorf("store monitor image: %w", err)
		}
		rec.ImageKey = &meta.Key
	}
	if err := s.repos.Vitals.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("record vitals: %w", err)
	}

	result := &VitalsResult{Vitals: rec, Assessment: acuity.Classify(in.Vitals), Patient: patient}
	if result.Assessment.Critical() {
		s.metrics.critical()
	}

	recommendation, err := s.recommend(ctx, patient, &rec.Vitals, result.Assessment, RecommendContext{})
	if err != nil {
		s.metrics.skipped()
		s.logger.Warn().Err(err).Str("patient_id", patientID.String()).Msg("advisor unavailable, vitals recorded without triage")
		s.announceVitals(ctx, result, actor)
		return result, nil
	}
	result.Triage = recommendation

	if recommendation.ShouldShift {
		apply := s.autoApply
		if in.AutoApply != nil {
			apply = *in.AutoApply
		}
		t := advisoryTransition(patientID, recommendation)
		var err error
		if apply {
			var updated *Patient
			var created bool
			updated, created, err = s.applyAdvisory(ctx, t, actor)
			if err == nil {
				result.Patient = updated
				if created {
					result.Transition = t
				}
			}
		} else {
			t.FromPriority = patient.Priority
			if err = s.repos.Transitions.Create(ctx, t); err == nil {
				result.Transition = t
			}
		}
		// Vitals are already stored, so a failed advisory write degrades
		// to "no triage" instead of failing the call.
		if err != nil {
			s.metrics.skipped()
			s.logger.Warn().Err(err).Str("patient_id", patientID.String()).Msg("advisory transition not recorded, vitals kept")
		} else {
			s.metrics.transition(result.Transition)
		}
	}

	s.announceVitals(ctx, result, actor)
	return result, nil
}

func advisoryTransition(patientID uuid.UUID, rec *advisor.Recommendation) *TriageTransition {
	confidence := rec.Confidence
	t := &TriageTransition{
		PatientID:           patientID,
		Reasoning:           rec.Reasoning,
		Recommendations:     rec.Recommendations,
		Confidence:          &confidence,
		EstimatedWaitTime:   rec.EstimatedWaitTime,
		SuggestedDepartment: rec.SuggestedDepartment,
		Source:              SourceAdvisory,
	}
	t.setPriority(rec.RecommendedPriority)
	return t
}

// applyAdvisory applies t under the patient lock. created is false when the
// locked row already carries the recommended priority, which happens when a
// manual shift landed while the advisor was thinking.
func (s *Service) applyAdvisory(ctx context.Context, t *TriageTransition, actor auth.Actor) (patient *Patient, created bool, err error) {
	err = s.repos.Patients.WithLock(ctx, t.PatientID, func(ctx context.Context, p *Patient) error {
		patient = p
		if p.Status.Terminal() {
			return terminal(p)
		}
		if p.Priority != nil && *p.Priority == t.ToPriority {
			return nil
		}
		t.FromPriority = p.Priority
		if err := s.record(ctx, p, t, actor); err != nil {
			return err
		}
		created = true
		return nil
	})
	return patient, created, err
}

// record writes an applied transition and moves the locked patient onto it.
// The caller holds the patient lock.
func (s *Service) record(ctx context.Context, p *Patient, t *TriageTransition, actor auth.Actor) error {
	at := s.now()
	t.IsApplied = true
	t.AppliedAt = &at
	t.AppliedBy = &actor
	if err := s.repos.Transitions.Create(ctx, t); err != nil {
		return fmt.Errorf("record transition: %w", err)
	}

	priority, label, color, reasoning := t.ToPriority, t.PriorityLabel, t.PriorityColor, t.Reasoning
	p.Priority = &priority
	p.PriorityLabel = &label
	p.PriorityColor = &color
	p.PriorityReasoning = &reasoning
	if p.Status == StatusPendingTriage {
		p.Status = StatusActive
	}
	p.Version++
	if err := s.repos.Patients.UpdatePriority(ctx, p); err != nil {
		return fmt.Errorf("update patient priority: %w", err)
	}
	return nil
}

// -- Manual shifts --

// ShiftTriage records a manual transition and applies it. Every call that
// is not an idempotent replay creates exactly one new log entry, even when
// the priority does not change.
func (s *Service) ShiftTriage(ctx context.Context, patientID uuid.UUID, in ShiftInput, actor auth.Actor) (*ShiftResult, error) {
	if !acuity.Valid(in.Priority) {
		return nil, invalid("priority", "must be between %d and %d", acuity.MostCritical, acuity.LeastCritical)
	}
	if len(in.IdempotencyKey) > maxIdempotencyKey {
		return nil, invalid("idempotencyKey", "must be at most %d characters", maxIdempotencyKey)
	}
	in.Reasoning = strings.TrimSpace(in.Reasoning)

	var result *ShiftResult
	err := s.repos.Patients.WithLock(ctx, patientID, func(ctx context.Context, p *Patient) error {
		if p.Status.Terminal() {
			return terminal(p)
		}

		if in.IdempotencyKey != "" {
			prior, err := s.repos.Transitions.FindByIdempotencyKey(ctx, patientID, actor.ID, in.IdempotencyKey)
			switch {
			case err == nil:
				if prior.ToPriority != in.Priority || (in.Reasoning != "" && prior.Reasoning != in.Reasoning) {
					return &ConflictError{Reason: "idempotency key was used for a different shift"}
				}
				result = shiftResult(p, prior, actor)
				result.Replayed = true
				return nil
			case !errors.Is(err, ErrNotFound):
				return fmt.Errorf("look up idempotency key: %w", err)
			}
		}

		if in.ExpectedVersion != nil && *in.ExpectedVersion != p.Version {
			return &ConflictError{Reason: fmt.Sprintf("patient version is %d, expected %d", p.Version, *in.ExpectedVersion)}
		}

		reasoning := in.Reasoning
		if reasoning == "" {
			reasoning = fmt.Sprintf("Manual triage shift from %s to L%d", acuity.Short(p.Priority), in.Priority)
		}
		t := &TriageTransition{
			PatientID:       patientID,
			FromPriority:    p.Priority,
			Reasoning:       reasoning,
			Recommendations: []string{},
			Source:          SourceManual,
			IsOverride:      in.IsOverride,
			IdempotencyKey:  in.IdempotencyKey,
		}
		t.setPriority(in.Priority)
		if err := s.record(ctx, p, t, actor); err != nil {
			return err
		}
		result = shiftResult(p, t, actor)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		s.metrics.transition(result.Transition)
		s.announceShift(ctx, result)
	}
	return result, nil
}

func shiftResult(p *Patient, t *TriageTransition, actor auth.Actor) *ShiftResult {
	return &ShiftResult{
		Patient:       p,
		Transition:    t,
		FromPriority:  t.FromPriority,
		ToPriority:    t.ToPriority,
		PriorityLabel: t.PriorityLabel,
		ShiftedBy:     actor,
		Message:       fmt.Sprintf("Triage shifted from %s to L%d", acuity.Short(t.FromPriority), t.ToPriority),
	}
}

// RecommendTriageShift asks the advisor for a recommendation without
// writing anything.
func (s *Service) RecommendTriageShift(ctx context.Context, patientID uuid.UUID, rc RecommendContext) (*advisor.Recommendation, error) {
	p, err := s.repos.Patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}

	var (
		vitals     *acuity.Vitals
		assessment acuity.Assessment
	)
	latest, err := s.repos.Vitals.Latest(ctx, patientID)
	switch {
	case err == nil:
		vitals = &latest.Vitals
		assessment = acuity.Classify(latest.Vitals)
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("load latest vitals: %w", err)
	}
	return s.recommend(ctx, p, vitals, assessment, rc)
}

// recommend calls the advisor bounded by advisorTimeout. Every failure is
// reported as ErrAdvisorUnavailable.
func (s *Service) recommend(ctx context.Context, p *Patient, vitals *acuity.Vitals, assessment acuity.Assessment, rc RecommendContext) (*advisor.Recommendation, error) {
	if s.advisor == nil {
		return nil, ErrAdvisorUnavailable
	}
	req := advisor.Request{
		PatientID:       p.ID,
		PatientName:     p.Name,
		Complaint:       p.Complaint,
		Age:             p.Age,
		Gender:          deref(p.Gender),
		CurrentPriority: p.Priority,
		Vitals:          vitals,
		Assessment:      assessment,
		Notes:           rc.Notes,
		Procedure:       rc.Procedure,
		ConditionChange: rc.ConditionChange,
		History:         s.history(ctx, p.ID),
	}

	ctx, cancel := context.WithTimeout(ctx, s.advisorTimeout)
	defer cancel()

	type answer struct {
		rec *advisor.Recommendation
		err error
	}
	ch := make(chan answer, 1)
	go func() {
		rec, err := s.advisor.Recommend(ctx, req)
		ch <- answer{rec, err}
	}()

	var a answer
	select {
	case a = <-ch:
	case <-ctx.Done():
		a.err = ctx.Err()
	}
	if a.err == nil && a.rec == nil {
		a.err = errors.New("empty recommendation")
	}
	if a.err != nil {
		if errors.Is(a.err, ErrAdvisorUnavailable) {
			return nil, a.err
		}
		return nil, fmt.Errorf("%w: %w", ErrAdvisorUnavailable, a.err)
	}
	return a.rec, nil
}

func (s *Service) history(ctx context.Context, patientID uuid.UUID) []string {
	items, err := s.repos.Transitions.ListByPatient(ctx, patientID)
	if err != nil {
		s.logger.Debug().Err(err).Str("patient_id", patientID.String()).Msg("triage history unavailable")
		return nil
	}
	SortNewestFirst(items)
	var out []string
	for _, t := range items {
		if !t.IsApplied {
			continue
		}
		out = append(out, fmt.Sprintf("%s -> L%d (%s): %s", acuity.Short(t.FromPriority), t.ToPriority, t.Source, t.Reasoning))
		if len(out) == advisorHistory {
			break
		}
	}
	return out
}

// -- Status changes --

func (s *Service) Discharge(ctx context.Context, patientID uuid.UUID, actor auth.Actor) (*Patient, error) {
	p, err := s.closeOut(ctx, patientID, StatusDischarged)
	if err != nil {
		return nil, err
	}
	s.raise(ctx, &alert.Alert{
		Title:       "Patient Discharged - " + p.Name,
		Message:     fmt.Sprintf("%s was discharged by %s.", p.Name, actorName(actor)),
		Priority:    alert.PriorityInfo,
		Category:    alert.CategoryPatient,
		PatientID:   &p.ID,
		TriggeredBy: "discharge",
	})
	return p, nil
}

func (s *Service) TransferToOPD(ctx context.Context, patientID uuid.UUID, actor auth.Actor) (*Patient, error) {
	p, err := s.closeOut(ctx, patientID, StatusTransferred)
	if err != nil {
		return nil, err
	}
	s.raise(ctx, &alert.Alert{
		Title:       "Patient Transferred to OPD - " + p.Name,
		Message:     fmt.Sprintf("%s was transferred to OPD by %s.", p.Name, actorName(actor)),
		Priority:    alert.PriorityInfo,
		Category:    alert.CategoryPatient,
		PatientID:   &p.ID,
		TriggeredBy: "transfer_to_opd",
	})
	return p, nil
}

// closeOut moves a patient to a terminal status and frees the bed for
// cleaning. The transition log is left untouched.
func (s *Service) closeOut(ctx context.Context, patientID uuid.UUID, status Status) (*Patient, error) {
	var patient *Patient
	err := s.repos.Patients.WithLock(ctx, patientID, func(ctx context.Context, p *Patient) error {
		if p.Status.Terminal() {
			return terminal(p)
		}
		p.Status = status
		if status == StatusDischarged {
			at := s.now()
			p.DischargedAt = &at
		}
		if err := s.repos.Patients.UpdateStatus(ctx, p); err != nil {
			return fmt.Errorf("update patient status: %w", err)
		}
		if p.BedID != nil {
			if err := s.repos.Beds.SetStatus(ctx, *p.BedID, BedCleaning); err != nil {
				return fmt.Errorf("release bed: %w", err)
			}
		}
		patient = p
		return nil
	})
	return patient, err
}

func terminal(p *Patient) *ConflictError {
	return &ConflictError{Reason: fmt.Sprintf("patient is %s", p.Status)}
}

// -- Notes --

func (s *Service) AddNote(ctx context.Context, patientID uuid.UUID, in NoteInput, actor auth.Actor) (*PatientNote, error) {
	in.Content = strings.TrimSpace(in.Content)
	if in.Content == "" {
		return nil, invalid("content", "is required")
	}
	if in.Type == "" {
		in.Type = defaultNoteType(actor.Role)
	}
	switch in.Type {
	case NoteNurse, NoteDoctor, NoteGeneral:
	default:
		return nil, invalid("type", "must be nurse, doctor or general")
	}
	if in.Type == NoteDoctor && !auth.PermissionsFor(actor.Role).CanWriteDoctorNotes {
		return nil, fmt.Errorf("%w: only doctors may write doctor notes", ErrForbidden)
	}

	p, err := s.repos.Patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	n := &PatientNote{PatientID: patientID, Type: in.Type, Content: in.Content, IsConfidential: in.IsConfidential, CreatedBy: actor}
	if err := s.repos.Notes.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}
	s.announceNote(ctx, p, n)
	return n, nil
}

func (s *Service) ListNotes(ctx context.Context, patientID uuid.UUID, includeConfidential bool) ([]*PatientNote, error) {
	if _, err := s.repos.Patients.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	items, err := s.repos.Notes.ListByPatient(ctx, patientID, includeConfidential)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*PatientNote{}
	}
	return items, nil
}

func defaultNoteType(role string) NoteType {
	switch role {
	case auth.RoleDoctor:
		return NoteDoctor
	case auth.RoleNurse:
		return NoteNurse
	}
	return NoteGeneral
}

func decodeImage(s string) ([]byte, error) {
	if i := strings.Index(s, ";base64,"); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+len(";base64,"):]
	}
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, invalid("image", "must be base64 encoded")
	}
	return b, nil
}
