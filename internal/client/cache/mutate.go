package cache

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/triage"
)

func mutationKeys(id uuid.UUID) []Key {
	return []Key{KeyPatients, KeyDashboardStats, KeyAlerts, TimelineKey(id)}
}

// ShiftTriage sends a manual shift. On success the new timeline row and the
// patient's priority show at once and the affected keys are refetched. A
// failed shift changes nothing locally.
func (s *Synchronizer) ShiftTriage(ctx context.Context, id uuid.UUID, in triage.ShiftInput) (*triage.ShiftResult, error) {
	sl := s.reserve(id)
	res, err := s.src.ShiftTriage(ctx, id, in)
	if err != nil {
		s.settle(id, sl, nil, mutationKeys(id))
		return nil, err
	}
	s.settle(id, sl, func() {
		s.patchLocked(id, res.Transition, res.Patient)
	}, mutationKeys(id))
	return res, nil
}

// ApplyVitals records vitals. Any transition the server wrote is shown at
// once; the patient's priority is patched only when it was applied.
func (s *Synchronizer) ApplyVitals(ctx context.Context, id uuid.UUID, in triage.VitalsInput) (*triage.VitalsResult, error) {
	keys := append(mutationKeys(id), VitalsKey(id))
	sl := s.reserve(id)
	res, err := s.src.ApplyVitals(ctx, id, in)
	if err != nil {
		s.settle(id, sl, nil, keys)
		return nil, err
	}
	s.settle(id, sl, func() {
		s.patchLocked(id, res.Transition, res.Patient)
	}, keys)
	return res, nil
}

func (s *Synchronizer) reserve(id uuid.UUID) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl := &slot{epoch: s.epoch}
	s.lanes[id] = append(s.lanes[id], sl)
	return sl
}

// settle resolves sl and, unless the cache was cleared since the mutation
// began, refetches keys when anything was or will be patched.
func (s *Synchronizer) settle(id uuid.UUID, sl *slot, patch func(), keys []Key) {
	applied, live := s.resolve(id, sl, patch)
	if live && (patch != nil || applied) {
		s.refresh(keys)
	}
}

// resolve marks sl finished and runs, in issue order, every finished patch
// at the head of the patient's lane. A confirmation that overtook an earlier
// mutation waits here until that mutation resolves.
func (s *Synchronizer) resolve(id uuid.UUID, sl *slot, patch func()) (applied, live bool) {
	s.mu.Lock()
	live = sl.epoch == s.epoch
	sl.done, sl.patch = true, patch
	lane := s.lanes[id]
	for len(lane) > 0 && lane[0].done {
		if lane[0].patch != nil {
			lane[0].patch()
			applied = true
		}
		lane = lane[1:]
	}
	if len(lane) == 0 {
		delete(s.lanes, id)
	} else {
		s.lanes[id] = lane
	}
	s.mu.Unlock()

	if applied {
		s.notify(KeyPatients, TimelineKey(id))
	}
	return applied, live
}

// patchLocked shows a confirmed mutation. The transition is prepended to the
// timeline under a temporary ID; the patient row takes the new priority
// unless a newer transition has already been patched in.
func (s *Synchronizer) patchLocked(id uuid.UUID, t *triage.TriageTransition, p *triage.Patient) {
	if t == nil {
		return
	}
	ticket := s.nextLocked()

	tl := s.entryLocked(TimelineKey(id))
	list, _ := tl.data.([]Entry)
	if !lo.ContainsBy(list, func(e Entry) bool { return e.Transition.ID == t.ID }) {
		synth := Entry{ID: tempPrefix + uuid.NewString(), Transition: *t}
		tl.data = Merge([]Entry{synth}, list)
	}
	tl.state = StalePendingRefetch
	tl.written = ticket

	if !t.IsApplied || p == nil {
		return
	}
	if last, ok := s.lastPatched[id]; ok && t.CreatedAt.Before(last) {
		return
	}
	s.lastPatched[id] = t.CreatedAt

	pe, ok := s.entries[KeyPatients]
	if !ok {
		return
	}
	patients, _ := pe.data.([]triage.Patient)
	_, idx, found := lo.FindIndexOf(patients, func(x triage.Patient) bool { return x.ID == id })
	if !found {
		return
	}
	next := append([]triage.Patient(nil), patients...)
	row := next[idx]
	row.Priority = p.Priority
	row.PriorityLabel = p.PriorityLabel
	row.PriorityColor = p.PriorityColor
	row.PriorityReasoning = p.PriorityReasoning
	row.Status = p.Status
	row.Version = p.Version
	row.UpdatedAt = p.UpdatedAt
	next[idx] = row

	pe.data = next
	pe.state = StalePendingRefetch
	pe.written = ticket
}
