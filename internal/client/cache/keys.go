package cache

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/triage"
)

// Key names one cached resource.
type Key string

const (
	KeyPatients       Key = "patients"
	KeyDashboardStats Key = "dashboard-stats"
	KeyAlerts         Key = "alerts"
)

const (
	timelinePrefix = "timeline:"
	vitalsPrefix   = "vitals:"
	tempPrefix     = "temp-"
)

func TimelineKey(id uuid.UUID) Key { return Key(timelinePrefix + id.String()) }

func VitalsKey(id uuid.UUID) Key { return Key(vitalsPrefix + id.String()) }

// patient splits a per-patient key into its prefix and patient id.
func (k Key) patient() (string, uuid.UUID, bool) {
	for _, prefix := range []string{timelinePrefix, vitalsPrefix} {
		if rest, ok := strings.CutPrefix(string(k), prefix); ok {
			id, err := uuid.Parse(rest)
			return prefix, id, err == nil
		}
	}
	return "", uuid.Nil, false
}

// State is where a key stands relative to the server.
type State int

const (
	// Empty keys have never been fetched.
	Empty State = iota
	Fresh
	StalePendingRefetch
	Reconciled
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case StalePendingRefetch:
		return "stale-pending-refetch"
	case Reconciled:
		return "reconciled"
	}
	return "empty"
}

// Entry is one row of a patient's triage timeline. Rows added right after a
// mutation carry a "temp-" ID until the server's timeline replaces them.
type Entry struct {
	ID         string
	Transition triage.TriageTransition
}

func (e Entry) Temp() bool {
	return strings.HasPrefix(e.ID, tempPrefix)
}

// Merge combines timelines newest first by server createdAt, breaking ties
// by ID, and keeps one row per ID.
func Merge(lists ...[]Entry) []Entry {
	out := lo.UniqBy(lo.Flatten(lists), func(e Entry) string { return e.ID })
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Transition.CreatedAt, out[j].Transition.CreatedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func fromTimeline(ts []triage.TriageTransition) []Entry {
	return Merge(lo.Map(ts, func(t triage.TriageTransition, _ int) Entry {
		return Entry{ID: t.ID.String(), Transition: t}
	}))
}
