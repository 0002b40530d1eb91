// Package acuity holds the five-level ER priority scale and the vital-sign
// thresholds shared by the triage service and the recommendation advisors.
package acuity

import "fmt"

const (
	MostCritical  = 1
	LeastCritical = 5
)

// Level describes one step of the priority scale.
type Level struct {
	Priority      int    `json:"priority"`
	Label         string `json:"label"`
	Color         string `json:"color"`
	EstimatedWait string `json:"estimatedWait"`
}

var levels = [...]Level{
	{1, "L1 - Critical", "red", "Immediate"},
	{2, "L2 - Emergent", "orange", "10 minutes"},
	{3, "L3 - Urgent", "yellow", "30-60 minutes"},
	{4, "L4 - Non-Urgent", "green", "1-2 hours"},
	{5, "L5 - Stable", "blue", "2-4 hours"},
}

// Valid reports whether p is on the scale.
func Valid(p int) bool {
	return p >= MostCritical && p <= LeastCritical
}

// Lookup returns the level for p. ok is false when p is off the scale.
func Lookup(p int) (Level, bool) {
	if !Valid(p) {
		return Level{}, false
	}
	return levels[p-1], true
}

// MustLookup is Lookup for priorities already known to be valid. Values off
// the scale are clamped first.
func MustLookup(p int) Level {
	l, _ := Lookup(Clamp(p))
	return l
}

// Clamp forces p onto the scale.
func Clamp(p int) int {
	if p < MostCritical {
		return MostCritical
	}
	if p > LeastCritical {
		return LeastCritical
	}
	return p
}

// Levels returns the whole scale, most critical first.
func Levels() []Level {
	out := make([]Level, len(levels))
	copy(out, levels[:])
	return out
}

// Short renders p as "L3", or "initial" for an untriaged patient.
func Short(p *int) string {
	if p == nil {
		return "initial"
	}
	return fmt.Sprintf("L%d", *p)
}
