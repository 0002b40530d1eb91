package acuity

import (
	"fmt"
	"strconv"
	"strings"
)

// Vitals is one set of bedside measurements. Every field is optional.
type Vitals struct {
	HeartRate       *int     `json:"heartRate,omitempty"`
	BloodPressure   *string  `json:"bloodPressure,omitempty"`
	SpO2            *int     `json:"spo2,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	RespiratoryRate *int     `json:"respiratoryRate,omitempty"`
}

// Empty reports whether no measurement is present.
func (v Vitals) Empty() bool {
	return v.HeartRate == nil && v.BloodPressure == nil && v.SpO2 == nil &&
		v.Temperature == nil && v.RespiratoryRate == nil
}

// Summary renders the present measurements on one line, e.g.
// "HR 88 bpm, BP 120/80, SpO2 97%".
func (v Vitals) Summary() string {
	var parts []string
	if v.HeartRate != nil {
		parts = append(parts, fmt.Sprintf("HR %d bpm", *v.HeartRate))
	}
	if v.BloodPressure != nil {
		parts = append(parts, "BP "+*v.BloodPressure)
	}
	if v.SpO2 != nil {
		parts = append(parts, fmt.Sprintf("SpO2 %d%%", *v.SpO2))
	}
	if v.Temperature != nil {
		parts = append(parts, fmt.Sprintf("Temp %.1f°F", *v.Temperature))
	}
	if v.RespiratoryRate != nil {
		parts = append(parts, fmt.Sprintf("RR %d/min", *v.RespiratoryRate))
	}
	if len(parts) == 0 {
		return "no vitals recorded"
	}
	return strings.Join(parts, ", ")
}

// ParseBloodPressure splits "120/80" into systolic and diastolic.
func ParseBloodPressure(s string) (sys, dia int, err error) {
	a, b, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return 0, 0, fmt.Errorf("blood pressure must be formatted as systolic/diastolic")
	}
	if sys, err = strconv.Atoi(strings.TrimSpace(a)); err != nil {
		return 0, 0, fmt.Errorf("invalid systolic value %q", a)
	}
	if dia, err = strconv.Atoi(strings.TrimSpace(b)); err != nil {
		return 0, 0, fmt.Errorf("invalid diastolic value %q", b)
	}
	return sys, dia, nil
}

// FormatBloodPressure is the inverse of ParseBloodPressure. It returns nil
// unless both halves are present.
func FormatBloodPressure(sys, dia *int) *string {
	if sys == nil || dia == nil {
		return nil
	}
	s := fmt.Sprintf("%d/%d", *sys, *dia)
	return &s
}

type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Assessment is the result of Classify.
type Assessment struct {
	Severity Severity `json:"severity"`
	Findings []string `json:"findings,omitempty"`
}

func (a Assessment) Critical() bool { return a.Severity == SeverityCritical }

// Classify grades a vitals set against the ER alert thresholds. The worst
// finding wins. Unparseable blood pressure is ignored here; bounds
// validation rejects it earlier.
func Classify(v Vitals) Assessment {
	var critical, warning []string

	if hr := v.HeartRate; hr != nil {
		switch {
		case *hr < 50 || *hr > 150:
			critical = append(critical, fmt.Sprintf("heart rate %d bpm", *hr))
		case *hr < 60 || *hr > 100:
			warning = append(warning, fmt.Sprintf("heart rate %d bpm", *hr))
		}
	}
	if o2 := v.SpO2; o2 != nil {
		switch {
		case *o2 < 90:
			critical = append(critical, fmt.Sprintf("SpO2 %d%%", *o2))
		case *o2 < 95:
			warning = append(warning, fmt.Sprintf("SpO2 %d%%", *o2))
		}
	}
	if v.BloodPressure != nil {
		if sys, dia, err := ParseBloodPressure(*v.BloodPressure); err == nil {
			if sys < 90 || sys > 180 || dia < 60 || dia > 120 {
				critical = append(critical, fmt.Sprintf("blood pressure %d/%d", sys, dia))
			}
		}
	}
	if t := v.Temperature; t != nil && (*t < 95 || *t > 104) {
		critical = append(critical, fmt.Sprintf("temperature %.1f°F", *t))
	}
	if rr := v.RespiratoryRate; rr != nil {
		switch {
		case *rr < 8 || *rr > 30:
			critical = append(critical, fmt.Sprintf("respiratory rate %d/min", *rr))
		case *rr < 12 || *rr > 20:
			warning = append(warning, fmt.Sprintf("respiratory rate %d/min", *rr))
		}
	}

	switch {
	case len(critical) > 0:
		return Assessment{Severity: SeverityCritical, Findings: append(critical, warning...)}
	case len(warning) > 0:
		return Assessment{Severity: SeverityWarning, Findings: warning}
	default:
		return Assessment{Severity: SeverityNormal}
	}
}
