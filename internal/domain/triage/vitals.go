package triage

import (
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/acuity"
)

// Range is an inclusive plausibility range for one measurement.
type Range struct {
	Min float64
	Max float64
}

func (r Range) contains(v float64) bool { return v >= r.Min && v <= r.Max }

// VitalsBounds rejects readings that cannot be physiological. Values inside
// the bounds may still be critical; see acuity.Classify.
type VitalsBounds struct {
	HeartRate       Range
	Systolic        Range
	Diastolic       Range
	SpO2            Range
	Temperature     Range
	RespiratoryRate Range
}

func DefaultBounds() VitalsBounds {
	return VitalsBounds{
		HeartRate:       Range{1, 300},
		Systolic:        Range{1, 300},
		Diastolic:       Range{1, 250},
		SpO2:            Range{0, 100},
		Temperature:     Range{70, 115},
		RespiratoryRate: Range{1, 80},
	}
}

// Validate checks every present measurement. At least one is required.
func (b VitalsBounds) Validate(v acuity.Vitals) error {
	if v.Empty() {
		return invalid("vitals", "at least one measurement is required")
	}
	if v.HeartRate != nil && !b.HeartRate.contains(float64(*v.HeartRate)) {
		return outOfRange("heartRate", b.HeartRate)
	}
	if v.BloodPressure != nil {
		sys, dia, err := acuity.ParseBloodPressure(*v.BloodPressure)
		if err != nil {
			return invalid("bloodPressure", "%s", err.Error())
		}
		if !b.Systolic.contains(float64(sys)) {
			return outOfRange("bloodPressure", b.Systolic)
		}
		if !b.Diastolic.contains(float64(dia)) {
			return invalid("bloodPressure", "diastolic must be between %g and %g", b.Diastolic.Min, b.Diastolic.Max)
		}
		if sys <= dia {
			return invalid("bloodPressure", "systolic must be greater than diastolic")
		}
	}
	if v.SpO2 != nil && !b.SpO2.contains(float64(*v.SpO2)) {
		return outOfRange("spo2", b.SpO2)
	}
	if v.Temperature != nil && !b.Temperature.contains(*v.Temperature) {
		return outOfRange("temperature", b.Temperature)
	}
	if v.RespiratoryRate != nil && !b.RespiratoryRate.contains(float64(*v.RespiratoryRate)) {
		return outOfRange("respiratoryRate", b.RespiratoryRate)
	}
	return nil
}

func outOfRange(field string, r Range) *ValidationError {
	return invalid(field, "must be between %g and %g", r.Min, r.Max)
}
