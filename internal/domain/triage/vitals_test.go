package triage

import (
	"errors"
	"testing"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/acuity"
)

func floatp(v float64) *float64 { return &v }

func TestVitalsBounds_Validate(t *testing.T) {
	b := DefaultBounds()
	tests := []struct {
		name    string
		vitals  acuity.Vitals
		field   string
		wantErr bool
	}{
		{"normal set", acuity.Vitals{HeartRate: intp(72), BloodPressure: strp("120/80"), SpO2: intp(98), Temperature: floatp(98.6), RespiratoryRate: intp(16)}, "", false},
		{"critical but plausible", acuity.Vitals{HeartRate: intp(190), SpO2: intp(70)}, "", false},
		{"spo2 zero allowed", acuity.Vitals{SpO2: intp(0)}, "", false},
		{"nothing present", acuity.Vitals{}, "vitals", true},
		{"heart rate too high", acuity.Vitals{HeartRate: intp(301)}, "heartRate", true},
		{"systolic too high", acuity.Vitals{BloodPressure: strp("320/90")}, "bloodPressure", true},
		{"diastolic too high", acuity.Vitals{BloodPressure: strp("300/260")}, "bloodPressure", true},
		{"systolic equals diastolic", acuity.Vitals{BloodPressure: strp("90/90")}, "bloodPressure", true},
		{"temperature in celsius", acuity.Vitals{Temperature: floatp(37.0)}, "temperature", true},
		{"respiratory rate zero", acuity.Vitals{RespiratoryRate: intp(0)}, "respiratoryRate", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.Validate(tt.vitals)
			if !tt.wantErr {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, ve.Field)
			}
		})
	}
}

func TestVitalsBounds_Configurable(t *testing.T) {
	b := DefaultBounds()
	b.HeartRate = Range{Min: 20, Max: 250}
	if err := b.Validate(acuity.Vitals{HeartRate: intp(10)}); err == nil {
		t.Error("expected custom lower bound to reject 10 bpm")
	}
}

func TestStatus_Terminal(t *testing.T) {
	for s, want := range map[Status]bool{
		StatusPendingTriage: false,
		StatusActive:        false,
		StatusAdmitted:      false,
		StatusDischarged:    true,
		StatusTransferred:   true,
	} {
		if s.Terminal() != want {
			t.Errorf("%s: expected Terminal()=%v", s, want)
		}
	}
}

func TestConflictError(t *testing.T) {
	var err error = &ConflictError{Reason: "patient is discharged"}
	if !errors.Is(err, ErrConflict) {
		t.Error("ConflictError should match ErrConflict")
	}
	if err.Error() != "conflict: patient is discharged" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
