package auth

import "testing"

func TestPermissionsFor(t *testing.T) {
	tests := []struct {
		role string
		want Permissions
	}{
		{RoleDoctor, Permissions{
			CanViewPatients: true, CanRecordVitals: true, CanShiftTriage: true,
			CanRequestRecommendation: true, CanDischarge: true, CanTransfer: true,
			CanWriteNotes: true, CanWriteDoctorNotes: true, CanViewConfidentialNotes: true,
			CanAcknowledgeAlerts: true,
		}},
		{RoleNurse, Permissions{
			CanViewPatients: true, CanRecordVitals: true, CanShiftTriage: true,
			CanRequestRecommendation: true, CanWriteNotes: true, CanAcknowledgeAlerts: true,
		}},
		{RoleAdmin, Permissions{
			CanViewPatients: true, CanRecordVitals: true, CanShiftTriage: true,
			CanRequestRecommendation: true, CanDischarge: true, CanTransfer: true,
			CanWriteNotes: true, CanViewConfidentialNotes: true, CanAcknowledgeAlerts: true,
			CanManageStaff: true,
		}},
		{RoleTechnician, Permissions{CanViewPatients: true, CanRecordVitals: true}},
		{RoleReceptionist, Permissions{CanViewPatients: true}},
		{"janitor", Permissions{}},
		{"", Permissions{}},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			if got := PermissionsFor(tt.role); got != tt.want {
				t.Errorf("PermissionsFor(%q) = %+v, want %+v", tt.role, got, tt.want)
			}
		})
	}
}

func TestPermissionsFor_Pure(t *testing.T) {
	if PermissionsFor(RoleNurse) != PermissionsFor(RoleNurse) {
		t.Error("same role must always map to the same permission set")
	}
}

func TestPermissionsForRoles_Union(t *testing.T) {
	p := PermissionsForRoles([]string{RoleTechnician, RoleReceptionist})
	if !p.CanRecordVitals || !p.CanViewPatients {
		t.Errorf("expected union of technician and receptionist, got %+v", p)
	}
	if p.CanShiftTriage {
		t.Error("neither role may shift triage")
	}
}

func TestPrimaryRole(t *testing.T) {
	if got := PrimaryRole([]string{"offline_access", RoleDoctor, RoleAdmin}); got != RoleDoctor {
		t.Errorf("expected doctor, got %q", got)
	}
	if got := PrimaryRole(nil); got != "" {
		t.Errorf("expected empty role, got %q", got)
	}
}
