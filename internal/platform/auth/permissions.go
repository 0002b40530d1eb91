package auth

// Staff roles known to the ER dashboard.
const (
	RoleAdmin        = "admin"
	RoleDoctor       = "doctor"
	RoleNurse        = "nurse"
	RoleTechnician   = "technician"
	RoleReceptionist = "receptionist"
)

var knownRoles = []string{RoleAdmin, RoleDoctor, RoleNurse, RoleTechnician, RoleReceptionist}

// Permissions are the capability flags derived from a role. The server uses
// them for route guards and the dashboard client uses them to decide which
// actions to offer.
type Permissions struct {
	CanViewPatients          bool `json:"canViewPatients"`
	CanRecordVitals          bool `json:"canRecordVitals"`
	CanShiftTriage           bool `json:"canShiftTriage"`
	CanRequestRecommendation bool `json:"canRequestRecommendation"`
	CanDischarge             bool `json:"canDischarge"`
	CanTransfer              bool `json:"canTransfer"`
	CanWriteNotes            bool `json:"canWriteNotes"`
	CanWriteDoctorNotes      bool `json:"canWriteDoctorNotes"`
	CanViewConfidentialNotes bool `json:"canViewConfidentialNotes"`
	CanAcknowledgeAlerts     bool `json:"canAcknowledgeAlerts"`
	CanManageStaff           bool `json:"canManageStaff"`
}

// PermissionsFor maps a single role to its permission set. Unknown roles get
// no permissions.
func PermissionsFor(role string) Permissions {
	clinician := role == RoleDoctor || role == RoleNurse || role == RoleAdmin
	return Permissions{
		CanViewPatients:          role != "" && isKnownRole(role),
		CanRecordVitals:          clinician || role == RoleTechnician,
		CanShiftTriage:           clinician,
		CanRequestRecommendation: clinician,
		CanDischarge:             role == RoleDoctor || role == RoleAdmin,
		CanTransfer:              role == RoleDoctor || role == RoleAdmin,
		CanWriteNotes:            clinician,
		CanWriteDoctorNotes:      role == RoleDoctor,
		CanViewConfidentialNotes: role == RoleDoctor || role == RoleAdmin,
		CanAcknowledgeAlerts:     clinician,
		CanManageStaff:           role == RoleAdmin,
	}
}

// PermissionsForRoles is the union of PermissionsFor over roles.
func PermissionsForRoles(roles []string) Permissions {
	var p Permissions
	for _, r := range roles {
		q := PermissionsFor(r)
		p.CanViewPatients = p.CanViewPatients || q.CanViewPatients
		p.CanRecordVitals = p.CanRecordVitals || q.CanRecordVitals
		p.CanShiftTriage = p.CanShiftTriage || q.CanShiftTriage
		p.CanRequestRecommendation = p.CanRequestRecommendation || q.CanRequestRecommendation
		p.CanDischarge = p.CanDischarge || q.CanDischarge
		p.CanTransfer = p.CanTransfer || q.CanTransfer
		p.CanWriteNotes = p.CanWriteNotes || q.CanWriteNotes
		p.CanWriteDoctorNotes = p.CanWriteDoctorNotes || q.CanWriteDoctorNotes
		p.CanViewConfidentialNotes = p.CanViewConfidentialNotes || q.CanViewConfidentialNotes
		p.CanAcknowledgeAlerts = p.CanAcknowledgeAlerts || q.CanAcknowledgeAlerts
		p.CanManageStaff = p.CanManageStaff || q.CanManageStaff
	}
	return p
}

// PrimaryRole picks the first recognised role, which is what gets recorded
// as the actor's role on audit fields.
func PrimaryRole(roles []string) string {
	for _, r := range roles {
		if isKnownRole(r) {
			return r
		}
	}
	return ""
}

func isKnownRole(role string) bool {
	for _, r := range knownRoles {
		if r == role {
			return true
		}
	}
	return false
}
