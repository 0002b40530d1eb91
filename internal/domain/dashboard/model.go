package dashboard

type PatientStats struct {
	Total         int            `json:"total"`
	Critical      int            `json:"critical"`
	PendingTriage int            `json:"pendingTriage"`
	ByPriority    map[string]int `json:"byPriority"`
}

type BedStats struct {
	Total     int `json:"total"`
	Occupied  int `json:"occupied"`
	Available int `json:"available"`
	Cleaning  int `json:"cleaning"`
}

type AlertStats struct {
	Unread   int `json:"unread"`
	Critical int `json:"critical"`
}

type TodayStats struct {
	Admissions  int `json:"admissions"`
	Discharges  int `json:"discharges"`
	Emergencies int `json:"emergencies"`
}

// Stats is the payload of GET /dashboard/stats.
type Stats struct {
	Patients   PatientStats `json:"patients"`
	Beds       BedStats     `json:"beds"`
	Alerts     AlertStats   `json:"alerts"`
	TodayStats TodayStats   `json:"todayStats"`
}
