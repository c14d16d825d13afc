package models

// DashboardStats aggregates application counts for the admin dashboard.
type DashboardStats struct {
	TotalStudents    int            `json:"total_students"`
	PendingStudents  int            `json:"pending_students"`
	ApprovedStudents int            `json:"approved_students"`
	DeniedStudents   int            `json:"denied_students"`
	ByGradeLevel     map[string]int `json:"by_grade_level"`
	ByStrand         map[string]int `json:"by_strand"`
	BySex            map[string]int `json:"by_sex"`
	ByEnrollmentType map[string]int `json:"by_enrollment_type"`
}
