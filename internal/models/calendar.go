package models

import "time"

// AcademicCalendar holds the school-wide enrollment window. Only one row is kept.
type AcademicCalendar struct {
	ID              string     `db:"id" json:"id"`
	SchoolYear      string     `db:"school_year" json:"school_year"`
	Semester        string     `db:"semester" json:"semester"`
	EnrollmentStart *time.Time `db:"enrollment_start" json:"enrollment_start,omitempty"`
	EnrollmentEnd   *time.Time `db:"enrollment_end" json:"enrollment_end,omitempty"`
	IsOpen          bool       `db:"is_open" json:"is_open"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}
