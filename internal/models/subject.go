package models

import "time"

// Subject represents a course offering for a strand, grade level and semester.
type Subject struct {
	ID          string    `db:"id" json:"id"`
	SubjectCode string    `db:"subject_code" json:"subject_code"`
	SubjectName string    `db:"subject_name" json:"subject_name"`
	Units       int       `db:"units" json:"units"`
	Schedule    string    `db:"schedule" json:"schedule"`
	Strand      string    `db:"strand" json:"strand"`
	GradeLevel  string    `db:"grade_level" json:"grade_level"`
	Semester    string    `db:"semester" json:"semester"`
	MaxStudents int       `db:"max_students" json:"max_students"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// SubjectWithCount pairs a subject with its derived enrolled count.
type SubjectWithCount struct {
	Subject
	EnrolledCount int `db:"enrolled_count" json:"enrolled_count"`
}

// SubjectFilter captures supported filters for listing subjects.
type SubjectFilter struct {
	Strand     string
	GradeLevel string
	Semester   string
}
