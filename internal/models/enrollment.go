package models

import "time"

// EnrollmentLink joins a student application to a subject, representing one
// active seat. The (application_id, subject_id) pair is unique.
type EnrollmentLink struct {
	ID            string    `db:"id" json:"id"`
	ApplicationID string    `db:"application_id" json:"application_id"`
	SubjectID     string    `db:"subject_id" json:"subject_id"`
	EnrolledAt    time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// EnrolledSubject is the student-facing view of an active seat.
type EnrolledSubject struct {
	SubjectID   string    `db:"subject_id" json:"subject_id"`
	SubjectCode string    `db:"subject_code" json:"subject_code"`
	SubjectName string    `db:"subject_name" json:"subject_name"`
	Units       int       `db:"units" json:"units"`
	Schedule    string    `db:"schedule" json:"schedule"`
	Strand      string    `db:"strand" json:"strand"`
	GradeLevel  string    `db:"grade_level" json:"grade_level"`
	EnrolledAt  time.Time `db:"enrolled_at" json:"enrolled_at"`
}
