package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// SubjectSnapshot is one line of an archived cycle's subject list.
type SubjectSnapshot struct {
	SubjectCode string `json:"subject_code"`
	SubjectName string `json:"subject_name"`
	Schedule    string `json:"schedule"`
}

// EnrollmentSnapshot captures a student's enrollment for one cycle. While the
// cycle is open the row is updated in place as subjects change; archiving
// finalizes it, after which it is never mutated again.
type EnrollmentSnapshot struct {
	ID             string         `db:"id" json:"id"`
	ApplicationID  string         `db:"application_id" json:"application_id"`
	SchoolYear     *string        `db:"school_year" json:"school_year,omitempty"`
	Semester       *string        `db:"semester" json:"semester,omitempty"`
	GradeLevel     *string        `db:"grade_level" json:"grade_level,omitempty"`
	Strand         *string        `db:"strand" json:"strand,omitempty"`
	EnrollmentType *string        `db:"enrollment_type" json:"enrollment_type,omitempty"`
	StudentNumber  *string        `db:"student_number" json:"student_number,omitempty"`
	Subjects       types.JSONText `db:"subjects" json:"subjects"`
	Finalized      bool           `db:"finalized" json:"finalized"`
	ArchivedAt     *time.Time     `db:"archived_at" json:"archived_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}
