package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ApplicationStatus is the admission state of a student application.
type ApplicationStatus string

const (
	StatusPending  ApplicationStatus = "pending"
	StatusApproved ApplicationStatus = "approved"
	StatusDenied   ApplicationStatus = "denied"
)

// PaymentStatus tracks tuition payment verification.
type PaymentStatus string

const (
	PaymentUnpaid              PaymentStatus = "unpaid"
	PaymentPendingVerification PaymentStatus = "pending_verification"
	PaymentVerified            PaymentStatus = "verified"
)

// EnrollmentType distinguishes how a student enters the school.
type EnrollmentType string

const (
	EnrollmentNew        EnrollmentType = "NEW_ENROLLEE"
	EnrollmentTransferee EnrollmentType = "TRANSFEREE"
	EnrollmentReEnrollee EnrollmentType = "RE_ENROLLEE"
)

// CreditStatus is the evaluation outcome for a transferee's prior subject.
type CreditStatus string

const (
	CreditPending     CreditStatus = "pending"
	CreditCredited    CreditStatus = "credited"
	CreditNotCredited CreditStatus = "not_credited"
)

// TransfereeCredit is one entry of a transferee's credit evaluation.
type TransfereeCredit struct {
	Subject      string       `json:"subject" validate:"required"`
	CreditStatus CreditStatus `json:"credit_status" validate:"required,oneof=pending credited not_credited"`
}

// Application is a student's enrollment application. One row per enrolling
// person; it is created blank at registration and progresses through the
// admission, payment and subject-assignment lifecycle each cycle.
type Application struct {
	ID            string            `db:"id" json:"id"`
	UserID        string            `db:"user_id" json:"user_id"`
	StudentNumber *string           `db:"student_number" json:"student_number,omitempty"`
	Status        ApplicationStatus `db:"status" json:"status"`

	// Grade level and school information.
	SchoolYear         *string `db:"school_year" json:"school_year,omitempty"`
	Semester           *string `db:"semester" json:"semester,omitempty"`
	LRN                *string `db:"lrn" json:"lrn,omitempty"`
	GradeLevelToEnroll *string `db:"grade_level_to_enroll" json:"grade_level_to_enroll,omitempty"`
	LastSchoolAttended *string `db:"last_school_attended" json:"last_school_attended,omitempty"`
	Strand             *string `db:"strand" json:"strand,omitempty"`

	// Student information.
	LastName   *string    `db:"last_name" json:"last_name,omitempty"`
	FirstName  *string    `db:"first_name" json:"first_name,omitempty"`
	MiddleName *string    `db:"middle_name" json:"middle_name,omitempty"`
	Suffix     *string    `db:"suffix" json:"suffix,omitempty"`
	Birthday   *time.Time `db:"birthday" json:"birthday,omitempty"`
	Age        *int       `db:"age" json:"age,omitempty"`
	Sex        *string    `db:"sex" json:"sex,omitempty"`
	Religion   *string    `db:"religion" json:"religion,omitempty"`

	// Address.
	Province         *string `db:"province" json:"province,omitempty"`
	CityMunicipality *string `db:"city_municipality" json:"city_municipality,omitempty"`
	Barangay         *string `db:"barangay" json:"barangay,omitempty"`
	HouseNoStreet    *string `db:"house_no_street" json:"house_no_street,omitempty"`

	// Parent / guardian information.
	GuardianFullName *string `db:"guardian_full_name" json:"guardian_full_name,omitempty"`
	GuardianContact  *string `db:"guardian_contact" json:"guardian_contact,omitempty"`

	// Enrollment info filled by the admin on approval.
	EnrollmentType *EnrollmentType `db:"enrollment_type" json:"enrollment_type,omitempty"`
	EnrollmentDate *time.Time      `db:"enrollment_date" json:"enrollment_date,omitempty"`
	PlaceOfBirth   *string         `db:"place_of_birth" json:"place_of_birth,omitempty"`
	Nationality    *string         `db:"nationality" json:"nationality,omitempty"`
	CivilStatus    *string         `db:"civil_status" json:"civil_status,omitempty"`
	DenialReason   *string         `db:"denial_reason" json:"denial_reason,omitempty"`

	// Uploaded files.
	PhotoPath     *string        `db:"photo_path" json:"photo_path,omitempty"`
	DocumentPaths types.JSONText `db:"document_paths" json:"document_paths,omitempty"`

	// Payment.
	PaymentReceiptPath     *string       `db:"payment_receipt_path" json:"payment_receipt_path,omitempty"`
	PaymentStatus          PaymentStatus `db:"payment_status" json:"payment_status"`
	PaymentVerifiedAt      *time.Time    `db:"payment_verified_at" json:"payment_verified_at,omitempty"`
	PaymentRejectionReason *string       `db:"payment_rejection_reason" json:"payment_rejection_reason,omitempty"`

	// Transferee credit evaluation, JSON list of TransfereeCredit.
	TransfereeSubjects types.JSONText `db:"transferee_subjects" json:"transferee_subjects,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// FullName joins the name parts that are present.
func (a *Application) FullName() string {
	parts := make([]string, 0, 2)
	if a.FirstName != nil && *a.FirstName != "" {
		parts = append(parts, *a.FirstName)
	}
	if a.LastName != nil && *a.LastName != "" {
		parts = append(parts, *a.LastName)
	}
	return strings.Join(parts, " ")
}

// Label is the audit/notification target label: student number when issued,
// then full name, then the internal id.
func (a *Application) Label() string {
	if a.StudentNumber != nil && *a.StudentNumber != "" {
		return *a.StudentNumber
	}
	if name := a.FullName(); name != "" {
		return name
	}
	return fmt.Sprintf("ID %s", a.ID)
}

// ApplicationFilter captures supported filters for listing applications.
type ApplicationFilter struct {
	Status         ApplicationStatus
	PaymentStatus  PaymentStatus
	EnrollmentType EnrollmentType
	GradeLevel     string
	Strand         string
	Semester       string
	Search         string
	Page           int
	PageSize       int
}

// ApplicationDetail enriches an application with its account email.
type ApplicationDetail struct {
	Application
	Email string `db:"email" json:"email"`
}

// StatusSummary is the lightweight self-service status view.
type StatusSummary struct {
	StudentNumber *string           `json:"student_number,omitempty"`
	Status        ApplicationStatus `json:"status"`
	PaymentStatus PaymentStatus     `json:"payment_status"`
	FirstName     *string           `json:"first_name,omitempty"`
	LastName      *string           `json:"last_name,omitempty"`
}
