package models

import "time"

// Audit action vocabulary. Every state-changing operation records exactly one.
const (
	AuditStudentApproved    = "STUDENT_APPROVED"
	AuditStudentDenied      = "STUDENT_DENIED"
	AuditStudentDeleted     = "STUDENT_DELETED"
	AuditPaymentVerified    = "PAYMENT_VERIFIED"
	AuditPaymentRejected    = "PAYMENT_REJECTED"
	AuditSubjectAssigned    = "SUBJECT_ASSIGNED"
	AuditSubjectsBulk       = "SUBJECTS_BULK_ASSIGNED"
	AuditSubjectUnassigned  = "SUBJECT_UNASSIGNED"
	AuditCreditsEvaluated   = "TRANSFEREE_CREDITS_EVALUATED"
	AuditEnrollmentArchived = "ENROLLMENT_ARCHIVED"
	AuditApplicationSubmit  = "APPLICATION_SUBMITTED"
	AuditReceiptUploaded    = "RECEIPT_UPLOADED"
	AuditAccountCreated     = "ACCOUNT_CREATED"
	AuditAccountDeleted     = "ACCOUNT_DELETED"
	AuditPasswordReset      = "PASSWORD_RESET"
	AuditCalendarUpdated    = "CALENDAR_UPDATED"
)

// Actor identifies who performed an audited action.
type Actor struct {
	UserID string
	Email  string
	Role   UserRole
}

// AuditEntry is an immutable record of a state-changing action.
type AuditEntry struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	UserEmail  string    `db:"user_email" json:"user_email"`
	UserRole   string    `db:"user_role" json:"user_role"`
	Action     string    `db:"action" json:"action"`
	TargetName *string   `db:"target_name" json:"target_name,omitempty"`
	Details    *string   `db:"details" json:"details,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AuditFilter captures supported filters for listing audit entries.
type AuditFilter struct {
	Action   string
	Role     string
	Search   string
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	PageSize int
}
