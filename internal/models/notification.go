package models

import "time"

// NotificationType tags the reason a notification was created.
type NotificationType string

const (
	NotifApplicationApproved NotificationType = "application_approved"
	NotifApplicationDenied   NotificationType = "application_denied"
	NotifPaymentVerified     NotificationType = "payment_verified"
	NotifPaymentRejected     NotificationType = "payment_rejected"
	NotifSubjectsAssigned    NotificationType = "subjects_assigned"
	NotifCreditsEvaluated    NotificationType = "credits_evaluated"
	NotifNewFormSubmitted    NotificationType = "new_form_submitted"
	NotifNewReceiptUploaded  NotificationType = "new_receipt_uploaded"
	NotifStudentApproved     NotificationType = "student_approved"
)

// Notification is an in-app message addressed to one user. Created only as a
// side effect of lifecycle transitions, never directly by a caller.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	Type      NotificationType `db:"type" json:"type"`
	IsRead    bool             `db:"is_read" json:"is_read"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}
