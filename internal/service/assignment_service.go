package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/dbtc-online/enrollment-api/internal/models"
	appErrors "github.com/dbtc-online/enrollment-api/pkg/errors"
)

type assignmentAppRepository interface {
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Application, error)
	SetTransfereeCredits(ctx context.Context, exec sqlx.ExtContext, id string, credits []byte) error
}

type subjectLocker interface {
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Subject, error)
}

type linkStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, link *models.EnrollmentLink) error
	Exists(ctx context.Context, exec sqlx.ExtContext, applicationID, subjectID string) (bool, error)
	CountBySubject(ctx context.Context, exec sqlx.ExtContext, subjectID string) (int, error)
	Delete(ctx context.Context, exec sqlx.ExtContext, applicationID, subjectID string) (int64, error)
	ListSnapshotByApplication(ctx context.Context, exec sqlx.ExtContext, applicationID string) ([]models.SubjectSnapshot, error)
}

type snapshotUpserter interface {
	UpsertOpen(ctx context.Context, exec sqlx.ExtContext, snapshot *models.EnrollmentSnapshot) error
}

// UpdateTransfereeCreditsRequest overwrites a transferee's credit evaluation.
type UpdateTransfereeCreditsRequest struct {
	Subjects []models.TransfereeCredit `json:"subjects" validate:"required,dive"`
}

// BulkAssignResult reports the outcome of a best-effort batch assignment.
type BulkAssignResult struct {
	AssignedCount int `json:"assigned_count"`
	SkippedCount  int `json:"skipped_count"`
}

// AssignmentService manages subject seats: eligibility, capacity, duplicates,
// and the incremental snapshot of the open cycle.
type AssignmentService struct {
	apps      assignmentAppRepository
	subjects  subjectLocker
	links     linkStore
	snapshots snapshotUpserter
	effects   effectsRecorder
	tx        txProvider
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssignmentService constructs AssignmentService.
func NewAssignmentService(apps assignmentAppRepository, subjects subjectLocker, links linkStore, snapshots snapshotUpserter, effects effectsRecorder, tx txProvider, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		apps:      apps,
		subjects:  subjects,
		links:     links,
		snapshots: snapshots,
		effects:   effects,
		tx:        tx,
		validator: validate,
		logger:    logger,
	}
}

// Assign seats the student in a subject. All checks and the insert run under
// one transaction with the subject row locked, so capacity cannot be oversold.
func (s *AssignmentService) Assign(ctx context.Context, actor models.Actor, applicationID, subjectID string) (*models.EnrollmentLink, error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	app, err := s.loadAssignable(ctx, tx, applicationID)
	if err != nil {
		return nil, err
	}

	link, subject, err := s.assignOne(ctx, tx, app, subjectID)
	if err != nil {
		return nil, err
	}
	if err := s.refreshSnapshot(ctx, tx, app); err != nil {
		return nil, err
	}

	if err := s.effects.Notify(ctx, tx, app.UserID,
		"Subject Assigned",
		fmt.Sprintf("You have been enrolled in %s - %s.", subject.SubjectCode, subject.SubjectName),
		models.NotifSubjectsAssigned); err != nil {
		return nil, err
	}
	details := subject.SubjectCode
	if err := s.effects.Audit(ctx, tx, actor, models.AuditSubjectAssigned, app.Label(), &details); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit assignment")
	}
	s.logger.Info("subject assigned",
		zap.String("application_id", app.ID),
		zap.String("subject_code", subject.SubjectCode),
		zap.String("actor", actor.Email))
	return link, nil
}

// BulkAssign seats the student in each subject it can; items failing
// eligibility, capacity, or duplication are skipped rather than aborting the
// batch.
func (s *AssignmentService) BulkAssign(ctx context.Context, actor models.Actor, applicationID string, subjectIDs []string) (*BulkAssignResult, error) {
	if len(subjectIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no subjects provided")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	app, err := s.loadAssignable(ctx, tx, applicationID)
	if err != nil {
		return nil, err
	}

	result := &BulkAssignResult{}
	for _, subjectID := range subjectIDs {
		if _, _, err := s.assignOne(ctx, tx, app, subjectID); err != nil {
			if isSkippableAssignError(err) {
				result.SkippedCount++
				continue
			}
			return nil, err
		}
		result.AssignedCount++
	}

	if result.AssignedCount > 0 {
		if err := s.refreshSnapshot(ctx, tx, app); err != nil {
			return nil, err
		}
		if err := s.effects.Notify(ctx, tx, app.UserID,
			"Subjects Assigned",
			fmt.Sprintf("You have been enrolled in %d subject(s) for this semester.", result.AssignedCount),
			models.NotifSubjectsAssigned); err != nil {
			return nil, err
		}
	}
	details := fmt.Sprintf("%d assigned, %d skipped", result.AssignedCount, result.SkippedCount)
	if err := s.effects.Audit(ctx, tx, actor, models.AuditSubjectsBulk, app.Label(), &details); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit bulk assignment")
	}
	s.logger.Info("subjects bulk assigned",
		zap.String("application_id", app.ID),
		zap.Int("assigned", result.AssignedCount),
		zap.Int("skipped", result.SkippedCount),
		zap.String("actor", actor.Email))
	return result, nil
}

// Unassign releases the student's seat in a subject.
func (s *AssignmentService) Unassign(ctx context.Context, actor models.Actor, applicationID, subjectID string) error {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	app, err := s.apps.FindByIDForUpdate(ctx, tx, applicationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}

	rows, err := s.links.Delete(ctx, tx, applicationID, subjectID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unassign subject")
	}
	if rows == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "subject assignment not found")
	}

	if app.PaymentStatus == models.PaymentVerified {
		if err := s.refreshSnapshot(ctx, tx, app); err != nil {
			return err
		}
	}
	details := subjectID
	if err := s.effects.Audit(ctx, tx, actor, models.AuditSubjectUnassigned, app.Label(), &details); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit unassignment")
	}
	s.logger.Info("subject unassigned",
		zap.String("application_id", app.ID),
		zap.String("subject_id", subjectID),
		zap.String("actor", actor.Email))
	return nil
}

// UpdateTransfereeCredits overwrites the transferee's credit evaluation list
// and summarizes decided entries to the student.
func (s *AssignmentService) UpdateTransfereeCredits(ctx context.Context, actor models.Actor, applicationID string, req UpdateTransfereeCreditsRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid credit evaluation payload")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	app, err := s.apps.FindByIDForUpdate(ctx, tx, applicationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if app.EnrollmentType == nil || *app.EnrollmentType != models.EnrollmentTransferee {
		return appErrors.Clone(appErrors.ErrInvalidState, "application is not a transferee enrollment")
	}

	payload, err := json.Marshal(req.Subjects)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode credit evaluation")
	}
	if err := s.apps.SetTransfereeCredits(ctx, tx, app.ID, payload); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save credit evaluation")
	}

	credited, notCredited := 0, 0
	for _, credit := range req.Subjects {
		switch credit.CreditStatus {
		case models.CreditCredited:
			credited++
		case models.CreditNotCredited:
			notCredited++
		}
	}
	if credited > 0 || notCredited > 0 {
		summary := fmt.Sprintf("%d credited, %d not credited", credited, notCredited)
		if err := s.effects.Notify(ctx, tx, app.UserID,
			"Credit Evaluation Updated",
			fmt.Sprintf("Your transferee credit evaluation has been updated: %s.", summary),
			models.NotifCreditsEvaluated); err != nil {
			return err
		}
		if err := s.effects.Audit(ctx, tx, actor, models.AuditCreditsEvaluated, app.Label(), &summary); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit credit evaluation")
	}
	s.logger.Info("transferee credits evaluated",
		zap.String("application_id", app.ID),
		zap.Int("credited", credited),
		zap.Int("not_credited", notCredited),
		zap.String("actor", actor.Email))
	return nil
}

// loadAssignable locks the application and checks it can receive subjects.
func (s *AssignmentService) loadAssignable(ctx context.Context, tx *sqlx.Tx, applicationID string) (*models.Application, error) {
	app, err := s.apps.FindByIDForUpdate(ctx, tx, applicationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if app.Status != models.StatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("application is %s, not approved", app.Status))
	}
	if app.PaymentStatus != models.PaymentVerified {
		return nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("payment is %s, not verified", app.PaymentStatus))
	}
	return app, nil
}

// assignOne runs the per-subject checks and inserts the link. The subject row
// is locked before counting seats so concurrent assignments serialize.
func (s *AssignmentService) assignOne(ctx context.Context, tx *sqlx.Tx, app *models.Application, subjectID string) (*models.EnrollmentLink, *models.Subject, error) {
	subject, err := s.subjects.FindByIDForUpdate(ctx, tx, subjectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	if app.Strand != nil && *app.Strand != "" && *app.Strand != subject.Strand {
		return nil, nil, appErrors.Clone(appErrors.ErrEligibilityMismatch,
			fmt.Sprintf("subject %s is for strand %s", subject.SubjectCode, subject.Strand))
	}
	if app.GradeLevelToEnroll != nil && *app.GradeLevelToEnroll != "" && *app.GradeLevelToEnroll != subject.GradeLevel {
		return nil, nil, appErrors.Clone(appErrors.ErrEligibilityMismatch,
			fmt.Sprintf("subject %s is for grade %s", subject.SubjectCode, subject.GradeLevel))
	}

	count, err := s.links.CountBySubject(ctx, tx, subjectID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrolled students")
	}
	if count >= subject.MaxStudents {
		return nil, nil, appErrors.Clone(appErrors.ErrCapacityExceeded,
			fmt.Sprintf("subject %s is full (%d/%d)", subject.SubjectCode, count, subject.MaxStudents))
	}

	exists, err := s.links.Exists(ctx, tx, app.ID, subjectID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing assignment")
	}
	if exists {
		return nil, nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment,
			fmt.Sprintf("already enrolled in %s", subject.SubjectCode))
	}

	link := &models.EnrollmentLink{ApplicationID: app.ID, SubjectID: subjectID}
	if err := s.links.Create(ctx, tx, link); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}
	return link, subject, nil
}

// refreshSnapshot rewrites the open cycle snapshot from the current links.
func (s *AssignmentService) refreshSnapshot(ctx context.Context, tx *sqlx.Tx, app *models.Application) error {
	lines, err := s.links.ListSnapshotByApplication(ctx, tx, app.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to collect snapshot subjects")
	}
	payload, err := json.Marshal(lines)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode snapshot subjects")
	}
	snapshot := &models.EnrollmentSnapshot{
		ApplicationID:  app.ID,
		SchoolYear:     app.SchoolYear,
		Semester:       app.Semester,
		GradeLevel:     app.GradeLevelToEnroll,
		Strand:         app.Strand,
		EnrollmentType: enrollmentTypeString(app.EnrollmentType),
		StudentNumber:  app.StudentNumber,
		Subjects:       payload,
	}
	if err := s.snapshots.UpsertOpen(ctx, tx, snapshot); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update cycle snapshot")
	}
	return nil
}

func isSkippableAssignError(err error) bool {
	appErr := appErrors.FromError(err)
	switch appErr.Code {
	case appErrors.ErrNotFound.Code,
		appErrors.ErrEligibilityMismatch.Code,
		appErrors.ErrCapacityExceeded.Code,
		appErrors.ErrDuplicateEnrollment.Code:
		return true
	}
	return false
}

func enrollmentTypeString(t *models.EnrollmentType) *string {
	if t == nil {
		return nil
	}
	s := string(*t)
	return &s
}
