package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/dbtc-online/enrollment-api/internal/models"
	appErrors "github.com/dbtc-online/enrollment-api/pkg/errors"
)

type studentAppRepository interface {
	FindByUserID(ctx context.Context, userID string) (*models.Application, error)
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Application, error)
	UpdateProfile(ctx context.Context, exec sqlx.ExtContext, app *models.Application) error
	SavePayment(ctx context.Context, exec sqlx.ExtContext, app *models.Application) error
}

type enrolledSubjectReader interface {
	ListByApplication(ctx context.Context, applicationID string) ([]models.EnrolledSubject, error)
}

type cycleArchiver interface {
	ShouldArchive(app *models.Application, linkCount int) bool
	ArchiveCycle(ctx context.Context, actor models.Actor, applicationID string) (*models.EnrollmentSnapshot, error)
	History(ctx context.Context, applicationID string) ([]models.EnrollmentSnapshot, error)
}

// UpdateProfileRequest carries the student-editable enrollment form. Nil
// fields keep their stored values.
type UpdateProfileRequest struct {
	SchoolYear         *string    `json:"school_year"`
	Semester           *string    `json:"semester"`
	LRN                *string    `json:"lrn"`
	GradeLevelToEnroll *string    `json:"grade_level_to_enroll"`
	LastSchoolAttended *string    `json:"last_school_attended"`
	Strand             *string    `json:"strand"`
	LastName           *string    `json:"last_name"`
	FirstName          *string    `json:"first_name"`
	MiddleName         *string    `json:"middle_name"`
	Suffix             *string    `json:"suffix"`
	Birthday           *time.Time `json:"birthday"`
	Age                *int       `json:"age" validate:"omitempty,gte=0,lte=120"`
	Sex                *string    `json:"sex" validate:"omitempty,oneof=Male Female"`
	Religion           *string    `json:"religion"`
	Province           *string    `json:"province"`
	CityMunicipality   *string    `json:"city_municipality"`
	Barangay           *string    `json:"barangay"`
	HouseNoStreet      *string    `json:"house_no_street"`
	GuardianFullName   *string    `json:"guardian_full_name"`
	GuardianContact    *string    `json:"guardian_contact"`

	EnrollmentType *models.EnrollmentType `json:"enrollment_type" validate:"omitempty,oneof=NEW_ENROLLEE TRANSFEREE RE_ENROLLEE"`

	PhotoPath     *string        `json:"-"`
	DocumentPaths types.JSONText `json:"-"`
}

// StudentService is the student self-service surface: the enrollment form,
// receipt submission, and read-only views of the student's own state.
type StudentService struct {
	apps      studentAppRepository
	links     enrolledSubjectReader
	archiver  cycleArchiver
	effects   effectsRecorder
	tx        txProvider
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs StudentService.
func NewStudentService(apps studentAppRepository, links enrolledSubjectReader, archiver cycleArchiver, effects effectsRecorder, tx txProvider, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{apps: apps, links: links, archiver: archiver, effects: effects, tx: tx, validator: validate, logger: logger}
}

// Profile returns the student's own application.
func (s *StudentService) Profile(ctx context.Context, userID string) (*models.Application, error) {
	app, err := s.apps.FindByUserID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return app, nil
}

// Status returns the lightweight status view.
func (s *StudentService) Status(ctx context.Context, userID string) (*models.StatusSummary, error) {
	app, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.StatusSummary{
		StudentNumber: app.StudentNumber,
		Status:        app.Status,
		PaymentStatus: app.PaymentStatus,
		FirstName:     app.FirstName,
		LastName:      app.LastName,
	}, nil
}

// EnrolledSubjects returns the student's active seats.
func (s *StudentService) EnrolledSubjects(ctx context.Context, userID string) ([]models.EnrolledSubject, error) {
	app, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	subjects, err := s.links.ListByApplication(ctx, app.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolled subjects")
	}
	return subjects, nil
}

// History returns the student's past and open cycle snapshots.
func (s *StudentService) History(ctx context.Context, userID string) ([]models.EnrollmentSnapshot, error) {
	app, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.archiver.History(ctx, app.ID)
}

// UpdateProfile applies the student's enrollment form. When the previous
// cycle is complete (verified payment with assigned subjects) it is archived
// first, so the form submission starts a fresh cycle.
func (s *StudentService) UpdateProfile(ctx context.Context, actor models.Actor, req UpdateProfileRequest) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment form")
	}

	current, err := s.Profile(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	seats, err := s.links.ListByApplication(ctx, current.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolled subjects")
	}
	if s.archiver.ShouldArchive(current, len(seats)) {
		if _, err := s.archiver.ArchiveCycle(ctx, actor, current.ID); err != nil {
			return nil, err
		}
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	app, err := s.apps.FindByIDForUpdate(ctx, tx, current.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	applyProfile(app, req)

	if err := s.apps.UpdateProfile(ctx, tx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save enrollment form")
	}

	if err := s.effects.NotifyRole(ctx, tx, models.RoleRegistrar,
		"New Enrollment Form",
		fmt.Sprintf("%s submitted an enrollment form.", app.Label()),
		models.NotifNewFormSubmitted); err != nil {
		return nil, err
	}
	if err := s.effects.Audit(ctx, tx, actor, models.AuditApplicationSubmit, app.Label(), nil); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit enrollment form")
	}
	s.logger.Info("enrollment form submitted", zap.String("application_id", app.ID))
	return app, nil
}

// SubmitReceipt attaches an uploaded payment receipt and moves payment to
// pending verification. Only approved applications without a pending or
// verified payment may submit.
func (s *StudentService) SubmitReceipt(ctx context.Context, actor models.Actor, receiptPath string) (*models.Application, error) {
	current, err := s.Profile(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	app, err := s.apps.FindByIDForUpdate(ctx, tx, current.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if app.Status != models.StatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "application is not approved")
	}
	if app.PaymentStatus != models.PaymentUnpaid {
		return nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("payment is already %s", app.PaymentStatus))
	}

	app.PaymentReceiptPath = &receiptPath
	app.PaymentStatus = models.PaymentPendingVerification
	if err := s.apps.SavePayment(ctx, tx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save receipt")
	}

	if err := s.effects.NotifyRole(ctx, tx, models.RoleRegistrar,
		"New Payment Receipt",
		fmt.Sprintf("%s uploaded a payment receipt for verification.", app.Label()),
		models.NotifNewReceiptUploaded); err != nil {
		return nil, err
	}
	if err := s.effects.Audit(ctx, tx, actor, models.AuditReceiptUploaded, app.Label(), nil); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit receipt")
	}
	s.logger.Info("payment receipt submitted", zap.String("application_id", app.ID))
	return app, nil
}

func applyProfile(app *models.Application, req UpdateProfileRequest) {
	if req.SchoolYear != nil {
		app.SchoolYear = req.SchoolYear
	}
	if req.Semester != nil {
		app.Semester = req.Semester
	}
	if req.LRN != nil {
		app.LRN = req.LRN
	}
	if req.GradeLevelToEnroll != nil {
		app.GradeLevelToEnroll = req.GradeLevelToEnroll
	}
	if req.LastSchoolAttended != nil {
		app.LastSchoolAttended = req.LastSchoolAttended
	}
	if req.Strand != nil {
		app.Strand = req.Strand
	}
	if req.LastName != nil {
		app.LastName = req.LastName
	}
	if req.FirstName != nil {
		app.FirstName = req.FirstName
	}
	if req.MiddleName != nil {
		app.MiddleName = req.MiddleName
	}
	if req.Suffix != nil {
		app.Suffix = req.Suffix
	}
	if req.Birthday != nil {
		app.Birthday = req.Birthday
	}
	if req.Age != nil {
		app.Age = req.Age
	}
	if req.Sex != nil {
		app.Sex = req.Sex
	}
	if req.Religion != nil {
		app.Religion = req.Religion
	}
	if req.Province != nil {
		app.Province = req.Province
	}
	if req.CityMunicipality != nil {
		app.CityMunicipality = req.CityMunicipality
	}
	if req.Barangay != nil {
		app.Barangay = req.Barangay
	}
	if req.HouseNoStreet != nil {
		app.HouseNoStreet = req.HouseNoStreet
	}
	if req.GuardianFullName != nil {
		app.GuardianFullName = req.GuardianFullName
	}
	if req.GuardianContact != nil {
		app.GuardianContact = req.GuardianContact
	}
	if req.EnrollmentType != nil {
		app.EnrollmentType = req.EnrollmentType
	}
	if req.PhotoPath != nil {
		app.PhotoPath = req.PhotoPath
	}
	if req.DocumentPaths != nil {
		app.DocumentPaths = req.DocumentPaths
	}
}
