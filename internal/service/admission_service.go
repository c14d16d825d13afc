package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/dbtc-online/enrollment-api/internal/models"
	appErrors "github.com/dbtc-online/enrollment-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type effectsRecorder interface {
	Notify(ctx context.Context, exec sqlx.ExtContext, userID, title, message string, notifType models.NotificationType) error
	NotifyRole(ctx context.Context, exec sqlx.ExtContext, role models.UserRole, title, message string, notifType models.NotificationType) error
	Audit(ctx context.Context, exec sqlx.ExtContext, actor models.Actor, action, target string, details *string) error
}

type admissionRepository interface {
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Application, error)
	SaveDecision(ctx context.Context, exec sqlx.ExtContext, app *models.Application) error
}

// ApproveRequest carries the optional enrollment fields merged on approval.
// Fields left nil keep whatever value the application already holds.
type ApproveRequest struct {
	EnrollmentType *models.EnrollmentType `json:"enrollment_type" validate:"omitempty,oneof=NEW_ENROLLEE TRANSFEREE RE_ENROLLEE"`
	EnrollmentDate *time.Time             `json:"enrollment_date"`
	PlaceOfBirth   *string                `json:"place_of_birth"`
	Nationality    *string                `json:"nationality"`
	CivilStatus    *string                `json:"civil_status"`
}

// DenyRequest carries the optional denial reason.
type DenyRequest struct {
	Reason *string `json:"reason"`
}

// AdmissionService drives the pending → approved | denied status machine.
type AdmissionService struct {
	repo      admissionRepository
	effects   effectsRecorder
	tx        txProvider
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAdmissionService constructs AdmissionService.
func NewAdmissionService(repo admissionRepository, effects effectsRecorder, tx txProvider, validate *validator.Validate, logger *zap.Logger) *AdmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdmissionService{repo: repo, effects: effects, tx: tx, validator: validate, logger: logger}
}

// Approve moves a pending application to approved, merging any provided
// enrollment fields. The mutation and its side effects commit together.
func (s *AdmissionService) Approve(ctx context.Context, actor models.Actor, applicationID string, req ApproveRequest) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid approval payload")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	app, err := s.repo.FindByIDForUpdate(ctx, tx, applicationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if app.Status != models.StatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("application is already %s", app.Status))
	}

	if req.EnrollmentType != nil {
		app.EnrollmentType = req.EnrollmentType
	}
	if req.EnrollmentDate != nil {
		app.EnrollmentDate = req.EnrollmentDate
	}
	if req.PlaceOfBirth != nil {
		app.PlaceOfBirth = req.PlaceOfBirth
	}
	if req.Nationality != nil {
		app.Nationality = req.Nationality
	}
	if req.CivilStatus != nil {
		app.CivilStatus = req.CivilStatus
	}
	app.Status = models.StatusApproved
	app.DenialReason = nil

	if err := s.repo.SaveDecision(ctx, tx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve application")
	}

	if err := s.effects.Notify(ctx, tx, app.UserID,
		"Application Approved",
		"Congratulations! Your enrollment application has been approved. Please settle your tuition payment to continue.",
		models.NotifApplicationApproved); err != nil {
		return nil, err
	}
	if err := s.effects.NotifyRole(ctx, tx, models.RoleRegistrar,
		"Student Approved",
		fmt.Sprintf("%s has been approved and is awaiting payment verification.", app.Label()),
		models.NotifStudentApproved); err != nil {
		return nil, err
	}
	if err := s.effects.Audit(ctx, tx, actor, models.AuditStudentApproved, app.Label(), nil); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit approval")
	}
	s.logger.Info("application approved", zap.String("application_id", app.ID), zap.String("actor", actor.Email))
	return app, nil
}

// Deny moves a pending application to denied with an optional reason.
func (s *AdmissionService) Deny(ctx context.Context, actor models.Actor, applicationID string, req DenyRequest) (*models.Application, error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	app, err := s.repo.FindByIDForUpdate(ctx, tx, applicationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if app.Status != models.StatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("application is already %s", app.Status))
	}

	reason := trimmedOrNil(req.Reason)
	app.Status = models.StatusDenied
	app.DenialReason = reason

	if err := s.repo.SaveDecision(ctx, tx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deny application")
	}

	message := "We regret to inform you that your enrollment application has been denied."
	if reason != nil {
		message = fmt.Sprintf("%s Reason: %s", message, *reason)
	}
	if err := s.effects.Notify(ctx, tx, app.UserID, "Application Denied", message, models.NotifApplicationDenied); err != nil {
		return nil, err
	}
	if err := s.effects.Audit(ctx, tx, actor, models.AuditStudentDenied, app.Label(), reason); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit denial")
	}
	s.logger.Info("application denied", zap.String("application_id", app.ID), zap.String("actor", actor.Email))
	return app, nil
}

// trimmedOrNil trims a free-text reason and treats the empty result as absent.
func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
