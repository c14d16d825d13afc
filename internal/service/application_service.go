package service

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/dbtc-online/enrollment-api/internal/models"
	appErrors "github.com/dbtc-online/enrollment-api/pkg/errors"
)

type applicationDirectory interface {
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error)
	FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error)
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Application, error)
}

type accountRemover interface {
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

// ApplicationService is the staff-facing read and delete surface over
// applications.
type ApplicationService struct {
	apps    applicationDirectory
	users   accountRemover
	effects effectsRecorder
	tx      txProvider
	logger  *zap.Logger
}

// NewApplicationService constructs ApplicationService.
func NewApplicationService(apps applicationDirectory, users accountRemover, effects effectsRecorder, tx txProvider, logger *zap.Logger) *ApplicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationService{apps: apps, users: users, effects: effects, tx: tx, logger: logger}
}

// List returns applications with pagination metadata.
func (s *ApplicationService) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, *models.Pagination, error) {
	applications, total, err := s.apps.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return applications, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one application with its account email.
func (s *ApplicationService) Get(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	detail, err := s.apps.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return detail, nil
}

// Delete removes a student account and, by cascade, its application, seats
// and snapshots.
func (s *ApplicationService) Delete(ctx context.Context, actor models.Actor, applicationID string) error {
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

	label := app.Label()
	if err := s.effects.Audit(ctx, tx, actor, models.AuditStudentDeleted, label, nil); err != nil {
		return err
	}
	if err := s.users.Delete(ctx, tx, app.UserID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete account")
	}

	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit deletion")
	}
	s.logger.Info("student deleted", zap.String("application_id", applicationID), zap.String("actor", actor.Email))
	return nil
}
