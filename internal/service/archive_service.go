package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/dbtc-online/enrollment-api/internal/models"
	appErrors "github.com/dbtc-online/enrollment-api/pkg/errors"
)

type archiveAppRepository interface {
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Application, error)
	ResetCycle(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type archiveLinkStore interface {
	ListSnapshotByApplication(ctx context.Context, exec sqlx.ExtContext, applicationID string) ([]models.SubjectSnapshot, error)
	DeleteAllForApplication(ctx context.Context, exec sqlx.ExtContext, applicationID string) error
}

type snapshotArchiver interface {
	UpsertOpen(ctx context.Context, exec sqlx.ExtContext, snapshot *models.EnrollmentSnapshot) error
	FinalizeOpen(ctx context.Context, exec sqlx.ExtContext, applicationID string, archivedAt time.Time) (int64, error)
	ListByApplication(ctx context.Context, applicationID string) ([]models.EnrollmentSnapshot, error)
}

// ArchiveService closes a finished enrollment cycle: it finalizes the cycle
// snapshot, releases all seats, and resets the live application so the
// student can re-enroll.
type ArchiveService struct {
	apps      archiveAppRepository
	links     archiveLinkStore
	snapshots snapshotArchiver
	effects   effectsRecorder
	tx        txProvider
	logger    *zap.Logger
}

// NewArchiveService constructs ArchiveService.
func NewArchiveService(apps archiveAppRepository, links archiveLinkStore, snapshots snapshotArchiver, effects effectsRecorder, tx txProvider, logger *zap.Logger) *ArchiveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveService{apps: apps, links: links, snapshots: snapshots, effects: effects, tx: tx, logger: logger}
}

// ShouldArchive reports whether the application holds a completed cycle worth
// archiving: verified payment plus at least one active seat. The condition
// turns false after ArchiveCycle resets the live state, which is what makes
// repeated archiving a no-op.
func (s *ArchiveService) ShouldArchive(app *models.Application, linkCount int) bool {
	return app.PaymentStatus == models.PaymentVerified && linkCount > 0
}

// ArchiveCycle snapshots the current cycle and resets the live state.
func (s *ArchiveService) ArchiveCycle(ctx context.Context, actor models.Actor, applicationID string) (*models.EnrollmentSnapshot, error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	app, err := s.apps.FindByIDForUpdate(ctx, tx, applicationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}

	lines, err := s.links.ListSnapshotByApplication(ctx, tx, applicationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to collect cycle subjects")
	}
	if !s.ShouldArchive(app, len(lines)) {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "no completed cycle to archive")
	}

	payload, err := json.Marshal(lines)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode cycle subjects")
	}
	archivedAt := time.Now().UTC()
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
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write cycle snapshot")
	}
	if _, err := s.snapshots.FinalizeOpen(ctx, tx, app.ID, archivedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize cycle snapshot")
	}

	if err := s.links.DeleteAllForApplication(ctx, tx, app.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release seats")
	}
	if err := s.apps.ResetCycle(ctx, tx, app.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset application")
	}

	if err := s.effects.Audit(ctx, tx, actor, models.AuditEnrollmentArchived, app.Label(), nil); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit archive")
	}
	snapshot.Finalized = true
	snapshot.ArchivedAt = &archivedAt
	s.logger.Info("enrollment cycle archived",
		zap.String("application_id", app.ID),
		zap.Int("subjects", len(lines)),
		zap.String("actor", actor.Email))
	return snapshot, nil
}

// History returns the application's archived and open snapshots, newest first.
func (s *ArchiveService) History(ctx context.Context, applicationID string) ([]models.EnrollmentSnapshot, error) {
	snapshots, err := s.snapshots.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollment history")
	}
	return snapshots, nil
}
