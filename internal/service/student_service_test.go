package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/dbtc-online/enrollment-api/internal/models"
	appErrors "github.com/dbtc-online/enrollment-api/pkg/errors"
)

type studentAppStub struct {
	app            *models.Application
	updatedProfile *models.Application
	savedPayment   *models.Application
}

func (r *studentAppStub) FindByUserID(ctx context.Context, userID string) (*models.Application, error) {
	if r.app == nil || r.app.UserID != userID {
		return nil, sql.ErrNoRows
	}
	copy := *r.app
	return &copy, nil
}

func (r *studentAppStub) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Application, error) {
	if r.app == nil || r.app.ID != id {
		return nil, sql.ErrNoRows
	}
	copy := *r.app
	return &copy, nil
}

func (r *studentAppStub) UpdateProfile(ctx context.Context, exec sqlx.ExtContext, app *models.Application) error {
	copy := *app
	r.updatedProfile = &copy
	r.app = &copy
	return nil
}

func (r *studentAppStub) SavePayment(ctx context.Context, exec sqlx.ExtContext, app *models.Application) error {
	copy := *app
	r.savedPayment = &copy
	r.app = &copy
	return nil
}

type enrolledReaderStub struct {
	subjects []models.EnrolledSubject
}

func (r *enrolledReaderStub) ListByApplication(ctx context.Context, applicationID string) ([]models.EnrolledSubject, error) {
	return r.subjects, nil
}

type cycleArchiverStub struct {
	archive      bool
	archiveCalls int
	history      []models.EnrollmentSnapshot
}

func (a *cycleArchiverStub) ShouldArchive(app *models.Application, linkCount int) bool {
	return a.archive
}

func (a *cycleArchiverStub) ArchiveCycle(ctx context.Context, actor models.Actor, applicationID string) (*models.EnrollmentSnapshot, error) {
	a.archiveCalls++
	return &models.EnrollmentSnapshot{ApplicationID: applicationID, Finalized: true}, nil
}

func (a *cycleArchiverStub) History(ctx context.Context, applicationID string) ([]models.EnrollmentSnapshot, error) {
	return a.history, nil
}

func TestStudentServiceUpdateProfile(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	repo := &studentAppStub{app: pendingApplication()}
	archiver := &cycleArchiverStub{}
	effects := &effectsStub{}
	svc := NewStudentService(repo, &enrolledReaderStub{}, archiver, effects, tx, nil, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	age := 17
	app, err := svc.UpdateProfile(context.Background(), models.Actor{UserID: "user-1"}, UpdateProfileRequest{
		SchoolYear: strptr("2026-2027"),
		Strand:     strptr("STEM"),
		Age:        &age,
		Sex:        strptr("Male"),
	})
	require.NoError(t, err)
	require.Equal(t, "2026-2027", *app.SchoolYear)
	require.Equal(t, "STEM", *app.Strand)
	require.Equal(t, 17, *app.Age)
	require.NotNil(t, repo.updatedProfile)
	require.Zero(t, archiver.archiveCalls)

	require.Len(t, effects.roleNotes, 1)
	require.Equal(t, models.RoleRegistrar, effects.roleNotes[0].role)
	require.Equal(t, "New Enrollment Form", effects.roleNotes[0].title)
	require.Len(t, effects.audits, 1)
	require.Equal(t, models.AuditApplicationSubmit, effects.audits[0].action)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentServiceUpdateProfileArchivesCompletedCycle(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	repo := &studentAppStub{app: assignableApplication()}
	archiver := &cycleArchiverStub{archive: true}
	svc := NewStudentService(repo, &enrolledReaderStub{subjects: []models.EnrolledSubject{{SubjectID: "subj-1"}}}, archiver, &effectsStub{}, tx, nil, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := svc.UpdateProfile(context.Background(), models.Actor{UserID: "user-1"}, UpdateProfileRequest{
		SchoolYear: strptr("2026-2027"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, archiver.archiveCalls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentServiceUpdateProfileRejectsInvalidSex(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	svc := NewStudentService(&studentAppStub{app: pendingApplication()}, &enrolledReaderStub{}, &cycleArchiverStub{}, &effectsStub{}, tx, nil, nil)

	_, err := svc.UpdateProfile(context.Background(), models.Actor{UserID: "user-1"}, UpdateProfileRequest{Sex: strptr("Other")})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentServiceSubmitReceipt(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	app := pendingApplication()
	app.Status = models.StatusApproved
	repo := &studentAppStub{app: app}
	effects := &effectsStub{}
	svc := NewStudentService(repo, &enrolledReaderStub{}, &cycleArchiverStub{}, effects, tx, nil, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	updated, err := svc.SubmitReceipt(context.Background(), models.Actor{UserID: "user-1"}, "receipts/ref-123.jpg")
	require.NoError(t, err)
	require.Equal(t, models.PaymentPendingVerification, updated.PaymentStatus)
	require.Equal(t, "receipts/ref-123.jpg", *updated.PaymentReceiptPath)

	require.Len(t, effects.roleNotes, 1)
	require.Equal(t, "New Payment Receipt", effects.roleNotes[0].title)
	require.Len(t, effects.audits, 1)
	require.Equal(t, models.AuditReceiptUploaded, effects.audits[0].action)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentServiceSubmitReceiptRequiresApproval(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	svc := NewStudentService(&studentAppStub{app: pendingApplication()}, &enrolledReaderStub{}, &cycleArchiverStub{}, &effectsStub{}, tx, nil, nil)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.SubmitReceipt(context.Background(), models.Actor{UserID: "user-1"}, "receipts/ref-123.jpg")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentServiceSubmitReceiptAlreadyPending(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	app := submittedApplication()
	svc := NewStudentService(&studentAppStub{app: app}, &enrolledReaderStub{}, &cycleArchiverStub{}, &effectsStub{}, tx, nil, nil)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.SubmitReceipt(context.Background(), models.Actor{UserID: "user-1"}, "receipts/other.jpg")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentServiceStatus(t *testing.T) {
	app := assignableApplication()
	svc := NewStudentService(&studentAppStub{app: app}, &enrolledReaderStub{}, &cycleArchiverStub{}, &effectsStub{}, noopTxProvider{}, nil, nil)

	summary, err := svc.Status(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, "DBTC-1-25", *summary.StudentNumber)
	require.Equal(t, models.StatusApproved, summary.Status)
	require.Equal(t, models.PaymentVerified, summary.PaymentStatus)
}

func TestStudentServiceProfileNotFound(t *testing.T) {
	svc := NewStudentService(&studentAppStub{}, &enrolledReaderStub{}, &cycleArchiverStub{}, &effectsStub{}, noopTxProvider{}, nil, nil)

	_, err := svc.Profile(context.Background(), "ghost")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceHistory(t *testing.T) {
	archiver := &cycleArchiverStub{history: []models.EnrollmentSnapshot{{ID: "snap-1", Finalized: true}}}
	svc := NewStudentService(&studentAppStub{app: pendingApplication()}, &enrolledReaderStub{}, archiver, &effectsStub{}, noopTxProvider{}, nil, nil)

	history, err := svc.History(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
}
