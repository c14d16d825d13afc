package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/dbtc-online/enrollment-api/internal/models"
	appErrors "github.com/dbtc-online/enrollment-api/pkg/errors"
)

type assignmentAppStub struct {
	app     *models.Application
	credits []byte
}

func (r *assignmentAppStub) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Application, error) {
	if r.app == nil || r.app.ID != id {
		return nil, sql.ErrNoRows
	}
	copy := *r.app
	return &copy, nil
}

func (r *assignmentAppStub) SetTransfereeCredits(ctx context.Context, exec sqlx.ExtContext, id string, credits []byte) error {
	r.credits = credits
	return nil
}

type subjectLockerStub struct {
	subjects map[string]*models.Subject
}

func (s *subjectLockerStub) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Subject, error) {
	subject, ok := s.subjects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *subject
	return &copy, nil
}

type linkStoreStub struct {
	existing map[string]bool
	counts   map[string]int
	created  []models.EnrollmentLink
	deleted  []string
}

func newLinkStoreStub() *linkStoreStub {
	return &linkStoreStub{existing: make(map[string]bool), counts: make(map[string]int)}
}

func linkKey(applicationID, subjectID string) string {
	return applicationID + "|" + subjectID
}

func (l *linkStoreStub) Create(ctx context.Context, exec sqlx.ExtContext, link *models.EnrollmentLink) error {
	l.created = append(l.created, *link)
	l.existing[linkKey(link.ApplicationID, link.SubjectID)] = true
	l.counts[link.SubjectID]++
	return nil
}

func (l *linkStoreStub) Exists(ctx context.Context, exec sqlx.ExtContext, applicationID, subjectID string) (bool, error) {
	return l.existing[linkKey(applicationID, subjectID)], nil
}

func (l *linkStoreStub) CountBySubject(ctx context.Context, exec sqlx.ExtContext, subjectID string) (int, error) {
	return l.counts[subjectID], nil
}

func (l *linkStoreStub) Delete(ctx context.Context, exec sqlx.ExtContext, applicationID, subjectID string) (int64, error) {
	key := linkKey(applicationID, subjectID)
	if !l.existing[key] {
		return 0, nil
	}
	delete(l.existing, key)
	l.counts[subjectID]--
	l.deleted = append(l.deleted, key)
	return 1, nil
}

func (l *linkStoreStub) ListSnapshotByApplication(ctx context.Context, exec sqlx.ExtContext, applicationID string) ([]models.SubjectSnapshot, error) {
	lines := make([]models.SubjectSnapshot, 0, len(l.created))
	for _, link := range l.created {
		if link.ApplicationID == applicationID && l.existing[linkKey(link.ApplicationID, link.SubjectID)] {
			lines = append(lines, models.SubjectSnapshot{SubjectCode: link.SubjectID})
		}
	}
	return lines, nil
}

type snapshotUpserterStub struct {
	upserts []*models.EnrollmentSnapshot
}

func (s *snapshotUpserterStub) UpsertOpen(ctx context.Context, exec sqlx.ExtContext, snapshot *models.EnrollmentSnapshot) error {
	copy := *snapshot
	s.upserts = append(s.upserts, &copy)
	return nil
}

func assignableApplication() *models.Application {
	app := pendingApplication()
	app.Status = models.StatusApproved
	app.PaymentStatus = models.PaymentVerified
	number := "DBTC-1-25"
	app.StudentNumber = &number
	app.Strand = strptr("STEM")
	app.GradeLevelToEnroll = strptr("11")
	return app
}

func mathSubject() *models.Subject {
	return &models.Subject{
		ID:          "subj-1",
		SubjectCode: "PR1-STEM-11",
		SubjectName: "Pre-Calculus",
		Strand:      "STEM",
		GradeLevel:  "11",
		MaxStudents: 35,
	}
}

type assignmentFixture struct {
	svc       *AssignmentService
	apps      *assignmentAppStub
	links     *linkStoreStub
	snapshots *snapshotUpserterStub
	effects   *effectsStub
	mock      sqlmock.Sqlmock
}

func newAssignmentFixture(t *testing.T, app *models.Application, subjects ...*models.Subject) *assignmentFixture {
	tx, mock := newTxProviderMock(t)
	apps := &assignmentAppStub{app: app}
	locker := &subjectLockerStub{subjects: make(map[string]*models.Subject)}
	for _, subject := range subjects {
		locker.subjects[subject.ID] = subject
	}
	links := newLinkStoreStub()
	snapshots := &snapshotUpserterStub{}
	effects := &effectsStub{}
	svc := NewAssignmentService(apps, locker, links, snapshots, effects, tx, nil, nil)
	return &assignmentFixture{svc: svc, apps: apps, links: links, snapshots: snapshots, effects: effects, mock: mock}
}

func TestAssignmentServiceAssign(t *testing.T) {
	f := newAssignmentFixture(t, assignableApplication(), mathSubject())
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	link, err := f.svc.Assign(context.Background(), models.Actor{Email: "registrar@test"}, "app-1", "subj-1")
	require.NoError(t, err)
	require.Equal(t, "app-1", link.ApplicationID)
	require.Equal(t, "subj-1", link.SubjectID)
	require.Len(t, f.links.created, 1)

	require.Len(t, f.snapshots.upserts, 1)
	var lines []models.SubjectSnapshot
	require.NoError(t, json.Unmarshal(f.snapshots.upserts[0].Subjects, &lines))
	require.Len(t, lines, 1)
	require.Equal(t, "DBTC-1-25", *f.snapshots.upserts[0].StudentNumber)

	require.Len(t, f.effects.notes, 1)
	require.Contains(t, f.effects.notes[0].message, "PR1-STEM-11")
	require.Len(t, f.effects.audits, 1)
	require.Equal(t, models.AuditSubjectAssigned, f.effects.audits[0].action)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAssignmentServiceAssignCapacityFull(t *testing.T) {
	subject := mathSubject()
	subject.MaxStudents = 1
	f := newAssignmentFixture(t, assignableApplication(), subject)
	f.links.counts["subj-1"] = 1
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Assign(context.Background(), models.Actor{}, "app-1", "subj-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrCapacityExceeded.Code, appErrors.FromError(err).Code)
	require.Empty(t, f.links.created)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAssignmentServiceAssignStrandMismatch(t *testing.T) {
	subject := mathSubject()
	subject.Strand = "ABM"
	f := newAssignmentFixture(t, assignableApplication(), subject)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Assign(context.Background(), models.Actor{}, "app-1", "subj-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrEligibilityMismatch.Code, appErrors.FromError(err).Code)
	require.Empty(t, f.links.created)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAssignmentServiceAssignDuplicate(t *testing.T) {
	f := newAssignmentFixture(t, assignableApplication(), mathSubject())
	f.links.existing[linkKey("app-1", "subj-1")] = true
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Assign(context.Background(), models.Actor{}, "app-1", "subj-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrDuplicateEnrollment.Code, appErrors.FromError(err).Code)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAssignmentServiceAssignRequiresVerifiedPayment(t *testing.T) {
	app := assignableApplication()
	app.PaymentStatus = models.PaymentPendingVerification
	f := newAssignmentFixture(t, app, mathSubject())
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Assign(context.Background(), models.Actor{}, "app-1", "subj-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	require.Empty(t, f.links.created)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAssignmentServiceBulkAssignSkipsFailedItems(t *testing.T) {
	full := mathSubject()
	full.ID = "subj-2"
	full.SubjectCode = "FULL-STEM-11"
	full.MaxStudents = 1
	f := newAssignmentFixture(t, assignableApplication(), mathSubject(), full)
	f.links.counts["subj-2"] = 1
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.svc.BulkAssign(context.Background(), models.Actor{}, "app-1", []string{"subj-1", "subj-2", "subj-missing"})
	require.NoError(t, err)
	require.Equal(t, 1, result.AssignedCount)
	require.Equal(t, 2, result.SkippedCount)

	require.Len(t, f.effects.notes, 1)
	require.Contains(t, f.effects.notes[0].message, "1 subject(s)")
	require.Len(t, f.effects.audits, 1)
	require.Equal(t, models.AuditSubjectsBulk, f.effects.audits[0].action)
	require.Equal(t, "1 assigned, 2 skipped", *f.effects.audits[0].details)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAssignmentServiceBulkAssignAllSkippedSendsNoNotice(t *testing.T) {
	subject := mathSubject()
	subject.Strand = "ABM"
	f := newAssignmentFixture(t, assignableApplication(), subject)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.svc.BulkAssign(context.Background(), models.Actor{}, "app-1", []string{"subj-1"})
	require.NoError(t, err)
	require.Equal(t, 0, result.AssignedCount)
	require.Equal(t, 1, result.SkippedCount)
	require.Empty(t, f.effects.notes)
	require.Empty(t, f.snapshots.upserts)
	require.Len(t, f.effects.audits, 1)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAssignmentServiceBulkAssignEmptyList(t *testing.T) {
	f := newAssignmentFixture(t, assignableApplication())

	_, err := f.svc.BulkAssign(context.Background(), models.Actor{}, "app-1", nil)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAssignmentServiceUnassignMissingLink(t *testing.T) {
	f := newAssignmentFixture(t, assignableApplication(), mathSubject())
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	err := f.svc.Unassign(context.Background(), models.Actor{}, "app-1", "subj-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAssignmentServiceUnassignRefreshesSnapshot(t *testing.T) {
	f := newAssignmentFixture(t, assignableApplication(), mathSubject())
	f.links.existing[linkKey("app-1", "subj-1")] = true
	f.links.counts["subj-1"] = 1
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	err := f.svc.Unassign(context.Background(), models.Actor{}, "app-1", "subj-1")
	require.NoError(t, err)
	require.Len(t, f.links.deleted, 1)
	require.Len(t, f.snapshots.upserts, 1)
	require.Len(t, f.effects.audits, 1)
	require.Equal(t, models.AuditSubjectUnassigned, f.effects.audits[0].action)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAssignmentServiceTransfereeCreditsRequireTransferee(t *testing.T) {
	app := assignableApplication()
	enrollmentType := models.EnrollmentNew
	app.EnrollmentType = &enrollmentType
	f := newAssignmentFixture(t, app)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	err := f.svc.UpdateTransfereeCredits(context.Background(), models.Actor{}, "app-1", UpdateTransfereeCreditsRequest{
		Subjects: []models.TransfereeCredit{{Subject: "Algebra", CreditStatus: models.CreditCredited}},
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAssignmentServiceTransfereeCreditsSummarizeDecisions(t *testing.T) {
	app := assignableApplication()
	enrollmentType := models.EnrollmentTransferee
	app.EnrollmentType = &enrollmentType
	f := newAssignmentFixture(t, app)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	err := f.svc.UpdateTransfereeCredits(context.Background(), models.Actor{}, "app-1", UpdateTransfereeCreditsRequest{
		Subjects: []models.TransfereeCredit{
			{Subject: "Algebra", CreditStatus: models.CreditCredited},
			{Subject: "Physics", CreditStatus: models.CreditNotCredited},
			{Subject: "Chemistry", CreditStatus: models.CreditPending},
		},
	})
	require.NoError(t, err)

	var stored []models.TransfereeCredit
	require.NoError(t, json.Unmarshal(f.apps.credits, &stored))
	require.Len(t, stored, 3)

	require.Len(t, f.effects.notes, 1)
	require.Contains(t, f.effects.notes[0].message, "1 credited, 1 not credited")
	require.Len(t, f.effects.audits, 1)
	require.Equal(t, models.AuditCreditsEvaluated, f.effects.audits[0].action)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAssignmentServiceTransfereeCreditsAllPendingSkipsNotice(t *testing.T) {
	app := assignableApplication()
	enrollmentType := models.EnrollmentTransferee
	app.EnrollmentType = &enrollmentType
	f := newAssignmentFixture(t, app)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	err := f.svc.UpdateTransfereeCredits(context.Background(), models.Actor{}, "app-1", UpdateTransfereeCreditsRequest{
		Subjects: []models.TransfereeCredit{{Subject: "Algebra", CreditStatus: models.CreditPending}},
	})
	require.NoError(t, err)
	require.Empty(t, f.effects.notes)
	require.Empty(t, f.effects.audits)
	require.NoError(t, f.mock.ExpectationsWereMet())
}
