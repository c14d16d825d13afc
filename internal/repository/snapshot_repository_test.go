package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/dbtc-online/enrollment-api/internal/models"
)

func newSnapshotRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSnapshotRepositoryUpsertOpen(t *testing.T) {
	db, mock, cleanup := newSnapshotRepoMock(t)
	defer cleanup()
	repo := NewSnapshotRepository(db)

	mock.ExpectExec("INSERT INTO enrollment_snapshots").
		WillReturnResult(sqlmock.NewResult(0, 1))

	snapshot := &models.EnrollmentSnapshot{ApplicationID: "app-1", Subjects: []byte(`[]`)}
	err := repo.UpsertOpen(context.Background(), nil, snapshot)
	require.NoError(t, err)
	require.NotEmpty(t, snapshot.ID)
	require.False(t, snapshot.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRepositoryFinalizeOpen(t *testing.T) {
	db, mock, cleanup := newSnapshotRepoMock(t)
	defer cleanup()
	repo := NewSnapshotRepository(db)

	archivedAt := time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_snapshots SET finalized = TRUE, archived_at = $2")).
		WithArgs("app-1", archivedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	finalized, err := repo.FinalizeOpen(context.Background(), nil, "app-1", archivedAt)
	require.NoError(t, err)
	require.EqualValues(t, 1, finalized)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRepositoryFinalizeOpenWithoutOpenSnapshot(t *testing.T) {
	db, mock, cleanup := newSnapshotRepoMock(t)
	defer cleanup()
	repo := NewSnapshotRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_snapshots SET finalized = TRUE, archived_at = $2")).
		WithArgs("app-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	finalized, err := repo.FinalizeOpen(context.Background(), nil, "app-1", time.Now().UTC())
	require.NoError(t, err)
	require.Zero(t, finalized)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRepositoryListByApplication(t *testing.T) {
	db, mock, cleanup := newSnapshotRepoMock(t)
	defer cleanup()
	repo := NewSnapshotRepository(db)

	rows := sqlmock.NewRows([]string{"id", "application_id", "subjects", "finalized", "created_at"}).
		AddRow("snap-2", "app-1", []byte(`[]`), false, time.Now()).
		AddRow("snap-1", "app-1", []byte(`[{"subject_code":"GEN-MATH-11"}]`), true, time.Now().Add(-time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM enrollment_snapshots")).
		WithArgs("app-1").
		WillReturnRows(rows)

	snapshots, err := repo.ListByApplication(context.Background(), "app-1")
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	require.False(t, snapshots[0].Finalized)
	require.True(t, snapshots[1].Finalized)
	require.NoError(t, mock.ExpectationsWereMet())
}
