package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/dbtc-online/enrollment-api/internal/models"
)

func newApplicationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestApplicationRepositoryCreateAppliesDefaults(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectExec("INSERT INTO applications").
		WillReturnResult(sqlmock.NewResult(0, 1))

	app := &models.Application{UserID: "user-1"}
	err := repo.Create(context.Background(), nil, app)
	require.NoError(t, err)
	require.NotEmpty(t, app.ID)
	require.Equal(t, models.StatusPending, app.Status)
	require.Equal(t, models.PaymentUnpaid, app.PaymentStatus)
	require.False(t, app.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "status", "payment_status", "student_number"}).
		AddRow("app-1", "user-1", models.StatusApproved, models.PaymentVerified, "DBTC-1-25")
	mock.ExpectQuery(regexp.QuoteMeta("FROM applications WHERE id = $1")).
		WithArgs("app-1").
		WillReturnRows(rows)

	app, err := repo.FindByID(context.Background(), "app-1")
	require.NoError(t, err)
	require.Equal(t, "user-1", app.UserID)
	require.Equal(t, "DBTC-1-25", *app.StudentNumber)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryFindByIDForUpdateLocksRow(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "status"}).
		AddRow("app-1", "user-1", models.StatusPending)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 FOR UPDATE")).
		WithArgs("app-1").
		WillReturnRows(rows)

	app, err := repo.FindByIDForUpdate(context.Background(), nil, "app-1")
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, app.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryListFiltersAndPaginates(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "status", "email"}).
		AddRow("app-1", "user-1", models.StatusApproved, "juan@test.com")
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY a.created_at DESC LIMIT 10 OFFSET 10")).
		WithArgs(models.StatusApproved, "%cruz%").
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM applications a JOIN users u").
		WithArgs(models.StatusApproved, "%cruz%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	applications, total, err := repo.List(context.Background(), models.ApplicationFilter{
		Status:   models.StatusApproved,
		Search:   "Cruz",
		Page:     2,
		PageSize: 10,
	})
	require.NoError(t, err)
	require.Len(t, applications, 1)
	require.Equal(t, 11, total)
	require.Equal(t, "juan@test.com", applications[0].Email)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositorySaveDecision(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectExec("UPDATE applications SET status = ").
		WillReturnResult(sqlmock.NewResult(0, 1))

	app := &models.Application{ID: "app-1", Status: models.StatusApproved}
	err := repo.SaveDecision(context.Background(), nil, app)
	require.NoError(t, err)
	require.False(t, app.UpdatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositorySavePayment(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectExec("UPDATE applications SET payment_status = ").
		WillReturnResult(sqlmock.NewResult(0, 1))

	number := "DBTC-1-25"
	app := &models.Application{ID: "app-1", PaymentStatus: models.PaymentVerified, StudentNumber: &number}
	err := repo.SavePayment(context.Background(), nil, app)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryMaxSequenceSkipsMalformedNumbers(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	rows := sqlmock.NewRows([]string{"student_number"}).
		AddRow("DBTC-3-25").
		AddRow("DBTC-12-25").
		AddRow("DBTC-X-25").
		AddRow("LEGACY-25")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT student_number FROM applications WHERE student_number LIKE $1")).
		WithArgs("DBTC-%-25").
		WillReturnRows(rows)

	max, err := repo.MaxSequence(context.Background(), nil, "DBTC", "25")
	require.NoError(t, err)
	require.Equal(t, 12, max)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryMaxSequenceEmptyYear(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT student_number FROM applications WHERE student_number LIKE $1")).
		WithArgs("DBTC-%-26").
		WillReturnRows(sqlmock.NewRows([]string{"student_number"}))

	max, err := repo.MaxSequence(context.Background(), nil, "DBTC", "26")
	require.NoError(t, err)
	require.Zero(t, max)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryResetCycle(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET status = $2, denial_reason = NULL")).
		WithArgs("app-1", models.StatusPending, models.PaymentUnpaid, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ResetCycle(context.Background(), nil, "app-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositorySetTransfereeCredits(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	credits := []byte(`[{"subject_name":"General Mathematics","decision":"credited"}]`)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET transferee_subjects = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("app-1", credits, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetTransfereeCredits(context.Background(), nil, "app-1", credits)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryStatusCounts(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	rows := sqlmock.NewRows([]string{"total", "pending", "approved", "denied"}).
		AddRow(10, 4, 5, 1)
	mock.ExpectQuery("COUNT\\(\\*\\) FILTER").WillReturnRows(rows)

	total, pending, approved, denied, err := repo.StatusCounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, 10, total)
	require.Equal(t, 4, pending)
	require.Equal(t, 5, approved)
	require.Equal(t, 1, denied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryGroupCount(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	rows := sqlmock.NewRows([]string{"strand", "count"}).
		AddRow("STEM", 6).
		AddRow("ABM", 3)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT strand, COUNT(*) FROM applications WHERE strand IS NOT NULL GROUP BY strand")).
		WillReturnRows(rows)

	counts, err := repo.GroupCount(context.Background(), "strand")
	require.NoError(t, err)
	require.Equal(t, map[string]int{"STEM": 6, "ABM": 3}, counts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryGroupCountRejectsUnknownColumn(t *testing.T) {
	db, _, cleanup := newApplicationRepoMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	_, err := repo.GroupCount(context.Background(), "password_hash")
	require.Error(t, err)
}

func TestApplicationRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM applications WHERE id = $1")).
		WithArgs("app-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Delete(context.Background(), nil, "app-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
