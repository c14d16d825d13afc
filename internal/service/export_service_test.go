package service

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dbtc-online/enrollment-api/internal/models"
	appErrors "github.com/dbtc-online/enrollment-api/pkg/errors"
)

type exportAppStub struct {
	pages [][]models.ApplicationDetail
	total int
	calls int
}

func (r *exportAppStub) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	r.calls++
	if filter.Page > len(r.pages) {
		return nil, r.total, nil
	}
	return r.pages[filter.Page-1], r.total, nil
}

type exportRosterStub struct {
	students []models.ApplicationDetail
}

func (r *exportRosterStub) ListStudentsBySubject(ctx context.Context, subjectID string) ([]models.ApplicationDetail, error) {
	return r.students, nil
}

func exportDetail(number, lastName, email string) models.ApplicationDetail {
	detail := models.ApplicationDetail{Email: email}
	detail.StudentNumber = &number
	detail.LastName = &lastName
	detail.Status = models.StatusApproved
	detail.PaymentStatus = models.PaymentVerified
	return detail
}

func TestExportServiceStudentsCSV(t *testing.T) {
	apps := &exportAppStub{
		pages: [][]models.ApplicationDetail{{
			exportDetail("DBTC-1-25", "Dela Cruz", "juan@test.com"),
			exportDetail("DBTC-2-25", "Santos", "maria@test.com"),
		}},
		total: 2,
	}
	svc := NewExportService(apps, &exportRosterStub{}, "", nil)

	file, err := svc.Students(context.Background(), models.ApplicationFilter{}, "csv")
	require.NoError(t, err)
	require.Equal(t, "text/csv", file.ContentType)
	require.True(t, strings.HasPrefix(file.Filename, "students_"))
	require.True(t, strings.HasSuffix(file.Filename, ".csv"))

	body := string(file.Data)
	require.Contains(t, body, "Student Number")
	require.Contains(t, body, "DBTC-1-25")
	require.Contains(t, body, "maria@test.com")
}

func TestExportServiceStudentsPaginatesThroughAllPages(t *testing.T) {
	apps := &exportAppStub{
		pages: [][]models.ApplicationDetail{
			{exportDetail("DBTC-1-25", "Dela Cruz", "juan@test.com")},
			{exportDetail("DBTC-2-25", "Santos", "maria@test.com")},
		},
		total: 2,
	}
	svc := NewExportService(apps, &exportRosterStub{}, "", nil)

	file, err := svc.Students(context.Background(), models.ApplicationFilter{PageSize: 1}, "csv")
	require.NoError(t, err)
	require.Contains(t, string(file.Data), "DBTC-2-25")
	require.Equal(t, 2, apps.calls)
}

func TestExportServiceStudentsPDF(t *testing.T) {
	apps := &exportAppStub{
		pages: [][]models.ApplicationDetail{{exportDetail("DBTC-1-25", "Dela Cruz", "juan@test.com")}},
		total: 1,
	}
	svc := NewExportService(apps, &exportRosterStub{}, "", nil)

	file, err := svc.Students(context.Background(), models.ApplicationFilter{}, "pdf")
	require.NoError(t, err)
	require.Equal(t, "application/pdf", file.ContentType)
	require.True(t, bytes.HasPrefix(file.Data, []byte("%PDF")))
}

func TestExportServiceRejectsUnknownFormat(t *testing.T) {
	svc := NewExportService(&exportAppStub{}, &exportRosterStub{}, "", nil)

	_, err := svc.Students(context.Background(), models.ApplicationFilter{}, "xlsx")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportServiceRetainsCopyWhenConfigured(t *testing.T) {
	apps := &exportAppStub{
		pages: [][]models.ApplicationDetail{{exportDetail("DBTC-1-25", "Dela Cruz", "juan@test.com")}},
		total: 1,
	}
	dir := t.TempDir()
	svc := NewExportService(apps, &exportRosterStub{}, dir, nil)

	file, err := svc.Students(context.Background(), models.ApplicationFilter{}, "csv")
	require.NoError(t, err)

	retained, err := os.ReadFile(filepath.Join(dir, file.Filename))
	require.NoError(t, err)
	require.Equal(t, file.Data, retained)
}

func TestExportServiceSubjectRoster(t *testing.T) {
	roster := &exportRosterStub{students: []models.ApplicationDetail{
		exportDetail("DBTC-1-25", "Dela Cruz", "juan@test.com"),
	}}
	svc := NewExportService(&exportAppStub{}, roster, "", nil)

	file, err := svc.SubjectRoster(context.Background(), "subj-1", "csv")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(file.Filename, "subject_roster_"))
	require.Contains(t, string(file.Data), "Dela Cruz")
}
