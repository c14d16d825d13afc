package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/dbtc-online/enrollment-api/internal/models"
	appErrors "github.com/dbtc-online/enrollment-api/pkg/errors"
	"github.com/dbtc-online/enrollment-api/pkg/export"
)

type exportApplicationReader interface {
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error)
}

type exportRosterReader interface {
	ListStudentsBySubject(ctx context.Context, subjectID string) ([]models.ApplicationDetail, error)
}

// ExportFile is a rendered export ready to stream to the client.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders student lists as CSV or PDF downloads. When a
// retention directory is configured, every rendered file is also written
// there for the registrar's records.
type ExportService struct {
	apps         exportApplicationReader
	roster       exportRosterReader
	csv          *export.CSVExporter
	pdf          *export.PDFExporter
	retentionDir string
	logger       *zap.Logger
}

// NewExportService constructs ExportService.
func NewExportService(apps exportApplicationReader, roster exportRosterReader, retentionDir string, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		apps:         apps,
		roster:       roster,
		csv:          export.NewCSVExporter(),
		pdf:          export.NewPDFExporter(),
		retentionDir: retentionDir,
		logger:       logger,
	}
}

var studentExportHeaders = []string{
	"Student Number", "Last Name", "First Name", "Email",
	"Grade Level", "Strand", "Status", "Payment Status", "Enrollment Type",
}

// Students exports the filtered application list in the requested format
// ("csv" or "pdf").
func (s *ExportService) Students(ctx context.Context, filter models.ApplicationFilter, format string) (*ExportFile, error) {
	filter.PageSize = 100
	var all []models.ApplicationDetail
	for page := 1; ; page++ {
		filter.Page = page
		applications, total, err := s.apps.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
		}
		all = append(all, applications...)
		if len(applications) == 0 || len(all) >= total {
			break
		}
	}
	dataset := export.Dataset{Headers: studentExportHeaders, Rows: studentRows(all)}
	return s.render(dataset, "students", "Enrolled Students", format)
}

// SubjectRoster exports the list of students seated in one subject.
func (s *ExportService) SubjectRoster(ctx context.Context, subjectID, format string) (*ExportFile, error) {
	students, err := s.roster.ListStudentsBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subject roster")
	}
	dataset := export.Dataset{Headers: studentExportHeaders, Rows: studentRows(students)}
	return s.render(dataset, "subject_roster", "Subject Roster", format)
}

func (s *ExportService) render(dataset export.Dataset, prefix, title, format string) (*ExportFile, error) {
	var file *ExportFile
	switch strings.ToLower(format) {
	case "csv", "":
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		file = &ExportFile{Filename: export.Filename(prefix, "csv"), ContentType: "text/csv", Data: data}
	case "pdf":
		data, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		file = &ExportFile{Filename: export.Filename(prefix, "pdf"), ContentType: "application/pdf", Data: data}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	s.retain(file)
	return file, nil
}

// retain writes a copy of the export under the retention directory. Failures
// are logged but never block the download.
func (s *ExportService) retain(file *ExportFile) {
	if s.retentionDir == "" {
		return
	}
	if err := os.MkdirAll(s.retentionDir, 0o755); err != nil {
		s.logger.Warn("failed to prepare export retention dir", zap.Error(err))
		return
	}
	path := filepath.Join(s.retentionDir, file.Filename)
	if err := os.WriteFile(path, file.Data, 0o644); err != nil {
		s.logger.Warn("failed to retain export copy", zap.String("path", path), zap.Error(err))
	}
}

func studentRows(applications []models.ApplicationDetail) []map[string]string {
	rows := make([]map[string]string, 0, len(applications))
	for _, app := range applications {
		rows = append(rows, map[string]string{
			"Student Number":  deref(app.StudentNumber),
			"Last Name":       deref(app.LastName),
			"First Name":      deref(app.FirstName),
			"Email":           app.Email,
			"Grade Level":     deref(app.GradeLevelToEnroll),
			"Strand":          deref(app.Strand),
			"Status":          string(app.Status),
			"Payment Status":  string(app.PaymentStatus),
			"Enrollment Type": derefEnrollmentType(app.EnrollmentType),
		})
	}
	return rows
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefEnrollmentType(t *models.EnrollmentType) string {
	if t == nil {
		return ""
	}
	return string(*t)
}
