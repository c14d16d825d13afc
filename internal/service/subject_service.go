package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dbtc-online/enrollment-api/internal/models"
	appErrors "github.com/dbtc-online/enrollment-api/pkg/errors"
)

type subjectRepository interface {
	Create(ctx context.Context, subject *models.Subject) error
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectWithCount, error)
	Update(ctx context.Context, subject *models.Subject) error
	Delete(ctx context.Context, id string) error
}

type subjectRosterReader interface {
	ListStudentsBySubject(ctx context.Context, subjectID string) ([]models.ApplicationDetail, error)
}

// SubjectRequest creates or replaces a subject offering.
type SubjectRequest struct {
	SubjectCode string `json:"subject_code" validate:"required"`
	SubjectName string `json:"subject_name" validate:"required"`
	Units       int    `json:"units" validate:"required,gte=1"`
	Schedule    string `json:"schedule" validate:"required"`
	Strand      string `json:"strand" validate:"required"`
	GradeLevel  string `json:"grade_level" validate:"required"`
	Semester    string `json:"semester" validate:"required"`
	MaxStudents int    `json:"max_students" validate:"required,gte=1"`
}

// SubjectService manages the subject catalog.
type SubjectService struct {
	repo      subjectRepository
	roster    subjectRosterReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService constructs SubjectService.
func NewSubjectService(repo subjectRepository, roster subjectRosterReader, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{repo: repo, roster: roster, validator: validate, logger: logger}
}

// Create adds a subject offering.
func (s *SubjectService) Create(ctx context.Context, req SubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	subject := &models.Subject{
		SubjectCode: req.SubjectCode,
		SubjectName: req.SubjectName,
		Units:       req.Units,
		Schedule:    req.Schedule,
		Strand:      req.Strand,
		GradeLevel:  req.GradeLevel,
		Semester:    req.Semester,
		MaxStudents: req.MaxStudents,
	}
	if err := s.repo.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	return subject, nil
}

// Get returns one subject.
func (s *SubjectService) Get(ctx context.Context, id string) (*models.Subject, error) {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

// List returns subjects with their enrolled counts.
func (s *SubjectService) List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectWithCount, error) {
	subjects, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return subjects, nil
}

// Update replaces a subject's fields.
func (s *SubjectService) Update(ctx context.Context, id string, req SubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	subject, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	subject.SubjectCode = req.SubjectCode
	subject.SubjectName = req.SubjectName
	subject.Units = req.Units
	subject.Schedule = req.Schedule
	subject.Strand = req.Strand
	subject.GradeLevel = req.GradeLevel
	subject.Semester = req.Semester
	subject.MaxStudents = req.MaxStudents
	if err := s.repo.Update(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}
	return subject, nil
}

// Delete removes a subject and releases every seat in it.
func (s *SubjectService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject")
	}
	return nil
}

// Roster lists the students seated in a subject.
func (s *SubjectService) Roster(ctx context.Context, subjectID string) ([]models.ApplicationDetail, error) {
	if _, err := s.Get(ctx, subjectID); err != nil {
		return nil, err
	}
	students, err := s.roster.ListStudentsBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subject roster")
	}
	return students, nil
}
