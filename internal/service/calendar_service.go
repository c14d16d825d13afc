package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dbtc-online/enrollment-api/internal/models"
	appErrors "github.com/dbtc-online/enrollment-api/pkg/errors"
)

type calendarRepository interface {
	Get(ctx context.Context) (*models.AcademicCalendar, error)
	Upsert(ctx context.Context, calendar *models.AcademicCalendar) error
}

// UpdateCalendarRequest sets the school-wide enrollment window.
type UpdateCalendarRequest struct {
	SchoolYear      string     `json:"school_year" validate:"required"`
	Semester        string     `json:"semester" validate:"required"`
	EnrollmentStart *time.Time `json:"enrollment_start"`
	EnrollmentEnd   *time.Time `json:"enrollment_end"`
	IsOpen          bool       `json:"is_open"`
}

// CalendarService manages the academic calendar.
type CalendarService struct {
	repo      calendarRepository
	effects   effectsRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCalendarService constructs CalendarService.
func NewCalendarService(repo calendarRepository, effects effectsRecorder, validate *validator.Validate, logger *zap.Logger) *CalendarService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarService{repo: repo, effects: effects, validator: validate, logger: logger}
}

// Get returns the current calendar.
func (s *CalendarService) Get(ctx context.Context) (*models.AcademicCalendar, error) {
	calendar, err := s.repo.Get(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic calendar not set")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load calendar")
	}
	return calendar, nil
}

// Update writes the calendar settings.
func (s *CalendarService) Update(ctx context.Context, actor models.Actor, req UpdateCalendarRequest) (*models.AcademicCalendar, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid calendar payload")
	}

	calendar, err := s.repo.Get(ctx)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load calendar")
	}
	if calendar == nil {
		calendar = &models.AcademicCalendar{}
	}
	calendar.SchoolYear = req.SchoolYear
	calendar.Semester = req.Semester
	calendar.EnrollmentStart = req.EnrollmentStart
	calendar.EnrollmentEnd = req.EnrollmentEnd
	calendar.IsOpen = req.IsOpen

	if err := s.repo.Upsert(ctx, calendar); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save calendar")
	}
	if err := s.effects.Audit(ctx, nil, actor, models.AuditCalendarUpdated, calendar.SchoolYear, nil); err != nil {
		return nil, err
	}
	s.logger.Info("academic calendar updated",
		zap.String("school_year", calendar.SchoolYear),
		zap.String("semester", calendar.Semester),
		zap.String("actor", actor.Email))
	return calendar, nil
}
