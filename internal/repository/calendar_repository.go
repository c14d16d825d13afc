package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dbtc-online/enrollment-api/internal/models"
)

// CalendarRepository manages the single academic calendar row.
type CalendarRepository struct {
	db *sqlx.DB
}

// NewCalendarRepository constructs a CalendarRepository.
func NewCalendarRepository(db *sqlx.DB) *CalendarRepository {
	return &CalendarRepository{db: db}
}

// Get returns the current academic calendar.
func (r *CalendarRepository) Get(ctx context.Context) (*models.AcademicCalendar, error) {
	var calendar models.AcademicCalendar
	err := r.db.GetContext(ctx, &calendar,
		"SELECT * FROM academic_calendar ORDER BY created_at DESC LIMIT 1")
	if err != nil {
		return nil, err
	}
	return &calendar, nil
}

// Upsert writes the calendar, replacing the previous settings.
func (r *CalendarRepository) Upsert(ctx context.Context, calendar *models.AcademicCalendar) error {
	if calendar.ID == "" {
		calendar.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if calendar.CreatedAt.IsZero() {
		calendar.CreatedAt = now
	}
	calendar.UpdatedAt = now
	const query = `INSERT INTO academic_calendar
        (id, school_year, semester, enrollment_start, enrollment_end, is_open, created_at, updated_at)
        VALUES (:id, :school_year, :semester, :enrollment_start, :enrollment_end, :is_open, :created_at, :updated_at)
        ON CONFLICT (id) DO UPDATE SET school_year = EXCLUDED.school_year,
         semester = EXCLUDED.semester, enrollment_start = EXCLUDED.enrollment_start,
         enrollment_end = EXCLUDED.enrollment_end, is_open = EXCLUDED.is_open,
         updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, calendar); err != nil {
		return fmt.Errorf("upsert calendar: %w", err)
	}
	return nil
}
