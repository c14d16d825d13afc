package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dbtc-online/enrollment-api/internal/models"
)

// LinkRepository manages the enrolled_subjects join table, one row per seat.
type LinkRepository struct {
	db *sqlx.DB
}

// NewLinkRepository constructs a LinkRepository.
func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

func (r *LinkRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a seat for the application in the subject.
func (r *LinkRepository) Create(ctx context.Context, exec sqlx.ExtContext, link *models.EnrollmentLink) error {
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	if link.EnrolledAt.IsZero() {
		link.EnrolledAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrolled_subjects (id, application_id, subject_id, enrolled_at)
        VALUES (:id, :application_id, :subject_id, :enrolled_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, link); err != nil {
		return fmt.Errorf("create enrollment link: %w", err)
	}
	return nil
}

// Exists reports whether the application already holds a seat in the subject.
func (r *LinkRepository) Exists(ctx context.Context, exec sqlx.ExtContext, applicationID, subjectID string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, r.exec(exec), &exists,
		"SELECT EXISTS (SELECT 1 FROM enrolled_subjects WHERE application_id = $1 AND subject_id = $2)",
		applicationID, subjectID)
	if err != nil {
		return false, fmt.Errorf("check enrollment link: %w", err)
	}
	return exists, nil
}

// CountBySubject returns the number of seats taken in a subject. Callers
// enforcing capacity must hold the subject row lock first.
func (r *LinkRepository) CountBySubject(ctx context.Context, exec sqlx.ExtContext, subjectID string) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, r.exec(exec), &count,
		"SELECT COUNT(*) FROM enrolled_subjects WHERE subject_id = $1", subjectID)
	if err != nil {
		return 0, fmt.Errorf("count enrollment links: %w", err)
	}
	return count, nil
}

// Delete removes one seat. Returns the number of rows removed.
func (r *LinkRepository) Delete(ctx context.Context, exec sqlx.ExtContext, applicationID, subjectID string) (int64, error) {
	res, err := r.exec(exec).ExecContext(ctx,
		"DELETE FROM enrolled_subjects WHERE application_id = $1 AND subject_id = $2",
		applicationID, subjectID)
	if err != nil {
		return 0, fmt.Errorf("delete enrollment link: %w", err)
	}
	return res.RowsAffected()
}

// DeleteAllForApplication clears every seat held by an application.
func (r *LinkRepository) DeleteAllForApplication(ctx context.Context, exec sqlx.ExtContext, applicationID string) error {
	_, err := r.exec(exec).ExecContext(ctx,
		"DELETE FROM enrolled_subjects WHERE application_id = $1", applicationID)
	if err != nil {
		return fmt.Errorf("clear enrollment links: %w", err)
	}
	return nil
}

// ListByApplication returns the student's active seats joined to their subjects.
func (r *LinkRepository) ListByApplication(ctx context.Context, applicationID string) ([]models.EnrolledSubject, error) {
	const query = `SELECT s.id AS subject_id, s.subject_code, s.subject_name, s.units,
        s.schedule, s.strand, s.grade_level, e.enrolled_at
        FROM enrolled_subjects e
        JOIN subjects s ON s.id = e.subject_id
        WHERE e.application_id = $1
        ORDER BY s.subject_code`
	var subjects []models.EnrolledSubject
	if err := r.db.SelectContext(ctx, &subjects, query, applicationID); err != nil {
		return nil, fmt.Errorf("list enrolled subjects: %w", err)
	}
	return subjects, nil
}

// ListSnapshotByApplication returns the compact subject lines used for the
// cycle snapshot, on the caller's executor so archiving sees its own writes.
func (r *LinkRepository) ListSnapshotByApplication(ctx context.Context, exec sqlx.ExtContext, applicationID string) ([]models.SubjectSnapshot, error) {
	const query = `SELECT s.subject_code, s.subject_name, s.schedule
        FROM enrolled_subjects e
        JOIN subjects s ON s.id = e.subject_id
        WHERE e.application_id = $1
        ORDER BY s.subject_code`
	rows, err := r.exec(exec).QueryxContext(ctx, query, applicationID)
	if err != nil {
		return nil, fmt.Errorf("list subject snapshot: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var lines []models.SubjectSnapshot
	for rows.Next() {
		var line models.SubjectSnapshot
		if err := rows.Scan(&line.SubjectCode, &line.SubjectName, &line.Schedule); err != nil {
			return nil, fmt.Errorf("scan subject snapshot: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subject snapshot: %w", err)
	}
	return lines, nil
}

// ListStudentsBySubject returns every application holding a seat in the subject.
func (r *LinkRepository) ListStudentsBySubject(ctx context.Context, subjectID string) ([]models.ApplicationDetail, error) {
	query := fmt.Sprintf(`SELECT %s, u.email
        FROM enrolled_subjects e
        JOIN applications a ON a.id = e.application_id
        JOIN users u ON u.id = a.user_id
        WHERE e.subject_id = $1
        ORDER BY a.last_name, a.first_name`,
		replaceColumnsAlias(applicationColumns, "a"))
	var students []models.ApplicationDetail
	if err := r.db.SelectContext(ctx, &students, query, subjectID); err != nil {
		return nil, fmt.Errorf("list students by subject: %w", err)
	}
	return students, nil
}
