package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dbtc-online/enrollment-api/internal/models"
)

// SubjectRepository manages persistence for subject offerings.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs a SubjectRepository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

func (r *SubjectRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create persists a new subject offering.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO subjects (id, subject_code, subject_name, units, schedule,
        strand, grade_level, semester, max_students, created_at)
        VALUES (:id, :subject_code, :subject_name, :units, :schedule,
        :strand, :grade_level, :semester, :max_students, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, subject); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// FindByID returns a subject by its ID.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, "SELECT * FROM subjects WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// FindByIDForUpdate loads a subject inside the caller's transaction and locks
// the row so that concurrent seat counts serialize on it.
func (r *SubjectRepository) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Subject, error) {
	var subject models.Subject
	if err := sqlx.GetContext(ctx, r.exec(exec), &subject, "SELECT * FROM subjects WHERE id = $1 FOR UPDATE", id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// List returns subjects matching the filter, each with its enrolled count.
func (r *SubjectRepository) List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectWithCount, error) {
	conditions := []string{"1=1"}
	var args []interface{}
	if filter.Strand != "" {
		conditions = append(conditions, fmt.Sprintf("s.strand = $%d", len(args)+1))
		args = append(args, filter.Strand)
	}
	if filter.GradeLevel != "" {
		conditions = append(conditions, fmt.Sprintf("s.grade_level = $%d", len(args)+1))
		args = append(args, filter.GradeLevel)
	}
	if filter.Semester != "" {
		conditions = append(conditions, fmt.Sprintf("s.semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	query := fmt.Sprintf(`SELECT s.*, COUNT(e.id) AS enrolled_count
        FROM subjects s
        LEFT JOIN enrolled_subjects e ON e.subject_id = s.id
        WHERE %s
        GROUP BY s.id
        ORDER BY s.subject_code`, strings.Join(conditions, " AND "))

	var subjects []models.SubjectWithCount
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}

// Update overwrites a subject's mutable fields.
func (r *SubjectRepository) Update(ctx context.Context, subject *models.Subject) error {
	const query = `UPDATE subjects SET subject_code = :subject_code, subject_name = :subject_name,
        units = :units, schedule = :schedule, strand = :strand, grade_level = :grade_level,
        semester = :semester, max_students = :max_students
        WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, subject); err != nil {
		return fmt.Errorf("update subject: %w", err)
	}
	return nil
}

// Delete removes a subject and its enrollment links.
func (r *SubjectRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM subjects WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	return nil
}
