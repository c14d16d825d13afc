package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dbtc-online/enrollment-api/internal/models"
)

// SnapshotRepository manages per-cycle enrollment snapshots. Each application
// has at most one open (non-finalized) snapshot per school year and semester,
// enforced by a partial unique index.
type SnapshotRepository struct {
	db *sqlx.DB
}

// NewSnapshotRepository constructs a SnapshotRepository.
func NewSnapshotRepository(db *sqlx.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

func (r *SnapshotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// UpsertOpen writes the open snapshot for the application's current cycle,
// creating it on first assignment and refreshing the subject list after.
func (r *SnapshotRepository) UpsertOpen(ctx context.Context, exec sqlx.ExtContext, snapshot *models.EnrollmentSnapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollment_snapshots
        (id, application_id, school_year, semester, grade_level, strand,
         enrollment_type, student_number, subjects, finalized, created_at)
        VALUES (:id, :application_id, :school_year, :semester, :grade_level, :strand,
         :enrollment_type, :student_number, :subjects, FALSE, :created_at)
        ON CONFLICT (application_id, school_year, semester) WHERE NOT finalized
        DO UPDATE SET grade_level = EXCLUDED.grade_level, strand = EXCLUDED.strand,
         enrollment_type = EXCLUDED.enrollment_type, student_number = EXCLUDED.student_number,
         subjects = EXCLUDED.subjects`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, snapshot); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// FinalizeOpen marks the application's open snapshot as archived. Returns the
// number of rows finalized, zero when no open snapshot exists.
func (r *SnapshotRepository) FinalizeOpen(ctx context.Context, exec sqlx.ExtContext, applicationID string, archivedAt time.Time) (int64, error) {
	const query = `UPDATE enrollment_snapshots SET finalized = TRUE, archived_at = $2
        WHERE application_id = $1 AND NOT finalized`
	res, err := r.exec(exec).ExecContext(ctx, query, applicationID, archivedAt)
	if err != nil {
		return 0, fmt.Errorf("finalize snapshot: %w", err)
	}
	return res.RowsAffected()
}

// ListByApplication returns the application's snapshots, newest first.
func (r *SnapshotRepository) ListByApplication(ctx context.Context, applicationID string) ([]models.EnrollmentSnapshot, error) {
	const query = `SELECT * FROM enrollment_snapshots
        WHERE application_id = $1 ORDER BY created_at DESC`
	var snapshots []models.EnrollmentSnapshot
	if err := r.db.SelectContext(ctx, &snapshots, query, applicationID); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snapshots, nil
}
