package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dbtc-online/enrollment-api/internal/models"
)

const applicationColumns = `id, user_id, student_number, status,
    school_year, semester, lrn, grade_level_to_enroll, last_school_attended, strand,
    last_name, first_name, middle_name, suffix, birthday, age, sex, religion,
    province, city_municipality, barangay, house_no_street,
    guardian_full_name, guardian_contact,
    enrollment_type, enrollment_date, place_of_birth, nationality, civil_status, denial_reason,
    photo_path, document_paths,
    payment_receipt_path, payment_status, payment_verified_at, payment_rejection_reason,
    transferee_subjects, created_at, updated_at`

// replaceColumnsAlias prefixes every column in a comma-separated list with a
// table alias, for joined queries.
func replaceColumnsAlias(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

// ApplicationRepository manages persistence for student applications.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs an ApplicationRepository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

func (r *ApplicationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create persists a blank application for a newly registered account.
func (r *ApplicationRepository) Create(ctx context.Context, exec sqlx.ExtContext, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now
	if app.Status == "" {
		app.Status = models.StatusPending
	}
	if app.PaymentStatus == "" {
		app.PaymentStatus = models.PaymentUnpaid
	}
	const query = `INSERT INTO applications (id, user_id, status, payment_status, created_at, updated_at)
        VALUES (:id, :user_id, :status, :payment_status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, app); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// FindByID returns an application by its ID.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.Application, error) {
	query := fmt.Sprintf("SELECT %s FROM applications WHERE id = $1", applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// FindByIDForUpdate loads an application inside the caller's transaction and
// locks the row for the remainder of it.
func (r *ApplicationRepository) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Application, error) {
	query := fmt.Sprintf("SELECT %s FROM applications WHERE id = $1 FOR UPDATE", applicationColumns)
	var app models.Application
	if err := sqlx.GetContext(ctx, r.exec(exec), &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// FindByUserID returns the application owned by the given account.
func (r *ApplicationRepository) FindByUserID(ctx context.Context, userID string) (*models.Application, error) {
	query := fmt.Sprintf("SELECT %s FROM applications WHERE user_id = $1", applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, userID); err != nil {
		return nil, err
	}
	return &app, nil
}

// FindByStudentNumber returns the application carrying the given student number.
func (r *ApplicationRepository) FindByStudentNumber(ctx context.Context, number string) (*models.Application, error) {
	query := fmt.Sprintf("SELECT %s FROM applications WHERE student_number = $1", applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, number); err != nil {
		return nil, err
	}
	return &app, nil
}

// FindDetailByID returns an application with its account email.
func (r *ApplicationRepository) FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	query := fmt.Sprintf(`SELECT %s, u.email FROM applications a
        JOIN users u ON u.id = a.user_id WHERE a.id = $1`,
		replaceColumnsAlias(applicationColumns, "a"))
	var detail models.ApplicationDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns applications matching the provided filters.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	base := "FROM applications a JOIN users u ON u.id = a.user_id"
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.PaymentStatus != "" {
		conditions = append(conditions, fmt.Sprintf("a.payment_status = $%d", len(args)+1))
		args = append(args, filter.PaymentStatus)
	}
	if filter.EnrollmentType != "" {
		conditions = append(conditions, fmt.Sprintf("a.enrollment_type = $%d", len(args)+1))
		args = append(args, filter.EnrollmentType)
	}
	if filter.GradeLevel != "" {
		conditions = append(conditions, fmt.Sprintf("a.grade_level_to_enroll = $%d", len(args)+1))
		args = append(args, filter.GradeLevel)
	}
	if filter.Strand != "" {
		conditions = append(conditions, fmt.Sprintf("a.strand = $%d", len(args)+1))
		args = append(args, filter.Strand)
	}
	if filter.Semester != "" {
		conditions = append(conditions, fmt.Sprintf("a.semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.Search != "" {
		idx := len(args) + 1
		conditions = append(conditions, fmt.Sprintf(
			"(LOWER(a.first_name) LIKE $%d OR LOWER(a.last_name) LIKE $%d OR LOWER(a.student_number) LIKE $%d OR LOWER(u.email) LIKE $%d)",
			idx, idx, idx, idx))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s, u.email %s ORDER BY a.created_at DESC LIMIT %d OFFSET %d",
		replaceColumnsAlias(applicationColumns, "a"), base, size, offset)

	var applications []models.ApplicationDetail
	if err := r.db.SelectContext(ctx, &applications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	return applications, total, nil
}

// SaveDecision writes an admission decision together with the enrollment
// fields merged by the approver.
func (r *ApplicationRepository) SaveDecision(ctx context.Context, exec sqlx.ExtContext, app *models.Application) error {
	app.UpdatedAt = time.Now().UTC()
	const query = `UPDATE applications SET status = :status, denial_reason = :denial_reason,
        enrollment_date = :enrollment_date, place_of_birth = :place_of_birth,
        nationality = :nationality, civil_status = :civil_status, updated_at = :updated_at
        WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, app); err != nil {
		return fmt.Errorf("save decision: %w", err)
	}
	return nil
}

// SavePayment writes the payment workflow fields and the student number.
func (r *ApplicationRepository) SavePayment(ctx context.Context, exec sqlx.ExtContext, app *models.Application) error {
	app.UpdatedAt = time.Now().UTC()
	const query = `UPDATE applications SET payment_status = :payment_status,
        payment_receipt_path = :payment_receipt_path, payment_verified_at = :payment_verified_at,
        payment_rejection_reason = :payment_rejection_reason, student_number = :student_number,
        updated_at = :updated_at
        WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, app); err != nil {
		return fmt.Errorf("save payment: %w", err)
	}
	return nil
}

// MaxSequence scans issued student numbers for the given year suffix and
// returns the highest sequence component, or 0 when none exist. Malformed
// numbers are skipped.
func (r *ApplicationRepository) MaxSequence(ctx context.Context, exec sqlx.ExtContext, prefix, yearSuffix string) (int, error) {
	pattern := fmt.Sprintf("%s-%%-%s", prefix, yearSuffix)
	rows, err := r.exec(exec).QueryxContext(ctx,
		"SELECT student_number FROM applications WHERE student_number LIKE $1", pattern)
	if err != nil {
		return 0, fmt.Errorf("scan student numbers: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	max := 0
	for rows.Next() {
		var number string
		if err := rows.Scan(&number); err != nil {
			return 0, fmt.Errorf("scan student number: %w", err)
		}
		parts := strings.Split(number, "-")
		if len(parts) != 3 {
			continue
		}
		seq, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		if seq > max {
			max = seq
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate student numbers: %w", err)
	}
	return max, nil
}

// ResetCycle returns the live state to the start of a fresh enrollment cycle.
func (r *ApplicationRepository) ResetCycle(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `UPDATE applications SET status = $2, denial_reason = NULL,
        payment_status = $3, payment_receipt_path = NULL, payment_verified_at = NULL,
        payment_rejection_reason = NULL, updated_at = $4
        WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, models.StatusPending, models.PaymentUnpaid, time.Now().UTC()); err != nil {
		return fmt.Errorf("reset cycle: %w", err)
	}
	return nil
}

// UpdateProfile writes the student-editable form fields.
func (r *ApplicationRepository) UpdateProfile(ctx context.Context, exec sqlx.ExtContext, app *models.Application) error {
	app.UpdatedAt = time.Now().UTC()
	const query = `UPDATE applications SET
        school_year = :school_year, semester = :semester, lrn = :lrn,
        grade_level_to_enroll = :grade_level_to_enroll, last_school_attended = :last_school_attended,
        strand = :strand, last_name = :last_name, first_name = :first_name,
        middle_name = :middle_name, suffix = :suffix, birthday = :birthday, age = :age,
        sex = :sex, religion = :religion, province = :province,
        city_municipality = :city_municipality, barangay = :barangay,
        house_no_street = :house_no_street, guardian_full_name = :guardian_full_name,
        guardian_contact = :guardian_contact, photo_path = :photo_path,
        document_paths = :document_paths, payment_receipt_path = :payment_receipt_path,
        payment_status = :payment_status, enrollment_type = :enrollment_type,
        updated_at = :updated_at
        WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, app); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// SetTransfereeCredits overwrites the transferee credit evaluation list.
func (r *ApplicationRepository) SetTransfereeCredits(ctx context.Context, exec sqlx.ExtContext, id string, credits []byte) error {
	const query = `UPDATE applications SET transferee_subjects = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, credits, time.Now().UTC()); err != nil {
		return fmt.Errorf("set transferee credits: %w", err)
	}
	return nil
}

// Delete removes an application. Snapshots and links cascade with it.
func (r *ApplicationRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := r.exec(exec).ExecContext(ctx, "DELETE FROM applications WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	return nil
}

// StatusCounts returns the dashboard totals per admission status.
func (r *ApplicationRepository) StatusCounts(ctx context.Context) (total, pending, approved, denied int, err error) {
	const query = `SELECT
        COUNT(*) AS total,
        COUNT(*) FILTER (WHERE status = 'pending') AS pending,
        COUNT(*) FILTER (WHERE status = 'approved') AS approved,
        COUNT(*) FILTER (WHERE status = 'denied') AS denied
        FROM applications`
	row := r.db.QueryRowxContext(ctx, query)
	if scanErr := row.Scan(&total, &pending, &approved, &denied); scanErr != nil {
		return 0, 0, 0, 0, fmt.Errorf("status counts: %w", scanErr)
	}
	return total, pending, approved, denied, nil
}

var groupColumns = map[string]string{
	"grade_level":     "grade_level_to_enroll",
	"strand":          "strand",
	"sex":             "sex",
	"enrollment_type": "enrollment_type",
}

// GroupCount returns a non-null breakdown over one of the allowed columns.
func (r *ApplicationRepository) GroupCount(ctx context.Context, group string) (map[string]int, error) {
	column, ok := groupColumns[group]
	if !ok {
		return nil, fmt.Errorf("unsupported group column %q", group)
	}
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM applications WHERE %s IS NOT NULL GROUP BY %s", column, column, column)
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("group count %s: %w", group, err)
	}
	defer rows.Close() //nolint:errcheck

	result := make(map[string]int)
	for rows.Next() {
		var key sql.NullString
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("scan group count: %w", err)
		}
		if key.Valid {
			result[key.String] = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group counts: %w", err)
	}
	return result, nil
}
