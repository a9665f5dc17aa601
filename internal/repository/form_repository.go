package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campusops/nodues-api/internal/models"
)

// FormRepository persists clearance forms and their department fan-out.
type FormRepository struct {
	db *sqlx.DB
}

// NewFormRepository constructs the repository.
func NewFormRepository(db *sqlx.DB) *FormRepository {
	return &FormRepository{db: db}
}

const formColumns = `id, registration_no, student_name, parent_name, school, course, branch,
       contact_no, personal_email, college_email, admission_year, passing_year,
       status, reapplication_count, last_reapplied_at, certificate_url, created_at, updated_at`

// Create inserts a new form plus one pending status row per department in a
// single transaction. A student may hold at most one non-completed form: the
// EXISTS check catches the common case early, and the partial unique index on
// active registration numbers settles concurrent submissions that both pass
// it. Either path surfaces ErrDuplicateActiveForm.
func (r *FormRepository) Create(ctx context.Context, form *models.ClearanceForm, departments []string) error {
	if len(departments) == 0 {
		return fmt.Errorf("create clearance form: no departments configured")
	}
	if form.ID == "" {
		form.ID = uuid.NewString()
	}
	if form.Status == "" {
		form.Status = models.FormStatusPending
	}
	now := time.Now().UTC()
	form.CreatedAt = now
	form.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create form tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists bool
	const dupQuery = `SELECT EXISTS (SELECT 1 FROM no_dues_forms WHERE registration_no = $1 AND status <> 'completed')`
	if err := tx.GetContext(ctx, &exists, dupQuery, form.RegistrationNo); err != nil {
		return fmt.Errorf("check duplicate form: %w", err)
	}
	if exists {
		return ErrDuplicateActiveForm
	}

	const insertForm = `INSERT INTO no_dues_forms
	(id, registration_no, student_name, parent_name, school, course, branch,
	 contact_no, personal_email, college_email, admission_year, passing_year,
	 status, reapplication_count, last_reapplied_at, certificate_url, created_at, updated_at)
	VALUES (:id, :registration_no, :student_name, :parent_name, :school, :course, :branch,
	 :contact_no, :personal_email, :college_email, :admission_year, :passing_year,
	 :status, :reapplication_count, :last_reapplied_at, :certificate_url, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertForm, form); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateActiveForm
		}
		return fmt.Errorf("insert clearance form: %w", err)
	}

	const insertStatus = `INSERT INTO no_dues_status
	(id, form_id, department_name, status, rejection_count, created_at, updated_at)
	VALUES ($1, $2, $3, 'pending', 0, $4, $4)`
	for _, dept := range departments {
		if _, err := tx.ExecContext(ctx, insertStatus, uuid.NewString(), form.ID, dept, now); err != nil {
			return fmt.Errorf("insert department status %s: %w", dept, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create form tx: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// GetByID fetches a form by identifier.
func (r *FormRepository) GetByID(ctx context.Context, id string) (*models.ClearanceForm, error) {
	query := fmt.Sprintf("SELECT %s FROM no_dues_forms WHERE id = $1", formColumns)
	var form models.ClearanceForm
	if err := r.db.GetContext(ctx, &form, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrFormNotFound
		}
		return nil, fmt.Errorf("get clearance form: %w", err)
	}
	return &form, nil
}

// GetByRegistrationNo returns the most recent form for a registration number.
func (r *FormRepository) GetByRegistrationNo(ctx context.Context, registrationNo string) (*models.ClearanceForm, error) {
	query := fmt.Sprintf("SELECT %s FROM no_dues_forms WHERE registration_no = $1 ORDER BY created_at DESC LIMIT 1", formColumns)
	var form models.ClearanceForm
	if err := r.db.GetContext(ctx, &form, query, registrationNo); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrFormNotFound
		}
		return nil, fmt.Errorf("get clearance form by registration: %w", err)
	}
	return &form, nil
}

// List returns forms matching the filter with total count (latest first).
func (r *FormRepository) List(ctx context.Context, filter models.FormFilter) ([]models.ClearanceForm, int, error) {
	baseQuery := "FROM no_dues_forms WHERE 1=1"
	var conditions []string
	var args []interface{}

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.RegistrationNo != "" {
		args = append(args, filter.RegistrationNo)
		conditions = append(conditions, fmt.Sprintf("registration_no = $%d", len(args)))
	}
	if filter.School != "" {
		args = append(args, filter.School)
		conditions = append(conditions, fmt.Sprintf("school = $%d", len(args)))
	}
	if filter.Course != "" {
		args = append(args, filter.Course)
		conditions = append(conditions, fmt.Sprintf("course = $%d", len(args)))
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", formColumns, baseQuery, limit, offset)
	var forms []models.ClearanceForm
	if err := r.db.SelectContext(ctx, &forms, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list clearance forms: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + baseQuery
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count clearance forms: %w", err)
	}

	return forms, total, nil
}

// PublishCertificate marks the form completed and records the certificate
// location. The certificate_url guard makes the publish exactly-once: a
// second writer finds zero rows and backs off.
func (r *FormRepository) PublishCertificate(ctx context.Context, formID, certificateURL string) error {
	const query = `UPDATE no_dues_forms
	SET status = 'completed', certificate_url = $1, updated_at = $2
	WHERE id = $3 AND certificate_url IS NULL`
	result, err := r.db.ExecContext(ctx, query, certificateURL, time.Now().UTC(), formID)
	if err != nil {
		return fmt.Errorf("publish certificate: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check certificate publish rows: %w", err)
	}
	if rows == 0 {
		return ErrCertificatePublished
	}
	return nil
}

// ListAwaitingCertificate returns forms whose departments have all approved
// but whose certificate has not been published yet. Used on startup to
// recover completion jobs lost to a crash.
func (r *FormRepository) ListAwaitingCertificate(ctx context.Context) ([]models.ClearanceForm, error) {
	query := fmt.Sprintf(`SELECT %s FROM no_dues_forms f
	WHERE f.certificate_url IS NULL
	  AND f.status <> 'completed'
	  AND NOT EXISTS (
		SELECT 1 FROM no_dues_status s
		WHERE s.form_id = f.id AND s.status <> 'approved'
	  )`, formColumns)
	var forms []models.ClearanceForm
	if err := r.db.SelectContext(ctx, &forms, query); err != nil {
		return nil, fmt.Errorf("list forms awaiting certificate: %w", err)
	}
	return forms, nil
}
