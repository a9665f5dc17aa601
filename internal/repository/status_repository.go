package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/campusops/nodues-api/internal/models"
)

// StatusRepository persists per-department review state and runs the
// clearance state machine inside database transactions.
type StatusRepository struct {
	db *sqlx.DB
}

// NewStatusRepository constructs the repository.
func NewStatusRepository(db *sqlx.DB) *StatusRepository {
	return &StatusRepository{db: db}
}

const statusColumns = `id, form_id, department_name, status, rejection_reason, rejection_count,
       action_at, action_by_user_id, created_at, updated_at`

// ListByForm returns every department row for a form ordered by name.
func (r *StatusRepository) ListByForm(ctx context.Context, formID string) ([]models.DepartmentStatus, error) {
	query := fmt.Sprintf("SELECT %s FROM no_dues_status WHERE form_id = $1 ORDER BY department_name ASC", statusColumns)
	var statuses []models.DepartmentStatus
	if err := r.db.SelectContext(ctx, &statuses, query, formID); err != nil {
		return nil, fmt.Errorf("list department statuses: %w", err)
	}
	return statuses, nil
}

// Get fetches one department row for a form.
func (r *StatusRepository) Get(ctx context.Context, formID, department string) (*models.DepartmentStatus, error) {
	query := fmt.Sprintf("SELECT %s FROM no_dues_status WHERE form_id = $1 AND department_name = $2", statusColumns)
	var status models.DepartmentStatus
	if err := r.db.GetContext(ctx, &status, query, formID, department); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrDepartmentNotFound
		}
		return nil, fmt.Errorf("get department status: %w", err)
	}
	return &status, nil
}

// ListPendingForDepartment returns forms still awaiting a decision from the
// named department.
func (r *StatusRepository) ListPendingForDepartment(ctx context.Context, department string, limit, offset int) ([]models.ClearanceForm, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM no_dues_forms f
	WHERE EXISTS (
		SELECT 1 FROM no_dues_status s
		WHERE s.form_id = f.id AND s.department_name = $1 AND s.status = 'pending'
	)
	ORDER BY f.created_at ASC LIMIT %d OFFSET %d`, formColumns, limit, offset)

	var forms []models.ClearanceForm
	if err := r.db.SelectContext(ctx, &forms, query, department); err != nil {
		return nil, 0, fmt.Errorf("list pending forms for department: %w", err)
	}

	const countQuery = `SELECT COUNT(*) FROM no_dues_status WHERE department_name = $1 AND status = 'pending'`
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, department); err != nil {
		return nil, 0, fmt.Errorf("count pending forms for department: %w", err)
	}
	return forms, total, nil
}

// TransitionParams describes one staff decision on one department row.
type TransitionParams struct {
	FormID     string
	Department string
	Action     models.ClearanceAction
	Reason     string
	ActorID    string
}

// TransitionOutcome reports the committed result of a decision.
type TransitionOutcome struct {
	Form                *models.ClearanceForm
	Statuses            []models.DepartmentStatus
	Department          models.DepartmentStatus
	BecameFullyApproved bool
}

// ApplyTransition runs one decision end to end inside a transaction:
//
//  1. lock the form row with SELECT ... FOR UPDATE, serializing concurrent
//     decisions on the same form,
//  2. apply the department update guarded on status = 'pending' so a row
//     already decided yields zero rows instead of a double write,
//  3. recompute the aggregate from all department rows and persist it.
//
// When every department has approved, the stored status stays in_progress and
// BecameFullyApproved is set; the certificate pipeline publishes the final
// completed state together with the certificate location.
func (r *StatusRepository) ApplyTransition(ctx context.Context, params TransitionParams) (*TransitionOutcome, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	form, err := lockForm(ctx, tx, params.FormID)
	if err != nil {
		return nil, err
	}
	if form.Status == models.FormStatusCompleted || form.CertificateURL != nil {
		return nil, ErrFormTerminal
	}

	now := time.Now().UTC()
	var result sql.Result
	switch params.Action {
	case models.ActionApprove:
		const approve = `UPDATE no_dues_status
		SET status = 'approved', rejection_reason = NULL, action_at = $1, action_by_user_id = $2, updated_at = $1
		WHERE form_id = $3 AND department_name = $4 AND status = 'pending'`
		result, err = tx.ExecContext(ctx, approve, now, params.ActorID, params.FormID, params.Department)
	case models.ActionReject:
		const reject = `UPDATE no_dues_status
		SET status = 'rejected', rejection_reason = $1, rejection_count = rejection_count + 1,
		    action_at = $2, action_by_user_id = $3, updated_at = $2
		WHERE form_id = $4 AND department_name = $5 AND status = 'pending'`
		result, err = tx.ExecContext(ctx, reject, params.Reason, now, params.ActorID, params.FormID, params.Department)
	default:
		return nil, fmt.Errorf("unsupported action %q", params.Action)
	}
	if err != nil {
		return nil, fmt.Errorf("apply %s: %w", params.Action, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check transition rows: %w", err)
	}
	if rows == 0 {
		return nil, r.classifyZeroRows(ctx, tx, params.FormID, params.Department)
	}

	statuses, err := listStatusesTx(ctx, tx, params.FormID)
	if err != nil {
		return nil, err
	}

	aggregate := models.AggregateStatus(statuses)
	becameFullyApproved := aggregate == models.FormStatusCompleted
	stored := aggregate
	if becameFullyApproved {
		stored = models.FormStatusInProgress
	}
	if stored != form.Status {
		const updateForm = `UPDATE no_dues_forms SET status = $1, updated_at = $2 WHERE id = $3`
		if _, err := tx.ExecContext(ctx, updateForm, stored, now, params.FormID); err != nil {
			return nil, fmt.Errorf("persist aggregate status: %w", err)
		}
		form.Status = stored
		form.UpdatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition tx: %w", err)
	}

	outcome := &TransitionOutcome{
		Form:                form,
		Statuses:            statuses,
		BecameFullyApproved: becameFullyApproved,
	}
	for _, s := range statuses {
		if s.DepartmentName == params.Department {
			outcome.Department = s
			break
		}
	}
	return outcome, nil
}

// classifyZeroRows distinguishes an unknown department from a row already
// moved out of pending.
func (r *StatusRepository) classifyZeroRows(ctx context.Context, tx *sqlx.Tx, formID, department string) error {
	var exists bool
	const query = `SELECT EXISTS (SELECT 1 FROM no_dues_status WHERE form_id = $1 AND department_name = $2)`
	if err := tx.GetContext(ctx, &exists, query, formID, department); err != nil {
		return fmt.Errorf("classify transition conflict: %w", err)
	}
	if !exists {
		return ErrDepartmentNotFound
	}
	return ErrStatusNotPending
}

func lockForm(ctx context.Context, tx *sqlx.Tx, formID string) (*models.ClearanceForm, error) {
	query := fmt.Sprintf("SELECT %s FROM no_dues_forms WHERE id = $1 FOR UPDATE", formColumns)
	var form models.ClearanceForm
	if err := tx.GetContext(ctx, &form, query, formID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrFormNotFound
		}
		return nil, fmt.Errorf("lock clearance form: %w", err)
	}
	return &form, nil
}

func listStatusesTx(ctx context.Context, tx *sqlx.Tx, formID string) ([]models.DepartmentStatus, error) {
	query := fmt.Sprintf("SELECT %s FROM no_dues_status WHERE form_id = $1 ORDER BY department_name ASC", statusColumns)
	var statuses []models.DepartmentStatus
	if err := tx.SelectContext(ctx, &statuses, query, formID); err != nil {
		return nil, fmt.Errorf("list department statuses in tx: %w", err)
	}
	return statuses, nil
}
