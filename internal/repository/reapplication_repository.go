package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusops/nodues-api/internal/models"
)

// ReapplicationRepository persists reapplication resets and their append-only
// history trail.
type ReapplicationRepository struct {
	db *sqlx.DB
}

// NewReapplicationRepository constructs the repository.
func NewReapplicationRepository(db *sqlx.DB) *ReapplicationRepository {
	return &ReapplicationRepository{db: db}
}

// editableFormColumns is the closed set of form columns a student may correct
// during a reapplication. Identity and workflow columns never appear here.
var editableFormColumns = map[string]struct{}{
	"student_name":   {},
	"parent_name":    {},
	"school":         {},
	"course":         {},
	"branch":         {},
	"contact_no":     {},
	"personal_email": {},
	"college_email":  {},
	"admission_year": {},
	"passing_year":   {},
}

// ReapplyParams describes one reapplication attempt against a rejected
// department. Ceilings and cooldown come from configuration so the
// transaction can enforce them under the form lock.
type ReapplyParams struct {
	FormID           string
	Department       string
	Message          string
	EditedFields     map[string]interface{}
	MaxDeptReapply   int
	MaxGlobalReapply int
	Cooldown         time.Duration
}

// ReapplyOutcome reports the committed result of a reapplication.
type ReapplyOutcome struct {
	Form     *models.ClearanceForm
	Statuses []models.DepartmentStatus
	History  *models.ReapplicationHistory
}

// ApplyReapplication resets exactly one rejected department back to pending
// inside a transaction. Rows belonging to other departments keep their state
// untouched. The history entry snapshots every department row as it stood
// before the reset.
func (r *ReapplicationRepository) ApplyReapplication(ctx context.Context, params ReapplyParams) (*ReapplyOutcome, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reapply tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	form, err := lockForm(ctx, tx, params.FormID)
	if err != nil {
		return nil, err
	}
	if form.Status == models.FormStatusCompleted || form.CertificateURL != nil {
		return nil, ErrFormTerminal
	}
	if params.MaxGlobalReapply > 0 && form.ReapplicationCount >= params.MaxGlobalReapply {
		return nil, ErrReapplyLimit
	}
	if params.Cooldown > 0 && form.LastReappliedAt != nil {
		if time.Since(*form.LastReappliedAt) < params.Cooldown {
			return nil, ErrReapplyCooldown
		}
	}

	statuses, err := listStatusesTx(ctx, tx, params.FormID)
	if err != nil {
		return nil, err
	}
	var target *models.DepartmentStatus
	for i := range statuses {
		if statuses[i].DepartmentName == params.Department {
			target = &statuses[i]
			break
		}
	}
	if target == nil {
		return nil, ErrDepartmentNotFound
	}
	if target.Status != models.DeptStatusRejected {
		return nil, ErrStatusNotRejected
	}
	if params.MaxDeptReapply > 0 && target.RejectionCount >= params.MaxDeptReapply {
		return nil, ErrReapplyLimit
	}

	snapshot, err := json.Marshal(statuses)
	if err != nil {
		return nil, fmt.Errorf("snapshot department statuses: %w", err)
	}

	now := time.Now().UTC()

	var editedJSON json.RawMessage
	if len(params.EditedFields) > 0 {
		editedJSON, err = json.Marshal(params.EditedFields)
		if err != nil {
			return nil, fmt.Errorf("marshal edited fields: %w", err)
		}
		if err := applyEditedFields(ctx, tx, params.FormID, params.EditedFields, now); err != nil {
			return nil, err
		}
	}

	history := &models.ReapplicationHistory{
		ID:                  uuid.NewString(),
		FormID:              params.FormID,
		ReapplicationNumber: form.ReapplicationCount + 1,
		DepartmentName:      &params.Department,
		StudentMessage:      params.Message,
		EditedFields:        editedJSON,
		PreviousStatuses:    snapshot,
		CreatedAt:           now,
	}
	const insertHistory = `INSERT INTO no_dues_reapplication_history
	(id, form_id, reapplication_number, department_name, student_message, edited_fields, previous_statuses, created_at)
	VALUES (:id, :form_id, :reapplication_number, :department_name, :student_message, :edited_fields, :previous_statuses, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertHistory, history); err != nil {
		return nil, fmt.Errorf("insert reapplication history: %w", err)
	}

	// Reset only the targeted row. The guard on status = 'rejected' protects
	// against a concurrent decision slipping in before the form lock.
	const resetRow = `UPDATE no_dues_status
	SET status = 'pending', rejection_reason = NULL, action_at = NULL, action_by_user_id = NULL, updated_at = $1
	WHERE form_id = $2 AND department_name = $3 AND status = 'rejected'`
	result, err := tx.ExecContext(ctx, resetRow, now, params.FormID, params.Department)
	if err != nil {
		return nil, fmt.Errorf("reset department status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check reset rows: %w", err)
	}
	if rows == 0 {
		return nil, ErrStatusNotRejected
	}

	target.Status = models.DeptStatusPending
	target.RejectionReason = nil
	target.ActionAt = nil
	target.ActionByUserID = nil
	target.UpdatedAt = now

	aggregate := models.AggregateStatus(statuses)
	const updateForm = `UPDATE no_dues_forms
	SET status = $1, reapplication_count = reapplication_count + 1, last_reapplied_at = $2, updated_at = $2
	WHERE id = $3`
	if _, err := tx.ExecContext(ctx, updateForm, aggregate, now, params.FormID); err != nil {
		return nil, fmt.Errorf("update form after reapply: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reapply tx: %w", err)
	}

	form.Status = aggregate
	form.ReapplicationCount++
	form.LastReappliedAt = &now
	form.UpdatedAt = now

	return &ReapplyOutcome{Form: form, Statuses: statuses, History: history}, nil
}

// ListByForm returns the reapplication trail for a form, newest first.
func (r *ReapplicationRepository) ListByForm(ctx context.Context, formID string) ([]models.ReapplicationHistory, error) {
	const query = `SELECT id, form_id, reapplication_number, department_name, student_message,
       edited_fields, previous_statuses, created_at
	FROM no_dues_reapplication_history
	WHERE form_id = $1
	ORDER BY reapplication_number DESC`
	var entries []models.ReapplicationHistory
	if err := r.db.SelectContext(ctx, &entries, query, formID); err != nil {
		return nil, fmt.Errorf("list reapplication history: %w", err)
	}
	return entries, nil
}

func applyEditedFields(ctx context.Context, tx *sqlx.Tx, formID string, fields map[string]interface{}, now time.Time) error {
	setParts := make([]string, 0, len(fields)+1)
	args := make([]interface{}, 0, len(fields)+2)
	for column, value := range fields {
		if _, ok := editableFormColumns[column]; !ok {
			return fmt.Errorf("field %q is not editable", column)
		}
		args = append(args, value)
		setParts = append(setParts, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	args = append(args, now)
	setParts = append(setParts, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, formID)

	query := fmt.Sprintf("UPDATE no_dues_forms SET %s WHERE id = $%d", strings.Join(setParts, ", "), len(args))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("apply edited fields: %w", err)
	}
	return nil
}
