package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/campusops/nodues-api/internal/models"
)

var statusRowColumns = []string{
	"id", "form_id", "department_name", "status", "rejection_reason", "rejection_count",
	"action_at", "action_by_user_id", "created_at", "updated_at",
}

func statusRows(formID string, states map[string]string) *sqlmock.Rows {
	now := time.Now()
	rows := sqlmock.NewRows(statusRowColumns)
	for dept, state := range states {
		rows.AddRow("st-"+dept, formID, dept, state, nil, 0, nil, nil, now, now)
	}
	return rows
}

func TestApplyTransitionApproveLastDepartment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewStatusRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, registration_no")).
		WithArgs("form-1").
		WillReturnRows(sampleFormRow("form-1", "in_progress", nil))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE no_dues_status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, form_id")).
		WithArgs("form-1").
		WillReturnRows(statusRows("form-1", map[string]string{
			"library": "approved",
			"hostel":  "approved",
		}))
	mock.ExpectCommit()

	outcome, err := repo.ApplyTransition(context.Background(), TransitionParams{
		FormID:     "form-1",
		Department: "hostel",
		Action:     models.ActionApprove,
		ActorID:    "user-1",
	})
	require.NoError(t, err)
	require.True(t, outcome.BecameFullyApproved)
	require.Equal(t, models.FormStatusInProgress, outcome.Form.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyTransitionRejectDominatesAggregate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewStatusRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, registration_no")).
		WithArgs("form-1").
		WillReturnRows(sampleFormRow("form-1", "in_progress", nil))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE no_dues_status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, form_id")).
		WithArgs("form-1").
		WillReturnRows(statusRows("form-1", map[string]string{
			"library": "approved",
			"hostel":  "rejected",
		}))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE no_dues_forms")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome, err := repo.ApplyTransition(context.Background(), TransitionParams{
		FormID:     "form-1",
		Department: "hostel",
		Action:     models.ActionReject,
		Reason:     "library book not returned",
		ActorID:    "user-1",
	})
	require.NoError(t, err)
	require.False(t, outcome.BecameFullyApproved)
	require.Equal(t, models.FormStatusRejected, outcome.Form.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyTransitionAlreadyDecidedRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewStatusRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, registration_no")).
		WithArgs("form-1").
		WillReturnRows(sampleFormRow("form-1", "in_progress", nil))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE no_dues_status")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("form-1", "library").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := repo.ApplyTransition(context.Background(), TransitionParams{
		FormID:     "form-1",
		Department: "library",
		Action:     models.ActionApprove,
		ActorID:    "user-1",
	})
	require.ErrorIs(t, err, ErrStatusNotPending)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyTransitionUnknownDepartment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewStatusRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, registration_no")).
		WithArgs("form-1").
		WillReturnRows(sampleFormRow("form-1", "pending", nil))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE no_dues_status")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("form-1", "gymkhana").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := repo.ApplyTransition(context.Background(), TransitionParams{
		FormID:     "form-1",
		Department: "gymkhana",
		Action:     models.ActionApprove,
		ActorID:    "user-1",
	})
	require.ErrorIs(t, err, ErrDepartmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyTransitionCompletedFormIsFrozen(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewStatusRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, registration_no")).
		WithArgs("form-1").
		WillReturnRows(sampleFormRow("form-1", "completed", "certificates/form-1.pdf"))
	mock.ExpectRollback()

	_, err := repo.ApplyTransition(context.Background(), TransitionParams{
		FormID:     "form-1",
		Department: "library",
		Action:     models.ActionReject,
		Reason:     "late",
		ActorID:    "user-1",
	})
	require.ErrorIs(t, err, ErrFormTerminal)
	require.NoError(t, mock.ExpectationsWereMet())
}
