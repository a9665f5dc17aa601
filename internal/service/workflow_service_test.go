package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campusops/nodues-api/internal/dto"
	"github.com/campusops/nodues-api/internal/models"
	"github.com/campusops/nodues-api/internal/repository"
	appErrors "github.com/campusops/nodues-api/pkg/errors"
)

type transitionStoreStub struct {
	params  repository.TransitionParams
	outcome *repository.TransitionOutcome
	err     error
}

func (s *transitionStoreStub) ApplyTransition(ctx context.Context, params repository.TransitionParams) (*repository.TransitionOutcome, error) {
	s.params = params
	if s.err != nil {
		return nil, s.err
	}
	return s.outcome, nil
}

type auditStub struct {
	logs []*models.AuditLog
	err  error
}

func (s *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return s.err
}

type cacheStub struct {
	deleted []string
}

func (s *cacheStub) Delete(ctx context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	return nil
}

type rejectionNotifierStub struct {
	rejections int
	department string
	reason     string
}

func (s *rejectionNotifierStub) DepartmentRejected(ctx context.Context, form *models.ClearanceForm, department, reason string) {
	s.rejections++
	s.department = department
	s.reason = reason
}

type completionStub struct {
	scheduled []string
}

func (s *completionStub) Schedule(formID string) error {
	s.scheduled = append(s.scheduled, formID)
	return nil
}

type metricsStub struct {
	decisions int
}

func (s *metricsStub) RecordDecision(department, action string) { s.decisions++ }

func deptActor(departments ...string) *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", Role: models.RoleDepartment, Departments: departments}
}

func approvedOutcome(formID string, fullyApproved bool) *repository.TransitionOutcome {
	return &repository.TransitionOutcome{
		Form:                &models.ClearanceForm{ID: formID, Status: models.FormStatusInProgress},
		BecameFullyApproved: fullyApproved,
	}
}

func TestWorkflowActRejectRequiresReason(t *testing.T) {
	svc := NewWorkflowService(&transitionStoreStub{}, nil, nil, nil, nil, nil, nil)

	_, err := svc.Act(context.Background(), dto.ActionRequest{
		FormID:     "form-1",
		Department: "library",
		Action:     models.ActionReject,
		Reason:     "   ",
	}, deptActor("library"))

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrMissingReason.Code, appErr.Code)
}

func TestWorkflowActRejectsForeignDepartment(t *testing.T) {
	svc := NewWorkflowService(&transitionStoreStub{}, nil, nil, nil, nil, nil, nil)

	_, err := svc.Act(context.Background(), dto.ActionRequest{
		FormID:     "form-1",
		Department: "hostel",
		Action:     models.ActionApprove,
	}, deptActor("library"))

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestWorkflowActAdminOwnsEveryDepartment(t *testing.T) {
	store := &transitionStoreStub{outcome: approvedOutcome("form-1", false)}
	svc := NewWorkflowService(store, nil, nil, nil, nil, nil, nil)

	admin := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	_, err := svc.Act(context.Background(), dto.ActionRequest{
		FormID:     "form-1",
		Department: "Hostel",
		Action:     models.ActionApprove,
	}, admin)
	require.NoError(t, err)
	require.Equal(t, "hostel", store.params.Department)
}

func TestWorkflowActMapsAlreadyDecidedToIllegalTransition(t *testing.T) {
	store := &transitionStoreStub{err: repository.ErrStatusNotPending}
	svc := NewWorkflowService(store, nil, nil, nil, nil, nil, nil)

	_, err := svc.Act(context.Background(), dto.ActionRequest{
		FormID:     "form-1",
		Department: "library",
		Action:     models.ActionApprove,
	}, deptActor("library"))

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrIllegalTransition.Code, appErr.Code)
}

func TestWorkflowActMapsCompletedFormToFrozen(t *testing.T) {
	store := &transitionStoreStub{err: repository.ErrFormTerminal}
	svc := NewWorkflowService(store, nil, nil, nil, nil, nil, nil)

	_, err := svc.Act(context.Background(), dto.ActionRequest{
		FormID:     "form-1",
		Department: "library",
		Action:     models.ActionReject,
		Reason:     "late fees",
	}, deptActor("library"))

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrFormCompleted.Code, appErr.Code)
}

func TestWorkflowActSchedulesCompletionOnce(t *testing.T) {
	store := &transitionStoreStub{outcome: approvedOutcome("form-1", true)}
	completion := &completionStub{}
	audit := &auditStub{}
	cache := &cacheStub{}
	metrics := &metricsStub{}
	svc := NewWorkflowService(store, audit, cache, nil, completion, metrics, nil)

	_, err := svc.Act(context.Background(), dto.ActionRequest{
		FormID:     "form-1",
		Department: "library",
		Action:     models.ActionApprove,
	}, deptActor("library"))
	require.NoError(t, err)
	require.Equal(t, []string{"form-1"}, completion.scheduled)
	require.Equal(t, []string{repository.StatusKey("form-1")}, cache.deleted)
	require.Len(t, audit.logs, 1)
	require.Equal(t, models.AuditActionDepartmentApprove, audit.logs[0].Action)
	require.Equal(t, 1, metrics.decisions)
}

// lockedTransitionStore mimics the repository's row-lock semantics: decisions
// on one form apply one at a time against shared department state, and only
// the transition that flips the last pending row reports full approval.
type lockedTransitionStore struct {
	mu       sync.Mutex
	statuses map[string]models.DeptStatus
}

func (s *lockedTransitionStore) ApplyTransition(ctx context.Context, params repository.TransitionParams) (*repository.TransitionOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.statuses[params.Department]
	if !ok {
		return nil, repository.ErrDepartmentNotFound
	}
	if current != models.DeptStatusPending {
		return nil, repository.ErrStatusNotPending
	}
	s.statuses[params.Department] = models.DeptStatusApproved

	rows := make([]models.DepartmentStatus, 0, len(s.statuses))
	for name, status := range s.statuses {
		rows = append(rows, models.DepartmentStatus{FormID: "form-1", DepartmentName: name, Status: status})
	}
	return &repository.TransitionOutcome{
		Form:                &models.ClearanceForm{ID: "form-1", Status: models.FormStatusInProgress},
		Statuses:            rows,
		BecameFullyApproved: models.AggregateStatus(rows) == models.FormStatusCompleted,
	}, nil
}

func TestWorkflowActRacingFinalApprovalsCompleteOnce(t *testing.T) {
	orders := [][]string{
		{"library", "hostel"},
		{"hostel", "library"},
	}
	for _, order := range orders {
		store := &lockedTransitionStore{statuses: map[string]models.DeptStatus{
			"library":             models.DeptStatusPending,
			"hostel":              models.DeptStatusPending,
			"accounts_department": models.DeptStatusApproved,
		}}
		completion := &completionStub{}
		svc := NewWorkflowService(store, nil, nil, nil, completion, nil, nil)

		for _, dept := range order {
			_, err := svc.Act(context.Background(), dto.ActionRequest{
				FormID:     "form-1",
				Department: dept,
				Action:     models.ActionApprove,
			}, deptActor(dept))
			require.NoError(t, err)
		}

		require.Equal(t, []string{"form-1"}, completion.scheduled,
			"resolution order %v must schedule exactly one completion", order)
	}
}

func TestWorkflowActRejectNotifiesStudent(t *testing.T) {
	store := &transitionStoreStub{outcome: &repository.TransitionOutcome{
		Form: &models.ClearanceForm{ID: "form-1", Status: models.FormStatusRejected, PersonalEmail: "student@example.com"},
	}}
	notifier := &rejectionNotifierStub{}
	completion := &completionStub{}
	svc := NewWorkflowService(store, nil, nil, notifier, completion, nil, nil)

	_, err := svc.Act(context.Background(), dto.ActionRequest{
		FormID:     "form-1",
		Department: "library",
		Action:     models.ActionReject,
		Reason:     "book not returned",
	}, deptActor("library"))
	require.NoError(t, err)
	require.Equal(t, 1, notifier.rejections)
	require.Equal(t, "library", notifier.department)
	require.Equal(t, "book not returned", notifier.reason)
	require.Empty(t, completion.scheduled)
}

func TestWorkflowActAuditFailureDoesNotFailDecision(t *testing.T) {
	store := &transitionStoreStub{outcome: approvedOutcome("form-1", false)}
	audit := &auditStub{err: context.DeadlineExceeded}
	svc := NewWorkflowService(store, audit, nil, nil, nil, nil, nil)

	_, err := svc.Act(context.Background(), dto.ActionRequest{
		FormID:     "form-1",
		Department: "library",
		Action:     models.ActionApprove,
	}, deptActor("library"))
	require.NoError(t, err)
}
