package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/campusops/nodues-api/internal/dto"
	"github.com/campusops/nodues-api/internal/models"
	"github.com/campusops/nodues-api/internal/repository"
	appErrors "github.com/campusops/nodues-api/pkg/errors"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type transitionStore interface {
	ApplyTransition(ctx context.Context, params repository.TransitionParams) (*repository.TransitionOutcome, error)
}

type statusCacheInvalidator interface {
	Delete(ctx context.Context, key string) error
}

type rejectionNotifier interface {
	DepartmentRejected(ctx context.Context, form *models.ClearanceForm, department, reason string)
}

// CompletionScheduler enqueues certificate generation once a form is fully
// approved.
type CompletionScheduler interface {
	Schedule(formID string) error
}

type decisionMetrics interface {
	RecordDecision(department, action string)
}

// WorkflowService applies department decisions to clearance forms. All state
// changes run in a single repository transaction; collaborator calls (audit,
// mail, metrics, cache, completion) happen after commit and never undo the
// transition.
type WorkflowService struct {
	statuses   transitionStore
	audit      auditLogger
	cache      statusCacheInvalidator
	notifier   rejectionNotifier
	completion CompletionScheduler
	metrics    decisionMetrics
	logger     *zap.Logger
}

// NewWorkflowService constructs the service.
func NewWorkflowService(statuses transitionStore, audit auditLogger, cache statusCacheInvalidator,
	notifier rejectionNotifier, completion CompletionScheduler, metrics decisionMetrics, logger *zap.Logger) *WorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowService{
		statuses:   statuses,
		audit:      audit,
		cache:      cache,
		notifier:   notifier,
		completion: completion,
		metrics:    metrics,
		logger:     logger,
	}
}

// Act applies one approve or reject decision on behalf of the actor.
func (s *WorkflowService) Act(ctx context.Context, req dto.ActionRequest, actor *models.JWTClaims) (*repository.TransitionOutcome, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	department := strings.ToLower(strings.TrimSpace(req.Department))
	if department == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "department is required")
	}
	if req.Action != models.ActionApprove && req.Action != models.ActionReject {
		return nil, appErrors.Clone(appErrors.ErrValidation, "action must be approve or reject")
	}
	reason := strings.TrimSpace(req.Reason)
	if req.Action == models.ActionReject && reason == "" {
		return nil, appErrors.ErrMissingReason
	}
	if !actor.OwnsDepartment(department) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you are not assigned to this department")
	}

	outcome, err := s.statuses.ApplyTransition(ctx, repository.TransitionParams{
		FormID:     req.FormID,
		Department: department,
		Action:     req.Action,
		Reason:     reason,
		ActorID:    actor.UserID,
	})
	if err != nil {
		return nil, mapWorkflowError(err)
	}

	s.afterDecision(ctx, outcome, department, req.Action, reason, actor)
	return outcome, nil
}

func (s *WorkflowService) afterDecision(ctx context.Context, outcome *repository.TransitionOutcome,
	department string, action models.ClearanceAction, reason string, actor *models.JWTClaims) {
	form := outcome.Form

	if s.metrics != nil {
		s.metrics.RecordDecision(department, string(action))
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, repository.StatusKey(form.ID)); err != nil {
			s.logger.Warn("failed to invalidate status cache", zap.String("form_id", form.ID), zap.Error(err))
		}
	}

	auditAction := models.AuditActionDepartmentApprove
	if action == models.ActionReject {
		auditAction = models.AuditActionDepartmentReject
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"department":  department,
		"action":      action,
		"reason":      reason,
		"form_status": form.Status,
	})
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     auditAction,
		Resource:   "clearance_form",
		ResourceID: &form.ID,
		NewValues:  payload,
	})

	if action == models.ActionReject && s.notifier != nil {
		s.notifier.DepartmentRejected(ctx, form, department, reason)
	}

	if outcome.BecameFullyApproved && s.completion != nil {
		if err := s.completion.Schedule(form.ID); err != nil {
			s.logger.Error("failed to schedule certificate generation",
				zap.String("form_id", form.ID), zap.Error(err))
		}
	}
}

func (s *WorkflowService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", log.Action), zap.Error(err))
	}
}

// mapWorkflowError converts repository sentinels into API error codes.
func mapWorkflowError(err error) error {
	switch {
	case errors.Is(err, repository.ErrFormNotFound):
		return appErrors.Clone(appErrors.ErrNotFound, "clearance form not found")
	case errors.Is(err, repository.ErrDepartmentNotFound):
		return appErrors.ErrUnknownDepartment
	case errors.Is(err, repository.ErrStatusNotPending):
		return appErrors.ErrIllegalTransition
	case errors.Is(err, repository.ErrStatusNotRejected):
		return appErrors.Clone(appErrors.ErrIllegalTransition, "only rejected departments can be reapplied to")
	case errors.Is(err, repository.ErrFormTerminal):
		return appErrors.ErrFormCompleted
	case errors.Is(err, repository.ErrDuplicateActiveForm):
		return appErrors.ErrDuplicateSubmission
	case errors.Is(err, repository.ErrReapplyLimit):
		return appErrors.ErrReapplicationLimit
	case errors.Is(err, repository.ErrReapplyCooldown):
		return appErrors.ErrReapplicationCooldown
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "workflow operation failed")
	}
}
