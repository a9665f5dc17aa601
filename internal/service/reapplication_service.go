package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/campusops/nodues-api/internal/dto"
	"github.com/campusops/nodues-api/internal/models"
	"github.com/campusops/nodues-api/internal/repository"
	"github.com/campusops/nodues-api/pkg/config"
	appErrors "github.com/campusops/nodues-api/pkg/errors"
)

type reapplyStore interface {
	ApplyReapplication(ctx context.Context, params repository.ReapplyParams) (*repository.ReapplyOutcome, error)
}

type reapplicationNotifier interface {
	ReapplicationFiled(ctx context.Context, form *models.ClearanceForm, department, message string)
}

type reapplicationMetrics interface {
	RecordReapplication()
}

// editableFields maps accepted JSON payload keys to form columns. Anything
// outside this map (identity, status, counters) is silently discarded before
// the repository ever sees it.
var editableFields = map[string]string{
	"studentName":   "student_name",
	"parentName":    "parent_name",
	"school":        "school",
	"course":        "course",
	"branch":        "branch",
	"contactNo":     "contact_no",
	"personalEmail": "personal_email",
	"collegeEmail":  "college_email",
	"admissionYear": "admission_year",
	"passingYear":   "passing_year",
}

// ReapplicationService lets a student reset a rejected department back to
// pending, optionally correcting form fields in the same step.
type ReapplicationService struct {
	repo     reapplyStore
	cache    statusCacheInvalidator
	audit    auditLogger
	notifier reapplicationNotifier
	metrics  reapplicationMetrics
	logger   *zap.Logger
	cfg      config.ClearanceConfig
}

// NewReapplicationService constructs the service.
func NewReapplicationService(repo reapplyStore, cache statusCacheInvalidator, audit auditLogger,
	notifier reapplicationNotifier, metrics reapplicationMetrics, logger *zap.Logger, cfg config.ClearanceConfig) *ReapplicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReapplicationService{
		repo:     repo,
		cache:    cache,
		audit:    audit,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

// Reapply resets the named rejected department of the form to pending. Only
// that single row changes; every other department keeps its decision.
func (s *ReapplicationService) Reapply(ctx context.Context, formID string, req dto.ReapplyRequest) (*repository.ReapplyOutcome, error) {
	department := strings.ToLower(strings.TrimSpace(req.Department))
	if department == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "department is required")
	}
	message := strings.TrimSpace(req.Message)
	minLen := s.cfg.MinReapplyMessageLen
	if minLen <= 0 {
		minLen = 1
	}
	if len(message) < minLen {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("message must be at least %d characters", minLen))
	}

	edited := s.sanitizeEditedFields(req.EditedFields)

	outcome, err := s.repo.ApplyReapplication(ctx, repository.ReapplyParams{
		FormID:           formID,
		Department:       department,
		Message:          message,
		EditedFields:     edited,
		MaxDeptReapply:   s.cfg.MaxDeptReapply,
		MaxGlobalReapply: s.cfg.MaxGlobalReapply,
		Cooldown:         s.cfg.ReapplyCooldown,
	})
	if err != nil {
		return nil, mapWorkflowError(err)
	}

	if s.metrics != nil {
		s.metrics.RecordReapplication()
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, repository.StatusKey(formID)); err != nil {
			s.logger.Warn("failed to invalidate status cache", zap.String("form_id", formID), zap.Error(err))
		}
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"department": department,
		"sequence":   outcome.History.ReapplicationNumber,
		"message":    message,
	})
	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			Action:     models.AuditActionReapplication,
			Resource:   "clearance_form",
			ResourceID: &formID,
			NewValues:  payload,
		}); err != nil {
			s.logger.Warn("failed to write reapplication audit log", zap.Error(err))
		}
	}

	if s.notifier != nil {
		s.notifier.ReapplicationFiled(ctx, outcome.Form, department, message)
	}
	return outcome, nil
}

// sanitizeEditedFields keeps only whitelisted keys and renames them to their
// storage columns.
func (s *ReapplicationService) sanitizeEditedFields(raw map[string]interface{}) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	sanitized := make(map[string]interface{}, len(raw))
	for key, value := range raw {
		column, ok := editableFields[key]
		if !ok {
			s.logger.Debug("dropping non-editable field from reapplication", zap.String("field", key))
			continue
		}
		if str, isString := value.(string); isString {
			value = strings.TrimSpace(str)
		}
		sanitized[column] = value
	}
	if len(sanitized) == 0 {
		return nil
	}
	return sanitized
}
