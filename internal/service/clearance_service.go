package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campusops/nodues-api/internal/dto"
	"github.com/campusops/nodues-api/internal/models"
	"github.com/campusops/nodues-api/internal/repository"
	"github.com/campusops/nodues-api/pkg/config"
	appErrors "github.com/campusops/nodues-api/pkg/errors"
)

type formStore interface {
	Create(ctx context.Context, form *models.ClearanceForm, departments []string) error
	GetByID(ctx context.Context, id string) (*models.ClearanceForm, error)
	GetByRegistrationNo(ctx context.Context, registrationNo string) (*models.ClearanceForm, error)
	List(ctx context.Context, filter models.FormFilter) ([]models.ClearanceForm, int, error)
}

type statusReader interface {
	ListByForm(ctx context.Context, formID string) ([]models.DepartmentStatus, error)
	ListPendingForDepartment(ctx context.Context, department string, limit, offset int) ([]models.ClearanceForm, int, error)
}

type statusCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type historyReader interface {
	ListByForm(ctx context.Context, formID string) ([]models.ReapplicationHistory, error)
}

type submissionNotifier interface {
	FormSubmitted(ctx context.Context, form *models.ClearanceForm)
}

type cacheMetrics interface {
	RecordCacheHit()
	RecordCacheMiss()
}

// ClearanceService handles form submission and status lookups.
type ClearanceService struct {
	forms    formStore
	statuses statusReader
	history  historyReader
	cache    statusCache
	audit    auditLogger
	notifier submissionNotifier
	metrics  cacheMetrics
	logger   *zap.Logger
	cfg      config.ClearanceConfig
	cacheTTL time.Duration
}

// NewClearanceService constructs the service.
func NewClearanceService(forms formStore, statuses statusReader, history historyReader, cache statusCache,
	audit auditLogger, notifier submissionNotifier, metrics cacheMetrics,
	logger *zap.Logger, cfg config.ClearanceConfig, cacheTTL time.Duration) *ClearanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClearanceService{
		forms:    forms,
		statuses: statuses,
		history:  history,
		cache:    cache,
		audit:    audit,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		cacheTTL: cacheTTL,
	}
}

// Submit opens a new clearance form and fans out one pending row per
// configured department. The department list is snapshotted at this moment;
// later configuration changes never touch this form.
func (s *ClearanceService) Submit(ctx context.Context, req dto.SubmitClearanceRequest) (*models.ClearanceForm, error) {
	departments := s.normalizedDepartments()
	if len(departments) == 0 {
		return nil, appErrors.Wrap(fmt.Errorf("no departments configured"),
			appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "clearance departments are not configured")
	}

	form := &models.ClearanceForm{
		RegistrationNo: strings.ToUpper(strings.TrimSpace(req.RegistrationNo)),
		StudentName:    strings.TrimSpace(req.StudentName),
		ParentName:     strings.TrimSpace(req.ParentName),
		School:         strings.TrimSpace(req.School),
		Course:         strings.TrimSpace(req.Course),
		Branch:         strings.TrimSpace(req.Branch),
		ContactNo:      strings.TrimSpace(req.ContactNo),
		PersonalEmail:  strings.ToLower(strings.TrimSpace(req.PersonalEmail)),
		CollegeEmail:   strings.ToLower(strings.TrimSpace(req.CollegeEmail)),
		AdmissionYear:  req.AdmissionYear,
		PassingYear:    req.PassingYear,
		Status:         models.FormStatusPending,
	}
	if form.PassingYear < form.AdmissionYear {
		return nil, appErrors.Clone(appErrors.ErrValidation, "passing year cannot precede admission year")
	}

	if err := s.forms.Create(ctx, form, departments); err != nil {
		if errors.Is(err, repository.ErrDuplicateActiveForm) {
			return nil, appErrors.ErrDuplicateSubmission
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create clearance form")
	}

	s.emitAudit(ctx, &models.AuditLog{
		Action:     models.AuditActionFormSubmit,
		Resource:   "clearance_form",
		ResourceID: &form.ID,
		NewValues:  []byte(fmt.Sprintf(`{"registration_no":%q}`, form.RegistrationNo)),
	})

	if s.notifier != nil {
		s.notifier.FormSubmitted(ctx, form)
	}
	return form, nil
}

// GetStatus returns the form, its department rows and per-department reapply
// eligibility. Responses are cached briefly; every state change invalidates
// the entry.
func (s *ClearanceService) GetStatus(ctx context.Context, formID string) (*dto.ClearanceStatusResponse, error) {
	key := repository.StatusKey(formID)
	if s.cache != nil {
		var cached dto.ClearanceStatusResponse
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			if s.metrics != nil {
				s.metrics.RecordCacheHit()
			}
			return &cached, nil
		}
		if s.metrics != nil {
			s.metrics.RecordCacheMiss()
		}
	}

	form, err := s.forms.GetByID(ctx, formID)
	if err != nil {
		return nil, mapWorkflowError(err)
	}
	statuses, err := s.statuses.ListByForm(ctx, formID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department statuses")
	}

	resp := s.buildStatusResponse(form, statuses)
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, resp, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache status response", zap.String("form_id", formID), zap.Error(err))
		}
	}
	return resp, nil
}

// GetStatusByRegistration resolves the latest form for a registration number.
func (s *ClearanceService) GetStatusByRegistration(ctx context.Context, registrationNo string) (*dto.ClearanceStatusResponse, error) {
	normalized := strings.ToUpper(strings.TrimSpace(registrationNo))
	if normalized == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "registration number is required")
	}
	form, err := s.forms.GetByRegistrationNo(ctx, normalized)
	if err != nil {
		return nil, mapWorkflowError(err)
	}
	return s.GetStatus(ctx, form.ID)
}

// ListForms returns forms for the admin dashboard.
func (s *ClearanceService) ListForms(ctx context.Context, query dto.ListClearanceQuery, actor *models.JWTClaims) ([]models.ClearanceForm, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return nil, nil, appErrors.ErrForbidden
	}
	filter := models.FormFilter{
		RegistrationNo: strings.ToUpper(strings.TrimSpace(query.RegistrationNo)),
		School:         strings.TrimSpace(query.School),
		Course:         strings.TrimSpace(query.Course),
		Limit:          query.Limit,
		Offset:         query.Offset,
	}
	if query.Status != "" {
		filter.Status = []models.FormStatus{query.Status}
	}
	forms, total, err := s.forms.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list clearance forms")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	page := filter.Offset/limit + 1
	return forms, &models.Pagination{Page: page, PageSize: limit, TotalCount: total}, nil
}

// ListPendingForDepartment returns the actor's review queue.
func (s *ClearanceService) ListPendingForDepartment(ctx context.Context, department string, limit, offset int, actor *models.JWTClaims) ([]models.ClearanceForm, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	normalized := strings.ToLower(strings.TrimSpace(department))
	if !actor.OwnsDepartment(normalized) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "you are not assigned to this department")
	}
	forms, total, err := s.statuses.ListPendingForDepartment(ctx, normalized, limit, offset)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending forms")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return forms, &models.Pagination{Page: offset/limit + 1, PageSize: limit, TotalCount: total}, nil
}

// History returns the reapplication trail of a form.
func (s *ClearanceService) History(ctx context.Context, formID string) ([]dto.ReapplicationHistoryView, error) {
	entries, err := s.history.ListByForm(ctx, formID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reapplication history")
	}
	views := make([]dto.ReapplicationHistoryView, 0, len(entries))
	for _, e := range entries {
		department := ""
		if e.DepartmentName != nil {
			department = *e.DepartmentName
		}
		views = append(views, dto.ReapplicationHistoryView{
			ID:           e.ID,
			Sequence:     e.ReapplicationNumber,
			Department:   department,
			Message:      e.StudentMessage,
			EditedFields: e.EditedFields,
			CreatedAt:    e.CreatedAt,
		})
	}
	return views, nil
}

func (s *ClearanceService) buildStatusResponse(form *models.ClearanceForm, statuses []models.DepartmentStatus) *dto.ClearanceStatusResponse {
	views := make([]dto.DepartmentStatusView, 0, len(statuses))
	for _, st := range statuses {
		view := dto.DepartmentStatusView{
			Department:      st.DepartmentName,
			Status:          st.Status,
			RejectionReason: st.RejectionReason,
			RejectionCount:  st.RejectionCount,
			ActionAt:        st.ActionAt,
		}
		view.CanReapply, view.ReapplyBlocked = s.reapplyEligibility(form, &st)
		if s.cfg.MaxDeptReapply > 0 {
			if remaining := s.cfg.MaxDeptReapply - st.RejectionCount; remaining > 0 {
				view.RemainingTries = remaining
			}
		}
		views = append(views, view)
	}
	return &dto.ClearanceStatusResponse{
		Form:           form,
		Departments:    views,
		CertificateURL: form.CertificateURL,
	}
}

// reapplyEligibility mirrors the checks ApplyReapplication enforces so the
// portal can disable the button instead of surfacing an error.
func (s *ClearanceService) reapplyEligibility(form *models.ClearanceForm, st *models.DepartmentStatus) (bool, string) {
	if st.Status != models.DeptStatusRejected {
		return false, ""
	}
	if form.CertificateURL != nil || form.Status == models.FormStatusCompleted {
		return false, "form is already completed"
	}
	if s.cfg.MaxDeptReapply > 0 && st.RejectionCount >= s.cfg.MaxDeptReapply {
		return false, "reapplication limit reached for this department"
	}
	if s.cfg.MaxGlobalReapply > 0 && form.ReapplicationCount >= s.cfg.MaxGlobalReapply {
		return false, "overall reapplication limit reached"
	}
	if s.cfg.ReapplyCooldown > 0 && form.LastReappliedAt != nil {
		remaining := s.cfg.ReapplyCooldown - time.Since(*form.LastReappliedAt)
		if remaining > 0 {
			return false, fmt.Sprintf("cooldown active, retry in %s", remaining.Round(time.Second))
		}
	}
	return true, ""
}

func (s *ClearanceService) normalizedDepartments() []string {
	seen := make(map[string]struct{}, len(s.cfg.Departments))
	departments := make([]string, 0, len(s.cfg.Departments))
	for _, d := range s.cfg.Departments {
		normalized := strings.ToLower(strings.TrimSpace(d))
		if normalized == "" {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		departments = append(departments, normalized)
	}
	return departments
}

func (s *ClearanceService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", log.Action), zap.Error(err))
	}
}
