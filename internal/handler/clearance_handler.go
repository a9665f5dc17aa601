package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campusops/nodues-api/internal/dto"
	"github.com/campusops/nodues-api/internal/models"
	"github.com/campusops/nodues-api/internal/repository"
	appErrors "github.com/campusops/nodues-api/pkg/errors"
	"github.com/campusops/nodues-api/pkg/response"
)

type clearanceService interface {
	Submit(ctx context.Context, req dto.SubmitClearanceRequest) (*models.ClearanceForm, error)
	GetStatus(ctx context.Context, formID string) (*dto.ClearanceStatusResponse, error)
	GetStatusByRegistration(ctx context.Context, registrationNo string) (*dto.ClearanceStatusResponse, error)
	ListForms(ctx context.Context, query dto.ListClearanceQuery, actor *models.JWTClaims) ([]models.ClearanceForm, *models.Pagination, error)
	ListPendingForDepartment(ctx context.Context, department string, limit, offset int, actor *models.JWTClaims) ([]models.ClearanceForm, *models.Pagination, error)
	History(ctx context.Context, formID string) ([]dto.ReapplicationHistoryView, error)
}

type workflowService interface {
	Act(ctx context.Context, req dto.ActionRequest, actor *models.JWTClaims) (*repository.TransitionOutcome, error)
}

type reapplicationService interface {
	Reapply(ctx context.Context, formID string, req dto.ReapplyRequest) (*repository.ReapplyOutcome, error)
}

// ClearanceHandler exposes the clearance workflow REST endpoints.
type ClearanceHandler struct {
	clearance clearanceService
	workflow  workflowService
	reapply   reapplicationService
}

// NewClearanceHandler constructs the handler.
func NewClearanceHandler(clearance clearanceService, workflow workflowService, reapply reapplicationService) *ClearanceHandler {
	return &ClearanceHandler{clearance: clearance, workflow: workflow, reapply: reapply}
}

// Submit godoc
// @Summary Submit a new no dues form
// @Tags Clearance
// @Accept json
// @Produce json
// @Param payload body dto.SubmitClearanceRequest true "Form payload"
// @Success 201 {object} response.Envelope
// @Router /clearance [post]
func (h *ClearanceHandler) Submit(c *gin.Context) {
	var req dto.SubmitClearanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid form payload"))
		return
	}
	form, err := h.clearance.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, form)
}

// Status godoc
// @Summary Get form status with per-department detail
// @Tags Clearance
// @Produce json
// @Param id path string true "Form ID"
// @Success 200 {object} response.Envelope
// @Router /clearance/{id}/status [get]
func (h *ClearanceHandler) Status(c *gin.Context) {
	status, err := h.clearance.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// StatusByRegistration godoc
// @Summary Get the latest form status for a registration number
// @Tags Clearance
// @Produce json
// @Param registrationNo query string true "Registration number"
// @Success 200 {object} response.Envelope
// @Router /clearance/lookup [get]
func (h *ClearanceHandler) StatusByRegistration(c *gin.Context) {
	status, err := h.clearance.GetStatusByRegistration(c.Request.Context(), c.Query("registrationNo"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Act godoc
// @Summary Approve or reject a pending department row
// @Tags Clearance
// @Accept json
// @Produce json
// @Param id path string true "Form ID"
// @Param payload body dto.ActionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /clearance/{id}/action [post]
func (h *ClearanceHandler) Act(c *gin.Context) {
	var req dto.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	req.FormID = c.Param("id")

	outcome, err := h.workflow.Act(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"form":       outcome.Form,
		"department": outcome.Department,
		"completed":  outcome.BecameFullyApproved,
	}, nil)
}

// Reapply godoc
// @Summary Reset a rejected department back to pending
// @Tags Clearance
// @Accept json
// @Produce json
// @Param id path string true "Form ID"
// @Param payload body dto.ReapplyRequest true "Reapplication payload"
// @Success 200 {object} response.Envelope
// @Router /clearance/{id}/reapply [post]
func (h *ClearanceHandler) Reapply(c *gin.Context) {
	var req dto.ReapplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid reapplication payload"))
		return
	}
	outcome, err := h.reapply.Reapply(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"form":     outcome.Form,
		"sequence": outcome.History.ReapplicationNumber,
	}, nil)
}

// History godoc
// @Summary List the reapplication history of a form
// @Tags Clearance
// @Produce json
// @Param id path string true "Form ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /clearance/{id}/history [get]
func (h *ClearanceHandler) History(c *gin.Context) {
	entries, err := h.clearance.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// List godoc
// @Summary List clearance forms (admin)
// @Tags Clearance
// @Produce json
// @Param status query string false "Form status"
// @Param school query string false "School"
// @Param course query string false "Course"
// @Param registrationNo query string false "Registration number"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /clearance [get]
func (h *ClearanceHandler) List(c *gin.Context) {
	query := dto.ListClearanceQuery{
		School:         c.Query("school"),
		Course:         c.Query("course"),
		RegistrationNo: c.Query("registrationNo"),
		Limit:          intQuery(c, "limit", 50),
		Offset:         intQuery(c, "offset", 0),
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		query.Status = models.FormStatus(strings.ToLower(raw))
	}
	forms, pagination, err := h.clearance.ListForms(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, forms, pagination)
}

// Pending godoc
// @Summary List forms awaiting a department's decision
// @Tags Clearance
// @Produce json
// @Param department path string true "Department name"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /departments/{department}/pending [get]
func (h *ClearanceHandler) Pending(c *gin.Context) {
	forms, pagination, err := h.clearance.ListPendingForDepartment(
		c.Request.Context(),
		c.Param("department"),
		intQuery(c, "limit", 50),
		intQuery(c, "offset", 0),
		claimsFromContext(c),
	)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, forms, pagination)
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
