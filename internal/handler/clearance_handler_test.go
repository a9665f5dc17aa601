package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusops/nodues-api/internal/dto"
	"github.com/campusops/nodues-api/internal/middleware"
	"github.com/campusops/nodues-api/internal/models"
	"github.com/campusops/nodues-api/internal/repository"
	appErrors "github.com/campusops/nodues-api/pkg/errors"
)

type clearanceServiceMock struct {
	submitResp *models.ClearanceForm
	submitErr  error
	statusResp *dto.ClearanceStatusResponse
	statusErr  error
}

func (m *clearanceServiceMock) Submit(ctx context.Context, req dto.SubmitClearanceRequest) (*models.ClearanceForm, error) {
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	return m.submitResp, nil
}

func (m *clearanceServiceMock) GetStatus(ctx context.Context, formID string) (*dto.ClearanceStatusResponse, error) {
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return m.statusResp, nil
}

func (m *clearanceServiceMock) GetStatusByRegistration(ctx context.Context, registrationNo string) (*dto.ClearanceStatusResponse, error) {
	return m.GetStatus(ctx, "form-1")
}

func (m *clearanceServiceMock) ListForms(ctx context.Context, query dto.ListClearanceQuery, actor *models.JWTClaims) ([]models.ClearanceForm, *models.Pagination, error) {
	return nil, nil, nil
}

func (m *clearanceServiceMock) ListPendingForDepartment(ctx context.Context, department string, limit, offset int, actor *models.JWTClaims) ([]models.ClearanceForm, *models.Pagination, error) {
	return nil, nil, nil
}

func (m *clearanceServiceMock) History(ctx context.Context, formID string) ([]dto.ReapplicationHistoryView, error) {
	return nil, nil
}

type workflowServiceMock struct {
	req     dto.ActionRequest
	actor   *models.JWTClaims
	outcome *repository.TransitionOutcome
	err     error
}

func (m *workflowServiceMock) Act(ctx context.Context, req dto.ActionRequest, actor *models.JWTClaims) (*repository.TransitionOutcome, error) {
	m.req = req
	m.actor = actor
	if m.err != nil {
		return nil, m.err
	}
	return m.outcome, nil
}

type reapplicationServiceMock struct {
	formID  string
	outcome *repository.ReapplyOutcome
	err     error
}

func (m *reapplicationServiceMock) Reapply(ctx context.Context, formID string, req dto.ReapplyRequest) (*repository.ReapplyOutcome, error) {
	m.formID = formID
	if m.err != nil {
		return nil, m.err
	}
	return m.outcome, nil
}

func newTestContext(t *testing.T, method, path string, payload interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestClearanceHandlerSubmitRejectsInvalidPayload(t *testing.T) {
	handler := NewClearanceHandler(&clearanceServiceMock{}, &workflowServiceMock{}, &reapplicationServiceMock{})
	c, w := newTestContext(t, http.MethodPost, "/clearance", map[string]string{"registrationNo": ""})

	handler.Submit(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClearanceHandlerSubmitReturnsCreated(t *testing.T) {
	svc := &clearanceServiceMock{submitResp: &models.ClearanceForm{ID: "form-1", RegistrationNo: "2021BCS001"}}
	handler := NewClearanceHandler(svc, &workflowServiceMock{}, &reapplicationServiceMock{})
	c, w := newTestContext(t, http.MethodPost, "/clearance", dto.SubmitClearanceRequest{
		RegistrationNo: "2021BCS001",
		StudentName:    "Asha Verma",
		ParentName:     "Ravi Verma",
		School:         "SOET",
		Course:         "B.Tech",
		Branch:         "CSE",
		ContactNo:      "9876543210",
		PersonalEmail:  "asha@example.com",
		AdmissionYear:  2021,
		PassingYear:    2025,
	})

	handler.Submit(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "2021BCS001")
}

func TestClearanceHandlerActPassesClaimsAndFormID(t *testing.T) {
	workflow := &workflowServiceMock{outcome: &repository.TransitionOutcome{
		Form: &models.ClearanceForm{ID: "form-1", Status: models.FormStatusInProgress},
	}}
	handler := NewClearanceHandler(&clearanceServiceMock{}, workflow, &reapplicationServiceMock{})
	c, w := newTestContext(t, http.MethodPost, "/clearance/form-1/action", dto.ActionRequest{
		FormID:     "form-1",
		Department: "library",
		Action:     models.ActionApprove,
	})
	c.Params = gin.Params{{Key: "id", Value: "form-1"}}
	claims := &models.JWTClaims{UserID: "user-1", Role: models.RoleDepartment, Departments: []string{"library"}}
	c.Set(middleware.ContextUserKey, claims)

	handler.Act(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "form-1", workflow.req.FormID)
	assert.Equal(t, claims, workflow.actor)
}

func TestClearanceHandlerActSurfacesWorkflowErrors(t *testing.T) {
	workflow := &workflowServiceMock{err: appErrors.ErrIllegalTransition}
	handler := NewClearanceHandler(&clearanceServiceMock{}, workflow, &reapplicationServiceMock{})
	c, w := newTestContext(t, http.MethodPost, "/clearance/form-1/action", dto.ActionRequest{
		FormID:     "form-1",
		Department: "library",
		Action:     models.ActionApprove,
	})
	c.Params = gin.Params{{Key: "id", Value: "form-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleDepartment})

	handler.Act(c)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), appErrors.ErrIllegalTransition.Code)
}

func TestClearanceHandlerReapplyUsesPathFormID(t *testing.T) {
	reapply := &reapplicationServiceMock{outcome: &repository.ReapplyOutcome{
		Form:    &models.ClearanceForm{ID: "form-1"},
		History: &models.ReapplicationHistory{ReapplicationNumber: 2},
	}}
	handler := NewClearanceHandler(&clearanceServiceMock{}, &workflowServiceMock{}, reapply)
	c, w := newTestContext(t, http.MethodPost, "/clearance/form-1/reapply", dto.ReapplyRequest{
		Department: "hostel",
		Message:    "dues cleared at the office",
	})
	c.Params = gin.Params{{Key: "id", Value: "form-1"}}

	handler.Reapply(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "form-1", reapply.formID)
	assert.Contains(t, w.Body.String(), `"sequence":2`)
}

func TestClearanceHandlerStatusNotFound(t *testing.T) {
	svc := &clearanceServiceMock{statusErr: appErrors.ErrNotFound}
	handler := NewClearanceHandler(svc, &workflowServiceMock{}, &reapplicationServiceMock{})
	c, w := newTestContext(t, http.MethodGet, "/clearance/missing/status", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Status(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
