package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campusops/nodues-api/internal/dto"
	"github.com/campusops/nodues-api/internal/models"
	"github.com/campusops/nodues-api/internal/repository"
	"github.com/campusops/nodues-api/pkg/config"
	appErrors "github.com/campusops/nodues-api/pkg/errors"
)

type formStoreStub struct {
	created     *models.ClearanceForm
	departments []string
	createErr   error
	form        *models.ClearanceForm
	getCalls    int
}

func (s *formStoreStub) Create(ctx context.Context, form *models.ClearanceForm, departments []string) error {
	if s.createErr != nil {
		return s.createErr
	}
	form.ID = "form-1"
	s.created = form
	s.departments = departments
	return nil
}

func (s *formStoreStub) GetByID(ctx context.Context, id string) (*models.ClearanceForm, error) {
	s.getCalls++
	if s.form == nil {
		return nil, repository.ErrFormNotFound
	}
	return s.form, nil
}

func (s *formStoreStub) GetByRegistrationNo(ctx context.Context, registrationNo string) (*models.ClearanceForm, error) {
	if s.form == nil || s.form.RegistrationNo != registrationNo {
		return nil, repository.ErrFormNotFound
	}
	return s.form, nil
}

func (s *formStoreStub) List(ctx context.Context, filter models.FormFilter) ([]models.ClearanceForm, int, error) {
	if s.form == nil {
		return nil, 0, nil
	}
	return []models.ClearanceForm{*s.form}, 1, nil
}

type statusReaderStub struct {
	statuses []models.DepartmentStatus
}

func (s *statusReaderStub) ListByForm(ctx context.Context, formID string) ([]models.DepartmentStatus, error) {
	return s.statuses, nil
}

func (s *statusReaderStub) ListPendingForDepartment(ctx context.Context, department string, limit, offset int) ([]models.ClearanceForm, int, error) {
	return nil, 0, nil
}

type statusCacheStub struct {
	entries map[string][]byte
	sets    int
}

func newStatusCacheStub() *statusCacheStub {
	return &statusCacheStub{entries: make(map[string][]byte)}
}

func (s *statusCacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := s.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (s *statusCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.entries[key] = raw
	s.sets++
	return nil
}

func (s *statusCacheStub) Delete(ctx context.Context, key string) error {
	delete(s.entries, key)
	return nil
}

type submissionNotifierStub struct{ submitted int }

func (s *submissionNotifierStub) FormSubmitted(ctx context.Context, form *models.ClearanceForm) {
	s.submitted++
}

func clearanceConfig() config.ClearanceConfig {
	return config.ClearanceConfig{
		Departments:      []string{"Library", "hostel", " library ", "accounts_department"},
		MaxDeptReapply:   2,
		MaxGlobalReapply: 5,
	}
}

func newClearanceService(forms *formStoreStub, statuses *statusReaderStub, cache statusCache, notifier *submissionNotifierStub) *ClearanceService {
	return NewClearanceService(forms, statuses, nil, cache, nil, notifier, nil, nil, clearanceConfig(), time.Minute)
}

func TestSubmitNormalizesAndFansOut(t *testing.T) {
	forms := &formStoreStub{}
	notifier := &submissionNotifierStub{}
	svc := newClearanceService(forms, &statusReaderStub{}, nil, notifier)

	form, err := svc.Submit(context.Background(), dto.SubmitClearanceRequest{
		RegistrationNo: " 2021bcs001 ",
		StudentName:    "Asha Verma",
		ParentName:     "Ravi Verma",
		School:         "SOET",
		Course:         "B.Tech",
		Branch:         "CSE",
		ContactNo:      "9876543210",
		PersonalEmail:  "Asha@Example.com",
		AdmissionYear:  2021,
		PassingYear:    2025,
	})
	require.NoError(t, err)
	require.Equal(t, "2021BCS001", form.RegistrationNo)
	require.Equal(t, "asha@example.com", form.PersonalEmail)
	require.Equal(t, models.FormStatusPending, form.Status)
	require.Equal(t, []string{"library", "hostel", "accounts_department"}, forms.departments)
	require.Equal(t, 1, notifier.submitted)
}

func TestSubmitRejectsInvertedYears(t *testing.T) {
	svc := newClearanceService(&formStoreStub{}, &statusReaderStub{}, nil, nil)

	_, err := svc.Submit(context.Background(), dto.SubmitClearanceRequest{
		RegistrationNo: "2021BCS001",
		StudentName:    "Asha Verma",
		ParentName:     "Ravi Verma",
		School:         "SOET",
		Course:         "B.Tech",
		Branch:         "CSE",
		ContactNo:      "9876543210",
		PersonalEmail:  "asha@example.com",
		AdmissionYear:  2025,
		PassingYear:    2021,
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestSubmitMapsDuplicateActiveForm(t *testing.T) {
	forms := &formStoreStub{createErr: repository.ErrDuplicateActiveForm}
	svc := newClearanceService(forms, &statusReaderStub{}, nil, nil)

	_, err := svc.Submit(context.Background(), dto.SubmitClearanceRequest{
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
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrDuplicateSubmission.Code, appErr.Code)
}

func TestGetStatusReportsReapplyEligibility(t *testing.T) {
	reason := "dues pending"
	forms := &formStoreStub{form: &models.ClearanceForm{ID: "form-1", Status: models.FormStatusRejected}}
	statuses := &statusReaderStub{statuses: []models.DepartmentStatus{
		{DepartmentName: "hostel", Status: models.DeptStatusRejected, RejectionReason: &reason, RejectionCount: 1},
		{DepartmentName: "library", Status: models.DeptStatusRejected, RejectionReason: &reason, RejectionCount: 2},
		{DepartmentName: "examination", Status: models.DeptStatusApproved},
	}}
	svc := newClearanceService(forms, statuses, nil, nil)

	resp, err := svc.GetStatus(context.Background(), "form-1")
	require.NoError(t, err)
	require.Len(t, resp.Departments, 3)

	byDept := make(map[string]dto.DepartmentStatusView)
	for _, v := range resp.Departments {
		byDept[v.Department] = v
	}
	require.True(t, byDept["hostel"].CanReapply)
	require.False(t, byDept["library"].CanReapply)
	require.NotEmpty(t, byDept["library"].ReapplyBlocked)
	require.False(t, byDept["examination"].CanReapply)
}

func TestGetStatusServesFromCache(t *testing.T) {
	forms := &formStoreStub{form: &models.ClearanceForm{ID: "form-1", Status: models.FormStatusPending}}
	statuses := &statusReaderStub{statuses: []models.DepartmentStatus{
		{DepartmentName: "library", Status: models.DeptStatusPending},
	}}
	cache := newStatusCacheStub()
	svc := newClearanceService(forms, statuses, cache, nil)

	_, err := svc.GetStatus(context.Background(), "form-1")
	require.NoError(t, err)
	require.Equal(t, 1, forms.getCalls)
	require.Equal(t, 1, cache.sets)

	_, err = svc.GetStatus(context.Background(), "form-1")
	require.NoError(t, err)
	require.Equal(t, 1, forms.getCalls)
}

func TestListFormsRequiresAdmin(t *testing.T) {
	svc := newClearanceService(&formStoreStub{}, &statusReaderStub{}, nil, nil)

	_, _, err := svc.ListForms(context.Background(), dto.ListClearanceQuery{}, deptActor("library"))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestListPendingForDepartmentEnforcesOwnership(t *testing.T) {
	svc := newClearanceService(&formStoreStub{}, &statusReaderStub{}, nil, nil)

	_, _, err := svc.ListPendingForDepartment(context.Background(), "hostel", 10, 0, deptActor("library"))
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}
