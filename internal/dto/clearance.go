package dto

import (
	"encoding/json"
	"time"

	"github.com/campusops/nodues-api/internal/models"
)

// SubmitClearanceRequest payload for opening a new clearance form.
type SubmitClearanceRequest struct {
	RegistrationNo string `json:"registrationNo" binding:"required,min=3,max=32"`
	StudentName    string `json:"studentName" binding:"required,min=2,max=120"`
	ParentName     string `json:"parentName" binding:"required,min=2,max=120"`
	School         string `json:"school" binding:"required"`
	Course         string `json:"course" binding:"required"`
	Branch         string `json:"branch" binding:"required"`
	ContactNo      string `json:"contactNo" binding:"required,min=7,max=20"`
	PersonalEmail  string `json:"personalEmail" binding:"required,email"`
	CollegeEmail   string `json:"collegeEmail" binding:"omitempty,email"`
	AdmissionYear  int    `json:"admissionYear" binding:"required,min=1990,max=2100"`
	PassingYear    int    `json:"passingYear" binding:"required,min=1990,max=2100"`
}

// ActionRequest captures a department staff decision on one pending row.
// FormID is taken from the URL path, never from the body.
type ActionRequest struct {
	FormID     string                 `json:"-"`
	Department string                 `json:"department" binding:"required"`
	Action     models.ClearanceAction `json:"action" binding:"required,oneof=approve reject"`
	Reason     string                 `json:"reason"`
}

// ReapplyRequest resets a single rejected department back to pending.
// EditedFields carries the student corrections made alongside the reapply.
type ReapplyRequest struct {
	Department   string                 `json:"department" binding:"required"`
	Message      string                 `json:"message" binding:"required"`
	EditedFields map[string]interface{} `json:"editedFields"`
}

// DepartmentStatusView is the per-department slice of a status response.
type DepartmentStatusView struct {
	Department      string            `json:"department"`
	Status          models.DeptStatus `json:"status"`
	RejectionReason *string           `json:"rejectionReason,omitempty"`
	RejectionCount  int               `json:"rejectionCount"`
	ActionAt        *time.Time        `json:"actionAt,omitempty"`
	CanReapply      bool              `json:"canReapply"`
	RemainingTries  int               `json:"remainingAttempts"`
	ReapplyBlocked  string            `json:"reapplyBlockedReason,omitempty"`
}

// ClearanceStatusResponse aggregates a form with its department rows and
// reapplication eligibility.
type ClearanceStatusResponse struct {
	Form           *models.ClearanceForm  `json:"form"`
	Departments    []DepartmentStatusView `json:"departments"`
	CertificateURL *string                `json:"certificateUrl,omitempty"`
}

// ReapplicationHistoryView is a flattened history entry for API responses.
type ReapplicationHistoryView struct {
	ID           string          `json:"id"`
	Sequence     int             `json:"sequence"`
	Department   string          `json:"department"`
	Message      string          `json:"message"`
	EditedFields json.RawMessage `json:"editedFields,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// ListClearanceQuery mirrors supported admin listing filters.
type ListClearanceQuery struct {
	Status         models.FormStatus
	School         string
	Course         string
	RegistrationNo string
	Limit          int
	Offset         int
}
