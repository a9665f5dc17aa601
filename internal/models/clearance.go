package models

import (
	"encoding/json"
	"time"
)

// FormStatus captures the aggregate state of a clearance form.
type FormStatus string

const (
	FormStatusPending    FormStatus = "pending"
	FormStatusInProgress FormStatus = "in_progress"
	FormStatusCompleted  FormStatus = "completed"
	FormStatusRejected   FormStatus = "rejected"
)

// DeptStatus captures the state of one department's review.
type DeptStatus string

const (
	DeptStatusPending  DeptStatus = "pending"
	DeptStatusApproved DeptStatus = "approved"
	DeptStatusRejected DeptStatus = "rejected"
)

// ClearanceAction enumerates the operations a department actor may request.
type ClearanceAction string

const (
	ActionApprove ClearanceAction = "approve"
	ActionReject  ClearanceAction = "reject"
)

// ClearanceForm is one student's no-dues submission.
type ClearanceForm struct {
	ID                 string     `db:"id" json:"id"`
	RegistrationNo     string     `db:"registration_no" json:"registration_no"`
	StudentName        string     `db:"student_name" json:"student_name"`
	ParentName         string     `db:"parent_name" json:"parent_name"`
	School             string     `db:"school" json:"school"`
	Course             string     `db:"course" json:"course"`
	Branch             string     `db:"branch" json:"branch"`
	ContactNo          string     `db:"contact_no" json:"contact_no"`
	PersonalEmail      string     `db:"personal_email" json:"personal_email"`
	CollegeEmail       string     `db:"college_email" json:"college_email"`
	AdmissionYear      int        `db:"admission_year" json:"admission_year"`
	PassingYear        int        `db:"passing_year" json:"passing_year"`
	Status             FormStatus `db:"status" json:"status"`
	ReapplicationCount int        `db:"reapplication_count" json:"reapplication_count"`
	LastReappliedAt    *time.Time `db:"last_reapplied_at" json:"last_reapplied_at,omitempty"`
	CertificateURL     *string    `db:"certificate_url" json:"certificate_url,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// Email returns the preferred student contact address.
func (f *ClearanceForm) Email() string {
	if f.PersonalEmail != "" {
		return f.PersonalEmail
	}
	return f.CollegeEmail
}

// DepartmentStatus is the review state of one department for one form.
// Exactly one row exists per (form, department) pair; the pair is fixed at
// submission time.
type DepartmentStatus struct {
	ID              string     `db:"id" json:"id"`
	FormID          string     `db:"form_id" json:"form_id"`
	DepartmentName  string     `db:"department_name" json:"department_name"`
	Status          DeptStatus `db:"status" json:"status"`
	RejectionReason *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`
	RejectionCount  int        `db:"rejection_count" json:"rejection_count"`
	ActionAt        *time.Time `db:"action_at" json:"action_at,omitempty"`
	ActionByUserID  *string    `db:"action_by_user_id" json:"action_by_user_id,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// AggregateStatus derives the overall form status from its department rows.
// A single rejection dominates regardless of how many departments already
// approved; a mostly-approved form is never reported as completed.
func AggregateStatus(statuses []DepartmentStatus) FormStatus {
	if len(statuses) == 0 {
		return FormStatusPending
	}
	approved := 0
	pending := 0
	for _, s := range statuses {
		switch s.Status {
		case DeptStatusRejected:
			return FormStatusRejected
		case DeptStatusApproved:
			approved++
		default:
			pending++
		}
	}
	switch {
	case approved == len(statuses):
		return FormStatusCompleted
	case pending == len(statuses):
		return FormStatusPending
	default:
		return FormStatusInProgress
	}
}

// ReapplicationHistory is an append-only audit entry written whenever a
// student resets a rejected department. DepartmentName is nil for whole-form
// reapplications.
type ReapplicationHistory struct {
	ID                  string          `db:"id" json:"id"`
	FormID              string          `db:"form_id" json:"form_id"`
	ReapplicationNumber int             `db:"reapplication_number" json:"reapplication_number"`
	DepartmentName      *string         `db:"department_name" json:"department_name,omitempty"`
	StudentMessage      string          `db:"student_message" json:"student_message"`
	EditedFields        json.RawMessage `db:"edited_fields" json:"edited_fields,omitempty"`
	PreviousStatuses    json.RawMessage `db:"previous_statuses" json:"previous_statuses,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
}

// FormFilter constrains admin listing queries.
type FormFilter struct {
	Status         []FormStatus
	RegistrationNo string
	School         string
	Course         string
	Limit          int
	Offset         int
}
