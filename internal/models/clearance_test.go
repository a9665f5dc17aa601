package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func deptStatuses(states ...DeptStatus) []DepartmentStatus {
	statuses := make([]DepartmentStatus, len(states))
	for i, state := range states {
		statuses[i] = DepartmentStatus{Status: state}
	}
	return statuses
}

func TestAggregateStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []DepartmentStatus
		want     FormStatus
	}{
		{"no rows", nil, FormStatusPending},
		{"all pending", deptStatuses(DeptStatusPending, DeptStatusPending), FormStatusPending},
		{"mixed pending and approved", deptStatuses(DeptStatusApproved, DeptStatusPending), FormStatusInProgress},
		{"all approved", deptStatuses(DeptStatusApproved, DeptStatusApproved, DeptStatusApproved), FormStatusCompleted},
		{"single rejection dominates", deptStatuses(DeptStatusApproved, DeptStatusRejected, DeptStatusPending), FormStatusRejected},
		{
			"nine approved one rejected is rejected",
			deptStatuses(
				DeptStatusApproved, DeptStatusApproved, DeptStatusApproved, DeptStatusApproved, DeptStatusApproved,
				DeptStatusApproved, DeptStatusApproved, DeptStatusApproved, DeptStatusApproved, DeptStatusRejected,
			),
			FormStatusRejected,
		},
		{"single pending row", deptStatuses(DeptStatusPending), FormStatusPending},
		{"single approved row", deptStatuses(DeptStatusApproved), FormStatusCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AggregateStatus(tt.statuses))
		})
	}
}

func TestFormEmailPrefersPersonal(t *testing.T) {
	form := &ClearanceForm{PersonalEmail: "personal@example.com", CollegeEmail: "college@univ.edu"}
	assert.Equal(t, "personal@example.com", form.Email())

	form.PersonalEmail = ""
	assert.Equal(t, "college@univ.edu", form.Email())
}

func TestUserOwnsDepartment(t *testing.T) {
	staff := &User{Role: RoleDepartment, Departments: []string{"library", "hostel"}}
	assert.True(t, staff.OwnsDepartment("library"))
	assert.False(t, staff.OwnsDepartment("examination"))

	admin := &User{Role: RoleAdmin}
	assert.True(t, admin.OwnsDepartment("anything"))
}
