package models

import (
	"strings"
	"time"

	id "tenantguard/pkg/domain"
	dErrors "tenantguard/pkg/domain-errors"
	"tenantguard/pkg/platform/validation"
)

const MaxEmailLength = validation.MaxEmailLength

// User is an authenticated account. TenantID nil means "not assigned yet";
// only AssignTenant changes it.
type User struct {
	ID              id.UserID    `json:"id"`
	Email           string       `json:"email"`
	TenantID        *id.TenantID `json:"tenant_id,omitempty"`
	Role            id.Role      `json:"role"`
	LinkedTeacherID *string      `json:"linked_teacher_id,omitempty"`
	LinkedStudentID *string      `json:"linked_student_id,omitempty"`
	LinkedParentOf  *string      `json:"linked_parent_of,omitempty"`
	Active          bool         `json:"active"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// HasTenant reports whether the user has been assigned to a school.
func (u *User) HasTenant() bool {
	return u.TenantID != nil && !u.TenantID.IsNil()
}

// Deactivate blocks the account. Deactivated users no longer resolve.
func (u *User) Deactivate(now time.Time) error {
	if !u.Active {
		return dErrors.New(dErrors.CodeInvariantViolation, "user is already inactive")
	}
	u.Active = false
	u.UpdatedAt = now
	return nil
}

// NewUser validates signup input. The account starts active and unassigned.
func NewUser(userID id.UserID, email string, role id.Role, now time.Time) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "a valid email is required")
	}
	if len(email) > MaxEmailLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "email must be 255 characters or less")
	}
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown role")
	}
	return &User{
		ID:        userID,
		Email:     email,
		Role:      role,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
