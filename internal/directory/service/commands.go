package service

import (
	"strings"

	"tenantguard/internal/directory/models"
	id "tenantguard/pkg/domain"
	dErrors "tenantguard/pkg/domain-errors"
)

// CreateTenantCommand contains validated input for tenant creation.
type CreateTenantCommand struct {
	Name   string
	Plan   models.SubscriptionPlan
	Quotas models.Quotas
}

func (c *CreateTenantCommand) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.Plan = models.SubscriptionPlan(strings.ToLower(strings.TrimSpace(string(c.Plan))))
}

func (c *CreateTenantCommand) Validate() error {
	if c.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if len(c.Name) > models.MaxTenantNameLength {
		return dErrors.New(dErrors.CodeValidation, "name must be 128 characters or less")
	}
	if c.Plan != "" && !c.Plan.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "subscription_plan must be basic, standard or premium")
	}
	if c.Quotas.MaxStudents < 0 || c.Quotas.MaxTeachers < 0 || c.Quotas.MaxClasses < 0 {
		return dErrors.New(dErrors.CodeValidation, "quotas cannot be negative")
	}
	return nil
}

// RegisterUserCommand contains validated input for signup. The new account
// has no tenant; AssignTenant is a separate, audited step.
type RegisterUserCommand struct {
	Email           string
	Role            id.Role
	LinkedTeacherID *string
	LinkedStudentID *string
	LinkedParentOf  *string
}

func (c *RegisterUserCommand) Normalize() {
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Role = id.Role(strings.ToLower(strings.TrimSpace(string(c.Role))))
}

func (c *RegisterUserCommand) Validate() error {
	if c.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if len(c.Email) > models.MaxEmailLength {
		return dErrors.New(dErrors.CodeValidation, "email must be 255 characters or less")
	}
	if !strings.Contains(c.Email, "@") {
		return dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	if !c.Role.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "role must be admin, teacher, parent or student")
	}
	return nil
}
