package handler

import (
	"strings"

	"tenantguard/internal/directory/models"
	"tenantguard/internal/directory/service"
	id "tenantguard/pkg/domain"
)

type CreateTenantRequest struct {
	Name             string `json:"name" validate:"required,max=128"`
	SubscriptionPlan string `json:"subscription_plan" validate:"omitempty,oneof=basic standard premium"`
	MaxStudents      int    `json:"max_students" validate:"gte=0"`
	MaxTeachers      int    `json:"max_teachers" validate:"gte=0"`
	MaxClasses       int    `json:"max_classes" validate:"gte=0"`
}

func (r *CreateTenantRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.SubscriptionPlan = strings.ToLower(strings.TrimSpace(r.SubscriptionPlan))
}

func (r *CreateTenantRequest) ToCommand() service.CreateTenantCommand {
	return service.CreateTenantCommand{
		Name: r.Name,
		Plan: models.SubscriptionPlan(r.SubscriptionPlan),
		Quotas: models.Quotas{
			MaxStudents: r.MaxStudents,
			MaxTeachers: r.MaxTeachers,
			MaxClasses:  r.MaxClasses,
		},
	}
}

type RegisterUserRequest struct {
	Email           string  `json:"email" validate:"required,email,max=255"`
	Role            string  `json:"role" validate:"required,oneof=admin teacher parent student"`
	LinkedTeacherID *string `json:"linked_teacher_id,omitempty" validate:"omitempty,uuid"`
	LinkedStudentID *string `json:"linked_student_id,omitempty" validate:"omitempty,uuid"`
	LinkedParentOf  *string `json:"linked_parent_of,omitempty" validate:"omitempty,uuid"`
}

func (r *RegisterUserRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
}

func (r *RegisterUserRequest) ToCommand() service.RegisterUserCommand {
	return service.RegisterUserCommand{
		Email:           r.Email,
		Role:            id.Role(r.Role),
		LinkedTeacherID: r.LinkedTeacherID,
		LinkedStudentID: r.LinkedStudentID,
		LinkedParentOf:  r.LinkedParentOf,
	}
}

type AssignTenantRequest struct {
	TenantID string `json:"tenant_id" validate:"required,uuid"`
}

func (r *AssignTenantRequest) Normalize() {
	r.TenantID = strings.TrimSpace(r.TenantID)
}
