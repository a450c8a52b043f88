package handler

import (
	"time"

	"tenantguard/internal/directory/models"
)

type TenantResponse struct {
	ID               string                  `json:"id"`
	Name             string                  `json:"name"`
	Status           models.TenantStatus     `json:"status"`
	SubscriptionPlan models.SubscriptionPlan `json:"subscription_plan"`
	Quotas           models.Quotas           `json:"quotas"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

type TenantListResponse struct {
	Tenants []*TenantResponse `json:"tenants"`
}

type TenantUsageResponse struct {
	Tenant    *TenantResponse     `json:"tenant"`
	UserCount int                 `json:"user_count"`
	Tables    []models.TableUsage `json:"tables"`
}

type UserResponse struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	TenantID        *string   `json:"tenant_id"`
	Role            string    `json:"role"`
	LinkedTeacherID *string   `json:"linked_teacher_id,omitempty"`
	LinkedStudentID *string   `json:"linked_student_id,omitempty"`
	LinkedParentOf  *string   `json:"linked_parent_of,omitempty"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Response mapping functions - convert domain objects to HTTP DTOs

func toTenantResponse(t *models.Tenant) *TenantResponse {
	return &TenantResponse{
		ID:               t.ID.String(),
		Name:             t.Name,
		Status:           t.Status,
		SubscriptionPlan: t.SubscriptionPlan,
		Quotas:           t.Quotas,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

func toTenantUsageResponse(u *models.TenantUsage) *TenantUsageResponse {
	tables := u.Tables
	if tables == nil {
		tables = []models.TableUsage{}
	}
	return &TenantUsageResponse{
		Tenant:    toTenantResponse(u.Tenant),
		UserCount: u.UserCount,
		Tables:    tables,
	}
}

func toUserResponse(u *models.User) *UserResponse {
	var tenantID *string
	if u.HasTenant() {
		s := u.TenantID.String()
		tenantID = &s
	}
	return &UserResponse{
		ID:              u.ID.String(),
		Email:           u.Email,
		TenantID:        tenantID,
		Role:            string(u.Role),
		LinkedTeacherID: u.LinkedTeacherID,
		LinkedStudentID: u.LinkedStudentID,
		LinkedParentOf:  u.LinkedParentOf,
		Active:          u.Active,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}
