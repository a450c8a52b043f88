package models

import (
	"time"

	id "tenantguard/pkg/domain"
	dErrors "tenantguard/pkg/domain-errors"
	"tenantguard/pkg/platform/validation"
)

const MaxTenantNameLength = validation.MaxTenantNameLength

// Tenant is one school. Tenants are never removed, only deactivated.
type Tenant struct {
	ID               id.TenantID      `json:"id"`
	Name             string           `json:"name"`
	Status           TenantStatus     `json:"status"`
	SubscriptionPlan SubscriptionPlan `json:"subscription_plan"`
	Quotas           Quotas           `json:"quotas"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// IsActive is true only for the active status; suspended counts as inactive.
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

// Deactivate transitions the tenant to inactive status.
// Returns an error if the tenant is already inactive.
func (t *Tenant) Deactivate(now time.Time) error {
	if !t.IsActive() {
		return dErrors.New(dErrors.CodeInvariantViolation, "tenant is already inactive")
	}
	t.Status = TenantStatusInactive
	t.UpdatedAt = now
	return nil
}

// Reactivate transitions an inactive or suspended tenant back to active.
func (t *Tenant) Reactivate(now time.Time) error {
	if t.IsActive() {
		return dErrors.New(dErrors.CodeInvariantViolation, "tenant is already active")
	}
	t.Status = TenantStatusActive
	t.UpdatedAt = now
	return nil
}

func NewTenant(tenantID id.TenantID, name string, plan SubscriptionPlan, quotas Quotas, now time.Time) (*Tenant, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant name cannot be empty")
	}
	if len(name) > MaxTenantNameLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant name must be 128 characters or less")
	}
	if plan == "" {
		plan = PlanBasic
	}
	if !plan.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown subscription plan")
	}
	return &Tenant{
		ID:               tenantID,
		Name:             name,
		Status:           TenantStatusActive,
		SubscriptionPlan: plan,
		Quotas:           quotas.WithDefaults(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// TableUsage is the live row count for one quota-capped table.
type TableUsage struct {
	Table string `json:"table"`
	Quota string `json:"quota"`
	Count int    `json:"count"`
	Limit int    `json:"limit"`
}

// TenantUsage aggregates tenant metadata with counts for admin dashboards.
type TenantUsage struct {
	Tenant    *Tenant      `json:"tenant"`
	UserCount int          `json:"user_count"`
	Tables    []TableUsage `json:"tables"`
}
