package handler

import (
	"strings"

	"tenantguard/internal/auditor"
	id "tenantguard/pkg/domain"
	dErrors "tenantguard/pkg/domain-errors"
)

// ScanRequest scans one tenant, or every tenant when TenantID is empty.
type ScanRequest struct {
	TenantID string `json:"tenant_id,omitempty" validate:"omitempty,uuid"`
}

func (r *ScanRequest) Normalize() {
	r.TenantID = strings.TrimSpace(r.TenantID)
}

func (r *ScanRequest) Scope() auditor.Scope {
	return scopeFor(r.TenantID)
}

type RepairRequest struct {
	AnomalyID      string `json:"anomaly_id" validate:"required,hexadecimal,len=24"`
	Strategy       string `json:"strategy" validate:"required"`
	TenantID       string `json:"tenant_id,omitempty" validate:"omitempty,uuid"`
	TargetTenantID string `json:"target_tenant_id,omitempty" validate:"omitempty,uuid"`
	DryRun         bool   `json:"dry_run"`
	Actor          string `json:"actor,omitempty" validate:"max=255"`
	Note           string `json:"note,omitempty" validate:"max=1024"`

	strategy auditor.Strategy
}

func (r *RepairRequest) Normalize() {
	r.AnomalyID = strings.ToLower(strings.TrimSpace(r.AnomalyID))
	r.Strategy = strings.TrimSpace(r.Strategy)
	r.TenantID = strings.TrimSpace(r.TenantID)
	r.TargetTenantID = strings.TrimSpace(r.TargetTenantID)
	r.Actor = strings.TrimSpace(r.Actor)
}

func (r *RepairRequest) Validate() error {
	st, err := auditor.ParseStrategy(r.Strategy)
	if err != nil {
		return err
	}
	if st == auditor.StrategyAssignDefaultTenant && r.TargetTenantID == "" {
		return dErrors.New(dErrors.CodeValidation, "target_tenant_id is required for assign_default_tenant")
	}
	r.strategy = st
	return nil
}

func (r *RepairRequest) Scope() auditor.Scope {
	return scopeFor(r.TenantID)
}

func (r *RepairRequest) ToOptions() auditor.RepairOptions {
	opts := auditor.RepairOptions{DryRun: r.DryRun, Actor: r.Actor, Note: r.Note}
	if r.TargetTenantID != "" {
		if tid, err := id.ParseTenantID(r.TargetTenantID); err == nil {
			opts.TargetTenantID = &tid
		}
	}
	return opts
}

type ResolveRequest struct {
	ResolvedBy string `json:"resolved_by" validate:"required,max=255"`
}

func (r *ResolveRequest) Normalize() {
	r.ResolvedBy = strings.TrimSpace(r.ResolvedBy)
}

// scopeFor expects a value already checked by the uuid validator tag.
func scopeFor(tenantID string) auditor.Scope {
	if tenantID == "" {
		return auditor.AllTenants()
	}
	tid, err := id.ParseTenantID(tenantID)
	if err != nil {
		return auditor.AllTenants()
	}
	return auditor.Tenant(tid)
}
