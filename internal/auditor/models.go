package auditor

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"tenantguard/internal/schema"
	id "tenantguard/pkg/domain"
	dErrors "tenantguard/pkg/domain-errors"
)

// Kind classifies a consistency anomaly.
//
// An orphaned_foreign_key whose RefTable is TenantsTable is a tenant_id that
// names no directory tenant or cannot be parsed. An inactive_tenant is a row
// owned by a tenant that exists but is not active.
type Kind string

const (
	KindNullTenant          Kind = "null_tenant_id"
	KindCrossEntityMismatch Kind = "cross_entity_tenant_mismatch"
	KindOrphanedForeignKey  Kind = "orphaned_foreign_key"
	KindInactiveTenant      Kind = "inactive_tenant"
)

// TenantsTable is the RefTable of anomalies about the tenant_id column itself.
const TenantsTable = "tenants"

var allKinds = []Kind{KindNullTenant, KindCrossEntityMismatch, KindOrphanedForeignKey, KindInactiveTenant}

func (k Kind) IsValid() bool {
	switch k {
	case KindNullTenant, KindCrossEntityMismatch, KindOrphanedForeignKey, KindInactiveTenant:
		return true
	}
	return false
}

// Anomaly is one violation found by a scan. ID is a hash of the fields that
// identify it, so the same data always yields the same anomalies. The Ref
// fields are set for mismatch, orphan and inactive-tenant anomalies.
type Anomaly struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	Table       string `json:"table"`
	RowID       string `json:"row_id"`
	TenantID    string `json:"tenant_id,omitempty"`
	Column      string `json:"column,omitempty"`
	RefTable    string `json:"ref_table,omitempty"`
	RefRowID    string `json:"ref_row_id,omitempty"`
	RefTenantID string `json:"ref_tenant_id,omitempty"`

	// TenantStatus is set on inactive_tenant anomalies.
	TenantStatus string `json:"tenant_status,omitempty"`
}

// TenantReference reports whether the anomaly is about the row's tenant_id
// pointing at the tenant directory.
func (a Anomaly) TenantReference() bool {
	return a.Column == schema.ColumnTenantID && a.RefTable == TenantsTable
}

func newAnomaly(a Anomaly) Anomaly {
	h := sha256.Sum256([]byte(strings.Join([]string{
		string(a.Kind), a.Table, a.RowID, a.Column, a.RefTable, a.RefRowID,
	}, "\x1f")))
	a.ID = hex.EncodeToString(h[:12])
	return a
}

func sortAnomalies(list []Anomaly) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Table != b.Table {
			return a.Table < b.Table
		}
		if a.RowID != b.RowID {
			return a.RowID < b.RowID
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		return a.ID < b.ID
	})
}

// Scope limits a scan to one tenant. The zero value scans every tenant,
// including rows with no tenant at all.
type Scope struct {
	TenantID *id.TenantID
}

func AllTenants() Scope { return Scope{} }

func Tenant(tenantID id.TenantID) Scope { return Scope{TenantID: &tenantID} }

func (s Scope) String() string {
	if s.TenantID == nil {
		return "all"
	}
	return s.TenantID.String()
}

// Strategy names a repair.
type Strategy string

const (
	StrategyAssignDefaultTenant Strategy = "assign_default_tenant"
	StrategyDeleteOrphan        Strategy = "delete_orphan"
	StrategyFlagForReview       Strategy = "flag_for_manual_review"
)

// Supports reports whether s may be applied to an. Orphans are re-stamped
// only when the missing row is the tenant itself.
func (s Strategy) Supports(an Anomaly) bool {
	switch s {
	case StrategyAssignDefaultTenant:
		switch an.Kind {
		case KindNullTenant, KindCrossEntityMismatch, KindInactiveTenant:
			return true
		case KindOrphanedForeignKey:
			return an.TenantReference()
		}
		return false
	case StrategyDeleteOrphan:
		return an.Kind == KindOrphanedForeignKey
	case StrategyFlagForReview:
		return an.Kind.IsValid()
	}
	return false
}

func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.TrimSpace(strings.ToLower(s))); st {
	case StrategyAssignDefaultTenant, StrategyDeleteOrphan, StrategyFlagForReview:
		return st, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown repair strategy "+s)
}

// RepairOptions parameterize a repair. TargetTenantID is required for
// assign_default_tenant; there is no built-in fallback tenant.
type RepairOptions struct {
	TargetTenantID *id.TenantID
	DryRun         bool
	// Actor is recorded on audit events and review items.
	Actor string
	Note  string
}

// Outcome reports what a repair did, or would do on a dry run. Stale means
// the anomaly no longer holds and nothing was changed.
type Outcome struct {
	AnomalyID    string   `json:"anomaly_id"`
	Strategy     Strategy `json:"strategy"`
	DryRun       bool     `json:"dry_run"`
	Applied      bool     `json:"applied"`
	Stale        bool     `json:"stale,omitempty"`
	RowsAffected int      `json:"rows_affected"`
	ReviewItemID string   `json:"review_item_id,omitempty"`
	Description  string   `json:"description"`
}

// Summary aggregates a scan for schedulers and operators.
type Summary struct {
	Scope  string       `json:"scope"`
	Total  int          `json:"total"`
	ByKind map[Kind]int `json:"by_kind"`
}

func Summarize(scope Scope, anomalies []Anomaly) Summary {
	s := Summary{Scope: scope.String(), Total: len(anomalies), ByKind: map[Kind]int{}}
	for _, a := range anomalies {
		s.ByKind[a.Kind]++
	}
	return s
}
