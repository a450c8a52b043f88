// Package ownership is the single place that decides whether a principal may
// touch a tenant-scoped row. It is pure apart from logging and metrics: the
// caller supplies the resolved tenant and the row's recorded tenant.
package ownership

import (
	"context"
	"log/slog"

	ownershipmetrics "tenantguard/internal/ownership/metrics"
	id "tenantguard/pkg/domain"
	"tenantguard/pkg/platform/audit"
)

// Validator evaluates row ownership.
type Validator struct {
	logger  *slog.Logger
	audit   *audit.Logger
	metrics *ownershipmetrics.Metrics
}

type Option func(*Validator)

func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// WithAuditEmitter sends maintenance cross-tenant access events to emitter
// in addition to the audit log line.
func WithAuditEmitter(emitter audit.Emitter) Option {
	return func(v *Validator) {
		v.audit = audit.NewLogger(v.logger, emitter)
	}
}

func WithMetrics(m *ownershipmetrics.Metrics) Option {
	return func(v *Validator) {
		v.metrics = m
	}
}

func New(opts ...Option) *Validator {
	v := &Validator{}
	for _, opt := range opts {
		opt(v)
	}
	if v.audit == nil {
		v.audit = audit.NewLogger(v.logger, nil)
	}
	return v
}

// Authorize decides whether principal, acting for resolved, may perform op on
// a row whose recorded tenant is entity.
//
// For Create, entity is the tenant stamped on the new row.
// For users: no resolved tenant → TenantNotAssigned; NULL row tenant →
// NullTenant; any other tenant (or an unparsable value) → TenantMismatch.
// Maintenance principals are always allowed; every access outside their
// resolved tenant is written to the audit log.
func (v *Validator) Authorize(ctx context.Context, principal Principal, resolved *id.TenantID, op Operation, entity EntityTenant) Decision {
	d := v.decide(ctx, principal, resolved, op, entity)
	if v.metrics != nil {
		v.metrics.IncDecision(op.String(), string(d.Reason))
	}
	return d
}

func (v *Validator) decide(ctx context.Context, principal Principal, resolved *id.TenantID, op Operation, entity EntityTenant) Decision {
	target, known := entity.TenantID()
	var targetPtr *id.TenantID
	if known {
		targetPtr = id.TenantPtr(target)
	}

	if principal.IsMaintenance() {
		if !known || resolved == nil || *resolved != target {
			v.recordMaintenanceAccess(ctx, principal, resolved, op, entity)
		}
		return Allow(resolved, targetPtr)
	}

	if resolved == nil || resolved.IsNil() {
		return Decision{Reason: ReasonTenantNotAssigned, TargetTenantID: targetPtr}
	}
	switch {
	case entity.IsNull():
		return Decision{Reason: ReasonNullTenant, ResolvedTenantID: resolved}
	case !known:
		return Decision{Reason: ReasonTenantMismatch, ResolvedTenantID: resolved}
	case target != *resolved:
		return Decision{Reason: ReasonTenantMismatch, ResolvedTenantID: resolved, TargetTenantID: targetPtr}
	}
	return Allow(resolved, targetPtr)
}

func (v *Validator) recordMaintenanceAccess(ctx context.Context, principal Principal, resolved *id.TenantID, op Operation, entity EntityTenant) {
	resolvedStr := ""
	if resolved != nil {
		resolvedStr = resolved.String()
	}
	v.audit.Log(ctx, string(audit.EventMaintenanceAccess),
		"subject", principal.Subject(),
		"operation", op.String(),
		"resolved_tenant_id", resolvedStr,
		"tenant_id", entity.String(),
		"decision", "allowed",
		"reason", string(ReasonAllowed),
	)
	if v.metrics != nil {
		v.metrics.IncMaintenanceAccess()
	}
}
