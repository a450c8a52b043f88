package ownership

import (
	"fmt"

	"github.com/google/uuid"

	id "tenantguard/pkg/domain"
	dErrors "tenantguard/pkg/domain-errors"
)

// Operation is the kind of access being authorized.
type Operation string

const (
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

func (o Operation) IsValid() bool {
	switch o {
	case OpRead, OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

func (o Operation) String() string { return string(o) }

// Reason explains a decision. Every denial has exactly one reason.
type Reason string

const (
	ReasonAllowed           Reason = "allowed"
	ReasonTenantMismatch    Reason = "tenant_mismatch"
	ReasonNullTenant        Reason = "null_tenant"
	ReasonTenantInactive    Reason = "tenant_inactive"
	ReasonTenantNotAssigned Reason = "tenant_not_assigned"
	ReasonResolutionTimeout Reason = "resolution_timeout"
	ReasonUnauthenticated   Reason = "unauthenticated"
)

// Code maps the reason onto the shared error taxonomy.
func (r Reason) Code() dErrors.Code {
	switch r {
	case ReasonTenantMismatch:
		return dErrors.CodeTenantMismatch
	case ReasonNullTenant:
		return dErrors.CodeNullTenant
	case ReasonTenantInactive:
		return dErrors.CodeTenantInactive
	case ReasonTenantNotAssigned:
		return dErrors.CodeTenantNotAssigned
	case ReasonResolutionTimeout:
		return dErrors.CodeResolutionTimeout
	case ReasonUnauthenticated:
		return dErrors.CodeUnauthorized
	default:
		return dErrors.CodeForbidden
	}
}

type entityKind int

const (
	entityNull entityKind = iota
	entityKnown
	entityUnparsable
)

// EntityTenant is the tenant recorded on a row: a known tenant, NULL, or a
// value that is not a tenant ID at all. The zero value is Null.
type EntityTenant struct {
	kind entityKind
	id   id.TenantID
	raw  string
}

func Known(tenantID id.TenantID) EntityTenant {
	if tenantID.IsNil() {
		return Null()
	}
	return EntityTenant{kind: entityKnown, id: tenantID}
}

func Null() EntityTenant {
	return EntityTenant{kind: entityNull}
}

func Unparsable(raw string) EntityTenant {
	return EntityTenant{kind: entityUnparsable, raw: raw}
}

// FromValue classifies a raw tenant_id column value.
func FromValue(v any) EntityTenant {
	switch t := v.(type) {
	case nil:
		return Null()
	case id.TenantID:
		return Known(t)
	case *id.TenantID:
		if t == nil {
			return Null()
		}
		return Known(*t)
	case uuid.UUID:
		return Known(id.TenantID(t))
	case string:
		if t == "" {
			return Null()
		}
		parsed, err := id.ParseTenantID(t)
		if err != nil {
			return Unparsable(t)
		}
		return Known(parsed)
	default:
		return Unparsable(fmt.Sprint(t))
	}
}

func (e EntityTenant) IsNull() bool       { return e.kind == entityNull }
func (e EntityTenant) IsUnparsable() bool { return e.kind == entityUnparsable }

// TenantID returns the known tenant, or false for Null and Unparsable.
func (e EntityTenant) TenantID() (id.TenantID, bool) {
	return e.id, e.kind == entityKnown
}

func (e EntityTenant) String() string {
	switch e.kind {
	case entityKnown:
		return e.id.String()
	case entityUnparsable:
		return "unparsable:" + e.raw
	default:
		return "null"
	}
}

// PrincipalKind separates ordinary users from in-process maintenance jobs.
type PrincipalKind int

const (
	PrincipalUser PrincipalKind = iota
	PrincipalSystemMaintenance
)

// Principal is who is asking. Maintenance principals can only be built with
// Maintenance inside this process; nothing derived from a session token
// produces one.
type Principal struct {
	Kind   PrincipalKind
	UserID id.UserID
	Name   string
}

func User(userID id.UserID) Principal {
	return Principal{Kind: PrincipalUser, UserID: userID}
}

func Maintenance(name string) Principal {
	return Principal{Kind: PrincipalSystemMaintenance, Name: name}
}

func (p Principal) IsMaintenance() bool {
	return p.Kind == PrincipalSystemMaintenance
}

// Subject renders the principal for logs and audit events.
func (p Principal) Subject() string {
	if p.IsMaintenance() {
		return "maintenance:" + p.Name
	}
	return p.UserID.String()
}

// Decision is the outcome of one authorization check. Never persisted.
type Decision struct {
	Allowed          bool
	Reason           Reason
	ResolvedTenantID *id.TenantID
	TargetTenantID   *id.TenantID
}

// Allow builds an allowed decision.
func Allow(resolved, target *id.TenantID) Decision {
	return Decision{Allowed: true, Reason: ReasonAllowed, ResolvedTenantID: resolved, TargetTenantID: target}
}

// DeniedBy builds a denial for checks made outside the validator
// (inactive tenant, unassigned user, resolution timeout).
func DeniedBy(reason Reason, resolved *id.TenantID) Decision {
	return Decision{Reason: reason, ResolvedTenantID: resolved}
}

// Err returns nil for allowed decisions and a domain error naming the reason otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return dErrors.New(d.Reason.Code(), denialMessage(d.Reason))
}

func denialMessage(r Reason) string {
	switch r {
	case ReasonTenantMismatch:
		return "record belongs to a different tenant"
	case ReasonNullTenant:
		return "record has no tenant"
	case ReasonTenantInactive:
		return "tenant is not active"
	case ReasonTenantNotAssigned:
		return "user is not assigned to a tenant"
	case ReasonResolutionTimeout:
		return "tenant resolution timed out"
	case ReasonUnauthenticated:
		return "authentication required"
	default:
		return "access denied"
	}
}
