package models

import id "tenantguard/pkg/domain"

// Domain events capture what happened in the directory.
// The service publishes them to the audit pipeline.

// TenantAssigned records a user moving into a school. Previous is nil for a
// first assignment.
type TenantAssigned struct {
	UserID   id.UserID
	TenantID id.TenantID
	Previous *id.TenantID
}

// TenantHintMismatch records a session claiming a different school than the
// directory holds.
type TenantHintMismatch struct {
	UserID   id.UserID
	Claimed  id.TenantID
	Resolved id.TenantID
}
