// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "tenantguard/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing UserID where TenantID is expected.
type (
	UserID    uuid.UUID
	SessionID uuid.UUID
	TenantID  uuid.UUID
)

// Parse functions - use at trust boundaries (handlers, token claims, row values).

func ParseUserID(s string) (UserID, error) {
	id, err := parseUUID(s, "user ID")
	return UserID(id), err
}

func ParseSessionID(s string) (SessionID, error) {
	id, err := parseUUID(s, "session ID")
	return SessionID(id), err
}

func ParseTenantID(s string) (TenantID, error) {
	id, err := parseUUID(s, "tenant ID")
	return TenantID(id), err
}

func (id UserID) String() string    { return uuid.UUID(id).String() }
func (id SessionID) String() string { return uuid.UUID(id).String() }
func (id TenantID) String() string  { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id TenantID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

// TenantPtr returns a pointer to a copy of id. Used where a tenant is optional
// (users awaiting assignment, session hints).
func TenantPtr(id TenantID) *TenantID {
	return &id
}

// SameTenant reports whether two optional tenant references point at the same tenant.
// Two nil references are not the same tenant.
func SameTenant(a, b *TenantID) bool {
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return id, nil
}
