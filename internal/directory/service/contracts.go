package service

import (
	"context"
	"errors"
	"time"

	"tenantguard/internal/directory/models"
	"tenantguard/internal/sentinel"
	"tenantguard/internal/storage"
	id "tenantguard/pkg/domain"
	dErrors "tenantguard/pkg/domain-errors"
)

// Store interfaces define persistence contracts.

type TenantStore interface {
	CreateIfNameAvailable(ctx context.Context, tenant *models.Tenant) error
	Update(ctx context.Context, tenant *models.Tenant) error
	FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	FindByName(ctx context.Context, name string) (*models.Tenant, error)
	List(ctx context.Context) ([]*models.Tenant, error)
	Count(ctx context.Context) (int, error)
}

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	// AssignTenantIfActive writes the user's tenant only if that tenant is
	// active at write time, and returns the previous assignment.
	AssignTenantIfActive(ctx context.Context, userID id.UserID, tenantID id.TenantID, now time.Time) (*id.TenantID, error)
	CountByTenant(ctx context.Context, tenantID id.TenantID) (int, error)
}

// RowCounter counts rows in school tables; storage.Engine satisfies it.
type RowCounter interface {
	Count(ctx context.Context, table string, filter storage.Filter) (int, error)
}

// ID validation helpers reduce repetition in service methods.

func requireTenantID(tenantID id.TenantID) error {
	if tenantID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "tenant ID required")
	}
	return nil
}

func requireUserID(userID id.UserID) error {
	if userID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "user ID required")
	}
	return nil
}

// Error wrapping helpers translate sentinel errors to domain errors.

func wrapTenantErr(err error, action string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "tenant not found")
	}
	return dErrors.Wrap(err, dErrors.CodeStorage, action)
}

func wrapUserErr(err error, action string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	return dErrors.Wrap(err, dErrors.CodeStorage, action)
}
