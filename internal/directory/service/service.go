// Package service is the tenant directory: the authoritative mapping from
// users to schools, plus tenant and account lifecycle.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	directorymetrics "tenantguard/internal/directory/metrics"
	"tenantguard/internal/directory/models"
	"tenantguard/internal/schema"
	"tenantguard/internal/sentinel"
	"tenantguard/internal/storage"
	id "tenantguard/pkg/domain"
	dErrors "tenantguard/pkg/domain-errors"
	"tenantguard/pkg/platform/audit"
	"tenantguard/pkg/requestcontext"
)

// Service orchestrates tenant lookups, assignment and lifecycle.
type Service struct {
	tenants  TenantStore
	users    UserStore
	logger   *slog.Logger
	audit    *audit.Logger
	metrics  *directorymetrics.Metrics
	tx       StoreTx
	rows     RowCounter
	registry *schema.Registry
}

func New(tenants TenantStore, users UserStore, opts ...Option) *Service {
	cfg := &serviceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	tx := cfg.tx
	if tx == nil {
		tx = &lockTx{}
	}
	return &Service{
		tenants:  tenants,
		users:    users,
		logger:   cfg.logger,
		audit:    audit.NewLogger(cfg.logger, cfg.auditEmitter),
		metrics:  cfg.metrics,
		tx:       tx,
		rows:     cfg.rows,
		registry: cfg.registry,
	}
}

// GetTenantForUser resolves the user's school from persisted data only.
//
// Unknown or deactivated users are unauthenticated; a user with no tenant
// gets TenantNotAssigned; a school that is not active gets TenantInactive.
// The tenant is returned alongside TenantInactive so callers can log it.
func (s *Service) GetTenantForUser(ctx context.Context, userID id.UserID) (*models.Tenant, error) {
	start := time.Now()
	tenant, err := s.getTenantForUser(ctx, userID)
	s.observeResolve(dErrors.CodeOf(err), err == nil, start)
	return tenant, err
}

func (s *Service) getTenantForUser(ctx context.Context, userID id.UserID) (*models.Tenant, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "user ID required")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "unknown user")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load user")
	}
	if !user.Active {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "user is deactivated")
	}
	if !user.HasTenant() {
		return nil, dErrors.New(dErrors.CodeTenantNotAssigned, "user is not assigned to a tenant")
	}

	tenant, err := s.tenants.FindByID(ctx, *user.TenantID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeTenantNotAssigned, "assigned tenant does not exist")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load tenant")
	}
	if !tenant.IsActive() {
		return tenant, dErrors.New(dErrors.CodeTenantInactive, "tenant is not active")
	}
	return tenant, nil
}

// ReconcileHint resolves the tenant authoritatively and records when the
// session's claimed tenant disagrees. The claim never changes the result.
func (s *Service) ReconcileHint(ctx context.Context, userID id.UserID, claimed *id.TenantID) (*models.Tenant, error) {
	tenant, err := s.GetTenantForUser(ctx, userID)
	if tenant != nil && claimed != nil && *claimed != tenant.ID {
		s.emitHintMismatch(ctx, models.TenantHintMismatch{UserID: userID, Claimed: *claimed, Resolved: tenant.ID})
	}
	return tenant, err
}

// AssignTenant moves a user into a school. The target must exist and be
// active; the write is conditional on that, so a concurrent deactivation
// leaves the prior assignment unchanged.
func (s *Service) AssignTenant(ctx context.Context, userID id.UserID, tenantID id.TenantID) error {
	if err := requireUserID(userID); err != nil {
		return err
	}
	if err := requireTenantID(tenantID); err != nil {
		return err
	}

	var previous *id.TenantID
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.users.FindByID(txCtx, userID); err != nil {
			return wrapUserErr(err, "failed to load user")
		}
		tenant, err := s.tenants.FindByID(txCtx, tenantID)
		if err != nil {
			return wrapTenantErr(err, "failed to load tenant")
		}
		if !tenant.IsActive() {
			return dErrors.New(dErrors.CodeTenantInactive, "cannot assign users to an inactive tenant")
		}

		prev, err := s.users.AssignTenantIfActive(txCtx, userID, tenantID, requestcontext.Now(txCtx))
		if err != nil {
			switch {
			case errors.Is(err, sentinel.ErrInvalidState):
				return dErrors.New(dErrors.CodeTenantInactive, "cannot assign users to an inactive tenant")
			case errors.Is(err, sentinel.ErrNotFound):
				return dErrors.New(dErrors.CodeNotFound, "user or tenant not found")
			}
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to assign tenant")
		}
		previous = prev
		return nil
	})
	if err != nil {
		return err
	}

	s.emitTenantAssigned(ctx, models.TenantAssigned{UserID: userID, TenantID: tenantID, Previous: previous})
	if s.metrics != nil {
		s.metrics.IncrementTenantAssigned()
	}
	return nil
}

func (s *Service) CreateTenant(ctx context.Context, cmd CreateTenantCommand) (*models.Tenant, error) {
	cmd.Normalize()
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var tenant *models.Tenant
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		t, err := models.NewTenant(id.TenantID(uuid.New()), cmd.Name, cmd.Plan, cmd.Quotas, requestcontext.Now(txCtx))
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "invalid tenant")
		}
		if err := s.tenants.CreateIfNameAvailable(txCtx, t); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "tenant name must be unique")
			}
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to create tenant")
		}
		tenant = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, string(audit.EventTenantCreated), "tenant_id", tenant.ID.String())
	if s.metrics != nil {
		s.metrics.IncrementTenantCreated()
	}
	return tenant, nil
}

func (s *Service) GetTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	if err := requireTenantID(tenantID); err != nil {
		return nil, err
	}
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, wrapTenantErr(err, "failed to load tenant")
	}
	return tenant, nil
}

// GetTenantByName retrieves a tenant by name (case-insensitive).
func (s *Service) GetTenantByName(ctx context.Context, name string) (*models.Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant name is required")
	}
	tenant, err := s.tenants.FindByName(ctx, name)
	if err != nil {
		return nil, wrapTenantErr(err, "failed to load tenant")
	}
	return tenant, nil
}

func (s *Service) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	tenants, err := s.tenants.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to list tenants")
	}
	return tenants, nil
}

// DeactivateTenant transitions a tenant to inactive status. Its users stay
// assigned but every gateway call for them is denied with TenantInactive.
func (s *Service) DeactivateTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	tenant, err := s.transitionTenant(ctx, tenantID, func(t *models.Tenant, now time.Time) error {
		return t.Deactivate(now)
	}, "tenant is already inactive")
	if err != nil {
		return nil, err
	}
	s.audit.Log(ctx, string(audit.EventTenantDeactivated), "tenant_id", tenant.ID.String())
	return tenant, nil
}

// ReactivateTenant transitions a tenant back to active status.
func (s *Service) ReactivateTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	tenant, err := s.transitionTenant(ctx, tenantID, func(t *models.Tenant, now time.Time) error {
		return t.Reactivate(now)
	}, "tenant is already active")
	if err != nil {
		return nil, err
	}
	s.audit.Log(ctx, string(audit.EventTenantReactivated), "tenant_id", tenant.ID.String())
	return tenant, nil
}

func (s *Service) transitionTenant(ctx context.Context, tenantID id.TenantID, apply func(*models.Tenant, time.Time) error, conflictMsg string) (*models.Tenant, error) {
	if err := requireTenantID(tenantID); err != nil {
		return nil, err
	}
	var tenant *models.Tenant
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		t, err := s.tenants.FindByID(txCtx, tenantID)
		if err != nil {
			return wrapTenantErr(err, "failed to load tenant")
		}
		if err := apply(t, requestcontext.Now(txCtx)); err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeConflict, conflictMsg)
			}
			return err
		}
		if err := s.tenants.Update(txCtx, t); err != nil {
			return wrapTenantErr(err, "failed to update tenant")
		}
		tenant = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

// RegisterUser creates an unassigned account.
func (s *Service) RegisterUser(ctx context.Context, cmd RegisterUserCommand) (*models.User, error) {
	cmd.Normalize()
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	user, err := models.NewUser(id.UserID(uuid.New()), cmd.Email, cmd.Role, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid user")
	}
	user.LinkedTeacherID = cmd.LinkedTeacherID
	user.LinkedStudentID = cmd.LinkedStudentID
	user.LinkedParentOf = cmd.LinkedParentOf

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "email is already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to create user")
	}

	s.audit.Log(ctx, string(audit.EventUserRegistered),
		"user_id", user.ID.String(),
		"role", string(user.Role),
	)
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, userID id.UserID) (*models.User, error) {
	if err := requireUserID(userID); err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, wrapUserErr(err, "failed to load user")
	}
	return user, nil
}

// FindUserByEmail looks an account up by its (case-insensitive) email.
func (s *Service) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "email is required")
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, wrapUserErr(err, "failed to load user")
	}
	return user, nil
}

// DeactivateUser blocks an account. Users are never deleted.
func (s *Service) DeactivateUser(ctx context.Context, userID id.UserID) (*models.User, error) {
	if err := requireUserID(userID); err != nil {
		return nil, err
	}
	var user *models.User
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		u, err := s.users.FindByID(txCtx, userID)
		if err != nil {
			return wrapUserErr(err, "failed to load user")
		}
		if err := u.Deactivate(requestcontext.Now(txCtx)); err != nil {
			return dErrors.New(dErrors.CodeConflict, "user is already inactive")
		}
		if err := s.users.Update(txCtx, u); err != nil {
			return wrapUserErr(err, "failed to update user")
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.audit.Log(ctx, string(audit.EventUserDeactivated), "user_id", user.ID.String())
	return user, nil
}

// TenantUsage reports user and quota-table counts for a tenant.
func (s *Service) TenantUsage(ctx context.Context, tenantID id.TenantID) (*models.TenantUsage, error) {
	tenant, err := s.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	userCount, err := s.users.CountByTenant(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to count users")
	}
	usage := &models.TenantUsage{Tenant: tenant, UserCount: userCount}
	if s.rows == nil || s.registry == nil {
		return usage, nil
	}

	// Unset quotas fall back to the defaults the gateway enforces.
	quotas := tenant.Quotas.WithDefaults()
	for _, kind := range []schema.QuotaKind{schema.QuotaStudents, schema.QuotaTeachers, schema.QuotaClasses} {
		table, ok := s.registry.QuotaTable(kind)
		if !ok {
			continue
		}
		count, err := s.rows.Count(ctx, table.Name, storage.LiveRows(table, tenantID.String()))
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to count "+table.Name)
		}
		limit, _ := quotas.Limit(string(kind))
		usage.Tables = append(usage.Tables, models.TableUsage{
			Table: table.Name,
			Quota: string(kind),
			Count: count,
			Limit: limit,
		})
	}
	return usage, nil
}

func (s *Service) emitTenantAssigned(ctx context.Context, e models.TenantAssigned) {
	previous := ""
	if e.Previous != nil {
		previous = e.Previous.String()
	}
	s.audit.Log(ctx, string(audit.EventTenantAssigned),
		"user_id", e.UserID.String(),
		"tenant_id", e.TenantID.String(),
		"previous_tenant_id", previous,
	)
}

func (s *Service) emitHintMismatch(ctx context.Context, e models.TenantHintMismatch) {
	s.audit.Log(ctx, string(audit.EventTenantHintMismatch),
		"user_id", e.UserID.String(),
		"tenant_id", e.Resolved.String(),
		"claimed_tenant_id", e.Claimed.String(),
	)
	if s.metrics != nil {
		s.metrics.IncrementHintMismatch()
	}
}

func (s *Service) observeResolve(code dErrors.Code, ok bool, start time.Time) {
	if s.metrics == nil {
		return
	}
	outcome := "resolved"
	if !ok {
		outcome = string(code)
	}
	s.metrics.ObserveResolve(outcome, start)
}
