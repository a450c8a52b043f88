package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"tenantguard/internal/directory/models"
	"tenantguard/internal/sentinel"
	id "tenantguard/pkg/domain"
	txcontext "tenantguard/pkg/platform/tx"
)

// PostgresStore persists tenants in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed tenant store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const tenantColumns = `id, name, status, subscription_plan, max_students, max_teachers, max_classes, created_at, updated_at`

// CreateIfNameAvailable inserts the tenant; the unique index on lower(name)
// rejects duplicates.
func (s *PostgresStore) CreateIfNameAvailable(ctx context.Context, tenant *models.Tenant) error {
	if tenant == nil {
		return fmt.Errorf("tenant is required: %w", sentinel.ErrInvalidInput)
	}
	query := `
		INSERT INTO tenants (` + tenantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(tenant.ID),
		tenant.Name,
		string(tenant.Status),
		string(tenant.SubscriptionPlan),
		tenant.Quotas.MaxStudents,
		tenant.Quotas.MaxTeachers,
		tenant.Quotas.MaxClasses,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("tenant name must be unique: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

// FindByID retrieves a tenant by its UUID.
func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	tenant, err := scanTenant(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(tenantID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find tenant by id: %w", err)
	}
	return tenant, nil
}

// FindByName retrieves a tenant by name (case-insensitive).
func (s *PostgresStore) FindByName(ctx context.Context, name string) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE lower(name) = lower($1)`
	tenant, err := scanTenant(s.execer(ctx).QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find tenant by name: %w", err)
	}
	return tenant, nil
}

// List returns all tenants ordered by name.
func (s *PostgresStore) List(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY lower(name)`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}
	return tenants, nil
}

// Count returns the total number of tenants.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM tenants`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count tenants: %w", err)
	}
	return count, nil
}

// Update updates an existing tenant.
func (s *PostgresStore) Update(ctx context.Context, tenant *models.Tenant) error {
	if tenant == nil {
		return fmt.Errorf("tenant is required: %w", sentinel.ErrInvalidInput)
	}
	query := `
		UPDATE tenants
		SET name = $2, status = $3, subscription_plan = $4,
			max_students = $5, max_teachers = $6, max_classes = $7, updated_at = $8
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(tenant.ID),
		tenant.Name,
		string(tenant.Status),
		string(tenant.SubscriptionPlan),
		tenant.Quotas.MaxStudents,
		tenant.Quotas.MaxTeachers,
		tenant.Quotas.MaxClasses,
		tenant.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("tenant name must be unique: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("update tenant: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update tenant rows: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type tenantRow interface {
	Scan(dest ...any) error
}

func scanTenant(row tenantRow) (*models.Tenant, error) {
	var tenant models.Tenant
	var status, plan string
	var tenantID uuid.UUID
	if err := row.Scan(
		&tenantID,
		&tenant.Name,
		&status,
		&plan,
		&tenant.Quotas.MaxStudents,
		&tenant.Quotas.MaxTeachers,
		&tenant.Quotas.MaxClasses,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	); err != nil {
		return nil, err
	}
	tenant.ID = id.TenantID(tenantID)
	tenant.Status = models.TenantStatus(status)
	tenant.SubscriptionPlan = models.SubscriptionPlan(plan)
	return &tenant, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	return false
}
