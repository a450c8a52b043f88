package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"tenantguard/internal/directory/models"
	"tenantguard/internal/sentinel"
	id "tenantguard/pkg/domain"
	txcontext "tenantguard/pkg/platform/tx"
)

// PostgresStore persists users in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed user store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const userColumns = `id, email, tenant_id, role, linked_teacher_id, linked_student_id, linked_parent_of, active, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, u *models.User) error {
	if u == nil {
		return fmt.Errorf("user is required: %w", sentinel.ErrInvalidInput)
	}
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(u.ID),
		u.Email,
		nullableTenant(u.TenantID),
		string(u.Role),
		u.LinkedTeacherID,
		u.LinkedStudentID,
		u.LinkedParentOf,
		u.Active,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		return mapWriteErr(err, "create user")
	}
	return nil
}

// Update writes profile fields. tenant_id and email are deliberately absent.
func (s *PostgresStore) Update(ctx context.Context, u *models.User) error {
	if u == nil {
		return fmt.Errorf("user is required: %w", sentinel.ErrInvalidInput)
	}
	query := `
		UPDATE users
		SET role = $2, linked_teacher_id = $3, linked_student_id = $4,
			linked_parent_of = $5, active = $6, updated_at = $7
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(u.ID),
		string(u.Role),
		u.LinkedTeacherID,
		u.LinkedStudentID,
		u.LinkedParentOf,
		u.Active,
		u.UpdatedAt,
	)
	if err != nil {
		return mapWriteErr(err, "update user")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user rows: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(userID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	u, err := scanUser(s.execer(ctx).QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return u, nil
}

// AssignTenantIfActive moves the user in one conditional statement: the row
// only changes when the tenant exists and is active at write time. The tenant
// row is share-locked, so a concurrent deactivation either waits for the
// assignment or makes it see the new status.
func (s *PostgresStore) AssignTenantIfActive(ctx context.Context, userID id.UserID, tenantID id.TenantID, now time.Time) (*id.TenantID, error) {
	query := `
		WITH prev AS (
			SELECT id, tenant_id FROM users WHERE id = $1 FOR UPDATE
		), target AS (
			SELECT id FROM tenants WHERE id = $2 AND status = 'active' FOR SHARE
		)
		UPDATE users u
		SET tenant_id = target.id, updated_at = $3
		FROM prev, target
		WHERE u.id = prev.id
		RETURNING prev.tenant_id
	`
	var previous uuid.NullUUID
	err := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(userID), uuid.UUID(tenantID), now).Scan(&previous)
	if err == nil {
		if !previous.Valid {
			return nil, nil
		}
		return id.TenantPtr(id.TenantID(previous.UUID)), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("assign tenant: %w", err)
	}

	// Nothing changed; find out which precondition failed.
	var userExists bool
	if err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, uuid.UUID(userID),
	).Scan(&userExists); err != nil {
		return nil, fmt.Errorf("assign tenant: check user: %w", err)
	}
	if !userExists {
		return nil, fmt.Errorf("user: %w", sentinel.ErrNotFound)
	}
	var tenantExists bool
	if err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM tenants WHERE id = $1)`, uuid.UUID(tenantID),
	).Scan(&tenantExists); err != nil {
		return nil, fmt.Errorf("assign tenant: check tenant: %w", err)
	}
	if !tenantExists {
		return nil, sentinel.ErrNotFound
	}
	return nil, sentinel.ErrInvalidState
}

func (s *PostgresStore) CountByTenant(ctx context.Context, tenantID id.TenantID) (int, error) {
	var count int
	if err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE tenant_id = $1`, uuid.UUID(tenantID),
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users by tenant: %w", err)
	}
	return count, nil
}

type userRow interface {
	Scan(dest ...any) error
}

func scanUser(row userRow) (*models.User, error) {
	var (
		u        models.User
		userID   uuid.UUID
		tenantID uuid.NullUUID
		role     string
		teacher  sql.NullString
		student  sql.NullString
		parentOf sql.NullString
	)
	if err := row.Scan(
		&userID,
		&u.Email,
		&tenantID,
		&role,
		&teacher,
		&student,
		&parentOf,
		&u.Active,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	u.ID = id.UserID(userID)
	u.Role = id.Role(role)
	if tenantID.Valid {
		u.TenantID = id.TenantPtr(id.TenantID(tenantID.UUID))
	}
	u.LinkedTeacherID = fromNullString(teacher)
	u.LinkedStudentID = fromNullString(student)
	u.LinkedParentOf = fromNullString(parentOf)
	return &u, nil
}

func nullableTenant(t *id.TenantID) any {
	if t == nil {
		return nil
	}
	return uuid.UUID(*t)
}

func fromNullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func mapWriteErr(err error, action string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return fmt.Errorf("%s: email already registered: %w", action, sentinel.ErrAlreadyUsed)
		case pgerrcode.ForeignKeyViolation, pgerrcode.CheckViolation:
			return fmt.Errorf("%s: %w", action, sentinel.ErrInvalidInput)
		}
	}
	return fmt.Errorf("%s: %w", action, err)
}
