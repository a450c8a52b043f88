//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"tenantguard/internal/platform/database"
	"tenantguard/migrations"
	id "tenantguard/pkg/domain"
)

// PostgresContainer is a migrated Postgres shared by one test binary.
type PostgresContainer struct {
	Container *postgres.PostgresContainer
	DSN       string
	DB        *sql.DB
	// Applied lists the migration versions run at startup, in order.
	Applied []string
}

func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("tenantguard_test"),
		postgres.WithUsername("tenantguard"),
		postgres.WithPassword("tenantguard_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	fail := func(format string, args ...any) {
		_ = container.Terminate(ctx)
		t.Fatalf(format, args...)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fail("failed to get postgres connection string: %v", err)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		fail("failed to open postgres: %v", err)
	}

	applied, err := database.Migrate(ctx, db, migrations.FS)
	if err != nil {
		_ = db.Close()
		fail("failed to run migrations: %v", err)
	}
	return &PostgresContainer{Container: container, DSN: dsn, DB: db, Applied: applied}
}

// TruncateModuleTables empties every table the migrations create.
func (p *PostgresContainer) TruncateModuleTables(ctx context.Context) error {
	_, err := p.DB.ExecContext(ctx, "TRUNCATE TABLE "+strings.Join(moduleTables, ", ")+" CASCADE")
	if err != nil {
		return fmt.Errorf("truncate module tables: %w", err)
	}
	return nil
}

var moduleTables = []string{
	"audit_events",
	"review_queue",

	"notification_recipients",
	"notifications",
	"messages",
	"leave_applications",
	"homeworks",
	"marks",
	"student_attendance",
	"student_discounts",
	"student_fees",
	"fee_structure",
	"students",
	"parents",
	"teachers",
	"classes",
	"expense_categories",

	"users",
	"tenants",
}

// Exec runs a SQL statement and returns the result.
func (p *PostgresContainer) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return p.DB.ExecContext(ctx, query, args...)
}

// CreateTestTenant inserts an active tenant and returns its ID.
// Fails the test if insertion fails.
func (p *PostgresContainer) CreateTestTenant(ctx context.Context, t testing.TB) id.TenantID {
	t.Helper()
	tenantID := id.TenantID(uuid.New())
	_, err := p.Exec(ctx, `
		INSERT INTO tenants (id, name, status, created_at, updated_at)
		VALUES ($1, $2, 'active', NOW(), NOW())
	`, uuid.UUID(tenantID), "Test School "+uuid.NewString())
	if err != nil {
		t.Fatalf("CreateTestTenant: %v", err)
	}
	return tenantID
}

// CreateTestUser inserts an active teacher assigned to tenantID and returns its ID.
// Fails the test if insertion fails.
func (p *PostgresContainer) CreateTestUser(ctx context.Context, t testing.TB, tenantID id.TenantID) id.UserID {
	t.Helper()
	userID := id.UserID(uuid.New())
	_, err := p.Exec(ctx, `
		INSERT INTO users (id, tenant_id, email, role, active)
		VALUES ($1, $2, $3, 'teacher', true)
	`, uuid.UUID(userID), uuid.UUID(tenantID), "test-"+uuid.NewString()+"@example.com")
	if err != nil {
		t.Fatalf("CreateTestUser: %v", err)
	}
	return userID
}
