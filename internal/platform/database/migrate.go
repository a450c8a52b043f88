package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

const upSuffix = ".up.sql"

// migrationLock serializes concurrent Migrate callers through
// pg_advisory_xact_lock.
const migrationLock = 0x7465_6e61

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// MigrationStatus is one *.up.sql file and whether schema_migrations records it.
type MigrationStatus struct {
	Version string
	Applied bool
}

// Migrate applies every *.up.sql file in fsys that schema_migrations does not
// record yet, in name order. Each file runs in its own transaction together
// with its bookkeeping row. Returns the versions applied by this call.
func Migrate(ctx context.Context, db *sql.DB, fsys fs.FS) ([]string, error) {
	versions, err := upVersions(fsys)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, version := range versions {
		ran, err := applyMigration(ctx, db, fsys, version)
		if err != nil {
			return applied, err
		}
		if ran {
			applied = append(applied, version)
		}
	}
	return applied, nil
}

// Migrations reports every version in fsys against schema_migrations.
func Migrations(ctx context.Context, db *sql.DB, fsys fs.FS) ([]MigrationStatus, error) {
	versions, err := upVersions(fsys)
	if err != nil {
		return nil, err
	}

	done := map[string]bool{}
	var table sql.NullString
	if err := db.QueryRowContext(ctx, "SELECT to_regclass('schema_migrations')::text").Scan(&table); err != nil {
		return nil, fmt.Errorf("check schema_migrations: %w", err)
	}
	if table.Valid {
		rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
		if err != nil {
			return nil, fmt.Errorf("list applied migrations: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				return nil, fmt.Errorf("scan applied migration: %w", err)
			}
			done[v] = true
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("list applied migrations: %w", err)
		}
	}

	out := make([]MigrationStatus, 0, len(versions))
	for _, v := range versions {
		out = append(out, MigrationStatus{Version: v, Applied: done[v]})
	}
	return out, nil
}

func applyMigration(ctx context.Context, db *sql.DB, fsys fs.FS, version string) (bool, error) {
	content, err := fs.ReadFile(fsys, version+upSuffix)
	if err != nil {
		return false, fmt.Errorf("read migration %s: %w", version, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin migration %s: %w", version, err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLock); err != nil {
		return false, fmt.Errorf("lock migrations: %w", err)
	}
	if _, err := tx.ExecContext(ctx, createMigrationsTable); err != nil {
		return false, fmt.Errorf("create schema_migrations: %w", err)
	}

	var exists bool
	err = tx.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)", version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	if exists {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return false, fmt.Errorf("execute migration %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
		return false, fmt.Errorf("record migration %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit migration %s: %w", version, err)
	}
	return true, nil
}

// upVersions lists the *.up.sql files at the root of fsys, suffix stripped,
// in name order.
func upVersions(fsys fs.FS) ([]string, error) {
	files, err := fs.Glob(fsys, "*"+upSuffix)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)
	versions := make([]string, len(files))
	for i, f := range files {
		versions[i] = strings.TrimSuffix(f, upSuffix)
	}
	return versions, nil
}
