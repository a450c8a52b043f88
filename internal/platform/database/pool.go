package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tenantguard/internal/platform/config"
)

// Pool holds the two Postgres handles the service uses: a database/sql handle
// for the directory stores and a pgxpool for the storage engine adapter, which
// needs pgx-native transactions to scope set_config to a single transaction.
type Pool struct {
	db  *sql.DB
	pgx *pgxpool.Pool
	cfg config.DatabaseConfig
}

// New opens both handles. Returns nil if the URL is empty.
func New(cfg config.DatabaseConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("ping database: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns) //nolint:gosec // bounded by config parsing
	}
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	pgxPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("open pgx pool: %w", err)
	}

	return &Pool{db: db, pgx: pgxPool, cfg: cfg}, nil
}

// PGX returns the pgx pool used by the storage engine adapter.
func (p *Pool) PGX() *pgxpool.Pool {
	return p.pgx
}

// DB returns the underlying *sql.DB for query operations.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Health checks if the database is reachable.
func (p *Pool) Health(ctx context.Context) error {
	if p == nil || p.db == nil {
		return fmt.Errorf("database not configured")
	}
	return p.db.PingContext(ctx)
}

// Close closes the database connection pool.
func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	if p.pgx != nil {
		p.pgx.Close()
	}
	return p.db.Close()
}

// Stats returns database connection pool statistics.
func (p *Pool) Stats() sql.DBStats {
	if p == nil || p.db == nil {
		return sql.DBStats{}
	}
	return p.db.Stats()
}
