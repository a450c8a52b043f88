package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/google/uuid"

	audit "tenantguard/pkg/platform/audit"
)

// Store implements audit.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const eventColumns = `timestamp, action, user_id, tenant_id, table_name, operation,
	decision, reason, subject, request_id, actor_id`

// Append inserts an audit event into the audit_events table.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, `+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		uuid.New(),
		event.Timestamp,
		event.Action,
		event.UserID,
		event.TenantID,
		event.Table,
		event.Operation,
		event.Decision,
		event.Reason,
		event.Subject,
		event.RequestID,
		event.ActorID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByTenant(ctx context.Context, tenantID string, limit int) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM audit_events
		WHERE tenant_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`, tenantID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// clampLimit keeps LIMIT inside int32 range; zero or negative means "no limit".
func clampLimit(limit int) int32 {
	if limit <= 0 || limit > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(limit) //nolint:gosec // bounds checked above
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var event audit.Event
		if err := rows.Scan(
			&event.Timestamp,
			&event.Action,
			&event.UserID,
			&event.TenantID,
			&event.Table,
			&event.Operation,
			&event.Decision,
			&event.Reason,
			&event.Subject,
			&event.RequestID,
			&event.ActorID,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
