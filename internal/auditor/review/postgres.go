package review

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tenantguard/internal/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const itemColumns = `id, anomaly_id, kind, table_name, row_id, tenant_id, detail, flagged_by, note, status, created_at, resolved_at, resolved_by`

// Flag relies on the unique index on anomaly_id; a conflicting insert falls
// through to reading the queued item.
func (s *PostgresStore) Flag(ctx context.Context, item *Item) (*Item, bool, error) {
	if item == nil || item.AnomalyID == "" {
		return nil, false, fmt.Errorf("anomaly id is required: %w", sentinel.ErrInvalidInput)
	}
	stored := *item
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.Status == "" {
		stored.Status = StatusOpen
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO review_queue (id, anomaly_id, kind, table_name, row_id, tenant_id, detail, flagged_by, note, status, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11)
		ON CONFLICT (anomaly_id) DO NOTHING
	`, stored.ID, stored.AnomalyID, stored.Kind, stored.Table, stored.RowID, stored.TenantID,
		stored.Detail, stored.FlaggedBy, stored.Note, string(stored.Status), stored.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("flag anomaly: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return &stored, true, nil
	}

	existing, err := scanItem(s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM review_queue WHERE anomaly_id = $1`, stored.AnomalyID))
	if err != nil {
		return nil, false, fmt.Errorf("load queued anomaly: %w", err)
	}
	return existing, false, nil
}

func (s *PostgresStore) List(ctx context.Context, status Status, limit int) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM review_queue WHERE ($1 = '' OR status = $1) ORDER BY created_at, anomaly_id`
	args := []any{string(status)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list review items: %w", err)
	}
	defer rows.Close()

	var out []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Resolve(ctx context.Context, itemID uuid.UUID, by string, now time.Time) (*Item, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx, `
		UPDATE review_queue SET status = $2, resolved_at = $3, resolved_by = $4
		WHERE id = $1 AND status = $5
		RETURNING `+itemColumns,
		itemID, string(StatusResolved), now, by, string(StatusOpen)))
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resolve review item: %w", err)
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM review_queue WHERE id = $1)`, itemID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("resolve review item: %w", err)
	}
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	return nil, fmt.Errorf("review item already resolved: %w", sentinel.ErrInvalidState)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var (
		item       Item
		tenantID   sql.NullString
		status     string
		resolvedAt sql.NullTime
		resolvedBy sql.NullString
	)
	if err := row.Scan(&item.ID, &item.AnomalyID, &item.Kind, &item.Table, &item.RowID, &tenantID,
		&item.Detail, &item.FlaggedBy, &item.Note, &status, &item.CreatedAt, &resolvedAt, &resolvedBy); err != nil {
		return nil, err
	}
	item.TenantID = tenantID.String
	item.Status = Status(status)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		item.ResolvedAt = &t
	}
	item.ResolvedBy = resolvedBy.String
	return &item, nil
}
