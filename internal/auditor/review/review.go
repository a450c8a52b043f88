// Package review holds anomalies an operator has to resolve by hand.
package review

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

// Item is one flagged anomaly. AnomalyID is unique: flagging the same
// anomaly twice returns the existing item.
type Item struct {
	ID         uuid.UUID  `json:"id"`
	AnomalyID  string     `json:"anomaly_id"`
	Kind       string     `json:"kind"`
	Table      string     `json:"table"`
	RowID      string     `json:"row_id"`
	TenantID   string     `json:"tenant_id,omitempty"`
	Detail     string     `json:"detail"`
	FlaggedBy  string     `json:"flagged_by"`
	Note       string     `json:"note,omitempty"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
}

// Queue is the review queue port.
type Queue interface {
	// Flag stores item unless its anomaly is already queued. created reports
	// whether a new item was written.
	Flag(ctx context.Context, item *Item) (stored *Item, created bool, err error)
	List(ctx context.Context, status Status, limit int) ([]*Item, error)
	Resolve(ctx context.Context, itemID uuid.UUID, by string, now time.Time) (*Item, error)
}
