package audit

import "context"

// Sink receives events. Write-only sinks (Kafka) implement just this.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Store is a Sink that can also be queried for the admin audit trail.
type Store interface {
	Sink
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
