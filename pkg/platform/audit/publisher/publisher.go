package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	dErrors "tenantguard/pkg/domain-errors"
	audit "tenantguard/pkg/platform/audit"
)

// Publisher captures structured audit events. It is append-only: the primary
// store is queried by the admin surface, extra sinks (the Kafka stream) only
// receive copies. A failing extra sink never blocks the primary store.
type Publisher struct {
	store  audit.Store
	sinks  []audit.Sink
	events chan audit.Event
	wg     sync.WaitGroup
	logger *slog.Logger
	async  bool
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer enables async processing with the specified buffer size.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan audit.Event, size)
			p.async = true
		}
	}
}

// WithPublisherLogger sets a logger for async error reporting.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithSink adds a write-only sink that receives a copy of every event.
func WithSink(sink audit.Sink) PublisherOption {
	return func(p *Publisher) {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
	}
}

func NewPublisher(store audit.Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEvents()
	}
	return p
}

func (p *Publisher) processEvents() {
	defer p.wg.Done()
	for event := range p.events {
		if err := p.persist(context.Background(), event); err != nil && p.logger != nil {
			p.logger.Error("failed to persist audit event",
				"error", err,
				"action", event.Action,
				"tenant_id", event.TenantID,
			)
		}
	}
}

func (p *Publisher) persist(ctx context.Context, event audit.Event) error {
	err := p.store.Append(ctx, event)
	for _, sink := range p.sinks {
		if sinkErr := sink.Append(ctx, event); sinkErr != nil && p.logger != nil {
			p.logger.WarnContext(ctx, "audit sink append failed",
				"error", sinkErr,
				"action", event.Action,
			)
		}
	}
	return err
}

// Close shuts down the async publisher and waits for pending events to drain.
func (p *Publisher) Close() {
	if p.async && p.events != nil {
		close(p.events)
		p.wg.Wait()
	}
}

func (p *Publisher) Emit(ctx context.Context, base audit.Event) error {
	if base.Timestamp.IsZero() {
		base.Timestamp = time.Now().UTC()
	}
	if p.async {
		select {
		case p.events <- base:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
			if p.logger != nil {
				p.logger.Warn("audit buffer full, event dropped",
					"action", base.Action,
					"tenant_id", base.TenantID,
				)
			}
			return dErrors.New(dErrors.CodeInternal, "audit buffer full")
		}
	}
	return p.persist(ctx, base)
}

func (p *Publisher) ListByTenant(ctx context.Context, tenantID string, limit int) ([]audit.Event, error) {
	return p.store.ListByTenant(ctx, tenantID, limit)
}

func (p *Publisher) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	return p.store.ListRecent(ctx, limit)
}
