package revocation

import (
	"context"
	"log/slog"
	"time"

	identitymetrics "tenantguard/internal/identity/metrics"
	"tenantguard/pkg/platform/circuit"
)

// Resilient fronts a shared List with a local mirror. Every revocation is
// written to both; reads go to the primary and fall back to the mirror while
// the breaker is open. A mirror miss during an outage surfaces the primary
// error, so callers still fail closed.
type Resilient struct {
	primary List
	mirror  *InMemory
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *identitymetrics.Metrics
}

type ResilientOption func(*Resilient)

func WithBreaker(b *circuit.Breaker) ResilientOption {
	return func(r *Resilient) {
		r.breaker = b
	}
}

func WithLogger(logger *slog.Logger) ResilientOption {
	return func(r *Resilient) {
		r.logger = logger
	}
}

func WithMetrics(m *identitymetrics.Metrics) ResilientOption {
	return func(r *Resilient) {
		r.metrics = m
	}
}

func NewResilient(primary List, mirror *InMemory, opts ...ResilientOption) *Resilient {
	r := &Resilient{
		primary: primary,
		mirror:  mirror,
		breaker: circuit.New("revocation", circuit.WithCooldown(time.Second)),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resilient) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if err := r.mirror.Revoke(ctx, sessionID, ttl); err != nil {
		return err
	}
	if err := r.primary.Revoke(ctx, sessionID, ttl); err != nil {
		r.recordFailure(ctx, err)
		return err
	}
	r.recordSuccess(ctx)
	return nil
}

func (r *Resilient) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	if revoked, _ := r.mirror.IsRevoked(ctx, sessionID); revoked {
		return true, nil
	}
	if !r.breaker.Allow() {
		// The mirror already missed; no primary answer is available.
		return false, errPrimaryUnavailable
	}

	revoked, err := r.primary.IsRevoked(ctx, sessionID)
	if err != nil {
		r.recordFailure(ctx, err)
		return false, err
	}
	r.recordSuccess(ctx)
	return revoked, nil
}

func (r *Resilient) recordFailure(ctx context.Context, err error) {
	if r.metrics != nil {
		r.metrics.IncRevocationError()
	}
	_, change := r.breaker.RecordFailure()
	if change.Opened {
		r.logger.WarnContext(ctx, "circuit breaker opened for revocation store",
			"breaker", r.breaker.Name(),
			"error", err,
		)
		if r.metrics != nil {
			r.metrics.SetRevocationCircuit(true)
		}
	}
}

func (r *Resilient) recordSuccess(ctx context.Context) {
	_, change := r.breaker.RecordSuccess()
	if change.Closed {
		r.logger.InfoContext(ctx, "circuit breaker closed for revocation store", "breaker", r.breaker.Name())
		if r.metrics != nil {
			r.metrics.SetRevocationCircuit(false)
		}
	}
}
