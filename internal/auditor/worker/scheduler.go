// Package worker runs consistency scans on a schedule.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"tenantguard/internal/auditor"
	"tenantguard/pkg/platform/audit"
)

// Scanner runs a consistency scan.
type Scanner interface {
	Scan(ctx context.Context, scope auditor.Scope) ([]auditor.Anomaly, error)
}

// Repairer queues anomalies for review when auto-flagging is on.
type Repairer interface {
	Repair(ctx context.Context, anomaly auditor.Anomaly, strategy auditor.Strategy, opts auditor.RepairOptions) (*auditor.Outcome, error)
}

// RunResult summarizes one scheduled run.
type RunResult struct {
	Summary auditor.Summary
	Flagged int
}

// Scheduler periodically scans every tenant and publishes a summary. It
// never changes school data; the only optional write is flagging anomalies
// into the review queue.
type Scheduler struct {
	scanner  Scanner
	flagger  Repairer
	interval time.Duration
	logger   *slog.Logger
	audit    *audit.Logger
	running  atomic.Bool
}

type Option func(*Scheduler)

// WithInterval overrides the scan interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuditEmitter publishes each run's summary as an audit event.
func WithAuditEmitter(emitter audit.Emitter) Option {
	return func(s *Scheduler) {
		s.audit = audit.NewLogger(s.logger, emitter)
	}
}

// WithAutoFlag queues every anomaly found for manual review.
func WithAutoFlag(r Repairer) Option {
	return func(s *Scheduler) {
		s.flagger = r
	}
}

func New(scanner Scanner, opts ...Option) (*Scheduler, error) {
	if scanner == nil {
		return nil, fmt.Errorf("scanner is required")
	}
	s := &Scheduler{
		scanner:  scanner,
		interval: time.Hour,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.audit == nil {
		s.audit = audit.NewLogger(s.logger, nil)
	}
	return s, nil
}

// Start runs a scan every interval until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
				s.logger.ErrorContext(ctx, "scheduled consistency scan failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ErrAlreadyRunning is returned when a run overlaps the previous one.
var ErrAlreadyRunning = errors.New("consistency scan already running")

// RunOnce scans every tenant, flags anomalies if configured, and publishes
// the summary. Flag failures are joined into the returned error; the
// summary is still published.
func (s *Scheduler) RunOnce(ctx context.Context) (RunResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return RunResult{}, ErrAlreadyRunning
	}
	defer s.running.Store(false)

	scope := auditor.AllTenants()
	anomalies, err := s.scanner.Scan(ctx, scope)
	if err != nil {
		return RunResult{}, fmt.Errorf("scan: %w", err)
	}
	res := RunResult{Summary: auditor.Summarize(scope, anomalies)}

	var errs []error
	if s.flagger != nil {
		for _, a := range anomalies {
			out, err := s.flagger.Repair(ctx, a, auditor.StrategyFlagForReview, auditor.RepairOptions{Actor: "scheduler"})
			if err != nil {
				errs = append(errs, fmt.Errorf("flag %s: %w", a.ID, err))
				continue
			}
			if out.Applied {
				res.Flagged++
			}
		}
	}

	s.audit.Log(ctx, string(audit.EventScanCompleted),
		"subject", "scheduler",
		"total", res.Summary.Total,
		"null_tenant", res.Summary.ByKind[auditor.KindNullTenant],
		"mismatch", res.Summary.ByKind[auditor.KindCrossEntityMismatch],
		"orphaned", res.Summary.ByKind[auditor.KindOrphanedForeignKey],
		"inactive_tenant", res.Summary.ByKind[auditor.KindInactiveTenant],
		"flagged", res.Flagged,
	)
	return res, errors.Join(errs...)
}
