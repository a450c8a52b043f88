package worker

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tenantguard/internal/auditor"
	"tenantguard/pkg/platform/audit"
	"tenantguard/pkg/platform/audit/publisher"
	auditmemory "tenantguard/pkg/platform/audit/store/memory"
)

// SchedulerSuite exercises scheduled scans against fake scanners.
//
// Justification: scheduled scans must only report, flagging is the sole
// optional write, and overlapping runs must not stack up.
type SchedulerSuite struct {
	suite.Suite
	auditStore *auditmemory.InMemoryStore
	logger     *slog.Logger
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) SetupTest() {
	s.auditStore = auditmemory.NewInMemoryStore()
	s.logger = slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
}

type fakeScanner struct {
	anomalies []auditor.Anomaly
	err       error
	block     chan struct{}
	mu        sync.Mutex
	scopes    []auditor.Scope
}

func (f *fakeScanner) Scan(_ context.Context, scope auditor.Scope) ([]auditor.Anomaly, error) {
	f.mu.Lock()
	f.scopes = append(f.scopes, scope)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return f.anomalies, f.err
}

type fakeRepairer struct {
	calls   []auditor.Strategy
	failFor string
}

func (f *fakeRepairer) Repair(_ context.Context, a auditor.Anomaly, strategy auditor.Strategy, _ auditor.RepairOptions) (*auditor.Outcome, error) {
	f.calls = append(f.calls, strategy)
	if a.ID == f.failFor {
		return nil, errors.New("queue down")
	}
	return &auditor.Outcome{AnomalyID: a.ID, Strategy: strategy, Applied: true}, nil
}

func (s *SchedulerSuite) TestRunOnce() {
	anomalies := []auditor.Anomaly{
		{ID: "a1", Kind: auditor.KindNullTenant},
		{ID: "a2", Kind: auditor.KindNullTenant},
		{ID: "a3", Kind: auditor.KindOrphanedForeignKey},
	}

	s.Run("summarizes an all-tenant scan and publishes it", func() {
		s.SetupTest()
		scanner := &fakeScanner{anomalies: anomalies}
		sched, err := New(scanner, WithLogger(s.logger), WithAuditEmitter(publisher.NewPublisher(s.auditStore)))
		s.Require().NoError(err)

		res, err := sched.RunOnce(context.Background())
		s.Require().NoError(err)
		s.Equal(3, res.Summary.Total)
		s.Equal(2, res.Summary.ByKind[auditor.KindNullTenant])
		s.Zero(res.Flagged)
		s.Require().Len(scanner.scopes, 1)
		s.Nil(scanner.scopes[0].TenantID)

		events := s.auditStore.All()
		s.Require().Len(events, 1)
		s.Equal(string(audit.EventScanCompleted), events[0].Action)
	})

	s.Run("auto flag queues every anomaly for review only", func() {
		s.SetupTest()
		repairer := &fakeRepairer{failFor: "a2"}
		sched, err := New(&fakeScanner{anomalies: anomalies}, WithLogger(s.logger), WithAutoFlag(repairer))
		s.Require().NoError(err)

		res, err := sched.RunOnce(context.Background())
		s.Require().Error(err)
		s.Contains(err.Error(), "a2")
		s.Equal(2, res.Flagged)
		s.Len(repairer.calls, 3)
		for _, st := range repairer.calls {
			s.Equal(auditor.StrategyFlagForReview, st)
		}
	})

	s.Run("scan failure is returned", func() {
		sched, err := New(&fakeScanner{err: errors.New("db down")}, WithLogger(s.logger))
		s.Require().NoError(err)
		_, err = sched.RunOnce(context.Background())
		s.ErrorContains(err, "db down")
	})

	s.Run("overlapping runs are refused", func() {
		scanner := &fakeScanner{block: make(chan struct{})}
		sched, err := New(scanner, WithLogger(s.logger))
		s.Require().NoError(err)

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = sched.RunOnce(context.Background())
		}()
		s.Eventually(func() bool {
			scanner.mu.Lock()
			defer scanner.mu.Unlock()
			return len(scanner.scopes) == 1
		}, time.Second, 5*time.Millisecond)

		_, err = sched.RunOnce(context.Background())
		s.ErrorIs(err, ErrAlreadyRunning)
		close(scanner.block)
		<-done
	})
}

func (s *SchedulerSuite) TestStart() {
	scanner := &fakeScanner{}
	sched, err := New(scanner, WithLogger(s.logger), WithInterval(10*time.Millisecond))
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sched.Start(ctx) }()

	s.Eventually(func() bool {
		scanner.mu.Lock()
		defer scanner.mu.Unlock()
		return len(scanner.scopes) >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	s.ErrorIs(<-errCh, context.Canceled)
}

func (s *SchedulerSuite) TestNewRequiresScanner() {
	_, err := New(nil)
	s.Error(err)
}
