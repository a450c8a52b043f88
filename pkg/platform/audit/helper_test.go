package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"tenantguard/pkg/requestcontext"
)

type mockEmitter struct {
	events    []Event
	shouldErr bool
}

func (m *mockEmitter) Emit(_ context.Context, event Event) error {
	if m.shouldErr {
		return errors.New("emit failed")
	}
	m.events = append(m.events, event)
	return nil
}

// LoggerSuite tests the audit Logger helper.
//
// Justification: The Logger has conditional enrichment (request_id from context)
// and field extraction that every access decision relies on.
type LoggerSuite struct {
	suite.Suite
	emitter *mockEmitter
	buf     *bytes.Buffer
	logger  *Logger
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerSuite))
}

func (s *LoggerSuite) SetupTest() {
	s.emitter = &mockEmitter{}
	s.buf = &bytes.Buffer{}
	s.logger = NewLogger(slog.New(slog.NewJSONHandler(s.buf, nil)), s.emitter)
}

func (s *LoggerSuite) TestLogEnrichesWithRequestID() {
	ctx := requestcontext.WithRequestID(context.Background(), "req-12345")

	s.logger.Log(ctx, string(EventAccessDecision), "user_id", "u1")

	s.Require().Len(s.emitter.events, 1)
	s.Equal("req-12345", s.emitter.events[0].RequestID)
}

func (s *LoggerSuite) TestLogExtractsDecisionFields() {
	tenant := uuid.New()
	s.logger.Log(context.Background(), string(EventAccessDecision),
		"user_id", "u1",
		"tenant_id", tenant,
		"table", "students",
		"operation", "read",
		"decision", "denied",
		"reason", "tenant_mismatch",
	)

	s.Require().Len(s.emitter.events, 1)
	ev := s.emitter.events[0]
	s.Equal("u1", ev.UserID)
	s.Equal(tenant.String(), ev.TenantID)
	s.Equal("students", ev.Table)
	s.Equal("read", ev.Operation)
	s.Equal("denied", ev.Decision)
	s.Equal("tenant_mismatch", ev.Reason)
}

func (s *LoggerSuite) TestTextLineIsTaggedAudit() {
	s.logger.Log(context.Background(), string(EventTenantAssigned), "user_id", "u1")

	var line map[string]any
	s.Require().NoError(json.Unmarshal(s.buf.Bytes(), &line))
	s.Equal("audit", line["log_type"])
	s.Equal("tenant_assigned", line["event"])
}

func (s *LoggerSuite) TestLogHandlesEmitError() {
	s.emitter.shouldErr = true

	s.NotPanics(func() {
		s.logger.Log(context.Background(), string(EventTenantCreated), "tenant_id", "t1")
	})
	s.Empty(s.emitter.events)
	s.Contains(s.buf.String(), "failed to emit audit event")
}

func (s *LoggerSuite) TestNilCollaborators() {
	s.NotPanics(func() {
		NewLogger(nil, nil).Log(context.Background(), "x")
		var nilLogger *Logger
		nilLogger.Log(context.Background(), "x")
	})

	emitter := &mockEmitter{}
	NewLogger(nil, emitter).Log(context.Background(), "x", "user_id", "u")
	s.Len(emitter.events, 1)

	NewLogger(slog.New(slog.NewTextHandler(io.Discard, nil)), nil).Log(context.Background(), "x")
}
