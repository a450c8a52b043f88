package audit

import (
	"context"
	"fmt"
	"log/slog"

	"tenantguard/pkg/requestcontext"
)

// Emitter is the interface for audit event emission.
// Satisfied by publisher.Publisher.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Logger provides structured audit logging with optional event emission.
// Services use it so every audit line carries log_type=audit and request_id.
type Logger struct {
	textLogger *slog.Logger
	emitter    Emitter
}

// NewLogger creates an audit logger. Either argument may be nil.
func NewLogger(textLogger *slog.Logger, emitter Emitter) *Logger {
	return &Logger{
		textLogger: textLogger,
		emitter:    emitter,
	}
}

// Log writes an audit line and emits the matching event.
//
// Usage:
//
//	logger.Log(ctx, "tenant_assigned", "user_id", userID, "tenant_id", tenantID)
func (l *Logger) Log(ctx context.Context, event string, attributes ...any) {
	if l == nil {
		return
	}
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}

	l.logToText(ctx, event, attributes)
	l.emitToAudit(ctx, event, requestID, attributes)
}

func (l *Logger) logToText(ctx context.Context, event string, attributes []any) {
	if l.textLogger == nil {
		return
	}
	args := append(attributes, "event", event, "log_type", "audit")
	l.textLogger.InfoContext(ctx, event, args...)
}

func (l *Logger) emitToAudit(ctx context.Context, event, requestID string, attributes []any) {
	if l.emitter == nil {
		return
	}

	err := l.emitter.Emit(ctx, Event{
		Action:    event,
		UserID:    extractString(attributes, "user_id"),
		TenantID:  extractString(attributes, "tenant_id"),
		Table:     extractString(attributes, "table"),
		Operation: extractString(attributes, "operation"),
		Decision:  extractString(attributes, "decision"),
		Reason:    extractString(attributes, "reason"),
		Subject:   extractString(attributes, "subject"),
		ActorID:   extractString(attributes, "actor_id"),
		RequestID: requestID,
	})
	if err != nil && l.textLogger != nil {
		l.textLogger.ErrorContext(ctx, "failed to emit audit event",
			"error", err,
			"event", event,
		)
	}
}

// extractString finds key in a slog-style key/value list and renders its value.
func extractString(attributes []any, key string) string {
	for i := 0; i+1 < len(attributes); i += 2 {
		k, ok := attributes[i].(string)
		if !ok || k != key {
			continue
		}
		switch v := attributes[i+1].(type) {
		case nil:
			return ""
		case string:
			return v
		case fmt.Stringer:
			return v.String()
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}
