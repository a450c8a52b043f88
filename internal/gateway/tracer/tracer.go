// Package tracer keeps OpenTelemetry behind a small interface so gateway
// code does not import otel directly.
package tracer

import "context"

// Attribute is a span attribute. Value may be string, bool, int, int64 or float64.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute  { return Attribute{Key: key, Value: value} }
func Int(key string, value int) Attribute { return Attribute{Key: key, Value: value} }
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

type Span interface {
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Noop discards spans.
type Noop struct{}

func (Noop) Start(ctx context.Context, _ string, _ ...Attribute) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error)                     {}
func (noopSpan) SetAttributes(...Attribute)    {}
func (noopSpan) AddEvent(string, ...Attribute) {}
