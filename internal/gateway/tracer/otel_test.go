package tracer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestToOTelSkipsUnsupportedValues(t *testing.T) {
	got := toOTel([]Attribute{
		String("table", "students"),
		Int("rows", 3),
		Bool("probe", true),
		{Key: "ignored", Value: struct{}{}},
	})
	assert.Equal(t, []attribute.KeyValue{
		attribute.String("table", "students"),
		attribute.Int("rows", 3),
		attribute.Bool("probe", true),
	}, got)
	assert.Nil(t, toOTel(nil))
}

func TestOTelSpanLifecycle(t *testing.T) {
	tr := NewOTel(WithOTelTracer(noop.NewTracerProvider().Tracer("test")))
	ctx, span := tr.Start(context.Background(), "gateway.execute", String("operation", "read"))
	assert.NotNil(t, ctx)
	span.AddEvent("stage", String("stage", "authorized"))
	span.SetAttributes(Int("rows", 1))
	span.End(errors.New("denied"))
}
