package tracer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNoopTracer(t *testing.T) {
	ctx := context.Background()
	newCtx, span := NewNoop().Start(ctx, SpanResolve, String(AttrTicket, "T-1"))

	assert.Equal(t, ctx, newCtx)
	require.NotNil(t, span)
	assert.NotPanics(t, func() {
		span.SetAttributes(Bool(AttrFound, true))
		span.AddEvent(EventCacheReplaced, Int(AttrRecordCount, 3))
		span.End(errors.New("boom"))
	})
}

func TestOTelTracerWithNoopProvider(t *testing.T) {
	tr := NewOTel(WithOTelTracer(noop.NewTracerProvider().Tracer("test")))

	_, span := tr.Start(context.Background(), SpanFullListing, Int(AttrRecordCount, 113))
	assert.NotPanics(t, func() {
		span.SetAttributes(Bool(AttrPartial, false))
		span.AddEvent(EventCacheWriteFailed)
		span.End(errors.New("disk full"))
	})
}

func TestNewOTelDefaultsToGlobalProvider(t *testing.T) {
	tr := NewOTel()
	require.NotNil(t, tr.tracer)
}

func TestToOTelAttributes(t *testing.T) {
	got := toOTelAttributes([]Attribute{
		String("s", "v"),
		Bool("b", true),
		Int("i", 7),
		Duration("d", 150*time.Millisecond),
		{Key: "f", Value: 0.5},
		{Key: "skipped", Value: struct{}{}},
	})

	assert.Equal(t, []attribute.KeyValue{
		attribute.String("s", "v"),
		attribute.Bool("b", true),
		attribute.Int64("i", 7),
		attribute.Int64("d", 150),
		attribute.Float64("f", 0.5),
	}, got)
	assert.Nil(t, toOTelAttributes(nil))
}
