package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultTracerConfig(t *testing.T) {
	cfg := DefaultTracerConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, "mingafix", cfg.ServiceName)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.True(t, cfg.Insecure)
}

func TestNewTracer_Disabled(t *testing.T) {
	tracer, err := NewTracer(context.Background(), TracerConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, tracer)

	assert.False(t, tracer.IsEnabled())
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestTracer_StartSpan_Disabled(t *testing.T) {
	tracer, err := NewTracer(context.Background(), TracerConfig{Enabled: false})
	require.NoError(t, err)

	ctx, span := tracer.StartSpan(context.Background(), "test.operation")
	require.NotNil(t, span)
	require.NotNil(t, ctx)
	span.End()
}

func TestSpanHelpers_NoopContext(t *testing.T) {
	ctx := context.Background()

	// With no active span these must be harmless no-ops.
	assert.NotPanics(t, func() {
		RecordError(ctx, errors.New("boom"))
		SetSpanAttributes(ctx, attribute.String("report.id", "abc"))
		AddSpanEvent(ctx, "duplicate.detected")
	})

	assert.Empty(t, ExtractTraceID(ctx))
	assert.Empty(t, ExtractSpanID(ctx))
}

func TestDBSpanHelpers(t *testing.T) {
	ctx, span := StartDBSpan(context.Background(), "SELECT", "reports")
	require.NotNil(t, ctx)
	require.NotNil(t, span)

	assert.NotPanics(t, func() {
		EndDBSpan(span, nil)
	})

	_, span2 := StartDBSpan(context.Background(), "UPDATE", "reports")
	assert.NotPanics(t, func() {
		EndDBSpan(span2, errors.New("version conflict"))
	})
}

func TestStorageSpanHelpers(t *testing.T) {
	ctx, span := StartStorageSpan(context.Background(), "upload", "report-photos", "abc.jpg")
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	span.End()
}
