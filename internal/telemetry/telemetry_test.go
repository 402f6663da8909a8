package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/goletan/servicehost/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitDisabledKeepsNoopTracer(t *testing.T) {
	shutdown, err := Init(context.Background(), types.TelemetryConfig{Enabled: false}, "servicehost", "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	_, span := Tracer().Start(context.Background(), "noop")
	assert.False(t, span.IsRecording())
	span.End()
}

func TestEndSpanRecordsError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	tr := provider.Tracer("test")

	_, ok := tr.Start(context.Background(), "ok")
	EndSpan(ok, nil)
	_, failed := tr.Start(context.Background(), "failed")
	EndSpan(failed, errors.New("bind failed"))

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "bind failed", spans[1].Status().Description)
}
