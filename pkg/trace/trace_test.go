package trace

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"
)

func TestInitializeNoneKeepsNoopTracer(t *testing.T) {
	require.NoError(t, Initialize(context.Background(), DefaultConfig()))

	ctx, span := StartSpan(context.Background(), "segment.detect")
	defer span.End()
	assert.Empty(t, TraceID(ctx))
	assert.False(t, span.IsRecording())
}

func TestInitializeStdoutAndShutdown(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.ExporterType = ExporterStdout
	cfg.Writer = &buf

	require.NoError(t, Initialize(context.Background(), cfg))
	assert.ErrorIs(t, Initialize(context.Background(), cfg), ErrInitialized)

	ctx, span := StartSpan(context.Background(), "segment.detect")
	assert.NotEmpty(t, TraceID(ctx))
	span.End()

	require.NoError(t, Shutdown(context.Background()))
	require.NoError(t, Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "segment.detect")
}

func TestInitializeRejectsUnknownExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExporterType = "zipkin"
	assert.ErrorContains(t, Initialize(context.Background(), cfg), "unsupported exporter")
}

func TestWithSpanRecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	mu.Lock()
	tracer = tp.Tracer(TracerName)
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		tracer = nil
		mu.Unlock()
	})

	boom := errors.New("boom")
	err := WithSpan(context.Background(), "segment.file", func(ctx context.Context) error {
		AddEvent(oteltrace.SpanFromContext(ctx), "speech_start", SegmentAttrs(0, 512, true)...)
		return boom
	})
	require.ErrorIs(t, err, boom)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "segment.file", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	require.Len(t, spans[0].Events(), 2)
	assert.Equal(t, "speech_start", spans[0].Events()[0].Name)
}

func TestTraceIDWithoutSpan(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))
}
