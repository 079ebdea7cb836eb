package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestInitGlobalTracerDisabled(t *testing.T) {
	tp, err := InitGlobalTracer(context.Background(), TracerConfig{})
	require.NoError(t, err)

	_, ok := tp.(noop.TracerProvider)
	assert.True(t, ok)
	assert.NoError(t, ShutdownTracer(context.Background(), tp))
}

func TestInitGlobalTracerStdout(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	tp, err := InitGlobalTracer(context.Background(), TracerConfig{
		Enabled:      true,
		ExporterType: "stdout",
		SamplingRate: 1,
		ServiceName:  "multitool-test",
	})
	require.NoError(t, err)
	assert.Same(t, tp, otel.GetTracerProvider())
	assert.NoError(t, ShutdownTracer(context.Background(), tp))
}

func TestInitGlobalTracerUnknownExporter(t *testing.T) {
	_, err := InitGlobalTracer(context.Background(), TracerConfig{Enabled: true, ExporterType: "zipkin"})
	assert.Error(t, err)
}

func TestEndSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	_, passed := tp.Tracer("test").Start(context.Background(), SpanToolExecution)
	EndSpan(passed, nil, attribute.String(AttrToolName, "search"))
	_, failed := tp.Tracer("test").Start(context.Background(), SpanToolExecution)
	EndSpan(failed, errors.New("boom"))

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String(AttrToolName, "search"))
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "boom", spans[1].Status().Description)
	require.Len(t, spans[1].Events(), 1)
	assert.Equal(t, "exception", spans[1].Events()[0].Name)
}
