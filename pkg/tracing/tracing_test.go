package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpan_WithoutTracer(t *testing.T) {
	SetTracer(nil)
	ctx, span := StartSpan(context.Background(), "noop")
	defer span.End()

	assert.NotNil(t, ctx)
	assert.Empty(t, GetTraceID(ctx))
}

func TestProvider_Disabled(t *testing.T) {
	p, err := NewProvider(context.Background(), ProviderConfig{ServiceName: "orbitcheck-test"})
	require.NoError(t, err)
	defer func() {
		SetTracer(nil)
		_ = p.Shutdown(context.Background())
	}()

	ctx, span := StartSpan(context.Background(), "evaluate")
	defer span.End()
	assert.Len(t, GetTraceID(ctx), 32)
}

func TestFail_RecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	SetTracer(tp.Tracer("test"))
	defer SetTracer(nil)

	_, span := StartSpan(context.Background(), "order.Repository.Insert", attribute.String("project_id", "p1"))
	Fail(span, errors.New("connection reset"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "connection reset", ended[0].Status().Description)
	assert.Len(t, ended[0].Events(), 1)
	assert.Contains(t, ended[0].Attributes(), attribute.String("project_id", "p1"))
}
