package instrumentation

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

func TestSpansAreRecorded(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	inst, err := New(Config{TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))})
	require.NoError(t, err)

	_, span := inst.StartSpan(context.Background(), SpanToken, attribute.String(AttrGrantType, "client_credentials"))
	RecordError(span, "invalid_client", errors.New("bad secret"))
	span.End()

	_, span = inst.StartSpan(context.Background(), SpanAuthorize)
	SetSpanSuccess(span)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, SpanToken, ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Contains(t, ended[0].Attributes(), attribute.String(AttrError, "invalid_client"))
	assert.Contains(t, ended[0].Attributes(), attribute.String(AttrGrantType, "client_credentials"))
	assert.Equal(t, codes.Ok, ended[1].Status().Code)
}

func TestEnabledInstrumentation(t *testing.T) {
	inst, err := New(Config{Enabled: true, ServiceVersion: "test"})
	require.NoError(t, err)
	defer func() { _ = inst.Shutdown(context.Background()) }()

	ctx, span := inst.StartSpan(context.Background(), SpanRevoke)
	assert.True(t, span.SpanContext().IsValid())
	inst.Metrics().RecordTokenRevoked(ctx, "cl-1")
	span.End()
}

func TestNilInstrumentationIsSafe(t *testing.T) {
	var inst *Instrumentation
	ctx, span := inst.StartSpan(context.Background(), SpanIntrospect)
	RecordError(span, "server_error", nil)
	span.End()

	inst.Metrics().RecordCodeIssued(ctx, "cl-1")
	inst.Metrics().RecordTokenIssued(ctx, "cl-1", "authorization_code", "access_token")
	inst.Metrics().RecordGrantFailed(ctx, "token", "invalid_grant")
	assert.NoError(t, inst.Shutdown(ctx))
	assert.NotNil(t, inst.TracerProvider())
}
