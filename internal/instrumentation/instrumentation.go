// Package instrumentation wires OpenTelemetry tracing and metrics for the
// OAuth endpoints. A nil *Instrumentation is valid and records nothing.
package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const scopeName = "github.com/franciscosanchezn/authzilla"

// Span names
const (
	SpanAuthorize  = "oauth.authorize"
	SpanToken      = "oauth.token"
	SpanRevoke     = "oauth.revoke"
	SpanIntrospect = "oauth.introspect"
)

// Attribute keys. Never attach token strings, codes or secrets.
const (
	AttrClientID     = "oauth.client_id"
	AttrUserID       = "oauth.user_id"
	AttrGrantType    = "oauth.grant_type"
	AttrResponseType = "oauth.response_type"
	AttrTokenType    = "oauth.token_type"
	AttrError        = "oauth.error"
	AttrTokenRotated = "oauth.token.rotated"
)

// Config holds instrumentation configuration
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Enabled selects an SDK tracer provider. When false no-op providers are used.
	Enabled bool

	// TracerProvider and MeterProvider override the defaults, mainly for tests
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Instrumentation provides a tracer and the OAuth counters
type Instrumentation struct {
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	metrics        *Metrics
	shutdown       func(context.Context) error
}

// New creates the instrumentation for the server
func New(cfg Config) (*Instrumentation, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "authzilla"
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "unknown"
	}

	inst := &Instrumentation{shutdown: func(context.Context) error { return nil }}

	switch {
	case cfg.TracerProvider != nil:
		inst.tracerProvider = cfg.TracerProvider
	case cfg.Enabled:
		res := resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		)
		tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
		inst.tracerProvider = tp
		inst.shutdown = tp.Shutdown
	default:
		inst.tracerProvider = tracenoop.NewTracerProvider()
	}
	inst.tracer = inst.tracerProvider.Tracer(scopeName)

	mp := cfg.MeterProvider
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	metrics, err := newMetrics(mp.Meter(scopeName))
	if err != nil {
		return nil, err
	}
	inst.metrics = metrics
	return inst, nil
}

// TracerProvider returns the provider spans are created from
func (i *Instrumentation) TracerProvider() trace.TracerProvider {
	if i == nil {
		return tracenoop.NewTracerProvider()
	}
	return i.tracerProvider
}

// Metrics returns the counters, nil when i is nil
func (i *Instrumentation) Metrics() *Metrics {
	if i == nil {
		return nil
	}
	return i.metrics
}

// StartSpan starts a server span named name
func (i *Instrumentation) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if i == nil {
		return tracenoop.NewTracerProvider().Tracer(scopeName).Start(ctx, name)
	}
	return i.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer), trace.WithAttributes(attrs...))
}

// Shutdown flushes and stops the tracer provider created by New
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	if i == nil {
		return nil
	}
	return i.shutdown(ctx)
}

// RecordError marks span failed with an OAuth error code
func RecordError(span trace.Span, code string, err error) {
	if span == nil {
		return
	}
	span.SetAttributes(attribute.String(AttrError, code))
	if err != nil {
		span.RecordError(err)
	}
	span.SetStatus(codes.Error, code)
}

// SetSpanSuccess marks span successful
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}
