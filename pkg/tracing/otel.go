// Package tracing wires OpenTelemetry spans for cycles, healing attempts
// and oracle round trips.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/snow-ghost/healer/core"
)

// Tracer wraps the OpenTelemetry tracer.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// Config holds tracing configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	JaegerEndpoint string
	Environment    string
}

// NewTracer creates an OpenTelemetry tracer exporting to Jaeger and sets
// it as the global provider.
func NewTracer(config Config) (*Tracer, error) {
	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(config.JaegerEndpoint)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{tracer: otel.Tracer(config.ServiceName), provider: tp}, nil
}

// Shutdown flushes pending spans.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// StartSpan starts a generic span.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// StartCycleSpan starts a span for one healing cycle.
func (t *Tracer) StartCycleSpan(ctx context.Context, maxErrors int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "healer.cycle", trace.WithAttributes(
		attribute.Int("cycle.max_errors", maxErrors),
	))
}

// StartHealSpan starts a span for one ladder run.
func (t *Tracer) StartHealSpan(ctx context.Context, rec core.ErrorRecord) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "healer.heal", trace.WithAttributes(
		attribute.String("error.id", rec.ID),
		attribute.String("error.category", string(rec.Category)),
		attribute.String("error.severity", string(rec.Severity)),
	))
}

// StartOracleSpan starts a span for one oracle round trip.
func (t *Tracer) StartOracleSpan(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "healer.oracle.predict")
}

// RecordSpanError records an error in a span.
func RecordSpanError(span trace.Span, err error) {
	span.RecordError(err)
}

// RecordSpanDuration records duration in a span.
func RecordSpanDuration(span trace.Span, duration time.Duration) {
	span.SetAttributes(attribute.Float64("duration_ms", float64(duration.Nanoseconds())/1e6))
}
