// Package observability provides OpenTelemetry tracing and audit logging
// for Simforge.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope for all Simforge spans.
const TracerName = "github.com/simforge/simforge"

// TracingConfig configures the OTLP trace export.
type TracingConfig struct {
	// ServiceName defaults to "simforge".
	ServiceName string

	ServiceVersion string

	// Environment is the deployment environment (dev, staging, prod).
	Environment string

	// OTLPEndpoint is the OTLP gRPC endpoint, e.g. "localhost:4317".
	// Tracing is disabled when empty.
	OTLPEndpoint string

	// SampleRate is the trace sampling ratio in [0, 1], default 1.
	SampleRate float64
}

// DefaultTracingConfig returns the development defaults.
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "simforge",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// TracerProvider wraps the SDK provider so callers can shut it down
// without importing the otel SDK.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing sets up the global tracer provider and propagators. With no
// OTLP endpoint configured it returns a provider backed by the global
// no-op tracer.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}
	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{tracer: otel.Tracer(TracerName)}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SampleRate)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{
		provider: provider,
		tracer:   provider.Tracer(TracerName),
	}, nil
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Shutdown flushes and stops the provider. A nil receiver provider (the
// no-op case) shuts down cleanly.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}

// Tracer returns the underlying tracer.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// Span kind attribute values, one per pipeline phase.
const (
	SpanKindDecode  = "decode"
	SpanKindCompile = "compile"
	SpanKindGate    = "gate"
	SpanKindPersist = "persist"
	SpanKindIndex   = "index"
	SpanKindRegress = "regress"
)

// startSpan starts a span with the Simforge kind attribute plus any
// phase-specific attributes.
func startSpan(ctx context.Context, name, simforgeKind string, otelKind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{
		attribute.String("simforge.span.kind", simforgeKind),
	}, attrs...)
	return otel.Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(otelKind),
		trace.WithAttributes(all...),
	)
}

// StartDecodeSpan starts a span for diagram decoding.
func StartDecodeSpan(ctx context.Context, format, source string) (context.Context, trace.Span) {
	return startSpan(ctx, "decode."+format, SpanKindDecode, trace.SpanKindInternal,
		attribute.String("decode.format", format),
		attribute.String("decode.source", source),
	)
}

// RecordDecodeResult records decode counts on a span.
func RecordDecodeResult(span trace.Span, nodeCount, edgeCount, findingCount int) {
	span.SetAttributes(
		attribute.Int("decode.node_count", nodeCount),
		attribute.Int("decode.edge_count", edgeCount),
		attribute.Int("decode.finding_count", findingCount),
	)
}

// StartCompileSpan starts a span for a model lowering run.
func StartCompileSpan(ctx context.Context, source string, nodeCount int) (context.Context, trace.Span) {
	return startSpan(ctx, "compile.lower", SpanKindCompile, trace.SpanKindInternal,
		attribute.String("compile.source", source),
		attribute.Int("compile.node_count", nodeCount),
	)
}

// RecordCompileResult records lowering counts on a span.
func RecordCompileResult(span trace.Span, activities, connections, unknownHandlers int) {
	span.SetAttributes(
		attribute.Int("compile.activity_count", activities),
		attribute.Int("compile.connection_count", connections),
		attribute.Int("compile.unknown_handler_count", unknownHandlers),
	)
}

// StartGateSpan starts a span for quality gate evaluation.
func StartGateSpan(ctx context.Context, gateCount int) (context.Context, trace.Span) {
	return startSpan(ctx, "gate.evaluate", SpanKindGate, trace.SpanKindInternal,
		attribute.Int("gate.count", gateCount),
	)
}

// RecordGateResult records gate pipeline outcome on a span. Failed gates
// mark the span as errored.
func RecordGateResult(span trace.Span, status string, passed, failed, warnings int) {
	span.SetAttributes(
		attribute.String("gate.status", status),
		attribute.Int("gate.passed", passed),
		attribute.Int("gate.failed", failed),
		attribute.Int("gate.warnings", warnings),
	)
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d gates failed", failed))
	}
}

// StartPersistSpan starts a span for a graph store write.
func StartPersistSpan(ctx context.Context, backend string) (context.Context, trace.Span) {
	return startSpan(ctx, "persist."+backend, SpanKindPersist, trace.SpanKindClient,
		attribute.String("persist.backend", backend),
	)
}

// RecordPersistResult records graph store write counts on a span.
func RecordPersistResult(span trace.Span, entities, activities, relationships int) {
	span.SetAttributes(
		attribute.Int("persist.entity_count", entities),
		attribute.Int("persist.activity_count", activities),
		attribute.Int("persist.relationship_count", relationships),
	)
}

// StartIndexSpan starts a span for a vector index operation.
func StartIndexSpan(ctx context.Context, collection string) (context.Context, trace.Span) {
	return startSpan(ctx, "index.upsert", SpanKindIndex, trace.SpanKindClient,
		attribute.String("index.collection", collection),
	)
}

// StartRegressSpan starts a span for a regression suite run.
func StartRegressSpan(ctx context.Context, suite string, caseCount int) (context.Context, trace.Span) {
	return startSpan(ctx, "regress."+suite, SpanKindRegress, trace.SpanKindInternal,
		attribute.String("regress.suite", suite),
		attribute.Int("regress.case_count", caseCount),
	)
}

// RecordRegressResult records regression suite outcome on a span.
func RecordRegressResult(span trace.Span, passed, failed int) {
	span.SetAttributes(
		attribute.Int("regress.passed", passed),
		attribute.Int("regress.failed", failed),
	)
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d cases failed", failed))
	}
}

// RecordError marks the span errored with err. Nil errors are ignored.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
