// Package observability wires OpenTelemetry tracing around policy
// evaluation, exporting spans to stdout by default so a deployment with
// no collector configured still gets visibility, and to any OTLP-speaking
// backend once one is wired in front of it.
package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the tracer provider.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	SampleRate     float64 // 0.0 to 1.0, default 1.0 (sample all)
	Enabled        bool
}

// DefaultConfig returns sane defaults: tracing on, sampling everything.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "policyguard",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		SampleRate:     1.0,
		Enabled:        true,
	}
}

// Provider manages the process's tracer provider.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	logger         *slog.Logger
}

// New creates a tracer provider exporting spans to stdout.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}

	if !config.Enabled {
		p.logger.InfoContext(ctx, "tracing disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", config.ServiceName),
			attribute.String("service.version", config.ServiceVersion),
			attribute.String("deployment.environment", config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: create resource: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("observability: create stdout exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(config.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(p.tracerProvider)

	p.tracer = otel.Tracer("policyguard",
		trace.WithInstrumentationVersion(config.ServiceVersion),
	)

	p.logger.InfoContext(ctx, "tracing initialized",
		"service", config.ServiceName,
		"environment", config.Environment,
		"sample_rate", config.SampleRate,
	)
	return p, nil
}

// Shutdown flushes and stops the tracer provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider == nil {
		return nil
	}
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		p.logger.ErrorContext(ctx, "failed to shutdown tracer provider", "error", err)
		return err
	}
	return nil
}

// Tracer returns the configured tracer, falling back to the global one
// (a no-op tracer until SetTracerProvider is called) if tracing is disabled.
func (p *Provider) Tracer() trace.Tracer {
	if p.tracer == nil {
		return otel.Tracer("policyguard")
	}
	return p.tracer
}

// StartSpan starts a new span named name.
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, name, opts...)
}

// TraceEvaluation wraps a policy evaluation call in a span, recording the
// outcome and any error onto it.
func (p *Provider) TraceEvaluation(ctx context.Context, tenantID string, fn func(context.Context) error) error {
	ctx, span := p.StartSpan(ctx, "policy.evaluate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
	defer span.End()

	err := fn(ctx)
	SetSpanStatus(ctx, err)
	return err
}

// SpanFromContext returns the span carried by ctx, or a no-op span if none.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent attaches a named event with attrs to the span in ctx. A no-op
// if ctx carries no active span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err on the span in ctx, marking it Error if non-nil
// and Ok otherwise.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// DecisionAttributes builds the standard attribute set recorded against a
// policy decision span: the deciding policy, the rule that matched, the
// effect reached, and the backend that produced it.
func DecisionAttributes(policyID, ruleID, effect, backend string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("policyguard.policy.id", policyID),
		attribute.String("policyguard.rule.id", ruleID),
		attribute.String("policyguard.decision.effect", effect),
		attribute.String("policyguard.pdp.backend", backend),
	}
}
