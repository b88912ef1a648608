// Package tracing provides OpenTelemetry tracing for sync runs. Spans are
// exported to stdout or an OTLP collector; when tracing is disabled a no-op
// tracer is used so call sites never check.
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// TracerName is the instrumentation name of the invsync tracer.
	TracerName = "github.com/jbctechsolutions/invsync"

	// Version is the instrumentation version.
	Version = "1.0.0"
)

// ExporterType defines the type of trace exporter.
type ExporterType string

const (
	ExporterNone   ExporterType = "none"
	ExporterStdout ExporterType = "stdout"
	ExporterOTLP   ExporterType = "otlp"
)

// Config holds tracing configuration.
type Config struct {
	Enabled      bool         // Whether tracing is enabled
	ExporterType ExporterType // Type of exporter to use
	OTLPEndpoint string       // OTLP collector endpoint (for OTLP exporter)
	ServiceName  string       // Service name for traces
	Environment  string       // Deployment environment (development, production)
	SampleRate   float64      // Sampling rate (0.0 to 1.0)
	Output       io.Writer    // Output for stdout exporter (defaults to os.Stdout)
}

// DefaultConfig returns sensible default tracing configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		ExporterType: ExporterNone,
		ServiceName:  "invsync",
		Environment:  "development",
		SampleRate:   1.0,
	}
}

// Tracer wraps an OpenTelemetry tracer with domain-specific functionality.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	config   Config
}

// Default returns a tracer backed by the global otel provider, which is a
// no-op until New installs one.
func Default() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(TracerName),
		config: DefaultConfig(),
	}
}

// New creates a new Tracer with the provided configuration.
func New(ctx context.Context, cfg Config) (*Tracer, error) {
	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		return &Tracer{
			tracer: noop.NewTracerProvider().Tracer(TracerName),
			config: cfg,
		}, nil
	}

	// Create exporter
	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	// Not merged with resource.Default(): its schema URL differs from semconv v1.26.0.
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(Version),
			attribute.String("deployment.environment", cfg.Environment),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Create sampler
	var sampler sdktrace.Sampler
	if cfg.SampleRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if cfg.SampleRate <= 0.0 {
		sampler = sdktrace.NeverSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	// Create tracer provider
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	// Set global propagator
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Set global tracer provider
	otel.SetTracerProvider(provider)

	return &Tracer{
		tracer:   provider.Tracer(TracerName, trace.WithInstrumentationVersion(Version)),
		provider: provider,
		config:   cfg,
	}, nil
}

// createExporter creates the appropriate exporter based on configuration.
func createExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		opts := []stdouttrace.Option{
			stdouttrace.WithPrettyPrint(),
		}
		if cfg.Output != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.Output))
		}
		return stdouttrace.New(opts...)

	case ExporterOTLP:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithInsecure(),
		}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		return otlptracehttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.ExporterType)
	}
}

// Shutdown gracefully shuts down the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider != nil {
		return t.provider.Shutdown(ctx)
	}
	return nil
}

// Start starts a new span with the given name.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- Sync span helpers ---

// Span wraps a trace.Span with typed setters for sync attributes.
type Span struct {
	span trace.Span
}

// StartSyncSpan starts the root span of a sync run.
func (t *Tracer) StartSyncSpan(ctx context.Context, runID string, kinds []string) (context.Context, *Span) {
	ctx, span := t.tracer.Start(ctx, "sync.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("sync.run_id", runID),
			attribute.StringSlice("sync.kinds", kinds),
		),
	)
	return ctx, &Span{span: span}
}

// StartKindSpan starts a span covering one kind within a sync or status run.
func (t *Tracer) StartKindSpan(ctx context.Context, operation, kind string) (context.Context, *Span) {
	ctx, span := t.tracer.Start(ctx, operation+".kind",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("entity.kind", kind)),
	)
	return ctx, &Span{span: span}
}

// StartPushSpan starts a span for a single remote write.
func (t *Tracer) StartPushSpan(ctx context.Context, kind, id, op string) (context.Context, *Span) {
	ctx, span := t.tracer.Start(ctx, "remote.push",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("entity.kind", kind),
			attribute.String("entity.id", id),
			attribute.String("remote.operation", op),
		),
	)
	return ctx, &Span{span: span}
}

// StartCheckpointSpan starts a span for a checkpoint operation.
func (t *Tracer) StartCheckpointSpan(ctx context.Context, op, id string) (context.Context, *Span) {
	ctx, span := t.tracer.Start(ctx, "checkpoint."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("checkpoint.id", id)),
	)
	return ctx, &Span{span: span}
}

// SetCounts records a classification on the span.
func (s *Span) SetCounts(ahead, behind, modified, unchanged int) {
	s.span.SetAttributes(
		attribute.Int("classification.ahead", ahead),
		attribute.Int("classification.behind", behind),
		attribute.Int("classification.modified", modified),
		attribute.Int("classification.unchanged", unchanged),
	)
}

// SetOutcome records push results on the span.
func (s *Span) SetOutcome(pushed, failed, conflicts int) {
	s.span.SetAttributes(
		attribute.Int("sync.pushed", pushed),
		attribute.Int("sync.failed", failed),
		attribute.Int("sync.conflicts", conflicts),
	)
}

// SetCheckpoint links the span to a checkpoint.
func (s *Span) SetCheckpoint(id string) {
	s.span.SetAttributes(attribute.String("checkpoint.id", id))
}

// End ends the span with success status.
func (s *Span) End() {
	s.span.SetStatus(codes.Ok, "")
	s.span.End()
}

// EndWithError ends the span with error status. A nil err ends it normally.
func (s *Span) EndWithError(err error) {
	if err == nil {
		s.End()
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
	s.span.End()
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error) {
	trace.SpanFromContext(ctx).RecordError(err)
}
