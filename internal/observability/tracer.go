package observability

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/fluxbase-eu/fluxbuild/internal/config"
)

const instrumentationName = "fluxbuild"

// Tracer owns the trace provider installed for the process
type Tracer struct {
	provider *sdktrace.TracerProvider
	enabled  bool
}

// NewTracer installs an OTLP/gRPC trace provider as the global provider.
// When tracing is disabled the global no-op provider stays in place and
// spans started through this package are discarded.
func NewTracer(ctx context.Context, cfg config.TracingConfig, version string) (*Tracer, error) {
	if !cfg.Enabled {
		log.Debug().Msg("Tracing disabled")
		return &Tracer{}, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res, err := buildResource(ctx, cfg, version)
	if err != nil {
		return nil, err
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

	log.Info().
		Str("endpoint", endpointOrDefault(cfg.Endpoint)).
		Float64("sample_rate", cfg.SampleRate).
		Msg("Tracing enabled")

	return &Tracer{provider: provider, enabled: true}, nil
}

func endpointOrDefault(endpoint string) string {
	if endpoint == "" {
		return "localhost:4317"
	}
	return endpoint
}

func newExporter(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpointOrDefault(cfg.Endpoint))}
	if cfg.Insecure {
		opts = append(opts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	return exporter, nil
}

// buildResource describes the process. The attributes carry no schema URL,
// so they merge with the SDK detectors.
func buildResource(ctx context.Context, cfg config.TracingConfig, version string) (*resource.Resource, error) {
	service := cfg.ServiceName
	if service == "" {
		service = instrumentationName
	}
	env := cfg.Environment
	if env == "" {
		env = "development"
	}

	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithFromEnv(),
		resource.WithAttributes(
			semconv.ServiceName(service),
			semconv.ServiceVersion(version),
			semconv.DeploymentEnvironment(env),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build trace resource: %w", err)
	}
	return res, nil
}

// samplerFor maps a 0..1 sample rate onto a sampler
func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// Shutdown flushes pending spans
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	if err := t.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to flush spans: %w", err)
	}
	return nil
}

// IsEnabled returns whether tracing is enabled
func (t *Tracer) IsEnabled() bool {
	return t.enabled
}

// ExtractTraceID returns the trace ID of the span in ctx, or "" without one
func ExtractTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// StartBuildSpan starts a span covering one bundler run
func StartBuildSpan(ctx context.Context, buildID string, entryPoints []string, outfile string) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, "build",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("build.id", buildID),
			attribute.StringSlice("build.entry_points", entryPoints),
			attribute.String("build.outfile", outfile),
		),
	)
}

// StartCleanSpan starts a span for one clean phase
func StartCleanSpan(ctx context.Context, phase string, patterns int) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, fmt.Sprintf("clean.%s", phase),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("clean.phase", phase),
			attribute.Int("clean.patterns", patterns),
		),
	)
}

// EndSpan ends a span and records any error
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
