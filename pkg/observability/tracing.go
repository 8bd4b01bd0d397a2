package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerProvider exports pipeline spans over OTLP to any compatible
// collector (Jaeger, Tempo, a vendor agent). Call Shutdown on exit to
// flush pending spans.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// TracingConfig configures the OTLP tracer provider. Most deployments
// only need ServiceName and Endpoint.
type TracingConfig struct {
	// ServiceName identifies this service in traces.
	ServiceName string

	// ServiceVersion is shown alongside traces.
	ServiceVersion string

	// Endpoint is the OTLP collector address, e.g. "localhost:4317".
	// Port 4317 is the standard gRPC port, 4318 for HTTP.
	Endpoint string

	// UseHTTP uses HTTP instead of gRPC for OTLP export.
	UseHTTP bool

	// Insecure disables TLS. Local development only.
	Insecure bool

	// Headers are sent with every export request, e.g. auth tokens.
	Headers map[string]string

	// SampleRate is the fraction of traces recorded; 1.0 records all.
	SampleRate float64

	// BatchTimeout is how long spans batch before export.
	BatchTimeout time.Duration
}

// DefaultTracingConfig returns the default configuration.
func DefaultTracingConfig(serviceName, endpoint string) TracingConfig {
	return TracingConfig{
		ServiceName:    serviceName,
		ServiceVersion: "unknown",
		Endpoint:       endpoint,
		Insecure:       true,
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
	}
}

// NewTracerProvider connects to the OTLP collector and installs the
// provider globally.
//
// Example:
//
//	provider, err := observability.NewTracerProvider(
//	    observability.DefaultTracingConfig("docchat", "localhost:4317"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Shutdown(context.Background())
func NewTracerProvider(cfg TracingConfig) (*TracerProvider, error) {
	ctx := context.Background()

	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(cfg.BatchTimeout)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
	}, nil
}

// StartSpan starts a span for one pipeline stage. The returned end
// function records the error (if any) and closes the span.
func (p *TracerProvider) StartSpan(ctx context.Context, name string) (context.Context, func(error)) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}

// Shutdown flushes pending spans and stops the provider.
func (p *TracerProvider) Shutdown(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}

func createExporter(ctx context.Context, cfg TracingConfig) (*otlptrace.Exporter, error) {
	if cfg.UseHTTP {
		options := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			options = append(options, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			options = append(options, otlptracehttp.WithHeaders(cfg.Headers))
		}
		return otlptracehttp.New(ctx, options...)
	}

	options := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		options = append(options, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		options = append(options, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	return otlptracegrpc.New(ctx, options...)
}
