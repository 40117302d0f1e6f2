// Package observability wires OpenTelemetry distributed tracing.
//
// Spans export over OTLP/HTTP to a local collector or agent, which owns
// authentication and forwarding to whatever backend is in use. Pointing
// Endpoint at localhost:4318 works with the stock OTel Collector as well
// as vendor agents that expose an OTLP receiver.
//
// An empty Endpoint disables tracing: Setup installs nothing and the
// returned shutdown is a no-op, so callers never need to special-case it.
package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config for trace export.
type Config struct {
	// Endpoint is the OTLP/HTTP collector address as host:port.
	// Empty disables tracing.
	Endpoint string

	// ServiceName identifies this process in traces.
	ServiceName string

	// ServiceVersion tags spans with the build version.
	ServiceVersion string

	// Environment is the deployment environment tag (dev, staging, prod).
	Environment string

	// SampleRatio is the fraction of root traces kept, clamped to [0, 1].
	// Child spans follow their parent's decision.
	SampleRatio float64

	Logger *slog.Logger
}

// Setup builds a tracer provider exporting over OTLP/HTTP and installs it
// as the global provider. The returned shutdown flushes pending spans and
// must be called before exit.
func Setup(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Endpoint == "" {
		logger.Debug("tracing disabled: no collector endpoint configured")
		return func(context.Context) error { return nil }, nil
	}

	// The collector runs next to the app, so plain HTTP is fine here.
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating otlp exporter: %w", err)
	}

	res := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(
			sdktrace.TraceIDRatioBased(clampRatio(cfg.SampleRatio)),
		)),
	)
	otel.SetTracerProvider(tp)

	logger.Debug("tracing enabled",
		"endpoint", cfg.Endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
		"sample_ratio", clampRatio(cfg.SampleRatio),
	)

	return tp.Shutdown, nil
}

// clampRatio forces a sampling ratio into [0, 1].
func clampRatio(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	default:
		return r
	}
}
