package telemetry

import (
	"context"
	"fmt"

	"tw-tick-api/src/logger"
	"tw-tick-api/src/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// -----------------------------------------------------------------------------

// Setup installs the global tracer provider. With tracing disabled the otel
// default no-op provider stays in place and the returned func does nothing.
func Setup(ctx context.Context, cfg *models.MConfig, log *logger.Logger) (ShutdownFunc, error) {
	if !cfg.Tracing.Enabled {
		log.Debug("Tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Tracing.Endpoint),
	}
	if cfg.Tracing.URLPath != "" {
		opts = append(opts, otlptracehttp.WithURLPath(cfg.Tracing.URLPath))
	}
	if cfg.Tracing.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.Name),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	log.Info("Tracing to %s%s", cfg.Tracing.Endpoint, cfg.Tracing.URLPath)
	return tp.Shutdown, nil
}
