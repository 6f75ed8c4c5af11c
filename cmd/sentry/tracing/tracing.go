// Package tracing installs the global OpenTelemetry tracer provider.
//
// With no endpoint configured a no-op provider is installed and spans cost
// nothing. Otherwise spans are batched to an OTLP/gRPC collector.
package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "kedastral-sentry"

// Options configures Setup.
type Options struct {
	Endpoint string
	Insecure bool
	Version  string
	Workload string
}

// ShutdownFunc flushes and stops the provider.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Setup builds a provider for opts, installs it globally together with the
// W3C trace-context propagator, and returns its shutdown function.
func Setup(ctx context.Context, opts Options, logger *slog.Logger) (ShutdownFunc, error) {
	tp, shutdown, err := newProvider(ctx, opts)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if opts.Endpoint == "" {
		logger.Debug("tracing export disabled")
	} else {
		logger.Info("exporting traces", "endpoint", opts.Endpoint, "insecure", opts.Insecure)
	}
	return shutdown, nil
}

func newProvider(ctx context.Context, opts Options) (trace.TracerProvider, ShutdownFunc, error) {
	if opts.Endpoint == "" {
		return nooptrace.NewTracerProvider(), noopShutdown, nil
	}

	exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create OTLP trace exporter: %w", err)
	}

	res, err := buildResource(ctx, opts)
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	return tp, tp.Shutdown, nil
}

func buildResource(ctx context.Context, opts Options) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(serviceName)}
	if opts.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(opts.Version))
	}
	if opts.Workload != "" {
		attrs = append(attrs, attribute.String("sentry.workload", opts.Workload))
	}

	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}
	return res, nil
}
