// Package observability wires tracing (OpenTelemetry over OTLP/gRPC) and the
// Prometheus state metrics fed by the store event broker.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc/credentials"

	"github.com/tbourn/chatverse/internal/config"
)

// Option adjusts SetupOTel.
type Option func(*tracing)

type tracing struct {
	exporter sdktrace.SpanExporter
	sync     bool
}

// WithExporter replaces the OTLP exporter. Spans are exported synchronously
// as they end, which is what in-memory test exporters need.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(t *tracing) {
		t.exporter = exp
		t.sync = true
	}
}

// Propagator is the W3C trace-context plus baggage propagator installed
// globally by SetupOTel.
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
}

// SetupOTel installs the global tracer provider and returns its shutdown
// function. With tracing disabled only the propagator is installed, so trace
// headers arriving at the local API still reach a remote gateway.
//
// Nothing global is touched when an error is returned.
func SetupOTel(ctx context.Context, cfg config.OTELConfig, version string, opts ...Option) (func(context.Context) error, error) {
	if !cfg.Enabled {
		otel.SetTextMapPropagator(Propagator())
		return func(context.Context) error { return nil }, nil
	}

	var t tracing
	for _, o := range opts {
		o(&t)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(version),
		),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	exp := t.exporter
	if exp == nil {
		if exp, err = otlpExporter(ctx, cfg); err != nil {
			return nil, fmt.Errorf("otlp exporter: %w", err)
		}
	}

	spans := sdktrace.WithBatcher(exp)
	if t.sync {
		spans = sdktrace.WithSyncer(exp)
	}
	tp := sdktrace.NewTracerProvider(
		spans,
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(Propagator())
	return tp.Shutdown, nil
}

func otlpExporter(ctx context.Context, cfg config.OTELConfig) (*otlptrace.Exporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}
	return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
}
