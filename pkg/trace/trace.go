// Package trace wires OpenTelemetry tracing for vadseg. Until Initialize
// installs an exporter, spans come from the global no-op tracer and cost
// nothing on the per-frame path.
package trace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/realtime-ai/vadseg/pkg/logger"
)

// TracerName names the tracer behind every vadseg span.
const TracerName = "github.com/realtime-ai/vadseg"

// Exporter types.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// ErrInitialized is returned by a second Initialize before Shutdown.
var ErrInitialized = errors.New("trace: provider already initialized")

var (
	mu       sync.RWMutex
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
)

// Config holds the configuration for tracing.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod)
	Environment string
	// ExporterType is "stdout", "otlp" or "none"
	ExporterType string
	// OTLPEndpoint is the gRPC endpoint for the OTLP exporter (e.g. "localhost:4317")
	OTLPEndpoint string
	// SamplingRate is the fraction of segmentation runs traced (0.0 to 1.0)
	SamplingRate float64
	// Writer receives stdout-exporter spans; nil means stderr, since
	// stdout carries results.
	Writer io.Writer
}

// DefaultConfig returns a configuration with tracing disabled. The
// environment and OTLP endpoint follow the standard variables.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "vadseg",
		ServiceVersion: "0.1.0",
		Environment:    envOr("ENVIRONMENT", "development"),
		ExporterType:   ExporterNone,
		OTLPEndpoint:   envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		SamplingRate:   1.0,
	}
}

// NewResource describes this process for traces and metrics.
func NewResource(ctx context.Context, name, version, env string) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(name),
			semconv.ServiceVersion(version),
			attribute.String("environment", env),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("trace resource: %w", err)
	}
	return res, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stderr
		}
		return stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	case ExporterOTLP:
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		))
	default:
		return nil, fmt.Errorf("trace: unsupported exporter type %q", cfg.ExporterType)
	}
}

// Initialize installs the global tracer provider. With ExporterType "none"
// (or empty) it does nothing.
func Initialize(ctx context.Context, cfg Config) error {
	if cfg.ExporterType == "" || cfg.ExporterType == ExporterNone {
		return nil
	}

	mu.Lock()
	defer mu.Unlock()
	if provider != nil {
		return ErrInitialized
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return err
	}
	res, err := NewResource(ctx, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return err
	}

	provider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	tracer = provider.Tracer(TracerName)

	logger.WithComponent("trace").WithField("exporter", cfg.ExporterType).Info("tracing initialized")
	return nil
}

// Shutdown flushes pending spans and removes the provider.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	defer mu.Unlock()
	if provider == nil {
		return nil
	}
	err := provider.Shutdown(ctx)
	provider, tracer = nil, nil
	if err != nil {
		return fmt.Errorf("trace shutdown: %w", err)
	}
	return nil
}

// GetTracer returns the installed tracer, or the global one before Initialize.
func GetTracer() trace.Tracer {
	mu.RLock()
	defer mu.RUnlock()
	if tracer == nil {
		return otel.Tracer(TracerName)
	}
	return tracer
}

// StartSpan starts a span on GetTracer.
func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, spanName, opts...)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
