package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

// Config configures tracing of API requests, FHIR calls and syncs.
type Config struct {
	Enabled        bool           `koanf:"enabled"`
	ServiceName    string         `koanf:"service_name"`
	ServiceVersion string         `koanf:"service_version"`
	Exporter       ExporterConfig `koanf:"exporter"`
}

type ExporterConfig struct {
	// Type is one of otlp, stdout or none. With none, spans are recorded but not exported.
	Type string     `koanf:"type"`
	OTLP OTLPConfig `koanf:"otlp"`
}

// OTLPConfig configures the OTLP/HTTP exporter.
type OTLPConfig struct {
	// Endpoint is host:port, e.g. localhost:4318
	Endpoint string            `koanf:"endpoint"`
	Headers  map[string]string `koanf:"headers"`
	Timeout  time.Duration     `koanf:"timeout"`
	// Insecure sends spans over plain HTTP.
	Insecure bool `koanf:"insecure"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:    "bptrafficlight",
		ServiceVersion: "1.0.0",
		Exporter: ExporterConfig{
			Type: ExporterStdout,
			OTLP: OTLPConfig{
				Endpoint: "localhost:4318",
				Timeout:  10 * time.Second,
			},
		},
	}
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ServiceName == "" {
		return errors.New("service name is required when OpenTelemetry is enabled")
	}
	switch c.Exporter.Type {
	case ExporterOTLP:
		if c.Exporter.OTLP.Endpoint == "" {
			return errors.New("OTLP endpoint is required when using OTLP exporter")
		}
	case ExporterStdout, ExporterNone:
	default:
		return fmt.Errorf("unsupported exporter type: %s (supported: otlp, stdout, none)", c.Exporter.Type)
	}
	return nil
}

// TracerProvider is the installed global tracer provider. It must be shut down on exit to flush pending spans.
type TracerProvider struct {
	provider *trace.TracerProvider
}

// Initialize installs the global tracer provider and propagator. When tracing is disabled, spans are still created
// (so handlers don't need to care) but never exported.
func Initialize(ctx context.Context, config Config) (*TracerProvider, error) {
	if !config.Enabled {
		tp := trace.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return &TracerProvider{provider: tp}, nil
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(config.ServiceName),
		semconv.ServiceVersionKey.String(config.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	exporter, err := newExporter(ctx, config.Exporter)
	if err != nil {
		return nil, err
	}
	opts := []trace.TracerProviderOption{trace.WithResource(res)}
	if exporter != nil {
		opts = append(opts, trace.WithBatcher(exporter))
	}
	tp := trace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return &TracerProvider{provider: tp}, nil
}

func newExporter(ctx context.Context, config ExporterConfig) (trace.SpanExporter, error) {
	switch config.Type {
	case ExporterOTLP:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(config.OTLP.Endpoint),
			otlptracehttp.WithTimeout(config.OTLP.Timeout),
		}
		if len(config.OTLP.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(config.OTLP.Headers))
		}
		if config.OTLP.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		return exporter, nil
	case ExporterStdout:
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		return exporter, nil
	case ExporterNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", config.Type)
	}
}

// Shutdown flushes and stops the tracer provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp == nil || tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}
