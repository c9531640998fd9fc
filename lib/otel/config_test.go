package otel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		errMsg string
	}{
		{
			name:   "disabled config is always valid",
			config: Config{Enabled: false, Exporter: ExporterConfig{Type: "carrier-pigeon"}},
		},
		{
			name:   "valid stdout config",
			config: Config{Enabled: true, ServiceName: "bp", Exporter: ExporterConfig{Type: "stdout"}},
		},
		{
			name:   "otlp without endpoint",
			config: Config{Enabled: true, ServiceName: "bp", Exporter: ExporterConfig{Type: "otlp"}},
			errMsg: "OTLP endpoint is required when using OTLP exporter",
		},
		{
			name:   "missing service name",
			config: Config{Enabled: true, Exporter: ExporterConfig{Type: "stdout"}},
			errMsg: "service name is required when OpenTelemetry is enabled",
		},
		{
			name:   "unsupported exporter",
			config: Config{Enabled: true, ServiceName: "bp", Exporter: ExporterConfig{Type: "jaeger"}},
			errMsg: "unsupported exporter type: jaeger (supported: otlp, stdout, none)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
			} else {
				require.EqualError(t, err, tt.errMsg)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.False(t, config.Enabled)
	assert.Equal(t, "bptrafficlight", config.ServiceName)
	assert.Equal(t, "stdout", config.Exporter.Type)
	require.NoError(t, config.Validate())
}

func TestInitialize(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		provider, err := Initialize(context.Background(), Config{})
		require.NoError(t, err)
		require.NotNil(t, otel.GetTracerProvider())
		assert.NoError(t, provider.Shutdown(context.Background()))
	})
	t.Run("none exporter", func(t *testing.T) {
		provider, err := Initialize(context.Background(), Config{
			Enabled:     true,
			ServiceName: "bp",
			Exporter:    ExporterConfig{Type: "none"},
		})
		require.NoError(t, err)
		_, span := otel.GetTracerProvider().Tracer("test").Start(context.Background(), "span")
		span.End()
		assert.NoError(t, provider.Shutdown(context.Background()))
	})
	t.Run("unsupported exporter", func(t *testing.T) {
		_, err := Initialize(context.Background(), Config{
			Enabled:     true,
			ServiceName: "bp",
			Exporter:    ExporterConfig{Type: "zipkin"},
		})
		require.EqualError(t, err, "unsupported exporter type: zipkin")
	})
}

func TestHandlerWithTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))
	handler := HandlerWithTracing(provider.Tracer("test"), "dashboard")(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "dashboard", spans[0].Name())
	assert.Equal(t, "Bad Request", spans[0].Status().Description)
}
