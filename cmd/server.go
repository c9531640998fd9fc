package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/SanteonNL/bptrafficlight/app"
	"github.com/SanteonNL/bptrafficlight/applaunch/smartonfhir"
	"github.com/SanteonNL/bptrafficlight/dashboard"
	"github.com/SanteonNL/bptrafficlight/healthcheck"
	"github.com/SanteonNL/bptrafficlight/lib/coolfhir"
	"github.com/SanteonNL/bptrafficlight/lib/logging"
	"github.com/SanteonNL/bptrafficlight/lib/otel"
	"github.com/SanteonNL/bptrafficlight/storage"
	"github.com/SanteonNL/bptrafficlight/user"
	"github.com/SanteonNL/bptrafficlight/web"
	fhirclient "github.com/SanteonNL/go-fhir-client"
	"github.com/rs/zerolog"
	baseotel "go.opentelemetry.io/otel"
)

const shutdownTimeout = 10 * time.Second

type Service interface {
	RegisterHandlers(mux *http.ServeMux)
}

// ConfigureLogging installs the default slog logger, enriched with context attributes and trace IDs.
func ConfigureLogging(config Config) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel(config.LogLevel)})
	slog.SetDefault(slog.New(logging.ContextHandler{Handler: handler}))
}

func slogLevel(level zerolog.Level) slog.Level {
	switch {
	case level <= zerolog.DebugLevel:
		return slog.LevelDebug
	case level == zerolog.InfoLevel:
		return slog.LevelInfo
	case level == zerolog.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Application is the core service with the resources it holds.
type Application struct {
	Service *app.Service
	Store   storage.Store
}

func (a Application) Close() error {
	return a.Store.Close()
}

// NewApplication opens the store and restores the persisted state.
func NewApplication(ctx context.Context, config Config) (*Application, error) {
	store, err := storage.New(ctx, config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	fhirClient, err := createFHIRClient(config)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	location := config.Display.Location()
	projector := dashboard.NewProjector(dashboard.NewFormatter(config.Display.Locale, location), dashboard.NopChartRenderer{})
	service := app.New(config.FHIR, location, storage.NewRepository(store), projector, fhirClient)
	if err := service.Load(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load persisted state: %w", err)
	}
	return &Application{Service: service, Store: store}, nil
}

// createFHIRClient returns the client for generic FHIR mode, or nil if no FHIR server is configured.
func createFHIRClient(config Config) (fhirclient.Client, error) {
	if config.FHIR.BaseURL == "" {
		return nil, nil
	}
	baseURL, err := url.Parse(config.FHIR.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid FHIR base URL: %w", err)
	}
	tracer := baseotel.Tracer("fhir")
	httpClient := &http.Client{
		Transport: coolfhir.NewTracedHTTPTransport(http.DefaultTransport, tracer),
		Timeout:   config.FHIR.Timeout,
	}
	return coolfhir.NewTracedFHIRClient(fhirclient.New(baseURL, httpClient, coolfhir.Config()), tracer), nil
}

// Start runs the HTTP server until ctx is cancelled.
func Start(ctx context.Context, config Config) error {
	tracerProvider, err := otel.Initialize(ctx, config.OpenTelemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shut down tracer provider", slog.String(logging.FieldError, err.Error()))
		}
	}()

	application, err := NewApplication(ctx, config)
	if err != nil {
		return err
	}
	defer application.Close()

	httpHandler, err := createHandler(ctx, config, application)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              config.Public.Address,
		Handler:           httpHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shut down HTTP server", slog.String(logging.FieldError, err.Error()))
		}
	}()
	slog.InfoContext(ctx, "Starting HTTP server", slog.String("address", config.Public.Address))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

func createHandler(ctx context.Context, config Config, application *Application) (http.Handler, error) {
	httpHandler := http.NewServeMux()
	services := []Service{
		web.New(application.Service, config.Import.MaxSize, config.StrictMode),
		healthcheck.New(map[string]healthcheck.Check{
			"storage": func(ctx context.Context) error {
				return storage.Ping(ctx, application.Store)
			},
		}),
	}
	if config.SMARTOnFHIR.Enabled {
		sessionManager := user.NewSessionManager[smartonfhir.SessionData](config.Session.Lifetime)
		go sessionManager.Start(ctx)
		publicURL := config.Public.ParseURL()
		launch, err := smartonfhir.New(config.SMARTOnFHIR, sessionManager, application.Service, publicURL, publicURL, config.StrictMode)
		if err != nil {
			return nil, fmt.Errorf("failed to create SMART on FHIR app launch: %w", err)
		}
		services = append(services, launch)
	}
	for _, service := range services {
		service.RegisterHandlers(httpHandler)
	}
	return httpHandler, nil
}
