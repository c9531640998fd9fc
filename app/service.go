package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SanteonNL/bptrafficlight/dashboard"
	"github.com/SanteonNL/bptrafficlight/ehr"
	"github.com/SanteonNL/bptrafficlight/export"
	"github.com/SanteonNL/bptrafficlight/lib/logging"
	"github.com/SanteonNL/bptrafficlight/reading"
	"github.com/SanteonNL/bptrafficlight/storage"
	"github.com/SanteonNL/bptrafficlight/threshold"
	fhirclient "github.com/SanteonNL/go-fhir-client"
)

var ErrNotConnected = errors.New("not connected to a FHIR server or EHR")

// Service owns the application state. All operations are serialized: remote calls happen outside the lock,
// while merging, persisting and projecting happen under it, so a dashboard is never computed from a partially merged collection.
type Service struct {
	mux        sync.Mutex
	state      State
	repository *storage.Repository
	projector  *dashboard.Projector
	fhirClient fhirclient.Client
	config     ehr.Config
	location   *time.Location
	now        func() time.Time
	// fhirVersion is the version reported by the generic FHIR server on connect.
	fhirVersion string
}

// New creates the service. fhirClient is used for generic FHIR mode and may be nil when no server is configured.
func New(config ehr.Config, location *time.Location, repository *storage.Repository, projector *dashboard.Projector, fhirClient fhirclient.Client) *Service {
	if location == nil {
		location = time.Local
	}
	return &Service{
		state: State{
			Mode:       ModeDisconnected,
			Readings:   reading.Collection{},
			Thresholds: threshold.DefaultSet(),
		},
		repository: repository,
		projector:  projector,
		fhirClient: fhirClient,
		config:     config,
		location:   location,
		now:        time.Now,
	}
}

// Load restores readings, thresholds and lock from persistence.
func (s *Service) Load(ctx context.Context) error {
	readings, err := s.repository.LoadReadings(ctx)
	if err != nil {
		return err
	}
	thresholds, err := s.repository.LoadThresholds(ctx)
	if err != nil {
		return err
	}
	if err := thresholds.Validate(); err != nil {
		slog.WarnContext(ctx, "Persisted thresholds are invalid, using them anyway", slog.String(logging.FieldError, err.Error()))
	}
	lock, err := s.repository.LoadLock(ctx)
	if err != nil {
		return err
	}
	readings = readings.Clone()
	readings.Sort()

	s.mux.Lock()
	defer s.mux.Unlock()
	s.state.Readings = readings
	s.state.Thresholds = thresholds
	s.state.Lock = lock
	s.refreshChart(ctx)
	slog.InfoContext(ctx, "Loaded persisted state", slog.Int(logging.FieldCount, len(readings)))
	return nil
}

// DashboardResult is the dashboard projection plus the connection status.
type DashboardResult struct {
	dashboard.View
	Status Status `json:"status"`
}

func (s *Service) Dashboard() DashboardResult {
	s.mux.Lock()
	defer s.mux.Unlock()
	return DashboardResult{
		View:   s.projector.Project(s.state.Readings, s.state.Thresholds),
		Status: s.statusLocked(),
	}
}

func (s *Service) Status() Status {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.statusLocked()
}

func (s *Service) statusLocked() Status {
	status := s.state.status()
	if s.state.Mode == ModeFHIR {
		status.FHIRVersion = s.fhirVersion
	}
	return status
}

// Readings returns a copy of the canonical collection.
func (s *Service) Readings() reading.Collection {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.state.Readings.Clone()
}

func (s *Service) Thresholds() threshold.Set {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.state.Thresholds
}

func (s *Service) Formatter() dashboard.Formatter {
	return s.projector.Formatter()
}

// commitReadings replaces the collection, persists it and rebuilds the chart. Must be called with the lock held.
// The in-memory collection is updated even when persisting fails.
func (s *Service) commitReadings(ctx context.Context, readings reading.Collection) error {
	s.state.Readings = readings
	s.refreshChart(ctx)
	if err := s.repository.SaveReadings(ctx, readings); err != nil {
		slog.ErrorContext(ctx, "Failed to persist readings", slog.String(logging.FieldError, err.Error()))
		return fmt.Errorf("persist readings: %w", err)
	}
	return nil
}

// mergeLocked merges a batch into the collection and persists it. Must be called with the lock held.
func (s *Service) mergeLocked(ctx context.Context, incoming reading.Collection, precedence reading.Source) (reading.MergeStats, error) {
	merged, stats := reading.Merge(s.state.Readings, incoming, precedence)
	slog.InfoContext(ctx, "Merged readings",
		slog.String(logging.FieldSource, string(precedence)),
		slog.Int("added", stats.Added),
		slog.Int("replaced", stats.Replaced),
		slog.Int("skipped", stats.Skipped),
		slog.Int("dropped", stats.Dropped))
	return stats, s.commitReadings(ctx, merged)
}

func (s *Service) refreshChart(ctx context.Context) {
	if err := s.projector.RenderChart(s.state.Readings, s.state.Thresholds); err != nil {
		slog.WarnContext(ctx, "Failed to render chart", slog.String(logging.FieldError, err.Error()))
	}
}

func (s *Service) remoteContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.Timeout)
}

// Report returns the full classified history for the spreadsheet export.
func (s *Service) Report() export.Report {
	s.mux.Lock()
	defer s.mux.Unlock()
	return export.Report{
		Entries:      s.projector.Classified(s.state.Readings, s.state.Thresholds),
		Distribution: s.projector.Distribution(s.state.Readings, s.state.Thresholds),
		Thresholds:   s.state.Thresholds,
		GeneratedAt:  s.now(),
	}
}
