package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/SanteonNL/bptrafficlight/ehr"
	"github.com/SanteonNL/bptrafficlight/lib/logging"
	"github.com/SanteonNL/bptrafficlight/lib/otel"
	"github.com/SanteonNL/bptrafficlight/reading"
	baseotel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = baseotel.Tracer("app")

// ConnectFHIR connects to the configured generic FHIR server. If the server is unreachable, the application falls back to
// demo mode and the returned status explains why. Otherwise the first patient on the server is selected and its readings are synced.
func (s *Service) ConnectFHIR(ctx context.Context) (*Status, error) {
	if s.fhirClient == nil {
		status := s.UseDemoMode(ctx)
		status.Message = "no FHIR server configured, using demo mode"
		return &status, nil
	}
	remoteCtx, cancel := s.remoteContext(ctx)
	defer cancel()
	version, err := ehr.Probe(remoteCtx, s.fhirClient)
	if err != nil {
		slog.WarnContext(ctx, "FHIR server unreachable, falling back to demo mode",
			slog.String(logging.FieldUrl, s.config.BaseURL),
			slog.String(logging.FieldError, err.Error()))
		status := s.UseDemoMode(ctx)
		status.Message = fmt.Sprintf("connection failed (%s), using demo mode", err)
		return &status, nil
	}
	s.mux.Lock()
	s.state.Mode = ModeFHIR
	s.state.EHR = nil
	s.state.PatientID = ""
	s.state.PatientName = ""
	s.fhirVersion = version
	s.mux.Unlock()
	slog.InfoContext(ctx, "Connected to FHIR server",
		slog.String(logging.FieldUrl, s.config.BaseURL),
		slog.String("fhir_version", version))

	patient, err := ehr.FirstPatient(remoteCtx, s.fhirClient)
	if err != nil {
		slog.WarnContext(ctx, "Could not select a patient on the FHIR server", slog.String(logging.FieldError, err.Error()))
		status := s.Status()
		status.Message = "connected, but no patient found"
		return &status, nil
	}
	s.mux.Lock()
	s.state.PatientID = *patient.Id
	s.state.PatientName = ehr.PatientName(*patient)
	s.mux.Unlock()

	status, err := s.Sync(ctx)
	if err != nil {
		// Connected, but the readings could not be loaded. Keep going on the local readings.
		slog.WarnContext(ctx, "Could not load observations from FHIR server", slog.String(logging.FieldError, err.Error()))
		current := s.Status()
		current.Message = "connected, but observations could not be loaded"
		return &current, nil
	}
	return status, nil
}

// ConnectSMART switches to the EHR session established by a SMART app launch and syncs the patient's readings.
func (s *Service) ConnectSMART(ctx context.Context, session EHRSession) (*Status, error) {
	if session.Client == nil || session.PatientID == "" {
		return nil, errors.New("SMART session has no FHIR client or patient")
	}
	bridge := ehr.NewBridge(session.Client, session.PatientID, reading.SourceSMARTEHR, s.config.MaxPages)
	remoteCtx, cancel := s.remoteContext(ctx)
	defer cancel()
	patient, err := bridge.ReadPatient(remoteCtx)
	if err != nil {
		return nil, fmt.Errorf("SMART launch: %w", err)
	}
	s.mux.Lock()
	s.state.Mode = ModeSMARTEHR
	s.state.EHR = &session
	s.state.PatientID = session.PatientID
	s.state.PatientName = ehr.PatientName(*patient)
	s.mux.Unlock()
	slog.InfoContext(ctx, "Connected to EHR through SMART on FHIR",
		slog.String(logging.FieldIssuer, session.Issuer),
		slog.String(logging.FieldPatientID, session.PatientID))

	status, err := s.Sync(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Could not load observations from EHR", slog.String(logging.FieldError, err.Error()))
		current := s.Status()
		current.Message = "connected, but observations could not be loaded"
		return &current, nil
	}
	return status, nil
}

// DisconnectSMART drops the EHR session if it is the active one. Readings are kept locally.
func (s *Service) DisconnectSMART(ctx context.Context, sessionID string) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.state.Mode != ModeSMARTEHR || s.state.EHR == nil || s.state.EHR.SessionID != sessionID {
		return
	}
	s.state.Mode = ModeDisconnected
	s.state.EHR = nil
	s.state.PatientID = ""
	s.state.PatientName = ""
	slog.InfoContext(ctx, "EHR session ended, continuing in local mode")
}

// Sync pulls the patient's readings from the connected FHIR server or EHR, replacing previously synced readings.
// A failed fetch leaves the collection untouched.
func (s *Service) Sync(ctx context.Context) (*Status, error) {
	ctx, span := tracer.Start(ctx, "Sync")
	defer span.End()
	s.mux.Lock()
	bridge := s.bridgeLocked()
	s.mux.Unlock()
	if bridge == nil {
		return nil, otel.Error(span, ErrNotConnected)
	}
	span.SetAttributes(attribute.String(otel.SessionMode, string(s.Status().Mode)), attribute.String(otel.ReadingSource, string(bridge.Source())))
	remoteCtx, cancel := s.remoteContext(ctx)
	defer cancel()
	readings, err := bridge.FetchReadings(remoteCtx)
	if err != nil {
		return nil, otel.Error(span, fmt.Errorf("sync %s: %w", bridge.Source(), err))
	}
	span.SetAttributes(attribute.Int(otel.ReadingCount, len(readings)))

	s.mux.Lock()
	defer s.mux.Unlock()
	// The connection may have changed while fetching.
	if current := s.bridgeLocked(); current == nil || current.Source() != bridge.Source() || current.PatientID() != bridge.PatientID() {
		return nil, otel.Error(span, fmt.Errorf("sync %s: connection changed during sync", bridge.Source()))
	}
	stats, err := s.mergeLocked(ctx, readings, bridge.Source())
	if err != nil {
		return nil, otel.Error(span, err)
	}
	span.SetStatus(codes.Ok, "")
	status := s.statusLocked()
	status.Message = fmt.Sprintf("loaded %d readings", stats.Added)
	return &status, nil
}

// SyncFHIR syncs from the generic FHIR server.
func (s *Service) SyncFHIR(ctx context.Context) (*Status, error) {
	if s.Status().Mode != ModeFHIR {
		return nil, ErrNotConnected
	}
	return s.Sync(ctx)
}

// SyncSMART syncs from the EHR of the active SMART session.
func (s *Service) SyncSMART(ctx context.Context) (*Status, error) {
	if s.Status().Mode != ModeSMARTEHR {
		return nil, ErrNotConnected
	}
	return s.Sync(ctx)
}

// Export retrieves the patient's record from the EHR of the active SMART session.
func (s *Service) Export(ctx context.Context) (*ehr.ExportDocument, error) {
	s.mux.Lock()
	session := s.state.EHR
	mode := s.state.Mode
	s.mux.Unlock()
	if mode != ModeSMARTEHR || session == nil {
		return nil, ErrNotConnected
	}
	remoteCtx, cancel := s.remoteContext(ctx)
	defer cancel()
	return ehr.Export(remoteCtx, session.Client, session.PatientID, s.now())
}
