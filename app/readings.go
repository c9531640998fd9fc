package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/SanteonNL/bptrafficlight/ehr"
	"github.com/SanteonNL/bptrafficlight/importer"
	"github.com/SanteonNL/bptrafficlight/lib/coolfhir"
	"github.com/SanteonNL/bptrafficlight/lib/logging"
	"github.com/SanteonNL/bptrafficlight/lib/otel"
	"github.com/SanteonNL/bptrafficlight/reading"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	MinSystolic  = 60
	MaxSystolic  = 250
	MinDiastolic = 40
	MaxDiastolic = 150
)

// RemoteOutcome tells whether a submitted reading was written to the remote FHIR server or EHR.
type RemoteOutcome string

const (
	RemoteNone   RemoteOutcome = "none"
	RemoteSaved  RemoteOutcome = "saved"
	RemoteFailed RemoteOutcome = "failed"
)

type SubmitInput struct {
	Systolic  int    `json:"systolic"`
	Diastolic int    `json:"diastolic"`
	DateTime  string `json:"dateTime"`
}

type SubmitResult struct {
	Reading reading.Reading `json:"reading"`
	// Remote is "failed" when the reading could only be saved locally.
	Remote RemoteOutcome `json:"remote"`
}

func (i SubmitInput) validate() error {
	if i.Systolic == 0 || i.Diastolic == 0 {
		return coolfhir.BadRequest("systolic and diastolic are required")
	}
	if i.Systolic < MinSystolic || i.Systolic > MaxSystolic {
		return coolfhir.BadRequest("systolic must be between %d and %d mmHg", MinSystolic, MaxSystolic)
	}
	if i.Diastolic < MinDiastolic || i.Diastolic > MaxDiastolic {
		return coolfhir.BadRequest("diastolic must be between %d and %d mmHg", MinDiastolic, MaxDiastolic)
	}
	if strings.TrimSpace(i.DateTime) == "" {
		return coolfhir.BadRequest("dateTime is required")
	}
	return nil
}

// SubmitReading records a manually entered reading. When connected, the reading is written to the remote server first;
// it is always persisted locally, whatever the remote outcome. A reading the remote server did not accept is kept as a
// local reading, so the next sync (which replaces all remote readings) doesn't drop it.
func (s *Service) SubmitReading(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	dateTime, err := reading.NormalizeTime(strings.TrimSpace(input.DateTime), s.location)
	if err != nil {
		return nil, coolfhir.BadRequestError(err)
	}
	r := reading.Reading{
		Systolic:  input.Systolic,
		Diastolic: input.Diastolic,
		DateTime:  dateTime,
		Source:    reading.SourceLocal,
	}

	s.mux.Lock()
	if s.state.Readings.Contains(r.DateTime) {
		s.mux.Unlock()
		return nil, coolfhir.BadRequestError(reading.ErrDuplicateDateTime)
	}
	bridge := s.bridgeLocked()
	s.mux.Unlock()

	result := &SubmitResult{Remote: RemoteNone}
	if bridge != nil {
		ctx, span := tracer.Start(ctx, "SubmitReading", trace.WithAttributes(attribute.String(otel.ReadingSource, string(bridge.Source()))))
		remoteCtx, cancel := s.remoteContext(ctx)
		saved := bridge.Submit(remoteCtx, r)
		cancel()
		if saved {
			result.Remote = RemoteSaved
			r.Source = bridge.Source()
		} else {
			result.Remote = RemoteFailed
			span.SetAttributes(attribute.String(otel.ReadingSource, string(reading.SourceLocal)))
		}
		span.End()
	}
	result.Reading = r

	s.mux.Lock()
	defer s.mux.Unlock()
	readings, err := reading.Insert(s.state.Readings, r)
	if err != nil {
		return nil, coolfhir.BadRequestError(err)
	}
	if err := s.commitReadings(ctx, readings); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Reading submitted",
		slog.String(logging.FieldDateTime, r.DateTime),
		slog.String(logging.FieldSource, string(r.Source)),
		slog.String("remote", string(result.Remote)))
	return result, nil
}

// ImportResult reports the outcome of a smartwatch import.
type ImportResult struct {
	Imported         int `json:"imported"`
	Skipped          int `json:"skipped"`
	Invalid          int `json:"invalid"`
	Total            int `json:"total"`
	HeartRate        int `json:"heartRate"`
	OxygenSaturation int `json:"oxygenSaturation"`
}

// ImportSmartwatch parses a smartwatch export and appends its readings. Readings whose date/time already exists are skipped.
func (s *Service) ImportSmartwatch(ctx context.Context, raw []byte) (*ImportResult, error) {
	ctx, span := tracer.Start(ctx, "ImportSmartwatch", trace.WithAttributes(attribute.String(otel.ReadingSource, string(reading.SourceSmartwatch))))
	defer span.End()
	batch, err := importer.Parse(raw, s.location)
	if err != nil {
		return nil, otel.Error(span, coolfhir.BadRequestError(err))
	}
	span.SetAttributes(attribute.Int(otel.ReadingCount, len(batch.Readings)))
	s.mux.Lock()
	defer s.mux.Unlock()
	stats, err := s.mergeLocked(ctx, batch.Readings, reading.SourceSmartwatch)
	if err != nil {
		return nil, err
	}
	return &ImportResult{
		Imported:         stats.Added,
		Skipped:          stats.Skipped,
		Invalid:          batch.Invalid,
		Total:            batch.Total,
		HeartRate:        batch.HeartRate,
		OxygenSaturation: batch.OxygenSaturation,
	}, nil
}

// bridgeLocked returns the bridge for the current connection, or nil when not connected. Must be called with the lock held.
func (s *Service) bridgeLocked() *ehr.Bridge {
	switch s.state.Mode {
	case ModeSMARTEHR:
		if s.state.EHR != nil {
			return ehr.NewBridge(s.state.EHR.Client, s.state.PatientID, reading.SourceSMARTEHR, s.config.MaxPages)
		}
	case ModeFHIR:
		if s.fhirClient != nil && s.state.PatientID != "" {
			return ehr.NewBridge(s.fhirClient, s.state.PatientID, reading.SourceFHIR, s.config.MaxPages)
		}
	}
	return nil
}
