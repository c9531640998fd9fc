package ehr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/SanteonNL/bptrafficlight/lib/coolfhir"
	"github.com/SanteonNL/bptrafficlight/lib/logging"
	"github.com/SanteonNL/bptrafficlight/reading"
	fhirclient "github.com/SanteonNL/go-fhir-client"
	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
)

const (
	// SMARTPageSize is the number of observations requested per page through an authenticated SMART session.
	SMARTPageSize = 100
	// FHIRPageSize is the number of observations requested per page from a generic FHIR server.
	FHIRPageSize = 50
)

var ErrPatientNotFound = errors.New("no patient found on FHIR server")

// Bridge reads and writes blood pressure observations of one patient.
type Bridge struct {
	client    fhirclient.Client
	patientID string
	source    reading.Source
	pageSize  int
	maxPages  int
}

// NewBridge creates a bridge for the given patient. Source must be fhir or smart-ehr; it determines the page size.
// maxPages bounds how many search result pages are followed, values below 1 mean 1.
func NewBridge(client fhirclient.Client, patientID string, source reading.Source, maxPages int) *Bridge {
	pageSize := FHIRPageSize
	if source == reading.SourceSMARTEHR {
		pageSize = SMARTPageSize
	}
	return &Bridge{
		client:    client,
		patientID: patientID,
		source:    source,
		pageSize:  pageSize,
		maxPages:  max(1, maxPages),
	}
}

func (b *Bridge) PatientID() string {
	return b.patientID
}

func (b *Bridge) Source() reading.Source {
	return b.source
}

// FetchReadings retrieves the patient's blood pressure observations, newest first.
// Observations that can't be mapped to a reading are skipped.
func (b *Bridge) FetchReadings(ctx context.Context) (reading.Collection, error) {
	query := url.Values{
		"patient": []string{b.patientID},
		"code":    []string{BloodPressurePanelCode},
		"_sort":   []string{"-date"},
		"_count":  []string{strconv.Itoa(b.pageSize)},
	}
	var bundle fhir.Bundle
	if err := b.client.SearchWithContext(ctx, "Observation", query, &bundle); err != nil {
		return nil, fmt.Errorf("search observations: %w", err)
	}
	result := reading.Collection{}
	var skipped int
	isObservation := coolfhir.EntryIsOfType("Observation")
	for page := 1; ; page++ {
		for _, entry := range bundle.Entry {
			if !isObservation(entry) {
				continue
			}
			// Decoded per entry: one malformed observation must not drop the page.
			var observation fhir.Observation
			if err := json.Unmarshal(entry.Resource, &observation); err != nil {
				skipped++
				continue
			}
			r, ok := ObservationToReading(observation, b.source)
			if !ok {
				skipped++
				continue
			}
			result = append(result, r)
		}
		next := coolfhir.NextLink(bundle)
		if next == "" || page >= b.maxPages {
			break
		}
		nextURL, err := url.Parse(next)
		if err != nil {
			return nil, fmt.Errorf("invalid next link %q: %w", next, err)
		}
		bundle = fhir.Bundle{}
		if err := b.client.ReadWithContext(ctx, "", &bundle, fhirclient.AtUrl(nextURL)); err != nil {
			return nil, fmt.Errorf("read observations page %d: %w", page+1, err)
		}
	}
	if skipped > 0 {
		slog.DebugContext(ctx, "Skipped malformed observations or observations without both blood pressure components",
			slog.Int(logging.FieldCount, skipped),
			slog.String(logging.FieldPatientID, b.patientID))
	}
	return result, nil
}

// Submit creates an observation for the reading. Failures are logged and reported as false.
func (b *Bridge) Submit(ctx context.Context, r reading.Reading) bool {
	observation := ReadingToObservation(r, b.patientID)
	var created fhir.Observation
	if err := b.client.CreateWithContext(ctx, observation, &created); err != nil {
		slog.WarnContext(ctx, "Failed to save reading to EHR",
			slog.String(logging.FieldError, err.Error()),
			slog.String(logging.FieldPatientID, b.patientID),
			slog.String(logging.FieldDateTime, r.DateTime),
			slog.String(logging.FieldSource, string(b.source)))
		return false
	}
	return true
}

// ReadPatient reads the bridge's patient.
func (b *Bridge) ReadPatient(ctx context.Context) (*fhir.Patient, error) {
	var patient fhir.Patient
	if err := b.client.ReadWithContext(ctx, "Patient/"+b.patientID, &patient); err != nil {
		return nil, fmt.Errorf("read patient: %w", err)
	}
	return &patient, nil
}

// Probe checks that the FHIR server is reachable, returning its FHIR version.
func Probe(ctx context.Context, client fhirclient.Client) (string, error) {
	var capabilityStatement fhir.CapabilityStatement
	if err := client.ReadWithContext(ctx, "metadata", &capabilityStatement); err != nil {
		return "", fmt.Errorf("read metadata: %w", err)
	}
	return capabilityStatement.FhirVersion.Code(), nil
}

// FirstPatient returns the first patient the server lists.
func FirstPatient(ctx context.Context, client fhirclient.Client) (*fhir.Patient, error) {
	var bundle fhir.Bundle
	if err := client.SearchWithContext(ctx, "Patient", url.Values{"_count": []string{"1"}}, &bundle); err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	var patient fhir.Patient
	if err := coolfhir.ResourceInBundle(&bundle, coolfhir.EntryIsOfType("Patient"), &patient); err != nil {
		if errors.Is(err, coolfhir.ErrEntryNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	if patient.Id == nil || *patient.Id == "" {
		return nil, ErrPatientNotFound
	}
	return &patient, nil
}

const UnknownPatientName = "Unknown Patient"

// PatientName returns the display name of the patient's first name entry.
func PatientName(patient fhir.Patient) string {
	if len(patient.Name) == 0 {
		return UnknownPatientName
	}
	if name := coolfhir.FormatHumanName(patient.Name[0]); name != "" {
		return name
	}
	return UnknownPatientName
}
