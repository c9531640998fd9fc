package ehr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/SanteonNL/bptrafficlight/lib/coolfhir"
	fhirclient "github.com/SanteonNL/go-fhir-client"
	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
)

// ExportDocument bundles the patient's record as retrieved from the EHR. Resources are kept verbatim.
type ExportDocument struct {
	ExportedAt        string            `json:"exportedAt"`
	Patient           json.RawMessage   `json:"patient"`
	Conditions        []json.RawMessage `json:"conditions"`
	Medications       []json.RawMessage `json:"medications"`
	DiagnosticReports []json.RawMessage `json:"diagnosticReports"`
	VitalSigns        []json.RawMessage `json:"vitalSigns"`
}

type exportSearch struct {
	resourceType string
	query        url.Values
	target       *[]json.RawMessage
}

// Export retrieves the patient's demographics, conditions, medications, diagnostic reports and vital signs.
func Export(ctx context.Context, client fhirclient.Client, patientID string, now time.Time) (*ExportDocument, error) {
	var patient json.RawMessage
	if err := client.ReadWithContext(ctx, "Patient/"+patientID, &patient); err != nil {
		return nil, fmt.Errorf("read patient: %w", err)
	}
	doc := &ExportDocument{
		ExportedAt:        now.UTC().Format(time.RFC3339),
		Patient:           patient,
		Conditions:        []json.RawMessage{},
		Medications:       []json.RawMessage{},
		DiagnosticReports: []json.RawMessage{},
		VitalSigns:        []json.RawMessage{},
	}
	searches := []exportSearch{
		{resourceType: "Condition", query: url.Values{"patient": {patientID}}, target: &doc.Conditions},
		{resourceType: "MedicationRequest", query: url.Values{"patient": {patientID}}, target: &doc.Medications},
		{resourceType: "DiagnosticReport", query: url.Values{"patient": {patientID}}, target: &doc.DiagnosticReports},
		{resourceType: "Observation", query: url.Values{"patient": {patientID}, "category": {VitalSignsCategory}}, target: &doc.VitalSigns},
	}
	for _, search := range searches {
		var bundle fhir.Bundle
		if err := client.SearchWithContext(ctx, search.resourceType, search.query, &bundle); err != nil {
			return nil, fmt.Errorf("search %s: %w", search.resourceType, err)
		}
		if err := coolfhir.ResourcesInBundle(&bundle, coolfhir.EntryIsOfType(search.resourceType), search.target); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", search.resourceType, err)
		}
	}
	return doc, nil
}
