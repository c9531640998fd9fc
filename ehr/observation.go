package ehr

import (
	"math"
	"time"

	"github.com/SanteonNL/bptrafficlight/lib/coolfhir"
	"github.com/SanteonNL/bptrafficlight/lib/to"
	"github.com/SanteonNL/bptrafficlight/reading"
	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
)

const (
	// BloodPressurePanelCode is the LOINC code of the blood pressure panel.
	BloodPressurePanelCode = "85354-9"
	SystolicCode           = "8480-6"
	DiastolicCode          = "8462-4"
	VitalSignsCategory     = "vital-signs"
	PressureUnit           = "mm[Hg]"
)

// ObservationToReading extracts a reading from a blood pressure panel observation.
// It returns false if the observation lacks either component or a usable timestamp.
func ObservationToReading(observation fhir.Observation, source reading.Source) (reading.Reading, bool) {
	systolic, ok := componentValue(observation, SystolicCode)
	if !ok {
		return reading.Reading{}, false
	}
	diastolic, ok := componentValue(observation, DiastolicCode)
	if !ok {
		return reading.Reading{}, false
	}
	effective, ok := effectiveTime(observation)
	if !ok {
		return reading.Reading{}, false
	}
	dateTime, err := reading.NormalizeTime(effective, time.UTC)
	if err != nil {
		return reading.Reading{}, false
	}
	return reading.Reading{
		Systolic:  systolic,
		Diastolic: diastolic,
		DateTime:  dateTime,
		Source:    source,
	}, true
}

// ReadingToObservation builds the observation submitted to the EHR for a reading.
func ReadingToObservation(r reading.Reading, patientID string) fhir.Observation {
	return fhir.Observation{
		Status: fhir.ObservationStatusFinal,
		Category: []fhir.CodeableConcept{
			{
				Coding: []fhir.Coding{
					{
						System:  to.Ptr(coolfhir.ObservationCategorySystem),
						Code:    to.Ptr(VitalSignsCategory),
						Display: to.Ptr("Vital Signs"),
					},
				},
			},
		},
		Code: loincConcept(BloodPressurePanelCode, "Blood pressure panel with all children optional"),
		Subject: &fhir.Reference{
			Reference: to.Ptr("Patient/" + patientID),
		},
		EffectiveDateTime: to.Ptr(r.DateTime),
		Component: []fhir.ObservationComponent{
			{
				Code:          loincConcept(SystolicCode, "Systolic blood pressure"),
				ValueQuantity: pressure(r.Systolic),
			},
			{
				Code:          loincConcept(DiastolicCode, "Diastolic blood pressure"),
				ValueQuantity: pressure(r.Diastolic),
			},
		},
	}
}

func loincConcept(code, display string) fhir.CodeableConcept {
	return fhir.CodeableConcept{
		Coding: []fhir.Coding{
			{
				System:  to.Ptr(coolfhir.LOINCSystem),
				Code:    to.Ptr(code),
				Display: to.Ptr(display),
			},
		},
	}
}

func pressure(value int) *fhir.Quantity {
	v := float64(value)
	return &fhir.Quantity{
		Value:  &v,
		Unit:   to.Ptr("mmHg"),
		System: to.Ptr(coolfhir.UCUMSystem),
		Code:   to.Ptr(PressureUnit),
	}
}

// componentValue returns the rounded quantity of the component coded with the given LOINC code.
func componentValue(observation fhir.Observation, code string) (int, bool) {
	for _, component := range observation.Component {
		if !hasCoding(component.Code, code) {
			continue
		}
		return quantityValue(component.ValueQuantity)
	}
	return 0, false
}

func quantityValue(quantity *fhir.Quantity) (int, bool) {
	if quantity == nil || quantity.Value == nil {
		return 0, false
	}
	value := *quantity.Value
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return int(math.Round(value)), true
}

func hasCoding(concept fhir.CodeableConcept, code string) bool {
	for _, coding := range concept.Coding {
		if to.EmptyString(coding.Code) == code {
			return true
		}
	}
	return false
}

// effectiveTime returns effectiveDateTime, falling back to the start of effectivePeriod.
func effectiveTime(observation fhir.Observation) (string, bool) {
	if observation.EffectiveDateTime != nil && *observation.EffectiveDateTime != "" {
		return *observation.EffectiveDateTime, true
	}
	if observation.EffectivePeriod != nil && observation.EffectivePeriod.Start != nil && *observation.EffectivePeriod.Start != "" {
		return *observation.EffectivePeriod.Start, true
	}
	return "", false
}
