package app

import (
	"github.com/SanteonNL/bptrafficlight/reading"
	"github.com/SanteonNL/bptrafficlight/threshold"
	fhirclient "github.com/SanteonNL/go-fhir-client"
)

// Mode is the connection mode of the application.
type Mode string

const (
	ModeDisconnected Mode = "disconnected"
	ModeDemo         Mode = "demo"
	ModeFHIR         Mode = "fhir"
	ModeSMARTEHR     Mode = "smart-ehr"
)

// EHRSession is an authenticated SMART on FHIR session, scoped to one patient.
// It is owned by the SMART launch (and its session manager); the application only references it.
type EHRSession struct {
	// SessionID is the ID of the user session holding the handle.
	SessionID string
	Issuer    string
	PatientID string
	Client    fhirclient.Client
}

// State is the complete application state. Readings, thresholds and lock mirror what is persisted;
// everything else is rebuilt on connect.
type State struct {
	Mode        Mode
	PatientID   string
	PatientName string
	EHR         *EHRSession
	Readings    reading.Collection
	Thresholds  threshold.Set
	Lock        threshold.Lock
}

// Status describes the connection for display.
type Status struct {
	Mode        Mode   `json:"mode"`
	PatientID   string `json:"patientId,omitempty"`
	PatientName string `json:"patientName,omitempty"`
	Issuer      string `json:"issuer,omitempty"`
	FHIRVersion string `json:"fhirVersion,omitempty"`
	Readings    int    `json:"readings"`
	Locked      bool   `json:"locked"`
	// Message carries a human readable explanation, e.g. why the application fell back to demo mode.
	Message string `json:"message,omitempty"`
}

func (s State) status() Status {
	result := Status{
		Mode:        s.Mode,
		PatientID:   s.PatientID,
		PatientName: s.PatientName,
		Readings:    len(s.Readings),
		Locked:      s.Lock.Locked,
	}
	if s.EHR != nil {
		result.Issuer = s.EHR.Issuer
	}
	return result
}
