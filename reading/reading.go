package reading

import (
	"errors"
	"fmt"
	"time"
)

// Source identifies where a reading came from.
type Source string

const (
	SourceLocal      Source = "local"
	SourceFHIR       Source = "fhir"
	SourceSMARTEHR   Source = "smart-ehr"
	SourceDemo       Source = "demo"
	SourceSmartwatch Source = "smartwatch"
)

// IsRemote reports whether readings of this source are owned by a remote FHIR server and are replaced in full on every sync.
func (s Source) IsRemote() bool {
	return s == SourceFHIR || s == SourceSMARTEHR
}

func (s Source) Valid() bool {
	switch s {
	case SourceLocal, SourceFHIR, SourceSMARTEHR, SourceDemo, SourceSmartwatch:
		return true
	}
	return false
}

// TimeLayout is the canonical representation of a reading's measurement instant.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// LocalTimeLayout is the timestamp layout of smartwatch exports, without zone information.
const LocalTimeLayout = "2006-01-02 15:04:05"

var ErrDuplicateDateTime = errors.New("a reading with this date/time already exists")

// Reading is a single blood-pressure measurement.
type Reading struct {
	Systolic  int    `json:"systolic"`
	Diastolic int    `json:"diastolic"`
	DateTime  string `json:"dateTime"`
	Source    Source `json:"source"`
}

// Complete reports whether the reading carries all fields needed to enter the canonical collection.
func (r Reading) Complete() bool {
	return r.Systolic > 0 && r.Diastolic > 0 && r.DateTime != ""
}

// Time returns the parsed measurement instant.
func (r Reading) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, r.DateTime)
}

// FormatTime renders t in the canonical form.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

var normalizeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	LocalTimeLayout,
	"2006-01-02",
	"2006-01",
	"2006",
}

// NormalizeTime parses a FHIR dateTime (or a local "YYYY-MM-DD HH:MM:SS" timestamp) and returns its canonical form.
// Values without an offset are interpreted in loc.
func NormalizeTime(value string, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range normalizeLayouts {
		var t time.Time
		var err error
		if layout == time.RFC3339Nano {
			t, err = time.Parse(layout, value)
		} else {
			t, err = time.ParseInLocation(layout, value, loc)
		}
		if err == nil {
			return FormatTime(t), nil
		}
	}
	return "", fmt.Errorf("invalid date/time: %q", value)
}

// ParseLocalTime accepts only full timestamps: LocalTimeLayout interpreted in loc, or RFC 3339 with an offset.
// Unlike NormalizeTime it rejects partial dates.
func ParseLocalTime(value string, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation(LocalTimeLayout, value, loc); err == nil {
		return FormatTime(t), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return FormatTime(t), nil
	}
	return "", fmt.Errorf("invalid timestamp: %q", value)
}
