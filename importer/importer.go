package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/SanteonNL/bptrafficlight/reading"
)

var (
	// ErrInvalidFormat is returned when the document has no top-level blood-pressure array.
	ErrInvalidFormat = errors.New("invalid smartwatch export: missing \"bp\" array")
	// ErrNoReadings is returned when not a single record in the document is usable.
	ErrNoReadings = errors.New("smartwatch export contains no valid blood-pressure records")
	ErrTooLarge   = errors.New("smartwatch export exceeds the maximum size")
)

// Batch is the validated content of a smartwatch export.
type Batch struct {
	Readings reading.Collection
	// Total is the number of records in the bp array.
	Total int
	// Invalid is the number of records lacking a time, systolic or diastolic value.
	Invalid int
	// HeartRate and OxygenSaturation are the lengths of sibling series that are reported but not imported.
	HeartRate        int
	OxygenSaturation int
}

type export struct {
	BP   *[]json.RawMessage `json:"bp"`
	HB   []json.RawMessage  `json:"hb"`
	SpO2 []json.RawMessage  `json:"spo2"`
}

type record struct {
	Time json.RawMessage `json:"time"`
	Sys  json.RawMessage `json:"sys"`
	Dia  json.RawMessage `json:"dia"`
}

type readResult struct {
	data []byte
	err  error
}

// ReadAll reads an uploaded file without blocking the caller beyond ctx. At most limit bytes are accepted.
func ReadAll(ctx context.Context, r io.Reader, limit int64) ([]byte, error) {
	done := make(chan readResult, 1)
	go func() {
		data, err := io.ReadAll(io.LimitReader(r, limit+1))
		if err == nil && int64(len(data)) > limit {
			err = ErrTooLarge
		}
		done <- readResult{data: data, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-done:
		if result.err != nil {
			return nil, fmt.Errorf("read smartwatch export: %w", result.err)
		}
		return result.data, nil
	}
}

// Parse validates a smartwatch export. Local timestamps are interpreted in loc.
func Parse(raw []byte, loc *time.Location) (*Batch, error) {
	var doc export
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	if doc.BP == nil {
		return nil, ErrInvalidFormat
	}
	batch := &Batch{
		Total:            len(*doc.BP),
		HeartRate:        len(doc.HB),
		OxygenSaturation: len(doc.SpO2),
	}
	for _, raw := range *doc.BP {
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			batch.Invalid++
			continue
		}
		r, ok := rec.toReading(loc)
		if !ok {
			batch.Invalid++
			continue
		}
		batch.Readings = append(batch.Readings, r)
	}
	if len(batch.Readings) == 0 {
		return batch, ErrNoReadings
	}
	return batch, nil
}

func (rec record) toReading(loc *time.Location) (reading.Reading, bool) {
	var timeValue string
	if err := json.Unmarshal(rec.Time, &timeValue); err != nil || strings.TrimSpace(timeValue) == "" {
		return reading.Reading{}, false
	}
	dateTime, err := reading.ParseLocalTime(strings.TrimSpace(timeValue), loc)
	if err != nil {
		return reading.Reading{}, false
	}
	systolic, ok := parseNumber(rec.Sys)
	if !ok {
		return reading.Reading{}, false
	}
	diastolic, ok := parseNumber(rec.Dia)
	if !ok {
		return reading.Reading{}, false
	}
	return reading.Reading{
		Systolic:  systolic,
		Diastolic: diastolic,
		DateTime:  dateTime,
		Source:    reading.SourceSmartwatch,
	}, true
}

// parseNumber accepts JSON numbers and numeric strings. Fractions are truncated.
func parseNumber(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var number json.Number
	if err := json.Unmarshal(raw, &number); err != nil {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, false
		}
		number = json.Number(strings.TrimSpace(text))
	}
	value, err := strconv.ParseFloat(number.String(), 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return int(value), true
}
