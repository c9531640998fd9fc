package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/SanteonNL/bptrafficlight/dashboard"
	"github.com/SanteonNL/bptrafficlight/reading"
	"github.com/SanteonNL/bptrafficlight/threshold"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestHistoryWorkbook(t *testing.T) {
	collection := reading.Collection{
		{Systolic: 165, Diastolic: 85, DateTime: "2024-10-16T10:15:00.000Z", Source: reading.SourceFHIR},
		{Systolic: 120, Diastolic: 80, DateTime: "2024-10-15T10:15:00.000Z", Source: reading.SourceLocal},
	}
	projector := dashboard.NewProjector(dashboard.NewFormatter("en", time.UTC), nil)
	set := threshold.DefaultSet()
	generatedAt := time.Date(2024, 10, 20, 12, 0, 0, 0, time.UTC)

	data, err := HistoryWorkbook(Report{
		Entries:      projector.Classified(collection, set),
		Distribution: projector.Distribution(collection, set),
		Thresholds:   set,
		GeneratedAt:  generatedAt,
	})

	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{historySheet, summarySheet}, f.GetSheetList())

	rows, err := f.GetRows(historySheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, historyHeader, rows[0])
	assert.Equal(t, []string{"10/16/2024, 10:15 AM", "165", "85", "Red", "fhir"}, rows[1])
	assert.Equal(t, []string{"10/15/2024, 10:15 AM", "120", "80", "Green", "local"}, rows[2])

	summary, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"Generated at", "2024-10-20T12:00:00Z"}, summary[0])
	assert.Equal(t, []string{"Readings", "2"}, summary[1])
	assert.Equal(t, []string{"Red", "1", "50%"}, summary[2])
	assert.Equal(t, []string{"Red threshold", "160/100"}, summary[5])
}

func TestHistoryWorkbook_Empty(t *testing.T) {
	data, err := HistoryWorkbook(Report{Thresholds: threshold.DefaultSet()})

	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(historySheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "bp-history-20241020.xlsx", Filename(time.Date(2024, 10, 20, 23, 0, 0, 0, time.UTC)))
}
