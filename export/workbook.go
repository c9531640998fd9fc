package export

import (
	"fmt"
	"time"

	"github.com/SanteonNL/bptrafficlight/dashboard"
	"github.com/SanteonNL/bptrafficlight/threshold"
	"github.com/xuri/excelize/v2"
)

const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	historySheet = "History"
	summarySheet = "Summary"
)

var historyHeader = []string{"Date/Time", "Systolic (mmHg)", "Diastolic (mmHg)", "Level", "Source"}

var levelColors = map[threshold.Level]string{
	threshold.LevelRed:    "#F8D7DA",
	threshold.LevelYellow: "#FFF3CD",
	threshold.LevelGreen:  "#D4EDDA",
}

// Report is the content of a history workbook.
type Report struct {
	Entries      []dashboard.HistoryEntry
	Distribution dashboard.Distribution
	Thresholds   threshold.Set
	GeneratedAt  time.Time
}

// Filename returns the download file name for a report generated at t.
func Filename(t time.Time) string {
	return "bp-history-" + t.Format("20060102") + ".xlsx"
}

// HistoryWorkbook renders the report as an Excel workbook: one row per reading, colored by level, plus a summary sheet.
func HistoryWorkbook(report Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(historySheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	levelStyles := make(map[threshold.Level]int, len(levelColors))
	for level, color := range levelColors {
		style, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s style: %w", level, err)
		}
		levelStyles[level] = style
	}

	if err := writeRow(f, historySheet, 1, headerStyle, toAny(historyHeader)...); err != nil {
		return nil, err
	}
	for i, entry := range report.Entries {
		row := i + 2
		if err := writeRow(f, historySheet, row, levelStyles[entry.Classification.Level],
			entry.Time, entry.Systolic, entry.Diastolic, entry.Classification.Label, string(entry.Source)); err != nil {
			return nil, err
		}
	}
	for col, width := range []float64{22, 16, 16, 12, 14} {
		name, _ := excelize.ColumnNumberToName(col + 1)
		if err := f.SetColWidth(historySheet, name, name, width); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}
	if err := f.SetPanes(historySheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, fmt.Errorf("failed to freeze header: %w", err)
	}

	distribution := report.Distribution
	summary := [][]any{
		{"Generated at", report.GeneratedAt.UTC().Format(time.RFC3339)},
		{"Readings", distribution.Total},
		{"Red", distribution.Red.Count, fmt.Sprintf("%d%%", distribution.Red.Percent)},
		{"Yellow", distribution.Yellow.Count, fmt.Sprintf("%d%%", distribution.Yellow.Percent)},
		{"Green", distribution.Green.Count, fmt.Sprintf("%d%%", distribution.Green.Percent)},
		{"Red threshold", fmt.Sprintf("%d/%d", report.Thresholds.Red.Systolic, report.Thresholds.Red.Diastolic)},
		{"Yellow threshold", fmt.Sprintf("%d/%d", report.Thresholds.Yellow.Systolic, report.Thresholds.Yellow.Diastolic)},
	}
	for i, values := range summary {
		if err := writeRow(f, summarySheet, i+1, 0, values...); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(summarySheet, "A", "A", 18); err != nil {
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, style int, values ...any) error {
	for col, value := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return fmt.Errorf("failed to set cell %s: %w", cell, err)
		}
		if style != 0 {
			if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
				return fmt.Errorf("failed to set style of cell %s: %w", cell, err)
			}
		}
	}
	return nil
}

func toAny(values []string) []any {
	result := make([]any, len(values))
	for i, v := range values {
		result[i] = v
	}
	return result
}
