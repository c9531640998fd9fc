//go:generate mockgen -destination=./chart_mock.go -package=dashboard -source=chart.go
package dashboard

// ChartSeries is the time series handed to the chart renderer, oldest reading first.
type ChartSeries struct {
	Labels         []string `json:"labels"`
	Systolic       []int    `json:"systolic"`
	Diastolic      []int    `json:"diastolic"`
	SystolicName   string   `json:"systolicName"`
	DiastolicName  string   `json:"diastolicName"`
	RedSystolic    int      `json:"redSystolic"`
	YellowSystolic int      `json:"yellowSystolic"`
}

// ChartRenderer draws a chart. At most one rendering is live: Discard destroys the previous one.
type ChartRenderer interface {
	Render(series ChartSeries) error
	Discard()
}

// NopChartRenderer is used when no chart is attached (e.g. the JSON API serves series to the client instead).
type NopChartRenderer struct{}

func (NopChartRenderer) Render(ChartSeries) error { return nil }

func (NopChartRenderer) Discard() {}
