package dashboard

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/SanteonNL/bptrafficlight/reading"
	"github.com/SanteonNL/bptrafficlight/threshold"
)

const (
	HistoryLimit = 50
	ChartLimit   = 30
)

// Latest is the status tile: the classification of the most recent reading.
type Latest struct {
	HasData        bool                      `json:"hasData"`
	Reading        *reading.Reading          `json:"reading,omitempty"`
	Classification *threshold.Classification `json:"classification,omitempty"`
	Time           string                    `json:"time,omitempty"`
}

type LevelCount struct {
	Count   int `json:"count"`
	Percent int `json:"percent"`
}

// Distribution counts readings per level across the whole collection.
type Distribution struct {
	Total  int        `json:"total"`
	Red    LevelCount `json:"red"`
	Yellow LevelCount `json:"yellow"`
	Green  LevelCount `json:"green"`
}

type HistoryEntry struct {
	reading.Reading
	Classification threshold.Classification `json:"classification"`
	Time           string                   `json:"time"`
}

// View bundles everything the dashboard shows.
type View struct {
	Latest       Latest         `json:"latest"`
	Distribution Distribution   `json:"distribution"`
	History      []HistoryEntry `json:"history"`
	Chart        ChartSeries    `json:"chart"`
	Thresholds   threshold.Set  `json:"thresholds"`
	Locale       string         `json:"locale"`
}

// Projector derives the dashboard views from the canonical collection.
type Projector struct {
	formatter Formatter
	renderer  ChartRenderer
	// mux guards rendered
	mux      sync.Mutex
	rendered bool
}

func NewProjector(formatter Formatter, renderer ChartRenderer) *Projector {
	if renderer == nil {
		renderer = NopChartRenderer{}
	}
	return &Projector{
		formatter: formatter,
		renderer:  renderer,
	}
}

func (p *Projector) Formatter() Formatter {
	return p.formatter
}

// Project computes all views. It does not touch the chart renderer.
func (p *Projector) Project(collection reading.Collection, set threshold.Set) View {
	return View{
		Latest:       p.Latest(collection, set),
		Distribution: p.Distribution(collection, set),
		History:      p.History(collection, set),
		Chart:        p.Chart(collection, set),
		Thresholds:   set,
		Locale:       p.formatter.Locale(),
	}
}

func (p *Projector) Latest(collection reading.Collection, set threshold.Set) Latest {
	if len(collection) == 0 {
		return Latest{}
	}
	latest := collection[0]
	classification := p.classify(latest, set)
	return Latest{
		HasData:        true,
		Reading:        &latest,
		Classification: &classification,
		Time:           p.formatTime(latest, p.formatter.DateTime),
	}
}

func (p *Projector) Distribution(collection reading.Collection, set threshold.Set) Distribution {
	counts := make(map[threshold.Level]int, len(threshold.Levels))
	for _, r := range collection {
		counts[threshold.ClassifyLevel(r.Systolic, r.Diastolic, set)]++
	}
	total := len(collection)
	levelCount := func(level threshold.Level) LevelCount {
		result := LevelCount{Count: counts[level]}
		if total > 0 {
			result.Percent = int(math.Round(float64(result.Count) / float64(total) * 100))
		}
		return result
	}
	return Distribution{
		Total:  total,
		Red:    levelCount(threshold.LevelRed),
		Yellow: levelCount(threshold.LevelYellow),
		Green:  levelCount(threshold.LevelGreen),
	}
}

// History returns the most recent readings, newest first.
func (p *Projector) History(collection reading.Collection, set threshold.Set) []HistoryEntry {
	return p.Classified(collection[:min(len(collection), HistoryLimit)], set)
}

// Classified returns every reading of the collection with its classification, in collection order.
func (p *Projector) Classified(collection reading.Collection, set threshold.Set) []HistoryEntry {
	result := make([]HistoryEntry, 0, len(collection))
	for _, r := range collection {
		result = append(result, HistoryEntry{
			Reading:        r,
			Classification: p.classify(r, set),
			Time:           p.formatTime(r, p.formatter.DateTime),
		})
	}
	return result
}

// Chart returns the most recent readings as parallel series, oldest first.
func (p *Projector) Chart(collection reading.Collection, set threshold.Set) ChartSeries {
	recent := slices.Clone(collection[:min(len(collection), ChartLimit)])
	slices.Reverse(recent)
	systolicName, diastolicName := p.formatter.SeriesNames()
	series := ChartSeries{
		Labels:         make([]string, 0, len(recent)),
		Systolic:       make([]int, 0, len(recent)),
		Diastolic:      make([]int, 0, len(recent)),
		SystolicName:   systolicName,
		DiastolicName:  diastolicName,
		RedSystolic:    set.Red.Systolic,
		YellowSystolic: set.Yellow.Systolic,
	}
	for _, r := range recent {
		series.Labels = append(series.Labels, p.formatTime(r, p.formatter.ShortDate))
		series.Systolic = append(series.Systolic, r.Systolic)
		series.Diastolic = append(series.Diastolic, r.Diastolic)
	}
	return series
}

// RenderChart rebuilds the chart, discarding the previous rendering first.
func (p *Projector) RenderChart(collection reading.Collection, set threshold.Set) error {
	series := p.Chart(collection, set)
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.rendered {
		p.renderer.Discard()
		p.rendered = false
	}
	if err := p.renderer.Render(series); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	p.rendered = true
	return nil
}

func (p *Projector) classify(r reading.Reading, set threshold.Set) threshold.Classification {
	return p.formatter.Localize(threshold.Classify(r.Systolic, r.Diastolic, set))
}

func (p *Projector) formatTime(r reading.Reading, format func(time.Time) string) string {
	t, err := r.Time()
	if err != nil {
		return r.DateTime
	}
	return format(t)
}
