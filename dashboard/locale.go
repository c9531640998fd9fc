package dashboard

import (
	"time"

	"github.com/SanteonNL/bptrafficlight/threshold"
	"golang.org/x/text/language"
)

var (
	localeTraditionalChinese = language.MustParse("zh-TW")
	supportedLocales         = []language.Tag{localeTraditionalChinese, language.English, language.Dutch}
	localeMatcher            = language.NewMatcher(supportedLocales)
)

// Formatter renders timestamps and labels for one locale and time zone.
type Formatter struct {
	tag      language.Tag
	location *time.Location
}

// NewFormatter matches locale (a BCP-47 tag or Accept-Language value) against the supported locales.
// Unknown or empty locales fall back to zh-TW.
func NewFormatter(locale string, location *time.Location) Formatter {
	if location == nil {
		location = time.Local
	}
	tags, _, err := language.ParseAcceptLanguage(locale)
	if err != nil || len(tags) == 0 {
		return Formatter{tag: localeTraditionalChinese, location: location}
	}
	_, index, confidence := localeMatcher.Match(tags...)
	if confidence == language.No {
		index = 0
	}
	return Formatter{tag: supportedLocales[index], location: location}
}

func (f Formatter) Locale() string {
	return f.tag.String()
}

func (f Formatter) Location() *time.Location {
	return f.location
}

// DateTime formats a timestamp for the history table (date plus hours and minutes).
func (f Formatter) DateTime(t time.Time) string {
	t = t.In(f.location)
	switch f.tag {
	case language.English:
		return t.Format("01/02/2006, 03:04 PM")
	case language.Dutch:
		return t.Format("02-01-2006 15:04")
	default:
		meridiem := "上午"
		if t.Hour() >= 12 {
			meridiem = "下午"
		}
		return t.Format("2006/01/02 ") + meridiem + t.Format("03:04")
	}
}

var dutchMonths = []string{"jan", "feb", "mrt", "apr", "mei", "jun", "jul", "aug", "sep", "okt", "nov", "dec"}

// ShortDate formats a chart axis label (month and day).
func (f Formatter) ShortDate(t time.Time) string {
	t = t.In(f.location)
	switch f.tag {
	case language.English:
		return t.Format("Jan 2")
	case language.Dutch:
		return t.Format("2 ") + dutchMonths[t.Month()-1]
	default:
		return t.Format("1月2日")
	}
}

var translations = map[language.Tag]map[threshold.Level][2]string{
	language.English: {
		threshold.LevelRed:    {"Red", "Blood pressure too high! Seek medical attention"},
		threshold.LevelYellow: {"Yellow", "Blood pressure elevated, keep monitoring"},
		threshold.LevelGreen:  {"Green", "Blood pressure normal, keep it up"},
	},
	language.Dutch: {
		threshold.LevelRed:    {"Rood", "Bloeddruk te hoog! Neem contact op met een arts"},
		threshold.LevelYellow: {"Geel", "Bloeddruk verhoogd, blijf meten"},
		threshold.LevelGreen:  {"Groen", "Bloeddruk normaal, ga zo door"},
	},
}

// Localize replaces the label and description of a classification with the formatter's language.
func (f Formatter) Localize(c threshold.Classification) threshold.Classification {
	if texts, ok := translations[f.tag][c.Level]; ok {
		c.Label = texts[0]
		c.Description = texts[1]
	}
	return c
}

// SeriesNames returns the chart series names for systolic and diastolic pressure.
func (f Formatter) SeriesNames() (string, string) {
	switch f.tag {
	case language.English:
		return "Systolic", "Diastolic"
	case language.Dutch:
		return "Bovendruk", "Onderdruk"
	default:
		return "收縮壓", "舒張壓"
	}
}
