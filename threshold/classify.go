package threshold

// Level is a traffic light colour.
type Level string

const (
	LevelRed    Level = "red"
	LevelYellow Level = "yellow"
	LevelGreen  Level = "green"
)

// Levels lists all levels from most to least severe.
var Levels = []Level{LevelRed, LevelYellow, LevelGreen}

type Classification struct {
	Level       Level  `json:"level"`
	Label       string `json:"label"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
}

var classifications = map[Level]Classification{
	LevelRed: {
		Level:       LevelRed,
		Label:       "紅燈",
		Icon:        "🔴",
		Description: "血壓過高！建議立即就醫",
	},
	LevelYellow: {
		Level:       LevelYellow,
		Label:       "黃燈",
		Icon:        "🟡",
		Description: "血壓偏高，請注意監測",
	},
	LevelGreen: {
		Level:       LevelGreen,
		Label:       "綠燈",
		Icon:        "🟢",
		Description: "血壓正常，請維持",
	},
}

// Classify maps a reading onto a level. Red is checked before yellow, and cutoffs are inclusive.
func Classify(systolic, diastolic int, set Set) Classification {
	return classifications[ClassifyLevel(systolic, diastolic, set)]
}

func ClassifyLevel(systolic, diastolic int, set Set) Level {
	switch {
	case systolic >= set.Red.Systolic || diastolic >= set.Red.Diastolic:
		return LevelRed
	case systolic >= set.Yellow.Systolic || diastolic >= set.Yellow.Diastolic:
		return LevelYellow
	default:
		return LevelGreen
	}
}
