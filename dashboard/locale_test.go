package dashboard

import (
	"testing"
	"time"

	"github.com/SanteonNL/bptrafficlight/threshold"
	"github.com/stretchr/testify/assert"
)

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		locale   string
		expected string
	}{
		{"zh-TW", "zh-TW"},
		{"en-US", "en"},
		{"nl-NL,nl;q=0.9,en;q=0.8", "nl"},
		{"", "zh-TW"},
		{"not a locale!", "zh-TW"},
	}
	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			assert.Equal(t, tt.expected, NewFormatter(tt.locale, time.UTC).Locale())
		})
	}
}

func TestFormatter_DateTime(t *testing.T) {
	instant := time.Date(2024, 10, 16, 14, 5, 0, 0, time.UTC)
	amsterdam, _ := time.LoadLocation("Europe/Amsterdam")

	assert.Equal(t, "2024/10/16 下午02:05", NewFormatter("zh-TW", time.UTC).DateTime(instant))
	assert.Equal(t, "10/16/2024, 02:05 PM", NewFormatter("en", time.UTC).DateTime(instant))
	assert.Equal(t, "16-10-2024 16:05", NewFormatter("nl", amsterdam).DateTime(instant))
}

func TestFormatter_ShortDate(t *testing.T) {
	instant := time.Date(2024, 10, 16, 14, 5, 0, 0, time.UTC)

	assert.Equal(t, "10月16日", NewFormatter("zh-TW", time.UTC).ShortDate(instant))
	assert.Equal(t, "Oct 16", NewFormatter("en", time.UTC).ShortDate(instant))
	assert.Equal(t, "16 okt", NewFormatter("nl", time.UTC).ShortDate(instant))
}

func TestFormatter_Localize(t *testing.T) {
	classification := threshold.Classify(150, 80, threshold.DefaultSet())

	assert.Equal(t, "黃燈", NewFormatter("zh-TW", time.UTC).Localize(classification).Label)
	assert.Equal(t, "Geel", NewFormatter("nl", time.UTC).Localize(classification).Label)
	assert.Equal(t, threshold.LevelYellow, NewFormatter("nl", time.UTC).Localize(classification).Level)
}
