package reading

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTime(t *testing.T) {
	amsterdam, err := time.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)
	tests := []struct {
		name     string
		value    string
		loc      *time.Location
		expected string
		wantErr  bool
	}{
		{name: "canonical", value: "2024-10-16T10:15:00.000Z", expected: "2024-10-16T10:15:00.000Z"},
		{name: "offset", value: "2024-10-16T12:15:00+02:00", expected: "2024-10-16T10:15:00.000Z"},
		{name: "nanoseconds are truncated to milliseconds", value: "2024-10-16T10:15:00.123456Z", expected: "2024-10-16T10:15:00.123Z"},
		{name: "local timestamp in UTC", value: "2024-10-16 10:15:00", expected: "2024-10-16T10:15:00.000Z"},
		{name: "local timestamp in zone", value: "2024-10-16 10:15:00", loc: amsterdam, expected: "2024-10-16T08:15:00.000Z"},
		{name: "date only", value: "2024-10-16", expected: "2024-10-16T00:00:00.000Z"},
		{name: "year only", value: "2024", expected: "2024-01-01T00:00:00.000Z"},
		{name: "garbage", value: "yesterday", wantErr: true},
		{name: "empty", value: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := NormalizeTime(tt.value, tt.loc)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, actual)
		})
	}
}

func TestParseLocalTime(t *testing.T) {
	taipei, err := time.LoadLocation("Asia/Taipei")
	require.NoError(t, err)

	actual, err := ParseLocalTime("2024-10-16 10:15:00", taipei)
	require.NoError(t, err)
	assert.Equal(t, "2024-10-16T02:15:00.000Z", actual)

	actual, err = ParseLocalTime("2024-10-16T12:15:00+02:00", taipei)
	require.NoError(t, err)
	assert.Equal(t, "2024-10-16T10:15:00.000Z", actual)

	for _, value := range []string{"2024", "2024-10", "2024-10-16", "2024-10-16T10:15", ""} {
		_, err := ParseLocalTime(value, taipei)
		assert.Error(t, err, value)
	}
}

func TestSource(t *testing.T) {
	assert.True(t, SourceFHIR.IsRemote())
	assert.True(t, SourceSMARTEHR.IsRemote())
	assert.False(t, SourceSmartwatch.IsRemote())
	assert.False(t, SourceLocal.IsRemote())
	assert.True(t, SourceDemo.Valid())
	assert.False(t, Source("fitbit").Valid())
}
