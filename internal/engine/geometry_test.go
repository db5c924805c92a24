package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAngleDifference(t *testing.T) {
	cases := []struct {
		a, b, want float64
	}{
		{0, 0, 0},
		{350, 0, 10},
		{0, 350, 10},
		{0, 180, 180},
		{90, 270, 180},
		{10, 350, 20},
		{720, 0, 0},
		{45, 45, 0},
		{359, 1, 2},
	}
	for _, tc := range cases {
		got := AngleDifference(tc.a, tc.b)
		assert.InDelta(t, tc.want, got, 1e-9, "AngleDifference(%v, %v)", tc.a, tc.b)
		assert.Equal(t, got, AngleDifference(tc.b, tc.a), "must be symmetric")
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 180.0)
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("22:30:15")
	require.NoError(t, err)
	assert.Equal(t, "22:30:15", tod.String())

	tod, err = ParseTimeOfDay("06:00")
	require.NoError(t, err)
	assert.Equal(t, "06:00:00", tod.String())

	_, err = ParseTimeOfDay("25:00")
	assert.Error(t, err)
	_, err = ParseTimeOfDay("not a time")
	assert.Error(t, err)
}

func TestTimeOfDayWindowOvernight(t *testing.T) {
	start := mustTimeOfDay("22:00")
	end := mustTimeOfDay("06:00")

	assert.True(t, mustTimeOfDay("23:30").InWindow(start, end))
	assert.True(t, mustTimeOfDay("22:00").InWindow(start, end), "start is inclusive")
	assert.True(t, mustTimeOfDay("05:59").InWindow(start, end))
	assert.False(t, mustTimeOfDay("06:00").InWindow(start, end), "end is exclusive")
	assert.False(t, mustTimeOfDay("21:59").InWindow(start, end))
	assert.False(t, mustTimeOfDay("12:00").InWindow(start, end))
}

func TestTimeOfDayWindowSameDay(t *testing.T) {
	start := mustTimeOfDay("09:00")
	end := mustTimeOfDay("17:00")

	assert.True(t, mustTimeOfDay("09:00").InWindow(start, end))
	assert.True(t, mustTimeOfDay("12:00").InWindow(start, end))
	assert.False(t, mustTimeOfDay("17:00").InWindow(start, end))
	assert.False(t, mustTimeOfDay("08:59").InWindow(start, end))
}

func TestTimeOfDayWindowFullWrap(t *testing.T) {
	start := mustTimeOfDay("08:00")
	assert.True(t, mustTimeOfDay("08:00").InWindow(start, start))
	assert.True(t, mustTimeOfDay("20:00").InWindow(start, start))
}

func TestForecastDay(t *testing.T) {
	cutover := mustTimeOfDay("17:00")
	loc := time.UTC

	morning := time.Date(2025, 6, 10, 9, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 6, 10, 0, 0, 0, 0, loc), ForecastDay(morning, cutover))

	evening := time.Date(2025, 6, 10, 18, 30, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 6, 11, 0, 0, 0, 0, loc), ForecastDay(evening, cutover))

	// Exactly at cutover already selects tomorrow.
	atCutover := time.Date(2025, 6, 10, 17, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 6, 11, 0, 0, 0, 0, loc), ForecastDay(atCutover, cutover))
}
