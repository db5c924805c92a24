package engine

import (
	"fmt"
	"math"
	"time"
)

// AngleDifference returns the smallest circular distance between two compass
// angles in degrees. The result is always within [0, 180]; 0°/360° wraparound
// is handled, so AngleDifference(350, 10) == 20.
func AngleDifference(a, b float64) float64 {
	diff := math.Mod(math.Abs(a-b), 360)
	if diff > 180 {
		diff = 360 - diff
	}
	return diff
}

// TimeOfDay is a wall-clock time without a date, stored as seconds since
// midnight.
type TimeOfDay int

// ParseTimeOfDay accepts "15:04" or "15:04:05".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay(t.Hour()*3600 + t.Minute()*60 + t.Second()), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", s)
}

// TimeOfDayFromTime extracts the wall-clock time of t in its own location.
func TimeOfDayFromTime(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", int(t)/3600, int(t)%3600/60, int(t)%60)
}

// InWindow reports whether t lies inside [start, end). A window whose start
// is after its end wraps past midnight; start == end means the window covers
// the full day, so every instant is inside.
func (t TimeOfDay) InWindow(start, end TimeOfDay) bool {
	switch {
	case start == end:
		return true
	case start < end:
		return t >= start && t < end
	default:
		return t >= start || t < end
	}
}

// ForecastDay selects which calendar day's forecast is authoritative: past
// the cutover time of day the answer is tomorrow, before it today. The
// returned time is midnight of that day in nowLocal's location.
func ForecastDay(nowLocal time.Time, cutover TimeOfDay) time.Time {
	day := nowLocal
	if TimeOfDayFromTime(nowLocal) >= cutover {
		day = day.AddDate(0, 0, 1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
}
