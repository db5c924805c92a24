package engine

import (
	"context"
	"errors"
	"fmt"
)

// Entity state values shared with the Home Assistant collaborator.
const (
	StateOpen         = "open"
	StateClosed       = "closed"
	StateOpening      = "opening"
	StateClosing      = "closing"
	StateOn           = "on"
	StateUnavailable  = "unavailable"
	StateUnknown      = "unknown"
	SunBelowHorizon   = "below_horizon"
	ConditionSunny    = "sunny"
	ConditionPartlyCl = "partlycloudy"
)

// Cover supported-feature bits (Home Assistant bitmask values).
const (
	FeatureOpen        = 1
	FeatureClose       = 2
	FeatureSetPosition = 4
)

// sunnyConditions are the weather conditions under which heat protection may
// engage. Matching is case-insensitive.
var sunnyConditions = map[string]struct{}{
	ConditionSunny:    {},
	ConditionPartlyCl: {},
}

// EntityState is the raw state of one entity as supplied by the host: a
// discrete state string plus loosely typed attributes.
type EntityState struct {
	State      string
	Attributes map[string]any
}

// Float reads a numeric attribute, coercing numbers and numeric strings.
func (s *EntityState) Float(attr string) (float64, bool) {
	if s == nil || s.Attributes == nil {
		return 0, false
	}
	raw, ok := s.Attributes[attr]
	if !ok {
		return 0, false
	}
	return toFloat(raw)
}

// Int reads a numeric attribute, truncating fractional values.
func (s *EntityState) Int(attr string) (int, bool) {
	f, ok := s.Float(attr)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// StateProvider supplies sensor and entity state. Implementations may suspend
// on I/O; all methods honor the context.
type StateProvider interface {
	// SunData returns the sun's azimuth and elevation in degrees. A missing
	// sun source or unreadable elevation is fatal for the cycle; a missing
	// azimuth defaults to 0 on the provider side.
	SunData(ctx context.Context) (azimuth, elevation float64, err error)
	// SunState returns the sun's discrete state (e.g. below_horizon). Absence
	// is not an error.
	SunState(ctx context.Context) (string, bool)
	// MaxTemperature returns the authoritative forecast maximum in °C.
	MaxTemperature(ctx context.Context, weatherEntityID string) (float64, error)
	// WeatherCondition returns the current weather condition string.
	WeatherCondition(ctx context.Context, weatherEntityID string) (string, error)
	// EntityState returns the discrete state of an arbitrary entity (window
	// sensors); absence yields false.
	EntityState(ctx context.Context, entityID string) (string, bool)
}

// CoverActuator issues cover movement commands.
type CoverActuator interface {
	// SetCoverPosition moves a cover to the desired position (0-100) and
	// returns the position the cover actually heads to. In simulation mode it
	// performs no physical action but still reports the would-be position.
	SetCoverPosition(ctx context.Context, coverID string, desiredPos, features int) (int, error)
}

// LogbookRecorder emits human-readable movement entries. Fire-and-forget:
// implementations must swallow their own failures.
type LogbookRecorder interface {
	AddLogbookEntry(ctx context.Context, verb, coverID, reason string, targetPos int)
}

// ErrWeatherDataUnavailable signals a recoverable gap in forecast or
// condition data: the cycle ends early with an empty result and will be
// retried on the next schedule.
var ErrWeatherDataUnavailable = errors.New("weather data unavailable")

// FatalError marks a cycle failure that should render the whole automation
// unavailable, such as a missing sun source.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *FatalError) Unwrap() error { return e.Err }
