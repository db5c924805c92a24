package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cover position bounds. 0 is fully closed, 100 is fully open.
const (
	PosFullyClosed = 0
	PosFullyOpen   = 100
)

// LockMode overrides normal automation for all covers.
type LockMode string

const (
	LockModeUnlocked     LockMode = "unlocked"
	LockModeHoldPosition LockMode = "hold_position"
	LockModeForceOpen    LockMode = "force_open"
	LockModeForceClose   LockMode = "force_close"
)

// OverrideKind identifies a per-cover setting that may shadow its global default.
type OverrideKind string

const (
	OverrideAzimuth       OverrideKind = "azimuth"
	OverrideMinClosure    OverrideKind = "min_closure"
	OverrideMaxClosure    OverrideKind = "max_closure"
	OverrideWindowSensors OverrideKind = "window_sensors"
)

// Global setting keys as they appear in the raw options map.
const (
	keyEnabled                = "enabled"
	keyCovers                 = "covers"
	keyTempThreshold          = "temp_threshold"
	keySunElevationThreshold  = "sun_elevation_threshold"
	keySunAzimuthTolerance    = "sun_azimuth_tolerance"
	keyCoversMinClosure       = "covers_min_closure"
	keyCoversMaxClosure       = "covers_max_closure"
	keyCoversMinPositionDelta = "covers_min_position_delta"
	keyManualOverrideDuration = "manual_override_duration"
	keyNightPrivacy           = "night_privacy"
	keyDisabledTimeRange      = "disabled_time_range"
	keyDisabledTimeRangeStart = "disabled_time_range_start"
	keyDisabledTimeRangeEnd   = "disabled_time_range_end"
	keyWeatherHotCutoverTime  = "weather_hot_cutover_time"
	keySimulationMode         = "simulation_mode"
	keyWeatherEntityID        = "weather_entity_id"
	keyLockMode               = "lock_mode"
	keyVerboseLogging         = "verbose_logging"
)

// Options is the raw, flat, string-keyed configuration map for one automation
// instance: global keys plus "{cover_id}_{suffix}" per-cover override keys.
type Options map[string]any

// Override returns the raw per-cover override value for the given kind, or
// false when the key is absent. The string concatenation stays contained here
// so callers only deal in (coverID, OverrideKind) pairs.
func (o Options) Override(coverID string, kind OverrideKind) (any, bool) {
	v, ok := o[coverID+"_"+string(kind)]
	return v, ok
}

// OverrideInt resolves a numeric per-cover override, falling back to the
// global value when the key is absent or non-numeric.
func (o Options) OverrideInt(coverID string, kind OverrideKind, global int) int {
	raw, ok := o.Override(coverID, kind)
	if !ok {
		return global
	}
	if v, ok := toInt(raw); ok {
		return v
	}
	return global
}

// OverrideFloat resolves a float per-cover override with no global fallback;
// the second return reports whether a usable value was present.
func (o Options) OverrideFloat(coverID string, kind OverrideKind) (float64, bool) {
	raw, ok := o.Override(coverID, kind)
	if !ok {
		return 0, false
	}
	return toFloat(raw)
}

// OverrideStrings resolves a string-list per-cover override (window sensors).
func (o Options) OverrideStrings(coverID string, kind OverrideKind) []string {
	raw, ok := o.Override(coverID, kind)
	if !ok {
		return nil
	}
	return toStrings(raw)
}

// ResolvedConfig is the immutable snapshot of all global settings for one
// automation instance. Every field carries a concrete default; invalid raw
// values never propagate, they fall back to the default instead.
type ResolvedConfig struct {
	Enabled                bool
	Covers                 []string
	TempThreshold          float64
	SunElevationThreshold  float64
	SunAzimuthTolerance    float64
	CoversMinClosure       int
	CoversMaxClosure       int
	CoversMinPositionDelta int
	ManualOverrideDuration time.Duration
	NightPrivacy           bool
	DisabledTimeRange      bool
	DisabledTimeRangeStart TimeOfDay
	DisabledTimeRangeEnd   TimeOfDay
	WeatherHotCutoverTime  TimeOfDay
	SimulationMode         bool
	WeatherEntityID        string
	LockMode               LockMode
	VerboseLogging         bool
}

func defaults() ResolvedConfig {
	return ResolvedConfig{
		Enabled:                true,
		Covers:                 nil,
		TempThreshold:          23.0,
		SunElevationThreshold:  20.0,
		SunAzimuthTolerance:    90.0,
		CoversMinClosure:       PosFullyOpen,
		CoversMaxClosure:       PosFullyClosed,
		CoversMinPositionDelta: 5,
		ManualOverrideDuration: 30 * time.Minute,
		NightPrivacy:           false,
		DisabledTimeRange:      false,
		DisabledTimeRangeStart: mustTimeOfDay("22:00"),
		DisabledTimeRangeEnd:   mustTimeOfDay("06:00"),
		WeatherHotCutoverTime:  mustTimeOfDay("17:00"),
		SimulationMode:         false,
		WeatherEntityID:        "weather.home",
		LockMode:               LockModeUnlocked,
		VerboseLogging:         false,
	}
}

// Resolve converts the raw options map into a ResolvedConfig. Each key is
// coerced with its typed converter; coercion failure falls back silently to
// the key's default, so the result never carries a missing field.
func Resolve(opts Options) ResolvedConfig {
	d := defaults()
	return ResolvedConfig{
		Enabled:                resolveBool(opts, keyEnabled, d.Enabled),
		Covers:                 resolveCovers(opts, keyCovers),
		TempThreshold:          resolveFloat(opts, keyTempThreshold, d.TempThreshold),
		SunElevationThreshold:  resolveFloat(opts, keySunElevationThreshold, d.SunElevationThreshold),
		SunAzimuthTolerance:    resolveFloat(opts, keySunAzimuthTolerance, d.SunAzimuthTolerance),
		CoversMinClosure:       resolveInt(opts, keyCoversMinClosure, d.CoversMinClosure),
		CoversMaxClosure:       resolveInt(opts, keyCoversMaxClosure, d.CoversMaxClosure),
		CoversMinPositionDelta: resolveInt(opts, keyCoversMinPositionDelta, d.CoversMinPositionDelta),
		ManualOverrideDuration: resolveSeconds(opts, keyManualOverrideDuration, d.ManualOverrideDuration),
		NightPrivacy:           resolveBool(opts, keyNightPrivacy, d.NightPrivacy),
		DisabledTimeRange:      resolveBool(opts, keyDisabledTimeRange, d.DisabledTimeRange),
		DisabledTimeRangeStart: resolveTimeOfDay(opts, keyDisabledTimeRangeStart, d.DisabledTimeRangeStart),
		DisabledTimeRangeEnd:   resolveTimeOfDay(opts, keyDisabledTimeRangeEnd, d.DisabledTimeRangeEnd),
		WeatherHotCutoverTime:  resolveTimeOfDay(opts, keyWeatherHotCutoverTime, d.WeatherHotCutoverTime),
		SimulationMode:         resolveBool(opts, keySimulationMode, d.SimulationMode),
		WeatherEntityID:        resolveString(opts, keyWeatherEntityID, d.WeatherEntityID),
		LockMode:               resolveLockMode(opts, keyLockMode, d.LockMode),
		VerboseLogging:         resolveBool(opts, keyVerboseLogging, d.VerboseLogging),
	}
}

func resolveBool(opts Options, key string, def bool) bool {
	raw, ok := opts[key]
	if !ok {
		return def
	}
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(v))); err == nil {
			return b
		}
		return def
	default:
		if f, ok := toFloat(raw); ok {
			return f != 0
		}
		return def
	}
}

func resolveInt(opts Options, key string, def int) int {
	raw, ok := opts[key]
	if !ok {
		return def
	}
	if v, ok := toInt(raw); ok {
		return v
	}
	return def
}

func resolveFloat(opts Options, key string, def float64) float64 {
	raw, ok := opts[key]
	if !ok {
		return def
	}
	if v, ok := toFloat(raw); ok {
		return v
	}
	return def
}

func resolveString(opts Options, key string, def string) string {
	raw, ok := opts[key]
	if !ok {
		return def
	}
	if s, ok := raw.(string); ok && s != "" {
		return s
	}
	return def
}

func resolveSeconds(opts Options, key string, def time.Duration) time.Duration {
	raw, ok := opts[key]
	if !ok {
		return def
	}
	if v, ok := toFloat(raw); ok && v >= 0 {
		return time.Duration(v * float64(time.Second))
	}
	return def
}

func resolveTimeOfDay(opts Options, key string, def TimeOfDay) TimeOfDay {
	raw, ok := opts[key]
	if !ok {
		return def
	}
	if s, ok := raw.(string); ok {
		if tod, err := ParseTimeOfDay(s); err == nil {
			return tod
		}
	}
	return def
}

func resolveLockMode(opts Options, key string, def LockMode) LockMode {
	raw, ok := opts[key]
	if !ok {
		return def
	}
	if s, ok := raw.(string); ok {
		switch LockMode(strings.ToLower(strings.TrimSpace(s))) {
		case LockModeUnlocked:
			return LockModeUnlocked
		case LockModeHoldPosition:
			return LockModeHoldPosition
		case LockModeForceOpen:
			return LockModeForceOpen
		case LockModeForceClose:
			return LockModeForceClose
		}
	}
	return def
}

// resolveCovers normalizes the cover list: order preserved, duplicates
// collapsed, empty entries dropped.
func resolveCovers(opts Options, key string) []string {
	raw, ok := opts[key]
	if !ok {
		return nil
	}
	covers := toStrings(raw)
	seen := make(map[string]struct{}, len(covers))
	out := make([]string, 0, len(covers))
	for _, id := range covers {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// toFloat coerces ints, floats and numeric strings to float64.
func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// toInt coerces like toFloat but truncates fractional values.
func toInt(raw any) (int, bool) {
	f, ok := toFloat(raw)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func toStrings(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			} else {
				out = append(out, fmt.Sprint(item))
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	default:
		return nil
	}
}

func mustTimeOfDay(s string) TimeOfDay {
	tod, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return tod
}
