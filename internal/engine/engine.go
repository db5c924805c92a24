package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SensorData is the per-cycle immutable snapshot of shared sensor readings.
type SensorData struct {
	SunAzimuth       float64
	SunElevation     float64
	ForecastMax      float64
	TempHot          bool
	WeatherCondition string
	WeatherSunny     bool
}

// CoverResult is the per-cover output record of one cycle. Optional fields
// are pointers so that a partially processed cover reports only what was
// actually determined before its terminal exit.
type CoverResult struct {
	Azimuth           *float64
	State             string
	SupportedFeatures *int
	CurrentPos        *int
	SunHitting        *bool
	SunAzimuthDelta   *float64
	DesiredPos        *int
	FinalPos          *int
	LockoutActive     *bool
	History           []PositionEntry
	// Reason is set when a movement was issued (heat_protection,
	// let_light_in, or the active lock mode).
	Reason  string
	Message string
}

// Moved reports whether this cycle issued a movement for the cover.
func (r *CoverResult) Moved() bool { return r.FinalPos != nil }

// CycleResult aggregates one full decision cycle.
type CycleResult struct {
	HasSensorData bool
	SunAzimuth    float64
	SunElevation  float64
	ForecastMax   float64
	TempHot       bool
	WeatherSunny  bool
	Message       string
	Covers        map[string]CoverResult
}

// Engine runs decision cycles over all configured covers. It owns no
// scheduling; the host triggers RunCycle and guarantees cycles do not
// overlap.
type Engine struct {
	states   StateProvider
	actuator CoverActuator
	logbook  LogbookRecorder
	history  *HistoryLedger
	logger   zerolog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	resolved ResolvedConfig
	options  Options
}

// New constructs an Engine with its collaborators and the initial
// configuration snapshot.
func New(states StateProvider, actuator CoverActuator, logbook LogbookRecorder, options Options, logger zerolog.Logger) *Engine {
	return &Engine{
		states:   states,
		actuator: actuator,
		logbook:  logbook,
		history:  NewHistoryLedger(),
		logger:   logger.With().Str("component", "engine").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
		resolved: Resolve(options),
		options:  options,
	}
}

// SetOptions hot-swaps the configuration between cycles without
// reconstructing the engine or losing position history.
func (e *Engine) SetOptions(options Options) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.options = options
	e.resolved = Resolve(options)
}

// Config returns the current resolved configuration snapshot.
func (e *Engine) Config() ResolvedConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.resolved
}

// History exposes the ledger's read accessors, e.g. for movement timestamps.
func (e *Engine) History() *HistoryLedger { return e.history }

// RunCycle executes exactly one decision cycle. coverStates maps cover ids to
// their current raw state; a nil value means the cover is unavailable. The
// returned error is non-nil only for fatal conditions; recoverable gaps yield
// an empty-but-valid result.
func (e *Engine) RunCycle(ctx context.Context, coverStates map[string]*EntityState) (CycleResult, error) {
	e.mu.RLock()
	resolved := e.resolved
	options := e.options
	e.mu.RUnlock()

	result := CycleResult{Covers: make(map[string]CoverResult)}

	data, err := e.gatherSensorData(ctx, resolved, &result)
	if err != nil {
		return result, err
	}
	if data == nil {
		// Recoverable gap, message already recorded.
		return result, nil
	}

	result.HasSensorData = true
	result.SunAzimuth = data.SunAzimuth
	result.SunElevation = data.SunElevation
	result.ForecastMax = data.ForecastMax
	result.TempHot = data.TempHot
	result.WeatherSunny = data.WeatherSunny

	e.logger.Info().
		Float64("sun_azimuth", data.SunAzimuth).
		Float64("sun_elevation", data.SunElevation).
		Float64("forecast_max", data.ForecastMax).
		Bool("temp_hot", data.TempHot).
		Str("condition", data.WeatherCondition).
		Bool("weather_sunny", data.WeatherSunny).
		Msg("sensor states")
	e.logger.Debug().
		Float64("temp_threshold", resolved.TempThreshold).
		Float64("sun_elevation_threshold", resolved.SunElevationThreshold).
		Float64("sun_azimuth_tolerance", resolved.SunAzimuthTolerance).
		Int("min_position_delta", resolved.CoversMinPositionDelta).
		Str("weather_hot_cutover_time", resolved.WeatherHotCutoverTime.String()).
		Msg("global settings")

	if blocked, msg := e.checkGlobalGates(ctx, resolved); blocked {
		result.Message = msg
		e.logger.Debug().Msg(msg)
		return result, nil
	}

	for _, coverID := range resolved.Covers {
		run := &coverRun{
			id:       coverID,
			resolved: resolved,
			options:  options,
			history:  e.history,
			states:   e.states,
			actuator: e.actuator,
			logbook:  e.logbook,
			logger:   e.logger.With().Str("cover", coverID).Logger(),
			now:      e.now,
		}
		result.Covers[coverID] = run.process(ctx, coverStates[coverID], *data)
	}

	return result, nil
}

// gatherSensorData queries sun and weather sources. A nil SensorData with a
// nil error means a recoverable gap; the message is recorded on the result.
func (e *Engine) gatherSensorData(ctx context.Context, resolved ResolvedConfig, result *CycleResult) (*SensorData, error) {
	azimuth, elevation, err := e.states.SunData(ctx)
	if err != nil {
		return nil, &FatalError{Reason: "sun data unavailable", Err: err}
	}

	forecastMax, err := e.states.MaxTemperature(ctx, resolved.WeatherEntityID)
	if err != nil {
		result.Message = "weather data unavailable, skipping actions"
		e.logger.Warn().Err(err).Msg(result.Message)
		return nil, nil
	}
	condition, err := e.states.WeatherCondition(ctx, resolved.WeatherEntityID)
	if err != nil {
		result.Message = "weather data unavailable, skipping actions"
		e.logger.Warn().Err(err).Msg(result.Message)
		return nil, nil
	}

	_, sunny := sunnyConditions[strings.ToLower(condition)]
	return &SensorData{
		SunAzimuth:       azimuth,
		SunElevation:     elevation,
		ForecastMax:      forecastMax,
		TempHot:          forecastMax > resolved.TempThreshold,
		WeatherCondition: condition,
		WeatherSunny:     sunny,
	}, nil
}

// checkGlobalGates evaluates the night-privacy and disabled-time-window
// gates. Either one ends the cycle early with an empty-but-valid result.
func (e *Engine) checkGlobalGates(ctx context.Context, resolved ResolvedConfig) (bool, string) {
	if resolved.NightPrivacy {
		if state, ok := e.states.SunState(ctx); ok && state == SunBelowHorizon {
			return true, "night privacy enabled and sun below horizon, skipping actions"
		}
	}

	if resolved.DisabledTimeRange {
		now := TimeOfDayFromTime(e.now().Local())
		if now.InWindow(resolved.DisabledTimeRangeStart, resolved.DisabledTimeRangeEnd) {
			return true, "automation disabled for the current time period (" +
				resolved.DisabledTimeRangeStart.String() + " - " + resolved.DisabledTimeRangeEnd.String() + "), skipping actions"
		}
	}

	return false, ""
}
