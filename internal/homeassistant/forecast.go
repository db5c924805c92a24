package homeassistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"coverwatcher/internal/engine"
)

// Temperature field names in order of preference across weather providers.
var forecastTempFields = []string{
	"native_temperature",
	"temperature",
	"temp_max",
	"temp_high",
	"temphigh",
	"high",
	"max_temp",
}

// forecastResponse is the wire form of POST
// /api/services/weather/get_forecasts?return_response.
type forecastResponse struct {
	ServiceResponse map[string]struct {
		Forecast []map[string]any `json:"forecast"`
	} `json:"service_response"`
}

// SetCutover updates the time of day at which the forecast switches from
// today's to tomorrow's. The host applies the resolved value before each
// cycle.
func (c *Client) SetCutover(cutover engine.TimeOfDay) { c.cutover = cutover }

// MaxTemperature returns the applicable day's forecast maximum in °C,
// converting from Fahrenheit when the weather entity reports that unit.
// All failure modes wrap ErrWeatherDataUnavailable: forecast gaps are
// recoverable, never fatal.
func (c *Client) MaxTemperature(ctx context.Context, weatherEntityID string) (float64, error) {
	state, err := c.getEntity(ctx, weatherEntityID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", engine.ErrWeatherDataUnavailable, err)
	}

	maxTemp, err := c.forecastMax(ctx, weatherEntityID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", engine.ErrWeatherDataUnavailable, err)
	}

	wrapped := engine.EntityState{State: state.State, Attributes: state.Attributes}
	if unit, ok := wrapped.Attributes[attrTemperatureUnit].(string); ok && strings.Contains(unit, "F") {
		celsius := (maxTemp - 32) * 5.0 / 9.0
		c.logger.Debug().Float64("fahrenheit", maxTemp).Float64("celsius", celsius).Msg("converted forecast temperature")
		return celsius, nil
	}
	return maxTemp, nil
}

func (c *Client) forecastMax(ctx context.Context, weatherEntityID string) (float64, error) {
	var forecast forecastResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"entity_id": weatherEntityID, "type": "daily"}).
		SetResult(&forecast).
		Post("/api/services/weather/get_forecasts?return_response")
	if err != nil {
		return 0, fmt.Errorf("call get_forecasts for %s: %w", weatherEntityID, err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("call get_forecasts for %s: ha api error (%d)", weatherEntityID, resp.StatusCode())
	}

	entityData, ok := forecast.ServiceResponse[weatherEntityID]
	if !ok || len(entityData.Forecast) == 0 {
		return 0, fmt.Errorf("empty forecast response for %s", weatherEntityID)
	}

	day := engine.ForecastDay(c.now().Local(), c.cutover)
	entry, ok := findDayForecast(entityData.Forecast, day)
	if !ok {
		return 0, fmt.Errorf("no forecast entry for %s", day.Format("2006-01-02"))
	}

	maxTemp, ok := extractMaxTemperature(entry)
	if !ok {
		return 0, fmt.Errorf("no temperature field in forecast entry for %s", weatherEntityID)
	}
	return maxTemp, nil
}

// findDayForecast locates the forecast entry whose datetime falls on the
// given local day.
func findDayForecast(forecasts []map[string]any, day time.Time) (map[string]any, bool) {
	for _, entry := range forecasts {
		raw, ok := entry["datetime"].(string)
		if !ok {
			if raw, ok = entry["date"].(string); !ok {
				continue
			}
		}
		parsed, err := parseForecastTime(raw)
		if err != nil {
			continue
		}
		if parsed.Year() == day.Year() && parsed.YearDay() == day.YearDay() {
			return entry, true
		}
	}
	return nil, false
}

// parseForecastTime parses a forecast datetime. Zoned timestamps are shifted
// to local time before the day comparison; date-only entries are taken as-is.
func parseForecastTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.Local(), nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized forecast datetime %q", raw)
}

// extractMaxTemperature pulls the first recognized temperature field out of a
// forecast entry.
func extractMaxTemperature(entry map[string]any) (float64, bool) {
	for _, field := range forecastTempFields {
		raw, ok := entry[field]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		}
	}
	return 0, false
}
