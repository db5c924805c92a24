package homeassistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"coverwatcher/internal/engine"
)

const (
	sunEntityID = "sun.sun"

	attrAzimuth         = "azimuth"
	attrElevation       = "elevation"
	attrTemperatureUnit = "temperature_unit"

	serviceSetCoverPosition = "set_cover_position"
	serviceOpenCover        = "open_cover"
	serviceCloseCover       = "close_cover"
)

// Options parameterise the Home Assistant REST client.
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// Simulation skips cover service calls while still reporting the
	// position the cover would have moved to.
	Simulation bool
}

// Client talks to the Home Assistant REST API. It implements the engine's
// StateProvider, CoverActuator and LogbookRecorder collaborators.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	http    *resty.Client
	now     func() time.Time
	cutover engine.TimeOfDay
}

// NewClient constructs a Home Assistant client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Authorization", "Bearer "+opts.Token).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "homeassistant").Logger(),
		http:    httpClient,
		now:     time.Now,
		cutover: engine.TimeOfDay(17 * 3600),
	}
}

// SetSimulation toggles simulation mode between cycles.
func (c *Client) SetSimulation(enabled bool) { c.opts.Simulation = enabled }

// entityState is the wire form of GET /api/states/<entity_id>.
type entityState struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

var errEntityNotFound = errors.New("entity not found")

func (c *Client) getEntity(ctx context.Context, entityID string) (*entityState, error) {
	var state entityState
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&state).
		Get("/api/states/" + entityID)
	if err != nil {
		return nil, fmt.Errorf("fetch state of %s: %w", entityID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", errEntityNotFound, entityID)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch state of %s: ha api error (%d)", entityID, resp.StatusCode())
	}
	return &state, nil
}

// SunData returns the sun's azimuth and elevation in degrees. A missing sun
// entity or unreadable elevation is an error; a missing azimuth defaults to 0.
func (c *Client) SunData(ctx context.Context) (float64, float64, error) {
	sun, err := c.getEntity(ctx, sunEntityID)
	if err != nil {
		return 0, 0, err
	}

	wrapped := engine.EntityState{State: sun.State, Attributes: sun.Attributes}
	elevation, ok := wrapped.Float(attrElevation)
	if !ok {
		return 0, 0, fmt.Errorf("sun elevation unavailable on %s", sunEntityID)
	}
	azimuth, _ := wrapped.Float(attrAzimuth)
	return azimuth, elevation, nil
}

// SunState returns the sun's discrete state. Absence is not an error; the
// night-privacy gate simply stays open.
func (c *Client) SunState(ctx context.Context) (string, bool) {
	sun, err := c.getEntity(ctx, sunEntityID)
	if err != nil {
		c.logger.Debug().Err(err).Msg("sun state unavailable")
		return "", false
	}
	return sun.State, true
}

// WeatherCondition returns the current weather condition string.
func (c *Client) WeatherCondition(ctx context.Context, weatherEntityID string) (string, error) {
	state, err := c.getEntity(ctx, weatherEntityID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", engine.ErrWeatherDataUnavailable, err)
	}
	if state.State == "" || state.State == engine.StateUnavailable || state.State == engine.StateUnknown {
		return "", fmt.Errorf("%w: weather entity %s state is %q", engine.ErrWeatherDataUnavailable, weatherEntityID, state.State)
	}
	return state.State, nil
}

// EntityState returns the discrete state of an arbitrary entity, used for
// window sensors. Absence yields false.
func (c *Client) EntityState(ctx context.Context, entityID string) (string, bool) {
	state, err := c.getEntity(ctx, entityID)
	if err != nil {
		c.logger.Debug().Err(err).Str("entity", entityID).Msg("entity state unavailable")
		return "", false
	}
	return state.State, true
}

// CoverStates fetches the raw state of every configured cover. Covers that
// cannot be fetched map to nil so the engine records them as unavailable.
func (c *Client) CoverStates(ctx context.Context, coverIDs []string) map[string]*engine.EntityState {
	states := make(map[string]*engine.EntityState, len(coverIDs))
	for _, id := range coverIDs {
		raw, err := c.getEntity(ctx, id)
		if err != nil {
			c.logger.Warn().Err(err).Str("cover", id).Msg("failed to fetch cover state")
			states[id] = nil
			continue
		}
		states[id] = &engine.EntityState{State: raw.State, Attributes: raw.Attributes}
	}
	return states
}

// SetCoverPosition moves a cover via the most appropriate service call:
// set_cover_position when supported, open/close otherwise. It returns the
// position the cover actually heads to, which for binary covers is 0 or 100.
func (c *Client) SetCoverPosition(ctx context.Context, coverID string, desiredPos, features int) (int, error) {
	if desiredPos < engine.PosFullyClosed || desiredPos > engine.PosFullyOpen {
		return 0, fmt.Errorf("desired position %d out of range", desiredPos)
	}

	var (
		service   string
		actualPos int
		payload   = map[string]any{"entity_id": coverID}
	)
	if features&engine.FeatureSetPosition != 0 {
		service = serviceSetCoverPosition
		payload["position"] = desiredPos
		actualPos = desiredPos
	} else if desiredPos > engine.PosFullyOpen/2 {
		service = serviceOpenCover
		actualPos = engine.PosFullyOpen
	} else {
		service = serviceCloseCover
		actualPos = engine.PosFullyClosed
	}

	if c.opts.Simulation {
		c.logger.Info().
			Str("cover", coverID).
			Str("service", service).
			Int("position", actualPos).
			Msg("simulation mode, skipping service call")
		return actualPos, nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		Post("/api/services/cover/" + service)
	if err != nil {
		return 0, fmt.Errorf("call %s for %s: %w", service, coverID, err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("call %s for %s: ha api error (%d)", service, coverID, resp.StatusCode())
	}

	c.logger.Debug().Str("cover", coverID).Str("service", service).Int("position", actualPos).Msg("cover service called")
	return actualPos, nil
}

// AddLogbookEntry records a human-readable movement entry. Fire-and-forget:
// failures are logged at debug and never propagated.
func (c *Client) AddLogbookEntry(ctx context.Context, verb, coverID, reason string, targetPos int) {
	message := fmt.Sprintf("%s %s to %d%% (%s)", verb, coverID, targetPos, strings.ReplaceAll(reason, "_", " "))
	payload := map[string]any{
		"name":      "coverwatcher",
		"message":   message,
		"entity_id": coverID,
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		Post("/api/services/logbook/log")
	if err != nil {
		c.logger.Debug().Err(err).Str("cover", coverID).Msg("failed to add logbook entry")
		return
	}
	if resp.IsError() {
		c.logger.Debug().Int("status", resp.StatusCode()).Str("cover", coverID).Msg("failed to add logbook entry")
	}
}

var (
	_ engine.StateProvider   = (*Client)(nil)
	_ engine.CoverActuator   = (*Client)(nil)
	_ engine.LogbookRecorder = (*Client)(nil)
)
