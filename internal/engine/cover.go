package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// moveReason classifies why a cover movement is issued.
type moveReason int

const (
	reasonHeatProtection moveReason = iota
	reasonLetLightIn
)

func (r moveReason) verb() string {
	if r == reasonHeatProtection {
		return "closing"
	}
	return "opening"
}

func (r moveReason) key() string {
	if r == reasonHeatProtection {
		return "heat_protection"
	}
	return "let_light_in"
}

// coverRun holds everything needed to decide one cover within one cycle.
type coverRun struct {
	id       string
	resolved ResolvedConfig
	options  Options
	history  *HistoryLedger
	states   StateProvider
	actuator CoverActuator
	logbook  LogbookRecorder
	logger   zerolog.Logger
	now      func() time.Time
}

// process runs the decision pipeline for a single cover. Every terminal exit
// is a skip recorded on the result; no error ever escapes to the caller.
func (c *coverRun) process(ctx context.Context, state *EntityState, data SensorData) CoverResult {
	res := CoverResult{}

	// Azimuth lookup
	azimuth, ok := c.options.OverrideFloat(c.id, OverrideAzimuth)
	if !ok {
		return c.skip(&res, "cover has invalid or missing azimuth, skipping")
	}
	res.Azimuth = &azimuth

	// State validation
	if state == nil || state.State == "" {
		return c.skip(&res, "cover state unavailable, skipping")
	}
	if state.State == StateUnavailable || state.State == StateUnknown {
		return c.skip(&res, fmt.Sprintf("cover state %q unsupported, skipping", state.State))
	}
	res.State = state.State

	// Movement in progress
	if s := strings.ToLower(state.State); s == StateOpening || s == StateClosing {
		return c.skip(&res, "cover is currently moving, skipping")
	}

	// Features and position
	features, _ := state.Int("supported_features")
	res.SupportedFeatures = &features
	currentPos := c.currentPosition(state, features)
	res.CurrentPos = &currentPos

	// Lock mode supersedes normal automation
	if c.resolved.LockMode != LockModeUnlocked {
		c.processLockMode(ctx, &res, currentPos, features)
		return c.finish(&res)
	}

	// Manual override
	if remaining, active := c.manualOverride(currentPos); active {
		msg := fmt.Sprintf("manual override detected (position changed externally), skipping this cover for another %.0f s", remaining.Seconds())
		return c.skip(&res, msg)
	}

	// Sun hit
	hitting, delta := c.sunHitting(data.SunAzimuth, data.SunElevation, azimuth)
	res.SunHitting = &hitting
	res.SunAzimuthDelta = &delta

	// Desired position
	desired, reason := c.desiredPosition(data, hitting)
	res.DesiredPos = &desired
	c.logger.Debug().Int("current", currentPos).Int("desired", desired).Str("reason", reason.key()).Msg("desired position")

	// Move decision
	moved, msg := c.moveIfNeeded(ctx, &res, currentPos, desired, features, reason)
	if !moved {
		c.history.Append(c.id, currentPos, false, c.now())
	}
	res.Message = msg

	c.logger.Debug().Str("result", msg).Msg("cover processed")
	return c.finish(&res)
}

// skip records a terminal skip with whatever has been populated so far.
func (c *coverRun) skip(res *CoverResult, msg string) CoverResult {
	res.Message = msg
	c.logger.Info().Msg(msg)
	return c.finish(res)
}

// finish attaches the current history snapshot (newest-first).
func (c *coverRun) finish(res *CoverResult) CoverResult {
	res.History = c.history.Entries(c.id)
	return *res
}

// currentPosition extracts the cover position: reported when the cover
// supports position control, otherwise inferred from its discrete state.
// Ambiguous states count as fully open.
func (c *coverRun) currentPosition(state *EntityState, features int) int {
	if features&FeatureSetPosition != 0 {
		if pos, ok := state.Int("current_position"); ok {
			return pos
		}
	}
	switch strings.ToLower(state.State) {
	case StateClosed:
		return PosFullyClosed
	case StateOpen:
		return PosFullyOpen
	default:
		return PosFullyOpen
	}
}

// manualOverride reports whether the cover's position diverged from the last
// recorded one within the override duration. A history timestamp in the
// future (clock skew) disables the check; at exactly the configured duration
// the override counts as expired.
func (c *coverRun) manualOverride(currentPos int) (time.Duration, bool) {
	last, ok := c.history.Latest(c.id)
	if !ok || currentPos == last.Position {
		return 0, false
	}
	now := c.now()
	if !now.After(last.Timestamp) {
		return 0, false
	}
	elapsed := now.Sub(last.Timestamp)
	if elapsed >= c.resolved.ManualOverrideDuration {
		return 0, false
	}
	return c.resolved.ManualOverrideDuration - elapsed, true
}

// sunHitting decides whether the sun warrants heat protection for this cover.
// The tolerance comparison is strictly less-than: exactly at tolerance does
// not count as hitting.
func (c *coverRun) sunHitting(sunAzimuth, sunElevation, coverAzimuth float64) (bool, float64) {
	delta := AngleDifference(sunAzimuth, coverAzimuth)
	if sunElevation < c.resolved.SunElevationThreshold {
		return false, delta
	}
	return delta < c.resolved.SunAzimuthTolerance, delta
}

// desiredPosition applies the heat-protection / let-light-in policy, clamped
// by the effective (per-cover or global) closure limits.
func (c *coverRun) desiredPosition(data SensorData, sunHitting bool) (int, moveReason) {
	if data.TempHot && data.WeatherSunny && sunHitting {
		limit := c.options.OverrideInt(c.id, OverrideMaxClosure, c.resolved.CoversMaxClosure)
		return max(PosFullyClosed, limit), reasonHeatProtection
	}
	limit := c.options.OverrideInt(c.id, OverrideMinClosure, c.resolved.CoversMinClosure)
	return min(PosFullyOpen, limit), reasonLetLightIn
}

// moveIfNeeded issues the movement when the position change is significant
// and not blocked by lockout protection. Actuator failures are absorbed into
// the result message; they never abort sibling covers.
func (c *coverRun) moveIfNeeded(ctx context.Context, res *CoverResult, currentPos, desiredPos, features int, reason moveReason) (bool, string) {
	if desiredPos == currentPos {
		return false, "no movement needed"
	}
	if abs(desiredPos-currentPos) < c.resolved.CoversMinPositionDelta {
		return false, "skipped minor adjustment"
	}

	closing := desiredPos < currentPos
	if closing {
		lockout := c.lockoutActive(ctx)
		res.LockoutActive = &lockout
		if lockout {
			return false, "lockout protection active, preventing closing"
		}
	}

	actualPos, err := c.actuator.SetCoverPosition(ctx, c.id, desiredPos, features)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to control cover")
		return false, fmt.Sprintf("failed to control cover: %v", err)
	}

	res.FinalPos = &actualPos
	res.Reason = reason.key()
	c.history.Append(c.id, actualPos, true, c.now())
	c.logbook.AddLogbookEntry(ctx, reason.verb(), c.id, reason.key(), actualPos)
	c.logger.Info().Int("from", currentPos).Int("to", actualPos).Str("reason", reason.key()).Msg("moved cover")
	return true, "moved cover"
}

// lockoutActive reports whether any companion window sensor for this cover is
// open. Only closing movements consult it; opening is never blocked.
func (c *coverRun) lockoutActive(ctx context.Context) bool {
	for _, sensorID := range c.options.OverrideStrings(c.id, OverrideWindowSensors) {
		if state, ok := c.states.EntityState(ctx, sensorID); ok && state == StateOn {
			return true
		}
	}
	return false
}

// processLockMode enforces the configured lock: hold blocks automation,
// force_open/force_close drive the cover to its extreme.
func (c *coverRun) processLockMode(ctx context.Context, res *CoverResult, currentPos, features int) {
	mode := c.resolved.LockMode

	if mode == LockModeHoldPosition {
		res.DesiredPos = &currentPos
		c.history.Append(c.id, currentPos, false, c.now())
		res.Message = fmt.Sprintf("lock active (%s), skipping automation", mode)
		c.logger.Info().Msg(res.Message)
		return
	}

	target := PosFullyOpen
	if mode == LockModeForceClose {
		target = PosFullyClosed
	}

	if currentPos == target {
		res.DesiredPos = &currentPos
		c.history.Append(c.id, currentPos, false, c.now())
		res.Message = fmt.Sprintf("lock active (%s), already at target position", mode)
		c.logger.Info().Msg(res.Message)
		return
	}

	actualPos, err := c.actuator.SetCoverPosition(ctx, c.id, target, features)
	if err != nil {
		c.history.Append(c.id, currentPos, false, c.now())
		res.Message = fmt.Sprintf("failed to control cover: %v", err)
		c.logger.Error().Err(err).Msg("failed to enforce lock position")
		return
	}

	res.DesiredPos = &actualPos
	res.FinalPos = &actualPos
	res.Reason = string(mode)
	c.history.Append(c.id, actualPos, true, c.now())
	res.Message = fmt.Sprintf("lock active (%s), moving to %d%%", mode, target)
	c.logger.Info().Msg(res.Message)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
