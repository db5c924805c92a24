package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"coverwatcher/internal/config"
	"coverwatcher/internal/engine"
	"coverwatcher/internal/scheduler"
	"coverwatcher/internal/storage"
)

// StateSource supplies raw cover states and receives the resolved forecast
// cutover before each cycle. The Home Assistant client implements it.
type StateSource interface {
	CoverStates(ctx context.Context, coverIDs []string) map[string]*engine.EntityState
	SetCutover(cutover engine.TimeOfDay)
}

// Service orchestrates scheduled decision cycles and audit persistence.
type Service struct {
	scheduler *scheduler.Scheduler
	engine    *engine.Engine
	states    StateSource
	store     storage.CycleSampleStore
	movements storage.MovementStore
	logger    zerolog.Logger

	locker  storage.AdvisoryLocker
	lockKey int64
}

// New constructs the automation service.
func New(cfg *config.Config, sched *scheduler.Scheduler, eng *engine.Engine, states StateSource, store storage.CycleSampleStore, movements storage.MovementStore, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	var lockKey int64
	if cfg != nil {
		lockKey = cfg.Scheduler.AdvisoryLockKey
	}

	return &Service{
		scheduler: sched,
		engine:    eng,
		states:    states,
		store:     store,
		movements: movements,
		logger:    logger.With().Str("component", "service").Logger(),
		locker:    locker,
		lockKey:   lockKey,
	}
}

// Run begins the aligned cycle loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessCycle)
}

// ProcessCycle executes one decision cycle for the given cycle start time.
func (s *Service) ProcessCycle(ctx context.Context, cycle time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("cycle", cycle).Msg("skip cycle because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeCycle(ctx, cycle)
}

func (s *Service) executeCycle(ctx context.Context, cycle time.Time) error {
	resolved := s.engine.Config()
	if !resolved.Enabled {
		s.logger.Debug().Time("cycle", cycle).Msg("automation disabled, skipping cycle")
		return nil
	}

	s.states.SetCutover(resolved.WeatherHotCutoverTime)
	coverStates := s.states.CoverStates(ctx, resolved.Covers)

	result, err := s.engine.RunCycle(ctx, coverStates)
	if err != nil {
		s.persistSample(ctx, cycle, result, "errored", err.Error())

		var fatal *engine.FatalError
		if errors.As(err, &fatal) {
			s.logger.Error().Err(err).Time("cycle", cycle).Msg("cycle failed")
			return err
		}
		return fmt.Errorf("run cycle: %w", err)
	}

	status := "complete"
	if !result.HasSensorData || result.Message != "" {
		status = "skipped"
	}
	s.persistSample(ctx, cycle, result, status, result.Message)
	s.persistMovements(ctx, cycle, result)

	s.logger.Info().Time("cycle", cycle).
		Str("status", status).
		Int("covers", len(result.Covers)).
		Int("moved", countMoved(result)).
		Msg("cycle recorded")

	return nil
}

func (s *Service) persistSample(ctx context.Context, cycle time.Time, result engine.CycleResult, status, message string) {
	if s.store == nil {
		return
	}

	sample := storage.CycleSample{
		CycleTS:      cycle,
		SunAzimuth:   result.SunAzimuth,
		SunElevation: result.SunElevation,
		ForecastMax:  decimal.NewFromFloat(result.ForecastMax),
		TempHot:      result.TempHot,
		WeatherSunny: result.WeatherSunny,
		CoversTotal:  len(result.Covers),
		CoversMoved:  countMoved(result),
		Status:       status,
		CreatedAt:    time.Now().UTC(),
	}
	if message != "" {
		sample.Message = &message
	}

	if err := s.store.UpsertCycleSample(ctx, sample); err != nil {
		s.logger.Error().Err(err).Time("cycle", cycle).Msg("failed to upsert cycle sample")
	}
}

func (s *Service) persistMovements(ctx context.Context, cycle time.Time, result engine.CycleResult) {
	if s.movements == nil {
		return
	}

	for coverID, res := range result.Covers {
		if !res.Moved() {
			continue
		}

		from := 0
		if res.CurrentPos != nil {
			from = *res.CurrentPos
		}

		movement := storage.CoverMovement{
			CycleTS:      cycle,
			CoverID:      coverID,
			Reason:       res.Reason,
			FromPosition: from,
			ToPosition:   *res.FinalPos,
		}
		if _, err := s.movements.InsertMovement(ctx, movement); err != nil {
			s.logger.Error().Err(err).Time("cycle", cycle).Str("cover", coverID).Msg("failed to persist movement")
		}
	}
}

func countMoved(result engine.CycleResult) int {
	moved := 0
	for _, res := range result.Covers {
		if res.Moved() {
			moved++
		}
	}
	return moved
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
