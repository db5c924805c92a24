package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"coverwatcher/internal/config"
	"coverwatcher/internal/engine"
	"coverwatcher/internal/homeassistant"
	"coverwatcher/internal/logging"
	"coverwatcher/internal/scheduler"
	"coverwatcher/internal/service"
	"coverwatcher/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newHAClient(simulation bool) (*homeassistant.Client, error) {
	if a.Config.HomeAssistant.Token == "" {
		return nil, fmt.Errorf("homeassistant.token is required")
	}

	return homeassistant.NewClient(homeassistant.Options{
		BaseURL:    a.Config.HomeAssistant.BaseURL,
		Token:      a.Config.HomeAssistant.Token,
		Timeout:    a.Config.HomeAssistant.RequestTimeout,
		Simulation: simulation,
	}, a.Logger), nil
}

func (a *App) newEngine(ha *homeassistant.Client) *engine.Engine {
	options := engine.Options(a.Config.Automation)
	logger := logging.WithVerbose(a.Logger, engine.Resolve(options).VerboseLogging)
	return engine.New(ha, ha, ha, options, logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	if err := storage.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running automation daemon.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; audit persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	ha, err := a.newHAClient(false)
	if err != nil {
		return err
	}
	eng := a.newEngine(ha)
	if eng.Config().SimulationMode {
		a.Logger.Warn().Msg("simulation mode enabled; cover service calls will be skipped")
		ha.SetSimulation(true)
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToCycle,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	var sampleStore storage.CycleSampleStore
	var movementStore storage.MovementStore
	if store != nil {
		sampleStore = store
		movementStore = store
	}

	svc := service.New(a.Config, sched, eng, ha, sampleStore, movementStore, a.Logger)

	a.Logger.Info().Msg("starting cover automation service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("cover automation service stopped")
	return nil
}

// ExportOptions hold parameters for exporting recorded cycles.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit     int
	Movements bool
}

// OnceOptions configure a single diagnostic cycle.
type OnceOptions struct {
	Simulate bool
}
