package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"book-features/internal/alerting"
	"book-features/internal/config"
	"book-features/internal/features"
	"book-features/internal/model"
	"book-features/internal/scheduler"
	"book-features/internal/service"
	"book-features/internal/source"
	"book-features/internal/storage"
	"book-features/internal/storage/clickhouse"
	"book-features/internal/validation"
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

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, a.Config.Alerting.Timeout, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// openSource opens the configured snapshot and trade source. The caller
// closes it once the run ends.
func (a *App) openSource(ctx context.Context) (source.Source, error) {
	switch a.Config.Source.Driver {
	case config.DriverClickHouse:
		if a.Config.ClickHouse.DSN == "" {
			return nil, errors.New("clickhouse.dsn is required for the clickhouse source")
		}
		conn, err := clickhouse.NewConn(ctx, a.Config.ClickHouse.DSN)
		if err != nil {
			return nil, err
		}
		return clickhouse.NewSource(conn), nil
	default:
		store, _, err := a.openStore(ctx)
		if err != nil {
			return nil, err
		}
		if store == nil {
			return nil, errors.New("database.dsn not configured; cannot read snapshots")
		}
		return store, nil
	}
}

// featureParams translates the features section into builder parameters.
func (a *App) featureParams() (features.Params, error) {
	fc := a.Config.Features
	p := features.Params{
		Symbol:       fc.Symbol,
		Limit:        fc.SampleLimit,
		MidOffsets:   fc.MidOffsets,
		TradeOffsets: fc.TradesOffsets,
		Sensitivity:  fc.Sensitivity,
		DropCrossed:  fc.CrossedBooks == config.CrossedDrop,
	}
	for _, ec := range fc.Imbalance {
		est, err := features.NewImbalanceEstimator(ec.Kind, ec.Depth)
		if err != nil {
			return features.Params{}, fmt.Errorf("features.imbalance: %w", err)
		}
		p.Imbalance = append(p.Imbalance, est)
	}
	for _, ec := range fc.AdjustedPrice {
		est, err := features.NewAdjustedPriceEstimator(ec.Kind, ec.Depth)
		if err != nil {
			return features.Params{}, fmt.Errorf("features.adjusted_price: %w", err)
		}
		p.AdjustedPrice = append(p.AdjustedPrice, est)
	}
	return p, p.Validate()
}

func (a *App) sweepOptions(targets []string) validation.SweepOptions {
	if len(targets) == 0 {
		targets = a.Config.Validation.Targets
	}
	kinds := make([]model.Kind, 0, len(a.Config.Validation.Models))
	for _, m := range a.Config.Validation.Models {
		kinds = append(kinds, model.Kind(m))
	}
	return validation.SweepOptions{
		Targets: targets,
		Kinds:   kinds,
		Ridge:   a.Config.Validation.Ridge,
	}
}

// buildTable runs one feature build against the configured source.
func (a *App) buildTable(ctx context.Context, p features.Params) (*features.Table, error) {
	src, err := a.openSource(ctx)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	return features.NewBuilder(src, src, a.Logger).Build(ctx, p)
}

// Run executes the scheduled rebuild service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	params, err := a.featureParams()
	if err != nil {
		return err
	}

	src, err := a.openSource(ctx)
	if err != nil {
		return err
	}
	defer src.Close()

	// The postgres source doubles as the feature store.
	store, _ := src.(*storage.Store)
	if store == nil {
		var closeStore func()
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if closeStore != nil {
			defer closeStore()
		}
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}

	sched, err := scheduler.New(scheduler.Options{
		Interval:       a.Config.Scheduler.Interval,
		AlignToStart:   a.Config.Scheduler.AlignToBucket,
		StartupDelay:   a.Config.Scheduler.StartupDelay,
		RunImmediately: true,
	}, a.Logger)
	if err != nil {
		return err
	}

	var featureStore storage.FeatureStore
	if store != nil {
		featureStore = store
	}

	svc := service.New(service.Options{
		Params:   params,
		Sweep:    a.sweepOptions(nil),
		Evaluate: a.Config.Scheduler.Evaluate,
		LockKey:  a.Config.Scheduler.AdvisoryLockKey,
		Notifier: a.newNotifier(),
		Floors:   a.Config.Alerting.ScoreFloors(),
	}, sched, features.NewBuilder(src, src, a.Logger), featureStore,
		validation.NewValidator(a.Config.Validation.Window, a.Logger), a.Logger)

	a.Logger.Info().Str("symbol", params.Symbol).Dur("interval", a.Config.Scheduler.Interval).Msg("starting rebuild service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("rebuild service stopped")
	return nil
}

// BuildOptions configure the build command.
type BuildOptions struct {
	CSVPath     string
	ParquetPath string
	Persist     bool
	MaxRows     int
}

// EvaluateOptions configure the evaluate command.
type EvaluateOptions struct {
	Targets   []string
	Window    int
	ChartPath string
}

// IngestOptions configure the ingest command.
type IngestOptions struct {
	SnapshotsPath string
	TradesPath    string
	BatchSize     int
	DryRun        bool
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
	JSON  bool
}

// InspectOptions configure the inspect command.
type InspectOptions struct {
	Limit int
}
