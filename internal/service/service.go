package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"book-features/internal/alerting"
	"book-features/internal/features"
	"book-features/internal/model"
	"book-features/internal/scheduler"
	"book-features/internal/storage"
	"book-features/internal/validation"
)

// Options configure a Service.
type Options struct {
	Params   features.Params
	Sweep    validation.SweepOptions
	Evaluate bool
	LockKey  int64

	// Notifier, when set, receives evaluations scoring below the floor of
	// their model kind.
	Notifier alerting.Notifier
	Floors   map[model.Kind]float64
}

// RunReport summarises one rebuild.
type RunReport struct {
	At          time.Time
	Rows        int
	Persisted   int
	Evaluations []validation.Evaluation
	Alerted     bool
	Skipped     bool
}

// Service orchestrates feature rebuilds, persistence and evaluation.
type Service struct {
	scheduler *scheduler.Scheduler
	builder   *features.Builder
	store     storage.FeatureStore
	validator *validation.Validator
	logger    zerolog.Logger

	opts    Options
	locker  storage.AdvisoryLocker
	lockKey int64
}

// New constructs the rebuild service. sched, store and validator may be nil.
func New(opts Options, sched *scheduler.Scheduler, builder *features.Builder, store storage.FeatureStore, validator *validation.Validator, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler: sched,
		builder:   builder,
		store:     store,
		validator: validator,
		logger:    logger.With().Str("component", "service").Str("symbol", opts.Params.Symbol).Logger(),
		opts:      opts,
		locker:    locker,
		lockKey:   opts.LockKey,
	}
}

// Run begins the scheduled rebuild loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, func(ctx context.Context, at time.Time) error {
		_, err := s.ProcessRun(ctx, at)
		return err
	})
}

// ProcessRun rebuilds the feature table, persists it and, when enabled,
// evaluates it. The run is skipped when another runner holds the lock.
func (s *Service) ProcessRun(ctx context.Context, at time.Time) (RunReport, error) {
	report := RunReport{At: at}

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return report, err
	}
	if !proceed {
		s.logger.Debug().Time("at", at).Msg("skip run because advisory lock held elsewhere")
		report.Skipped = true
		return report, nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeRun(ctx, report)
}

func (s *Service) executeRun(ctx context.Context, report RunReport) (RunReport, error) {
	table, err := s.builder.Build(ctx, s.opts.Params)
	if err != nil {
		return report, fmt.Errorf("build features: %w", err)
	}
	report.Rows = table.Len()

	if s.store != nil {
		run := storage.FeatureRun{Symbol: s.opts.Params.Symbol, BuiltAt: report.At}
		n, err := s.store.UpsertFeatureRows(ctx, run, table)
		if err != nil {
			return report, fmt.Errorf("persist features: %w", err)
		}
		report.Persisted = n
	}

	s.logger.Info().Time("at", report.At).
		Int("rows", report.Rows).
		Int("persisted", report.Persisted).
		Msg("features rebuilt")

	if s.opts.Evaluate && s.validator != nil {
		evals, err := s.validator.Sweep(ctx, table, s.opts.Sweep)
		if err != nil {
			return report, fmt.Errorf("evaluate features: %w", err)
		}
		report.Evaluations = evals
		report.Alerted = s.alert(ctx, report)
	}

	return report, nil
}

func (s *Service) alert(ctx context.Context, report RunReport) bool {
	if s.opts.Notifier == nil {
		return false
	}
	failing := alerting.Degraded(report.Evaluations, s.opts.Floors)
	if len(failing) == 0 {
		return false
	}

	note := alerting.Notification{
		At:      report.At,
		Symbol:  s.opts.Params.Symbol,
		Rows:    report.Rows,
		Floors:  s.opts.Floors,
		Failing: failing,
	}
	if err := s.opts.Notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Time("at", report.At).Msg("failed to dispatch score alert")
		return false
	}
	return true
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
