package cli

import (
	"fmt"
	"log/slog"

	"github.com/eshaffer321/receipt-reconciler/internal/adapters/ingest"
	"github.com/eshaffer321/receipt-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/receipt-reconciler/internal/application/scheduler"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/duplicate"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/merchant"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/config"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/storage"
)

// App holds the wired components every command works with
type App struct {
	Store     storage.Repository
	Engine    *reconcile.Engine
	Scheduler *scheduler.Scheduler
	Converter *ingest.Converter
	Logger    *slog.Logger

	closeStore func() error
}

// NewApp opens the database and wires the engine and scheduler
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	app, err := NewAppWithStore(cfg, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	app.closeStore = store.Close
	return app, nil
}

// NewAppWithStore wires the engine and scheduler over an existing store
func NewAppWithStore(cfg *config.Config, store storage.Repository, logger *slog.Logger) (*App, error) {
	matcherCfg, err := cfg.MatcherConfig()
	if err != nil {
		return nil, err
	}
	duplicateCfg, err := cfg.DuplicateConfig()
	if err != nil {
		return nil, err
	}
	schedulerCfg, err := cfg.SchedulerJobs()
	if err != nil {
		return nil, err
	}

	cache, err := merchant.NewVariantCache(cfg.Cache.MerchantVariants)
	if err != nil {
		return nil, fmt.Errorf("failed to create merchant cache: %w", err)
	}
	scorer := merchant.NewScorer(merchant.NewNormalizer(cfg.NormalizerConfig()), cache, cfg.SimilarityConfig())

	engine := reconcile.NewEngine(store,
		matcher.NewCalculator(matcherCfg, scorer),
		duplicate.NewDetector(duplicateCfg, scorer),
		cfg.EngineOptions(),
		logger,
	)

	return &App{
		Store:     store,
		Engine:    engine,
		Scheduler: scheduler.New(store, engine, schedulerCfg, logger),
		Converter: ingest.NewConverter(),
		Logger:    logger,
	}, nil
}

// Close stops background sweeps and closes the database
func (a *App) Close() error {
	a.Scheduler.Stop()
	if a.closeStore != nil {
		return a.closeStore()
	}
	return nil
}
