package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"mealweek/internal/config"
	"mealweek/internal/mealplan"
	"mealweek/internal/platform/mealdb"
	"mealweek/internal/search"
	"mealweek/internal/shopping"
	"mealweek/internal/thumbnail"
)

// App holds the application's dependencies.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Client     *mealdb.Client
	Store      *mealplan.Store
	Search     *search.Controller
	Shopping   *shopping.Service
	Thumbnails *thumbnail.Cache

	closers []func() error
}

// New wires the application from cfg. The meal plan is restored from the
// configured storage backend.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	a.Client = mealdb.NewClient(
		mealdb.WithBaseURL(cfg.MealDBURL),
		mealdb.WithTimeout(time.Duration(cfg.HTTPTimeout)),
		mealdb.WithConcurrency(cfg.FetchLimit),
		mealdb.WithLogger(logger.Named("mealdb")),
	)

	persister, closeFn, err := NewPersister(cfg)
	if err != nil {
		return nil, err
	}
	if closeFn != nil {
		a.closers = append(a.closers, closeFn)
	}
	a.Store = mealplan.NewStore(ctx, persister, logger.Named("mealplan"))

	a.Search = search.NewController(a.Client,
		search.WithDebounce(time.Duration(cfg.Debounce)),
		search.WithTimeout(time.Duration(cfg.HTTPTimeout)),
		search.WithLogger(logger.Named("search")),
	)
	a.closers = append(a.closers, func() error { a.Search.Close(); return nil })

	a.Shopping = shopping.NewService(a.Store, a.Client, logger.Named("shopping"))
	a.closers = append(a.closers, func() error { a.Shopping.Close(); return nil })

	a.Thumbnails, err = thumbnail.NewCache(cfg.ThumbnailDir(), cfg.ThumbnailWidth, a.Client, logger.Named("thumbnail"))
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// NewPersister opens the storage backend selected by cfg. The returned
// close func is nil for backends that hold no resources.
func NewPersister(cfg *config.Config) (mealplan.Persister, func() error, error) {
	switch cfg.Storage {
	case config.StorageFile:
		p, err := mealplan.NewFilePersister(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil
	case config.StorageSQLite:
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		p, err := mealplan.NewSQLPersister("sqlite", cfg.SQLitePath())
		if err != nil {
			return nil, nil, fmt.Errorf("error creating sqlite persister: %w", err)
		}
		return p, p.Close, nil
	case config.StoragePostgres:
		p, err := mealplan.NewSQLPersister("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("error creating postgres persister: %w", err)
		}
		return p, p.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

// Close releases everything New acquired.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	_ = a.Logger.Sync()
	return errors.Join(errs...)
}
