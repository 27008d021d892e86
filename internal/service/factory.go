// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sdsbook/internal/browser"
	"github.com/xkilldash9x/sdsbook/internal/config"
	"github.com/xkilldash9x/sdsbook/internal/store"
	"github.com/xkilldash9x/sdsbook/internal/workflow"
)

// ComponentFactory creates the set of components every command runs on.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// connectFunc opens the database and returns the pool with its closer.
type connectFunc func(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (store.DBPool, func(), error)

// launchFunc creates the browser launcher.
type launchFunc func(cfg config.Interface, logger *zap.Logger) browser.Launcher

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct {
	connect connectFunc
	launch  launchFunc
}

// NewComponentFactory creates a factory backed by PostgreSQL and the
// configured browser backend.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{connect: connectPostgres, launch: launchBrowser}
}

func connectPostgres(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (store.DBPool, func(), error) {
	pool, err := InitializeDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return pool, pool.Close, nil
}

func launchBrowser(cfg config.Interface, logger *zap.Logger) browser.Launcher {
	return browser.NewManager(cfg, logger)
}

// Create wires configuration, persistence, the browser launcher and the
// workflow runner. Without a database URL the runner works unpersisted.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	components := &Components{}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Database and store
	var runnerOpts []workflow.RunnerOption
	if cfg.Database().URL == "" {
		logger.Warn("No database configured; bookings and availability snapshots will not be persisted and lookups get no service suggestions.")
	} else {
		pool, closeDB, err := f.connect(ctx, cfg.Database(), logger)
		if err != nil {
			initializationErr = fmt.Errorf("failed to connect to database: %w", err)
			return nil, initializationErr
		}
		components.closeDB = closeDB

		dbStore, err := store.New(ctx, pool, logger)
		if err != nil {
			initializationErr = fmt.Errorf("failed to initialize database store: %w", err)
			return nil, initializationErr
		}
		if cfg.Database().AutoMigrate {
			if err := dbStore.Migrate(ctx); err != nil {
				initializationErr = err
				return nil, initializationErr
			}
		}
		components.Store = dbStore
		runnerOpts = append(runnerOpts,
			workflow.WithCatalog(dbStore),
			workflow.WithAppointmentStore(dbStore),
			workflow.WithAvailabilityStore(dbStore),
		)
		logger.Debug("Store service initialized.")
	}

	// 2. Browser launcher. The browser process starts with the first session.
	components.Launcher = f.launch(cfg, logger)
	logger.Debug("Browser manager initialized.", zap.String("backend", cfg.Browser().Backend))

	// 3. Workflow runner
	components.Runner = workflow.NewRunner(cfg, components.Launcher, logger, runnerOpts...)

	logger.Info("All components initialized successfully.",
		zap.Bool("persistence", components.Store != nil),
		zap.Int("max_sessions", cfg.Browser().MaxSessions),
	)
	return components, nil
}
