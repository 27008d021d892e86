// File: internal/service/components.go
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sdsbook/internal/api"
	"github.com/xkilldash9x/sdsbook/internal/browser"
	"github.com/xkilldash9x/sdsbook/internal/config"
	"github.com/xkilldash9x/sdsbook/internal/observability"
	"github.com/xkilldash9x/sdsbook/internal/store"
	"github.com/xkilldash9x/sdsbook/internal/workflow"
)

const shutdownTimeout = 30 * time.Second

// Components holds the initialized services behind every command and
// centralizes their lifecycle.
type Components struct {
	// Store is nil when no database is configured.
	Store    *store.Store
	Launcher browser.Launcher
	Runner   *workflow.Runner

	closeDB func()
}

// APIServer builds the HTTP API over the components. The stored data routes
// are enabled only with a database.
func (c *Components) APIServer(cfg config.Interface, logger *zap.Logger) *api.Server {
	var opts []api.Option
	if c.Store != nil {
		opts = append(opts, api.WithAppointments(c.Store), api.WithSnapshots(c.Store))
	}
	return api.NewServer(cfg, c.Runner, logger, opts...)
}

// Shutdown closes the browsers first, then the database pool.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	if c.Launcher != nil {
		// Detached from the caller's context so cleanup completes after cancellation.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := c.Launcher.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown.", zap.Error(err))
		} else {
			logger.Debug("Browser manager shut down.")
		}
	}

	if c.closeDB != nil {
		c.closeDB()
		c.closeDB = nil
		logger.Debug("Database connection pool closed.")
	}

	logger.Info("All components shut down.")
}
